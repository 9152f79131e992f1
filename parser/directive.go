package parser

import (
	"errors"
	"strings"
)

// ErrAmbiguousClassification is reported when the engine answers the
// yes/no classification question with anything but "yes" or "no".
var ErrAmbiguousClassification = errors.New("ambiguous classification")

// Classification is the engine's answer to "does this need live data?".
type Classification int

const (
	// Ambiguous means the reply broke the yes/no contract.
	Ambiguous Classification = iota
	// Yes means a fetch is required.
	Yes
	// No means the question can be answered from history.
	No
)

// String returns the classification name.
func (c Classification) String() string {
	switch c {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "ambiguous"
	}
}

// ParseClassification parses a classification reply. Reasoning blocks and
// surrounding whitespace are ignored; what remains must be exactly "yes"
// or "no". Matching is case-sensitive.
func ParseClassification(reply string) Classification {
	switch StripReasoning(reply) {
	case "yes":
		return Yes
	case "no":
		return No
	default:
		return Ambiguous
	}
}

// EndpointDirective is a parsed endpoint request. The zero value is the
// None variant.
type EndpointDirective struct {
	// Raw is the reply exactly as the engine returned it.
	Raw string
	// Method is the HTTP verb, GET unless the reply named another.
	Method string
	// Path is the endpoint without a leading slash, query string included.
	Path string
}

// Valid reports whether the directive names an endpoint.
func (d EndpointDirective) Valid() bool {
	return d.Path != ""
}

// String renders the directive as "METHOD path".
func (d EndpointDirective) String() string {
	if !d.Valid() {
		return ""
	}
	return d.Method + " " + d.Path
}

var httpMethods = map[string]bool{
	"GET":    true,
	"HEAD":   true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// ParseEndpointDirective extracts a single endpoint from an engine reply.
//
// Accepted shapes, optionally inside a code fence, backticks or quotes:
//
//	_cat/indices?v
//	/_cluster/health
//	GET _nodes/stats/jvm
//
// Anything spanning several lines or with more than a verb and a path
// yields the None variant.
func ParseEndpointDirective(reply string) EndpointDirective {
	none := EndpointDirective{Raw: reply}

	s := StripReasoning(reply)
	if block, ok := FirstCodeBlock(s); ok {
		s = block.Content
	}
	s = strings.Trim(strings.TrimSpace(s), "`\"'")
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "\r\n") {
		return none
	}

	method := "GET"
	var path string
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		path = fields[0]
	case 2:
		verb := strings.ToUpper(fields[0])
		if !httpMethods[verb] {
			return none
		}
		method, path = verb, fields[1]
	default:
		return none
	}

	path = strings.TrimLeft(path, "/")
	if path == "" {
		return none
	}
	return EndpointDirective{Raw: reply, Method: method, Path: path}
}
