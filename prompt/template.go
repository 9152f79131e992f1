// Package prompt renders the fixed prompts the chat engine sends to the
// reasoning engine.
//
// Templates use a small Handlebars-like syntax that is converted to Go
// text/template before parsing:
//
//	{{name}}                -> {{.name}}
//	{{#if name}}...{{/if}}  -> {{if .name}}...{{end}}
//	{{#each list}}...{{/each}} -> {{range .list}}...{{end}}
//
// Inside #each, {{this}} is the current element. Variables referenced by a
// template must be supplied; a missing variable is an error rather than
// "<no value>" leaking into a prompt.
package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// Sentinel errors for template operations.
var (
	// ErrEmpty is returned when the template string is empty.
	ErrEmpty = errors.New("prompt template is empty")

	// ErrParse is returned when the template fails to parse.
	ErrParse = errors.New("prompt template parse error")

	// ErrExecute is returned when template execution fails.
	ErrExecute = errors.New("prompt template execution error")
)

var (
	ifPattern   = regexp.MustCompile(`\{\{#if\s+(\w+)\}\}`)
	eachPattern = regexp.MustCompile(`\{\{#each\s+(\w+)\}\}`)
	varPattern  = regexp.MustCompile(`\{\{([a-zA-Z_]\w*)\}\}`)
)

// goTemplateKeywords are reserved words that must not become field lookups.
var goTemplateKeywords = map[string]bool{
	"else":  true,
	"end":   true,
	"if":    true,
	"range": true,
	"with":  true,
}

// convertSyntax converts the Handlebars-like syntax to Go template syntax.
func convertSyntax(input string) string {
	result := ifPattern.ReplaceAllString(input, "{{if .$1}}")
	result = strings.ReplaceAll(result, "{{/if}}", "{{end}}")
	result = eachPattern.ReplaceAllString(result, "{{range .$1}}")
	result = strings.ReplaceAll(result, "{{/each}}", "{{end}}")

	return varPattern.ReplaceAllStringFunc(result, func(match string) string {
		name := match[2 : len(match)-2]
		switch {
		case goTemplateKeywords[name]:
			return match
		case name == "this":
			return "{{.}}"
		default:
			return "{{." + name + "}}"
		}
	})
}

// Template is a parsed prompt template. It is safe for concurrent use.
type Template struct {
	name string
	src  string
	tmpl *template.Template
}

// Compile parses a template.
func Compile(name, src string) (*Template, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(convertSyntax(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, name, err)
	}
	return &Template{name: name, src: src, tmpl: tmpl}, nil
}

// MustCompile is like Compile but panics on error. It is meant for
// package-level defaults.
func MustCompile(name, src string) *Template {
	t, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Source returns the unconverted template text.
func (t *Template) Source() string {
	return t.src
}

// Render executes the template with the given variables.
func (t *Template) Render(vars map[string]any) (string, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	var buf strings.Builder
	if err := t.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExecute, t.name, err)
	}
	return buf.String(), nil
}
