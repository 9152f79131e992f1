package fetch

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultDenyPatterns are endpoints the engine must not call: they need a
// node, shard or index identity the user has not supplied, or they change
// cluster state even when sent as GET.
var DefaultDenyPatterns = []string{
	`^_cluster/allocation/explain`,
	`^_cluster/reroute`,
	`^_cluster/settings`,
	`(^|/)_shutdown`,
	`^_security/`,
	`(^|/)_shard_stores`,
	`^_search/scroll`,
}

// DefaultMutatingVerbs are HTTP methods never sent to a cluster.
var DefaultMutatingVerbs = []string{"POST", "PUT", "PATCH", "DELETE"}

// Violation explains why a request was refused.
type Violation struct {
	Endpoint string
	Rule     string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	return fmt.Sprintf("endpoint %q denied by policy: %s", v.Endpoint, v.Rule)
}

// Policy is a mechanical endpoint denylist.
type Policy struct {
	verbs    map[string]bool
	patterns []*regexp.Regexp
}

// NewPolicy compiles a policy. Empty arguments mean "deny nothing" for that
// dimension; use DefaultPolicy for the built-in rules.
func NewPolicy(denyPatterns, mutatingVerbs []string) (*Policy, error) {
	p := &Policy{verbs: make(map[string]bool, len(mutatingVerbs))}
	for _, v := range mutatingVerbs {
		p.verbs[strings.ToUpper(strings.TrimSpace(v))] = true
	}
	for _, pat := range denyPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("deny pattern %q: %w", pat, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultDenyPatterns, DefaultMutatingVerbs)
	if err != nil {
		panic(err)
	}
	return p
}

// Check returns a *Violation if the request must not be sent.
func (p *Policy) Check(req Request) error {
	if p == nil {
		return nil
	}
	method := strings.ToUpper(req.method())
	if p.verbs[method] {
		return &Violation{Endpoint: req.String(), Rule: "mutating verb " + method}
	}
	path := strings.TrimLeft(req.Path, "/")
	for _, re := range p.patterns {
		if re.MatchString(path) {
			return &Violation{Endpoint: req.String(), Rule: "matches " + re.String()}
		}
	}
	return nil
}

// Patterns returns the deny patterns as strings, for prompting.
func (p *Policy) Patterns() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.patterns))
	for i, re := range p.patterns {
		out[i] = re.String()
	}
	return out
}
