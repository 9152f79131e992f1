package fetch

import (
	"errors"
	"testing"
)

func TestPolicy_Check(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		req     Request
		allowed bool
	}{
		{name: "cat indices", req: Request{Path: "_cat/indices?v"}, allowed: true},
		{name: "cluster health", req: Request{Path: "/_cluster/health"}, allowed: true},
		{name: "node stats", req: Request{Path: "_nodes/stats/jvm"}, allowed: true},
		{name: "explicit get", req: Request{Method: "GET", Path: "_cat/allocation?v"}, allowed: true},
		{name: "head", req: Request{Method: "head", Path: "logs"}, allowed: true},
		{name: "allocation explain", req: Request{Path: "_cluster/allocation/explain"}},
		{name: "allocation explain with slash", req: Request{Path: "/_cluster/allocation/explain?include_disk_info"}},
		{name: "reroute", req: Request{Path: "_cluster/reroute"}},
		{name: "shard stores", req: Request{Path: "logs-1/_shard_stores"}},
		{name: "delete", req: Request{Method: "DELETE", Path: "logs-1"}},
		{name: "lowercase post", req: Request{Method: "post", Path: "_cache/clear"}},
		{name: "security", req: Request{Path: "_security/user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.req)
			if tt.allowed {
				if err != nil {
					t.Errorf("expected %s to be allowed, got %v", tt.req, err)
				}
				return
			}
			var v *Violation
			if !errors.As(err, &v) {
				t.Fatalf("expected *Violation for %s, got %v", tt.req, err)
			}
			if v.Endpoint != tt.req.String() {
				t.Errorf("Endpoint = %q, expected %q", v.Endpoint, tt.req.String())
			}
		})
	}
}

func TestPolicy_Custom(t *testing.T) {
	p, err := NewPolicy([]string{`^_cat/shards`}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Check(Request{Method: "DELETE", Path: "x"}); err != nil {
		t.Errorf("no verbs configured, got %v", err)
	}
	if err := p.Check(Request{Path: "_cat/shards"}); err == nil {
		t.Error("expected pattern violation")
	}
	if got := p.Patterns(); len(got) != 1 || got[0] != `^_cat/shards` {
		t.Errorf("Patterns() = %v", got)
	}

	if _, err := NewPolicy([]string{"("}, nil); err == nil {
		t.Error("expected compile error")
	}

	var nilPolicy *Policy
	if err := nilPolicy.Check(Request{Method: "DELETE", Path: "x"}); err != nil {
		t.Errorf("nil policy allows everything, got %v", err)
	}
}
