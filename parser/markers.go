package parser

import (
	"regexp"
	"strings"
	"sync"
)

// MarkerMatcher removes XML-style markers such as <think>...</think> from
// content. Each tag's pattern is compiled once.
type MarkerMatcher struct {
	patterns map[string]*regexp.Regexp
	mu       sync.RWMutex
}

// NewMarkerMatcher creates a matcher for the given tag names.
// Tags should be provided without angle brackets.
func NewMarkerMatcher(tags ...string) *MarkerMatcher {
	m := &MarkerMatcher{
		patterns: make(map[string]*regexp.Regexp, len(tags)),
	}
	for _, tag := range tags {
		m.AddTag(tag)
	}
	return m
}

// AddTag adds a new tag to match. This is safe for concurrent use.
func (m *MarkerMatcher) AddTag(tag string) {
	// (?s) lets the body span lines.
	pattern := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)

	m.mu.Lock()
	if _, exists := m.patterns[tag]; !exists {
		m.patterns[tag] = pattern
	}
	m.mu.Unlock()
}

func (m *MarkerMatcher) pattern(tag string) (*regexp.Regexp, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patterns[tag]
	return p, ok
}

// Strip removes every marker with the given tag, including its body.
func (m *MarkerMatcher) Strip(content, tag string) string {
	pattern, ok := m.pattern(tag)
	if !ok {
		return content
	}
	return pattern.ReplaceAllString(content, "")
}

const reasoningTag = "think"

// ReasoningMarkers matches chain-of-thought blocks emitted by reasoning
// models.
var ReasoningMarkers = NewMarkerMatcher(reasoningTag)

// StripReasoning removes <think> blocks and trims the result.
//
// Some providers drop the opening tag and only emit "...</think>answer";
// in that case everything up to the last closing tag is discarded. An
// opening tag that is never closed means the reply was cut off inside the
// reasoning, and nothing usable remains.
func StripReasoning(content string) string {
	out := ReasoningMarkers.Strip(content, reasoningTag)

	if i := strings.LastIndex(out, "</"+reasoningTag+">"); i >= 0 {
		out = out[i+len("</"+reasoningTag+">"):]
	}
	if i := strings.Index(out, "<"+reasoningTag+">"); i >= 0 {
		out = out[:i]
	}
	return strings.TrimSpace(out)
}
