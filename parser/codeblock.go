package parser

import (
	"regexp"
	"strings"
)

// CodeBlock represents a fenced code block.
type CodeBlock struct {
	// Language is the language specifier after the opening fence (e.g., "json", "http").
	Language string

	// Content is the code inside the block, excluding fences.
	Content string

	// Raw is the complete block including the fences.
	Raw string
}

var codeBlockRegex = regexp.MustCompile("(?s)```(?:([\\w-]*)\\n)?(.*?)```")

// FirstCodeBlock returns the first fenced code block in text.
func FirstCodeBlock(text string) (CodeBlock, bool) {
	match := codeBlockRegex.FindStringSubmatch(text)
	if len(match) < 3 {
		return CodeBlock{}, false
	}
	return CodeBlock{
		Language: match[1],
		Content:  strings.TrimSpace(match[2]),
		Raw:      match[0],
	}, true
}
