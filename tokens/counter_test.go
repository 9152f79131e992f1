package tokens

import (
	"strings"
	"testing"

	"github.com/randalmurphal/esdiag/provider"
)

func TestEstimatingCounter(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		text  string
		want  int
	}{
		{"empty", 0, "", 0},
		{"one token", 0, "test", 1},
		{"rounds down", 0, "hello", 1},
		{"rounds to nearest", 0, "Hello World", 3},
		{"runes not bytes", 0, "日本語のテキスト", 2},
		{"custom ratio", 3, "Hello World", 4},
		{"non-positive ratio uses default", -1, "Hello World", 3},
		{"large text", 0, strings.Repeat("Hello World ", 1000), 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewEstimatingCounterWithRatio(tt.ratio)
			if got := c.Count(tt.text); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
			if !c.FitsInLimit(tt.text, tt.want) {
				t.Errorf("FitsInLimit(%q, %d) = false", tt.text, tt.want)
			}
			if tt.want > 0 && c.FitsInLimit(tt.text, tt.want-1) {
				t.Errorf("FitsInLimit(%q, %d) = true", tt.text, tt.want-1)
			}
		})
	}
}

func TestGetModelLimit(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		expected int
	}{
		{
			name:     "deepseek distill on groq",
			model:    "deepseek-r1-distill-llama-70b",
			expected: 131072,
		},
		{
			name:     "llama 3.3 versatile",
			model:    "llama-3.3-70b-versatile",
			expected: 131072,
		},
		{
			name:     "gemma small window",
			model:    "gemma2-9b-it",
			expected: 8192,
		},
		{
			name:     "unknown model gets default",
			model:    "some-future-model",
			expected: 32768,
		},
		{
			name:     "empty model gets default",
			model:    "",
			expected: 32768,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetModelLimit(tt.model)
			if result != tt.expected {
				t.Errorf("GetModelLimit(%q) = %d, expected %d", tt.model, result, tt.expected)
			}
		})
	}
}

func TestChatEstimator_CountMessages(t *testing.T) {
	e := NewChatEstimator()

	if got := e.CountMessages(nil, "any"); got != 0 {
		t.Errorf("empty list = %d, expected 0", got)
	}

	// "user" is 1 token, "abcdefgh" is 2 tokens, plus 4 framing and 3 priming.
	msgs := []provider.Message{provider.NewTextMessage(provider.RoleUser, "abcdefgh")}
	if got := e.CountMessages(msgs, "any"); got != 10 {
		t.Errorf("single message = %d, expected 10", got)
	}

	two := append(msgs, provider.NewTextMessage(provider.RoleUser, "abcdefgh"))
	if got := e.CountMessages(two, "any"); got != 17 {
		t.Errorf("two messages = %d, expected 17", got)
	}
}

func TestChatEstimator_ModelRatio(t *testing.T) {
	e := NewChatEstimator()
	e.TokensPerMessage = 0
	e.ReplyPriming = 0
	e.ModelRatios = map[string]float64{"dense": 2}

	msgs := []provider.Message{provider.NewTextMessage(provider.RoleUser, "abcdefgh")}
	if got := e.CountMessages(msgs, "dense"); got != 6 {
		t.Errorf("dense model = %d, expected 6", got)
	}
	if got := e.CountMessages(msgs, "other"); got != 3 {
		t.Errorf("default model = %d, expected 3", got)
	}
}

func TestMessageCounterFunc(t *testing.T) {
	var seen string
	var c MessageCounter = MessageCounterFunc(func(msgs []provider.Message, model string) int {
		seen = model
		return len(msgs) * 5
	})

	got := c.CountMessages(make([]provider.Message, 3), "m1")
	if got != 15 || seen != "m1" {
		t.Errorf("CountMessages = %d (model %q), expected 15 (m1)", got, seen)
	}
}

func TestModelLimits_HasDefault(t *testing.T) {
	_, ok := ModelLimits["default"]
	if !ok {
		t.Error("ModelLimits should have a 'default' entry")
	}
}

func TestModelLimits_AllPositive(t *testing.T) {
	for model, limit := range ModelLimits {
		if limit <= 0 {
			t.Errorf("ModelLimits[%q] = %d, should be positive", model, limit)
		}
	}
}

func BenchmarkEstimatingCounter_Count(b *testing.B) {
	c := NewEstimatingCounter()
	text := strings.Repeat("Hello World ", 100)

	b.ResetTimer()
	for range b.N {
		c.Count(text)
	}
}

func BenchmarkChatEstimator_CountMessages(b *testing.B) {
	e := NewChatEstimator()
	msgs := []provider.Message{
		provider.NewTextMessage(provider.RoleSystem, strings.Repeat("preamble ", 50)),
		provider.NewTextMessage(provider.RoleUser, strings.Repeat("Hello World ", 100)),
	}

	b.ResetTimer()
	for range b.N {
		e.CountMessages(msgs, "llama-3.3-70b-versatile")
	}
}

func TestTextCounter(t *testing.T) {
	c := TextCounter(NewChatEstimator(), "any")

	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, expected 0", got)
	}
	if got := c.Count(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("Count(40 chars) = %d, expected 10", got)
	}
	if !c.FitsInLimit(strings.Repeat("a", 40), 10) || c.FitsInLimit(strings.Repeat("a", 44), 10) {
		t.Error("FitsInLimit disagrees with Count")
	}
}
