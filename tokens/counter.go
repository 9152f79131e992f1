package tokens

import (
	"unicode/utf8"

	"github.com/randalmurphal/esdiag/provider"
)

// DefaultCharsPerToken is the default character-to-token ratio.
// Approximately 4 characters equals 1 token for English text.
const DefaultCharsPerToken = 4.0

// Chat framing overhead, following the OpenAI chat-format accounting:
// every message costs a few tokens for role and delimiters, and the reply
// is primed with a few more.
const (
	DefaultTokensPerMessage = 4
	DefaultReplyPriming     = 3
)

// Counter estimates token counts for text.
type Counter interface {
	// Count estimates the number of tokens in the given text.
	Count(text string) int
	// FitsInLimit returns true if the text fits within the token limit.
	FitsInLimit(text string, limit int) bool
}

// MessageCounter converts a message list into a token count for a named
// model. Implementations are pure: no state changes between calls.
type MessageCounter interface {
	CountMessages(messages []provider.Message, model string) int
}

// MessageCounterFunc adapts a plain function to MessageCounter.
type MessageCounterFunc func(messages []provider.Message, model string) int

// CountMessages implements MessageCounter.
func (f MessageCounterFunc) CountMessages(messages []provider.Message, model string) int {
	return f(messages, model)
}

// EstimatingCounter uses a character-to-token ratio for estimation.
type EstimatingCounter struct {
	// CharsPerToken is the average characters per token.
	// Default is 4, which works well for English text.
	CharsPerToken float64
}

// NewEstimatingCounter creates a token counter with default settings.
func NewEstimatingCounter() *EstimatingCounter {
	return &EstimatingCounter{
		CharsPerToken: DefaultCharsPerToken,
	}
}

// NewEstimatingCounterWithRatio creates a token counter with a custom ratio.
// If charsPerToken is <= 0, the default ratio (4.0) is used.
func NewEstimatingCounterWithRatio(charsPerToken float64) *EstimatingCounter {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &EstimatingCounter{
		CharsPerToken: charsPerToken,
	}
}

// Count returns the rune count divided by CharsPerToken, rounded to the
// nearest token.
func (c *EstimatingCounter) Count(text string) int {
	return int(float64(utf8.RuneCountInString(text))/c.CharsPerToken + 0.5)
}

// FitsInLimit returns true if the text fits within the token limit.
func (c *EstimatingCounter) FitsInLimit(text string, limit int) bool {
	return c.Count(text) <= limit
}

// ChatEstimator implements MessageCounter on top of a character ratio.
// ModelRatios overrides the ratio for specific models; models not listed
// use the default counter.
type ChatEstimator struct {
	ModelRatios      map[string]float64
	TokensPerMessage int
	ReplyPriming     int

	fallback Counter
}

// NewChatEstimator creates a ChatEstimator with the default framing costs.
func NewChatEstimator() *ChatEstimator {
	return &ChatEstimator{
		TokensPerMessage: DefaultTokensPerMessage,
		ReplyPriming:     DefaultReplyPriming,
		fallback:         NewEstimatingCounter(),
	}
}

// CountMessages implements MessageCounter.
// An empty list counts as zero; reply priming only applies to non-empty lists.
func (e *ChatEstimator) CountMessages(messages []provider.Message, model string) int {
	if len(messages) == 0 {
		return 0
	}
	counter := e.fallback
	if ratio, ok := e.ModelRatios[model]; ok {
		counter = NewEstimatingCounterWithRatio(ratio)
	}

	total := e.ReplyPriming
	for _, m := range messages {
		total += e.TokensPerMessage + counter.Count(string(m.Role)) + counter.Count(m.Content)
	}
	return total
}

// ModelLimits contains context window sizes for the models the dashboard
// is usually pointed at.
var ModelLimits = map[string]int{
	// Groq hosted models
	"deepseek-r1-distill-llama-70b": 131072,
	"llama-3.3-70b-versatile":       131072,
	"llama-3.1-8b-instant":          131072,
	"mixtral-8x7b-32768":            32768,
	"gemma2-9b-it":                  8192,

	// OpenAI models
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	"gpt-4":       8192,

	// Default fallback
	"default": 32768,
}

// GetModelLimit returns the token limit for a model, or a default if not found.
func GetModelLimit(model string) int {
	if limit, ok := ModelLimits[model]; ok {
		return limit
	}
	return ModelLimits["default"]
}

// TextCounter adapts a MessageCounter to Counter by charging text as the
// content of a single user message, minus the framing an empty message
// costs. It lets text truncation agree with the history budget.
func TextCounter(mc MessageCounter, model string) Counter {
	return &textCounter{mc: mc, model: model}
}

type textCounter struct {
	mc    MessageCounter
	model string
}

func (c *textCounter) Count(text string) int {
	full := c.mc.CountMessages([]provider.Message{provider.NewTextMessage(provider.RoleUser, text)}, c.model)
	empty := c.mc.CountMessages([]provider.Message{provider.NewTextMessage(provider.RoleUser, "")}, c.model)
	if n := full - empty; n > 0 {
		return n
	}
	return 0
}

func (c *textCounter) FitsInLimit(text string, limit int) bool {
	return c.Count(text) <= limit
}
