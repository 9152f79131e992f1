package conversation

import (
	"log/slog"

	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/tokens"
)

// Conversation is a token-budgeted message history.
type Conversation struct {
	messages    []provider.Message
	budget      int
	hasPreamble bool
	evicted     int
	logger      *slog.Logger
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithLogger sets the logger used to report evictions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty conversation with the given token budget.
func New(budget int, opts ...Option) *Conversation {
	c := &Conversation{
		budget: budget,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Budget returns the token budget.
func (c *Conversation) Budget() int {
	return c.budget
}

// InstallSystemPreamble clears the history and starts it with a system
// message. Any prior preamble and messages are discarded.
func (c *Conversation) InstallSystemPreamble(text string) {
	c.messages = []provider.Message{provider.NewTextMessage(provider.RoleSystem, text)}
	c.hasPreamble = true
	c.evicted = 0
}

// HasPreamble reports whether a system preamble is installed.
func (c *Conversation) HasPreamble() bool {
	return c.hasPreamble
}

// AppendUser appends a user message.
func (c *Conversation) AppendUser(text string) {
	c.append(provider.RoleUser, text)
}

// AppendAssistant appends an assistant message.
func (c *Conversation) AppendAssistant(text string) {
	c.append(provider.RoleAssistant, text)
}

// AppendSystemNote appends a system message after the existing history.
// Notes are ordinary history entries and may be evicted.
func (c *Conversation) AppendSystemNote(text string) {
	c.append(provider.RoleSystem, text)
}

func (c *Conversation) append(role provider.Role, text string) {
	c.messages = append(c.messages, provider.NewTextMessage(role, text))
}

// Len returns the number of messages currently held.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the full history without enforcing the budget.
func (c *Conversation) Messages() []provider.Message {
	out := make([]provider.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Evicted returns how many messages have been evicted since the last
// preamble was installed.
func (c *Conversation) Evicted() int {
	return c.evicted
}

// Trimmed enforces the token budget and returns a copy of the history.
//
// While the counted history exceeds the budget, the oldest evictable
// message is removed and the history is counted again. A system message
// at index 0 and the newest message are never evicted. Evictions are
// permanent. If the budget still cannot be met once only those remain,
// Trimmed returns the remaining history together with a *BudgetError.
func (c *Conversation) Trimmed(counter tokens.MessageCounter, model string) ([]provider.Message, error) {
	first := c.firstEvictable()
	evictedNow := 0

	total := counter.CountMessages(c.messages, model)
	for total > c.budget {
		// The newest message is the one the next call is about.
		if len(c.messages)-first <= 1 {
			if evictedNow > 0 {
				c.logEvictions(evictedNow, total)
			}
			return c.Messages(), &BudgetError{
				Tokens:   total,
				Budget:   c.budget,
				Messages: len(c.messages),
			}
		}
		c.messages = append(c.messages[:first], c.messages[first+1:]...)
		c.evicted++
		evictedNow++
		total = counter.CountMessages(c.messages, model)
	}

	if evictedNow > 0 {
		c.logEvictions(evictedNow, total)
	}
	return c.Messages(), nil
}

// firstEvictable protects a system message at index 0 whether or not it was
// installed as the preamble.
func (c *Conversation) firstEvictable() int {
	if len(c.messages) > 0 && c.messages[0].Role == provider.RoleSystem {
		return 1
	}
	return 0
}

func (c *Conversation) logEvictions(n, total int) {
	c.logger.Debug("evicted conversation history",
		slog.Int("evicted", n),
		slog.Int("remaining_messages", len(c.messages)),
		slog.Int("tokens", total),
		slog.Int("budget", c.budget),
	)
}
