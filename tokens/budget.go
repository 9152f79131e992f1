package tokens

// DefaultReservedPercent is the share of a context window kept free for
// the model's reply when no explicit output limit is known.
const DefaultReservedPercent = 10

// Budget splits a model context window between conversation history and
// the reply.
type Budget struct {
	// Total is the model's context window in tokens.
	Total int
	// Reserved is held back for response generation.
	Reserved int
}

// NewBudget creates a budget reserving DefaultReservedPercent for the reply.
func NewBudget(total int) *Budget {
	return &Budget{
		Total:    total,
		Reserved: total * DefaultReservedPercent / 100,
	}
}

// ForModel creates a budget from the model's context window. A positive
// maxOutput reserves exactly that many tokens for the reply.
func ForModel(model string, maxOutput int) *Budget {
	b := NewBudget(GetModelLimit(model))
	if maxOutput > 0 {
		b.Reserved = maxOutput
	}
	return b
}

// History returns the tokens available to conversation history.
func (b *Budget) History() int {
	remaining := b.Total - b.Reserved
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Fits reports whether a history of the given size fits the budget.
func (b *Budget) Fits(tokens int) bool {
	return tokens <= b.History()
}

// Remaining returns the tokens left after used, never negative.
func (b *Budget) Remaining(used int) int {
	remaining := b.History() - used
	if remaining < 0 {
		return 0
	}
	return remaining
}
