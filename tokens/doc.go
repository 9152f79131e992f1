// Package tokens provides token counting and history budgets.
//
// Token estimation is based on the rule-of-thumb that approximately 4 characters
// equals 1 token for English text. This provides a fast estimation without
// requiring a model-specific tokenizer.
//
// # Counter
//
// The Counter interface counts plain text:
//
//	counter := tokens.NewEstimatingCounter()
//	count := counter.Count("Hello, world!")     // ~3 tokens
//
// # MessageCounter
//
// MessageCounter is the tokenizer used for conversation budgets. It counts a
// whole message list for a named model, including per-message framing:
//
//	est := tokens.NewChatEstimator()
//	n := est.CountMessages(history, "deepseek-r1-distill-llama-70b")
//
// Any function with the right shape can serve as a tokenizer:
//
//	tok := tokens.MessageCounterFunc(func(msgs []provider.Message, model string) int { ... })
//
// # Budget
//
// Budget derives the history budget from a model's context window:
//
//	b := tokens.ForModel("llama-3.3-70b-versatile", 1024)
//	b.History() // 131072 - 1024
package tokens
