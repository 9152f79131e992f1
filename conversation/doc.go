// Package conversation holds the bounded message history of one chat topic.
//
// A Conversation is an ordered log of provider messages with a token budget.
// Messages are appended freely; the budget is only enforced when the history
// is read for a reasoning-engine call:
//
//	conv := conversation.New(6000)
//	conv.InstallSystemPreamble("You are an Elasticsearch diagnostics analyst.")
//	conv.AppendUser(hotThreads)
//	conv.AppendUser("why is node-3 busy?")
//
//	history, err := conv.Trimmed(tokens.NewChatEstimator(), "llama-3.3-70b-versatile")
//
// Trimmed evicts the oldest message after the preamble, one at a time, until
// the history fits. The preamble and the newest message are never evicted.
// When those two alone exceed the budget, Trimmed returns a *BudgetError
// wrapping ErrBudgetUnsatisfiable: the configuration cannot work and the
// caller must not retry.
//
// A Conversation is not safe for concurrent use. The session store
// serialises access per key.
package conversation
