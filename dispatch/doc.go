// Package dispatch runs the per-turn tool protocol.
//
// A turn moves through these states:
//
//	CLASSIFY ─ no ──> ANSWER_DIRECT
//	    │
//	   yes
//	    v
//	REQUEST_ENDPOINT ──> FETCH ─ failed ──> FAIL_GRACEFUL
//	                       │
//	                      ok
//	                       v
//	                  INCORPORATE ──> ANSWER_WITH_TOOL
//
// Every engine call reads the conversation through Conversation.Trimmed,
// so the history budget applies to all of them. At most one endpoint is
// fetched per turn and nothing is retried.
//
// Errors returned by Run fall into three groups:
//
//   - *conversation.BudgetError: the history budget cannot be met. Fatal.
//   - *ClassificationError: the engine broke the yes/no contract. The turn
//     is aborted and nothing is fetched.
//   - *provider.Error: an engine or fetch call failed or timed out. Check
//     provider.IsRetryable before resubmitting.
//
// A failed or refused fetch is not an error: Run returns the apology as
// the reply with ToolCall false.
package dispatch
