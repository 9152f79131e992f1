// Package esdiag is a conversational diagnostics engine for Elasticsearch
// clusters.
//
// An operator asks a question in plain language; the engine decides whether
// live cluster data is needed, asks the reasoning engine for one read-only
// endpoint, fetches it and answers from the result. Each conversation is
// kept under a token budget by evicting its oldest messages.
//
// Packages:
//
//   - conversation: token-budgeted message history with eviction
//   - dispatch: the classify, request, fetch, answer state machine
//   - session: per-key conversations with exclusive turns
//   - fetch: Elasticsearch reads, cluster registry and endpoint policy
//   - truncate: even character budgets across diagnostic sources
//   - tokens: token estimation and model context budgets
//   - parser: yes/no classification and endpoint directive parsing
//   - prompt: prompt templates
//   - provider, openai: reasoning-engine contract and Groq/OpenAI client
//   - model: token usage and cost tracking
//   - chat, server, config: the service, its HTTP API and configuration
//
// The esdiag command in cmd/esdiag serves the API and queries it.
package esdiag
