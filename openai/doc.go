// Package openai implements provider.Client for OpenAI-compatible chat
// completions APIs.
//
// Groq, OpenAI, vLLM, Ollama and llama.cpp all accept the same
// /chat/completions wire format, so a single client covers every hosted or
// local reasoning engine the dashboard talks to. Importing this package
// registers two providers:
//
//   - "groq": defaults BaseURL to https://api.groq.com/openai/v1
//   - "openai": defaults BaseURL to https://api.openai.com/v1
//
// Each Complete call is bounded by the configured timeout. Deadline expiry
// surfaces as a retryable *provider.Error wrapping provider.ErrTimeout;
// nothing in this package retries.
package openai
