// Package provider defines the reasoning-engine contract used by the
// diagnostic chat engine.
//
// A reasoning engine is a request/response text-completion service: given
// an ordered message list it returns exactly one assistant message. The
// engine must tolerate being called several times per user turn, so
// implementations are stateless with respect to conversations and safe for
// concurrent use.
//
// # Usage
//
// Create a client using the registry:
//
//	client, err := provider.New("groq", provider.Config{
//	    Model:   "deepseek-r1-distill-llama-70b",
//	    APIKey:  os.Getenv("GROQ_API_KEY"),
//	    Timeout: 30 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.Complete(ctx, provider.Request{Messages: history})
//
// # Available Providers
//
//   - "groq": Groq chat completions (OpenAI wire format)
//   - "openai": any OpenAI-compatible chat completions endpoint
package provider

import "context"

// Client is the reasoning-engine interface.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a request and returns the full response.
	// The context controls cancellation and timeouts.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Provider returns the provider name (e.g., "groq", "openai").
	Provider() string

	// Close releases any resources held by the client.
	Close() error
}

// CompleteFunc adapts a plain function to the Client interface.
// Useful for tests and for wrapping engines that need no lifecycle.
type CompleteFunc func(ctx context.Context, req Request) (*Response, error)

// Complete implements Client.
func (f CompleteFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Provider implements Client.
func (f CompleteFunc) Provider() string {
	return "func"
}

// Close implements Client.
func (f CompleteFunc) Close() error {
	return nil
}
