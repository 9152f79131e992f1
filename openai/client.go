package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/randalmurphal/esdiag/provider"
)

// Default API roots.
const (
	GroqBaseURL   = "https://api.groq.com/openai/v1"
	OpenAIBaseURL = "https://api.openai.com/v1"
)

func init() {
	provider.Register("groq", func(cfg provider.Config) (provider.Client, error) {
		return NewClient(cfg, WithName("groq"), withDefaultBaseURL(GroqBaseURL))
	})
	provider.Register("openai", func(cfg provider.Config) (provider.Client, error) {
		return NewClient(cfg, WithName("openai"), withDefaultBaseURL(OpenAIBaseURL))
	})
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	name       string
	cfg        provider.Config
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithName sets the provider name reported by Provider and used in errors.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

func withDefaultBaseURL(url string) Option {
	return func(c *Client) {
		if c.cfg.BaseURL == "" {
			c.cfg.BaseURL = url
		}
	}
}

// NewClient creates a chat completions client from cfg.
func NewClient(cfg provider.Config, opts ...Option) (*Client, error) {
	c := &Client{
		name:       "openai",
		cfg:        cfg,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base_url is required", c.name)
	}
	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	return c, nil
}

// Complete implements provider.Client.
func (c *Client) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, provider.NewError(c.name, "complete", fmt.Errorf("marshaling request: %w", err), false)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, provider.NewError(c.name, "complete", fmt.Errorf("creating request: %w", err), false)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := provider.FromContext(c.name, "complete", callCtx.Err()); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, provider.NewError(c.name, "complete", fmt.Errorf("%w: %w", provider.ErrUnavailable, err), true)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.statusError(httpResp)
	}

	var wire chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		if ctxErr := provider.FromContext(c.name, "complete", callCtx.Err()); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, provider.NewError(c.name, "complete", fmt.Errorf("decoding response: %w", err), false)
	}
	if len(wire.Choices) == 0 {
		return nil, provider.NewError(c.name, "complete", provider.ErrEmptyResponse, true)
	}

	choice := wire.Choices[0]
	return &provider.Response{
		Content:      choice.Message.Content,
		Model:        wire.Model,
		FinishReason: choice.FinishReason,
		Duration:     time.Since(start),
		Usage: provider.TokenUsage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		},
	}, nil
}

// Provider implements provider.Client.
func (c *Client) Provider() string {
	return c.name
}

// Close implements provider.Client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// buildRequest converts a provider.Request to the wire format, filling
// unset fields from the client config.
func (c *Client) buildRequest(req provider.Request) chatRequest {
	wire := chatRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  make([]chatMessage, len(req.Messages)),
	}
	if wire.Model == "" {
		wire.Model = c.cfg.Model
	}
	if wire.MaxTokens == 0 {
		wire.MaxTokens = c.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}
	wire.Temperature = &temperature

	for i, m := range req.Messages {
		wire.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return wire
}

// statusError maps a non-200 response to a provider error. The body is
// parsed in the common {"error":{"type","message","code"}} shape.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		msg = wire.Error.Message
	}
	var sentinel error
	retryable := false
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		sentinel, retryable = provider.ErrRateLimited, true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		sentinel = provider.ErrCredentialsNotFound
	case resp.StatusCode >= 500:
		sentinel, retryable = provider.ErrUnavailable, true
	case wire.Error.Code == "context_length_exceeded":
		sentinel = provider.ErrContextTooLong
	default:
		sentinel = provider.ErrInvalidRequest
	}
	return provider.NewError(c.name, "complete", fmt.Errorf("%w: HTTP %d: %s", sentinel, resp.StatusCode, msg), retryable)
}
