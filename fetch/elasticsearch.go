package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/randalmurphal/esdiag/provider"
)

// DefaultTimeout bounds a single cluster read.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a response is read. Payloads are cut to a
// few thousand characters before use, but JSON canonicalisation needs the
// whole document.
const maxBodyBytes = 16 << 20

// Elasticsearch fetches endpoints from clusters in a Registry.
type Elasticsearch struct {
	registry  *Registry
	timeout   time.Duration
	canonical bool
	logger    *slog.Logger
}

// Option configures an Elasticsearch fetcher.
type Option func(*Elasticsearch)

// WithTimeout bounds each fetch. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Elasticsearch) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCanonicalJSON controls whether JSON payloads are rewritten in RFC 8785
// canonical form. Enabled by default: canonical JSON is compact and has a
// stable key order, so a character cap keeps more data and the same cluster
// state always yields the same text.
func WithCanonicalJSON(enabled bool) Option {
	return func(e *Elasticsearch) {
		e.canonical = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Elasticsearch) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewElasticsearch creates a fetcher over the registry.
func NewElasticsearch(registry *Registry, opts ...Option) *Elasticsearch {
	e := &Elasticsearch{
		registry:  registry,
		timeout:   DefaultTimeout,
		canonical: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch implements Fetcher.
//
// A deadline or cancellation is reported as a *provider.Error so callers
// can tell a timeout (retryable) from a failed read.
func (e *Elasticsearch) Fetch(ctx context.Context, req Request) Result {
	client, ok := e.registry.Client(req.ClusterID)
	if !ok {
		return Failuref("%w: %q", ErrUnknownCluster, req.ClusterID)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, req.method(), "/"+strings.TrimLeft(req.Path, "/"), nil)
	if err != nil {
		return Failuref("build request %s: %w", req, err)
	}
	httpReq.Header.Set("Accept", "application/json, text/plain")

	res, err := client.Perform(httpReq)
	if err != nil {
		if ctxErr := provider.FromContext("elasticsearch", "fetch", ctx.Err()); ctxErr != nil {
			return Failure(ctxErr)
		}
		return Failuref("%s on %q: %w", req, req.ClusterID, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := provider.FromContext("elasticsearch", "fetch", ctx.Err()); ctxErr != nil {
			return Failure(ctxErr)
		}
		return Failuref("read %s: %w", req, err)
	}

	e.logger.Debug("cluster read",
		slog.String("cluster", req.ClusterID),
		slog.String("endpoint", req.String()),
		slog.Int("status", res.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)),
	)

	if res.StatusCode >= http.StatusBadRequest {
		return Failuref("%w: %s: HTTP %d: %s", ErrStatus, req, res.StatusCode, errorReason(body))
	}

	payload := bytes.TrimSpace(body)
	if len(payload) == 0 {
		return Failuref("%w: %s", ErrEmptyPayload, req)
	}
	if e.canonical && json.Valid(payload) {
		if canon, err := jcs.Transform(payload); err == nil {
			payload = canon
		} else {
			e.logger.Debug("payload not canonicalised", slog.String("endpoint", req.String()), slog.Any("error", err))
		}
	}
	return Success(string(payload))
}

// errorReason pulls error.reason out of an Elasticsearch error body, falling
// back to the first line of the raw body.
func errorReason(body []byte) string {
	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Reason != "" {
		if parsed.Error.Type != "" {
			return fmt.Sprintf("%s: %s", parsed.Error.Type, parsed.Error.Reason)
		}
		return parsed.Error.Reason
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}
