package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel failures reported in Result.Err.
var (
	// ErrUnknownCluster means the request named a cluster that is not registered.
	ErrUnknownCluster = errors.New("unknown cluster")

	// ErrEmptyPayload means the cluster answered with no content.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrStatus means the cluster answered with an HTTP error status.
	ErrStatus = errors.New("cluster returned error status")
)

// Request names one endpoint on one cluster.
type Request struct {
	ClusterID string
	// Method defaults to GET.
	Method string
	// Path is the endpoint relative to the cluster root, query string included.
	Path string
}

// String renders the request as "METHOD path".
func (r Request) String() string {
	return r.method() + " " + r.Path
}

func (r Request) method() string {
	if r.Method == "" {
		return "GET"
	}
	return r.Method
}

// Result is the outcome of a fetch. Payload is only meaningful when OK.
type Result struct {
	Payload string
	OK      bool
	Err     error
}

// Success wraps a payload in a successful Result.
func Success(payload string) Result {
	return Result{Payload: payload, OK: true}
}

// Failure wraps err in a failed Result.
func Failure(err error) Result {
	return Result{Err: err}
}

// Failuref formats a failed Result.
func Failuref(format string, args ...any) Result {
	return Result{Err: fmt.Errorf(format, args...)}
}

// Fetcher executes a diagnostic read. Implementations must be safe for
// concurrent use and must report failures through Result, not panics.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) Result
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) Result

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) Result {
	return f(ctx, req)
}
