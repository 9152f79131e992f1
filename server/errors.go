package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/randalmurphal/esdiag/chat"
	"github.com/randalmurphal/esdiag/conversation"
	"github.com/randalmurphal/esdiag/parser"
	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/session"
	"github.com/randalmurphal/esdiag/truncate"
)

// errInvalidRequest marks malformed or schema-invalid request bodies.
var errInvalidRequest = errors.New("invalid request")

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// statusFor maps an error from the chat service to an HTTP status and the
// message shown to the caller. 503 responses carry retryable: true.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, chat.ErrInvalidRecords),
		errors.Is(err, chat.ErrUnknownMetric):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrUnknownSession):
		return http.StatusNotFound, "session has not been seeded"
	case errors.Is(err, chat.ErrUnknownCluster):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, truncate.ErrNoSources):
		return http.StatusBadGateway, "no diagnostics could be collected from the cluster"
	case errors.Is(err, parser.ErrAmbiguousClassification):
		return http.StatusBadGateway, "the assistant gave an unclear answer; please rephrase the question"
	case errors.Is(err, conversation.ErrBudgetUnsatisfiable):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	}

	// Every reasoning-engine or fetch failure that aborts a turn is
	// retryable for the caller, including ones the engine marked final.
	var perr *provider.Error
	if errors.As(err, &perr) {
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
