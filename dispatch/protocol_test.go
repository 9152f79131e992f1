package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/esdiag/conversation"
	"github.com/randalmurphal/esdiag/fetch"
	"github.com/randalmurphal/esdiag/parser"
	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/tokens"
)

// scriptedEngine returns canned replies in order and records every history
// it was called with.
type scriptedEngine struct {
	mu      sync.Mutex
	replies []string
	calls   [][]provider.Message
	block   bool
	err     error
}

func (e *scriptedEngine) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req.Messages)
	block := e.block
	var reply string
	if len(e.replies) > 0 {
		reply, e.replies = e.replies[0], e.replies[1:]
	}
	e.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return &provider.Response{
		Content: reply,
		Model:   "fake-model",
		Usage:   provider.TokenUsage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12},
	}, nil
}

func (e *scriptedEngine) Provider() string { return "fake" }
func (e *scriptedEngine) Close() error     { return nil }

func (e *scriptedEngine) lastCall() []provider.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[len(e.calls)-1]
}

// recordingFetcher counts calls and returns a fixed result.
type recordingFetcher struct {
	mu       sync.Mutex
	requests []fetch.Request
	result   fetch.Result
	wait     bool
}

func (f *recordingFetcher) Fetch(ctx context.Context, req fetch.Request) fetch.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.wait {
		<-ctx.Done()
		return fetch.Failure(ctx.Err())
	}
	return f.result
}

type usageRecorder struct {
	mu    sync.Mutex
	calls int
	model string
}

func (u *usageRecorder) Record(model string, _ provider.TokenUsage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.model = model
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newConversation() *conversation.Conversation {
	conv := conversation.New(100000)
	conv.InstallSystemPreamble("You are an operations assistant.")
	return conv
}

func newProtocol(engine provider.Client, fetcher fetch.Fetcher, opts ...Option) *Protocol {
	opts = append([]Option{WithLogger(quietLogger()), WithModel("fake-model")}, opts...)
	return New(engine, fetcher, opts...)
}

func TestRun_NoFetchNeeded(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"no", "The cluster has 3 nodes."}}
	fetcher := &recordingFetcher{}
	conv := newConversation()

	res, err := newProtocol(engine, fetcher).Run(context.Background(), conv, "prod", "how many nodes did we see?")

	require.NoError(t, err)
	assert.False(t, res.ToolCall)
	assert.Equal(t, "The cluster has 3 nodes.", res.Reply)
	assert.Equal(t, StateAnswerDirect, res.Final)
	assert.Empty(t, fetcher.requests, "fetcher must not be called")
	assert.Len(t, engine.calls, 2)

	msgs := conv.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, provider.RoleAssistant, last.Role)
	assert.Equal(t, "The cluster has 3 nodes.", last.Content)
}

func TestRun_FetchAndIncorporate(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"yes", "_cluster/health", "The cluster is green."}}
	fetcher := &recordingFetcher{result: fetch.Success("{status: green}")}
	usage := &usageRecorder{}
	conv := newConversation()

	res, err := newProtocol(engine, fetcher, WithUsage(usage)).
		Run(context.Background(), conv, "prod", "is the cluster healthy?")

	require.NoError(t, err)
	assert.True(t, res.ToolCall)
	assert.Equal(t, "The cluster is green.", res.Reply)
	assert.Equal(t, "_cluster/health", res.Endpoint)
	assert.Equal(t, StateAnswerWithTool, res.Final)

	require.Len(t, fetcher.requests, 1)
	assert.Equal(t, fetch.Request{ClusterID: "prod", Method: "GET", Path: "_cluster/health"}, fetcher.requests[0])

	// The final answer was produced from a history holding the tool output.
	final := engine.lastCall()
	var found bool
	for _, m := range final {
		if m.Role == provider.RoleSystem &&
			strings.Contains(m.Content, "_cluster/health") &&
			strings.Contains(m.Content, "{status: green}") {
			found = true
		}
	}
	assert.True(t, found, "no system note with endpoint and payload in %v", final)

	// The question is asked again after the tool output.
	assert.Equal(t, provider.RoleUser, final[len(final)-1].Role)
	assert.Equal(t, "is the cluster healthy?", final[len(final)-1].Content)

	assert.Equal(t, 3, usage.calls)
	assert.Equal(t, "fake-model", usage.model)
}

func TestRun_AmbiguousClassification(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"maybe"}}
	fetcher := &recordingFetcher{}
	conv := newConversation()

	_, err := newProtocol(engine, fetcher).Run(context.Background(), conv, "prod", "what about shards?")

	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrAmbiguousClassification)
	var ce *ClassificationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "maybe", ce.Reply)
	assert.Empty(t, fetcher.requests)
	assert.Len(t, engine.calls, 1)
	assert.False(t, provider.IsRetryable(err))
}

func TestRun_ReasoningBlocksIgnored(t *testing.T) {
	engine := &scriptedEngine{replies: []string{
		"<think>the user asks about live data</think>\nyes",
		"<think>cat is cheapest</think>`_cat/indices?v`",
		"<think>summarise</think>\n\nThere are two indices.",
	}}
	fetcher := &recordingFetcher{result: fetch.Success("green open a\ngreen open b")}

	res, err := newProtocol(engine, fetcher).Run(context.Background(), newConversation(), "prod", "list indices")

	require.NoError(t, err)
	assert.True(t, res.ToolCall)
	assert.Equal(t, "There are two indices.", res.Reply)
	require.Len(t, fetcher.requests, 1)
	assert.Equal(t, "_cat/indices?v", fetcher.requests[0].Path)
}

func TestRun_FailGraceful(t *testing.T) {
	tests := []struct {
		name          string
		endpoint      string
		result        fetch.Result
		wantFetches   int
		wantViolation bool
		wantFetchErr  error
	}{
		{
			name:         "fetch fails",
			endpoint:     "_cat/shards",
			result:       fetch.Failure(fetch.ErrStatus),
			wantFetches:  1,
			wantFetchErr: fetch.ErrStatus,
		},
		{
			name:         "empty payload",
			endpoint:     "_cat/shards",
			result:       fetch.Success(""),
			wantFetches:  1,
			wantFetchErr: fetch.ErrEmptyPayload,
		},
		{
			name:        "unusable endpoint reply",
			endpoint:    "I would look at the shard allocation",
			wantFetches: 0,
		},
		{
			name:          "denied endpoint",
			endpoint:      "_cluster/allocation/explain",
			wantFetches:   0,
			wantViolation: true,
		},
		{
			name:          "mutating verb",
			endpoint:      "DELETE /logs-2024.01",
			wantFetches:   0,
			wantViolation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &scriptedEngine{replies: []string{"yes", tt.endpoint}}
			fetcher := &recordingFetcher{result: tt.result}
			conv := newConversation()
			before := conv.Len()

			p := newProtocol(engine, fetcher)
			res, err := p.Run(context.Background(), conv, "prod", "why are shards unassigned?")

			require.NoError(t, err)
			assert.False(t, res.ToolCall)
			assert.Equal(t, p.Prompts().Apology, res.Reply)
			assert.Equal(t, StateFailGraceful, res.Final)
			assert.Len(t, fetcher.requests, tt.wantFetches)
			assert.Equal(t, tt.wantViolation, res.PolicyViolation != "")
			if tt.wantFetchErr != nil {
				assert.ErrorIs(t, res.FetchError, tt.wantFetchErr)
			}
			// user message, classify note and endpoint request are kept
			assert.Equal(t, before+3, conv.Len())
		})
	}
}

func TestRun_RawEngineErrorIsRetryable(t *testing.T) {
	engine := &scriptedEngine{err: errors.New("connection reset by peer")}
	fetcher := &recordingFetcher{}

	p := newProtocol(engine, fetcher)
	_, err := p.Run(context.Background(), newConversation(), "prod", "anything")

	require.Error(t, err)
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "fake", perr.Provider)
	assert.True(t, provider.IsRetryable(err))
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Empty(t, fetcher.requests)
}

func TestRun_EngineTimeoutIsRetryable(t *testing.T) {
	engine := &scriptedEngine{block: true}
	fetcher := &recordingFetcher{}
	conv := newConversation()

	p := newProtocol(engine, fetcher, WithTimeouts(30*time.Millisecond, 0))
	_, err := p.Run(context.Background(), conv, "prod", "anything")

	require.Error(t, err)
	assert.True(t, provider.IsTimeout(err))
	assert.True(t, provider.IsRetryable(err))
	assert.Empty(t, fetcher.requests)

	// Partial mutations are kept: user message and classify note.
	assert.Equal(t, 3, conv.Len())
}

func TestRun_FetchTimeoutIsRetryable(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"yes", "_nodes/hot_threads"}}
	fetcher := &recordingFetcher{wait: true}

	p := newProtocol(engine, fetcher, WithTimeouts(0, 30*time.Millisecond))
	_, err := p.Run(context.Background(), newConversation(), "prod", "what is hot?")

	require.Error(t, err)
	assert.True(t, provider.IsTimeout(err))
	assert.True(t, provider.IsRetryable(err))
}

func TestRun_BudgetErrorIsFatal(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"no", "answer"}}
	conv := conversation.New(10)
	conv.InstallSystemPreamble("a preamble that is much longer than ten tokens allows for")

	_, err := newProtocol(engine, &recordingFetcher{}).Run(context.Background(), conv, "prod", "hi")

	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrBudgetUnsatisfiable)
	assert.Empty(t, engine.calls, "engine must not be called with an oversized history")
}

func TestRun_TrimsEveryCall(t *testing.T) {
	// Five tokens per message: the budget holds the preamble and three more.
	counter := tokens.MessageCounterFunc(func(msgs []provider.Message, _ string) int {
		return 5 * len(msgs)
	})
	engine := &scriptedEngine{replies: []string{"yes", "_cat/health", "all good"}}
	fetcher := &recordingFetcher{result: fetch.Success("1700000000 green")}
	conv := conversation.New(20)
	conv.InstallSystemPreamble("preamble")
	conv.AppendUser("old question")
	conv.AppendAssistant("old answer")

	res, err := newProtocol(engine, fetcher, WithCounter(counter)).
		Run(context.Background(), conv, "prod", "health?")

	require.NoError(t, err)
	assert.True(t, res.ToolCall)
	for i, call := range engine.calls {
		assert.LessOrEqual(t, len(call), 4, "call %d exceeded budget", i)
		assert.Equal(t, "preamble", call[0].Content, "call %d lost the preamble", i)
	}
}

func TestRun_PayloadIsCapped(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"yes", "_tasks", "done"}}
	fetcher := &recordingFetcher{result: fetch.Success(strings.Repeat("x", 500))}

	_, err := newProtocol(engine, fetcher, WithPayloadCap(100)).
		Run(context.Background(), newConversation(), "prod", "tasks?")
	require.NoError(t, err)

	final := engine.lastCall()
	note := final[len(final)-2]
	assert.Equal(t, provider.RoleSystem, note.Role)
	assert.Contains(t, note.Content, strings.Repeat("x", 100))
	assert.NotContains(t, note.Content, strings.Repeat("x", 101))
}

func TestRun_PayloadFitsHistoryBudget(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"yes", "_nodes/stats", "node-1 is hot"}}
	fetcher := &recordingFetcher{result: fetch.Success(strings.Repeat("x", 30000))}
	conv := conversation.New(4000)
	conv.InstallSystemPreamble("You are an operations assistant.")
	conv.AppendUser("earlier question")
	conv.AppendAssistant("earlier answer")

	res, err := newProtocol(engine, fetcher).Run(context.Background(), conv, "prod", "which node is hot?")
	require.NoError(t, err)
	assert.True(t, res.ToolCall)

	final := engine.lastCall()
	require.GreaterOrEqual(t, len(final), 3)
	assert.Equal(t, "You are an operations assistant.", final[0].Content)
	note := final[len(final)-2]
	assert.Equal(t, provider.RoleSystem, note.Role)
	assert.Contains(t, note.Content, "_nodes/stats")
	assert.Contains(t, note.Content, strings.Repeat("x", 1000))
	assert.Equal(t, "which node is hot?", final[len(final)-1].Content)
	assert.LessOrEqual(t, tokens.NewChatEstimator().CountMessages(final, "fake-model"), 4000)
}

func TestChat(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"<think>easy</think>Heap is fine."}}
	conv := newConversation()

	reply, err := newProtocol(engine, &recordingFetcher{}).Chat(context.Background(), conv, "how is heap?")

	require.NoError(t, err)
	assert.Equal(t, "Heap is fine.", reply)
	assert.Equal(t, 3, conv.Len())
}

func TestChat_EmptyReplyIsRetryable(t *testing.T) {
	engine := &scriptedEngine{replies: []string{"<think>cut off"}}

	_, err := newProtocol(engine, &recordingFetcher{}).Chat(context.Background(), newConversation(), "q")

	assert.ErrorIs(t, err, provider.ErrEmptyResponse)
	assert.True(t, provider.IsRetryable(err))
}
