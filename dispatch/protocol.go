package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/esdiag/conversation"
	"github.com/randalmurphal/esdiag/fetch"
	"github.com/randalmurphal/esdiag/parser"
	"github.com/randalmurphal/esdiag/prompt"
	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/tokens"
	"github.com/randalmurphal/esdiag/truncate"
)

// DefaultPayloadCap is the number of payload characters folded into the
// conversation after a fetch.
const DefaultPayloadCap = 20000

// State names a protocol state. States appear in debug logs.
type State string

// Protocol states.
const (
	StateClassify        State = "classify"
	StateAnswerDirect    State = "answer_direct"
	StateRequestEndpoint State = "request_endpoint"
	StateFetch           State = "fetch"
	StateFailGraceful    State = "fail_graceful"
	StateIncorporate     State = "incorporate"
	StateAnswerWithTool  State = "answer_with_tool"
)

// UsageRecorder receives token usage for every engine call.
type UsageRecorder interface {
	Record(model string, usage provider.TokenUsage)
}

// Result is the outcome of one turn.
type Result struct {
	// Reply is the text to show the user.
	Reply string
	// ToolCall is true when a fetch succeeded and its data informed Reply.
	ToolCall bool
	// Endpoint is the verbatim endpoint reply from the engine, if one was requested.
	Endpoint string
	// PolicyViolation is set when the requested endpoint was refused.
	PolicyViolation string
	// FetchError is set when the fetch ran and failed.
	FetchError error
	// Final is the terminal state the turn ended in.
	Final State
}

// Protocol runs turns against a reasoning engine and a data fetcher.
// It holds no per-conversation state and is safe for concurrent use; the
// caller must serialise turns on the same conversation.
type Protocol struct {
	engine        provider.Client
	fetcher       fetch.Fetcher
	counter       tokens.MessageCounter
	model         string
	prompts       *prompt.Compiled
	policy        *fetch.Policy
	payloadCap    int
	engineTimeout time.Duration
	fetchTimeout  time.Duration
	usage         UsageRecorder
	logger        *slog.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithCounter sets the tokenizer used for history trimming.
func WithCounter(c tokens.MessageCounter) Option {
	return func(p *Protocol) {
		if c != nil {
			p.counter = c
		}
	}
}

// WithModel sets the model name sent to the engine and used for counting.
func WithModel(model string) Option {
	return func(p *Protocol) {
		p.model = model
	}
}

// WithPrompts sets the prompt set.
func WithPrompts(c *prompt.Compiled) Option {
	return func(p *Protocol) {
		if c != nil {
			p.prompts = c
		}
	}
}

// WithPolicy sets the endpoint policy. A nil policy allows everything.
func WithPolicy(policy *fetch.Policy) Option {
	return func(p *Protocol) {
		p.policy = policy
	}
}

// WithPayloadCap sets how many payload characters are kept after a fetch.
func WithPayloadCap(n int) Option {
	return func(p *Protocol) {
		if n > 0 {
			p.payloadCap = n
		}
	}
}

// WithTimeouts bounds each engine call and each fetch. Zero leaves a bound
// unchanged.
func WithTimeouts(engine, fetch time.Duration) Option {
	return func(p *Protocol) {
		if engine > 0 {
			p.engineTimeout = engine
		}
		if fetch > 0 {
			p.fetchTimeout = fetch
		}
	}
}

// WithUsage records token usage for every engine call.
func WithUsage(u UsageRecorder) Option {
	return func(p *Protocol) {
		p.usage = u
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Protocol.
func New(engine provider.Client, fetcher fetch.Fetcher, opts ...Option) *Protocol {
	p := &Protocol{
		engine:        engine,
		fetcher:       fetcher,
		counter:       tokens.NewChatEstimator(),
		prompts:       prompt.MustDefault(),
		policy:        fetch.DefaultPolicy(),
		payloadCap:    DefaultPayloadCap,
		engineTimeout: provider.DefaultTimeout,
		fetchTimeout:  fetch.DefaultTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prompts returns the prompt set in use.
func (p *Protocol) Prompts() *prompt.Compiled {
	return p.prompts
}

// Run executes one tool turn for message on conv. clusterID names the
// cluster any fetch is sent to.
//
// History mutations made before a failure are kept; the next turn
// continues from them.
func (p *Protocol) Run(ctx context.Context, conv *conversation.Conversation, clusterID, message string) (Result, error) {
	log := p.logger.With(slog.String("cluster", clusterID))

	// CLASSIFY
	log.Debug("dispatch state", slog.String("state", string(StateClassify)))
	conv.AppendUser(message)
	conv.AppendSystemNote(p.prompts.Classify)
	reply, err := p.complete(ctx, conv, StateClassify)
	if err != nil {
		return Result{}, err
	}

	switch parser.ParseClassification(reply) {
	case parser.No:
		return p.answerDirect(ctx, conv, log)
	case parser.Yes:
	default:
		log.Warn("ambiguous classification", slog.String("reply", reply))
		return Result{}, &ClassificationError{Reply: reply}
	}

	// REQUEST_ENDPOINT
	log.Debug("dispatch state", slog.String("state", string(StateRequestEndpoint)))
	note, err := p.prompts.RequestEndpointNote(p.policy.Patterns())
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: render endpoint request: %w", err)
	}
	conv.AppendSystemNote(note)
	endpointReply, err := p.complete(ctx, conv, StateRequestEndpoint)
	if err != nil {
		return Result{}, err
	}
	result := Result{Endpoint: endpointReply}

	// FETCH
	directive := parser.ParseEndpointDirective(endpointReply)
	if !directive.Valid() {
		log.Warn("engine returned no usable endpoint", slog.String("reply", endpointReply))
		return p.failGraceful(result, log), nil
	}
	req := fetch.Request{ClusterID: clusterID, Method: directive.Method, Path: directive.Path}
	log.Debug("dispatch state", slog.String("state", string(StateFetch)), slog.String("endpoint", req.String()))

	if err := p.policy.Check(req); err != nil {
		log.Warn("endpoint refused by policy", slog.String("endpoint", req.String()), slog.Any("error", err))
		result.PolicyViolation = err.Error()
		return p.failGraceful(result, log), nil
	}

	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	fetched := p.fetcher.Fetch(fctx, req)
	timedOut := errors.Is(fctx.Err(), context.DeadlineExceeded)
	cancel()

	if !fetched.OK {
		if err := fetchAbort(ctx, fetched.Err, timedOut, req); err != nil {
			return Result{}, err
		}
		log.Warn("fetch failed", slog.String("endpoint", req.String()), slog.Any("error", fetched.Err))
		result.FetchError = fetched.Err
		if result.FetchError == nil {
			result.FetchError = fetch.ErrEmptyPayload
		}
		return p.failGraceful(result, log), nil
	}
	if fetched.Payload == "" {
		log.Warn("fetch returned empty payload", slog.String("endpoint", req.String()))
		result.FetchError = fetch.ErrEmptyPayload
		return p.failGraceful(result, log), nil
	}

	// INCORPORATE
	log.Debug("dispatch state", slog.String("state", string(StateIncorporate)),
		slog.Int("payload_chars", len(fetched.Payload)))
	incorporate, err := p.incorporateNote(conv, directive.Path, message, fetched.Payload, log)
	if err != nil {
		return Result{}, err
	}
	conv.AppendSystemNote(incorporate)
	conv.AppendUser(message)

	// ANSWER_WITH_TOOL
	log.Debug("dispatch state", slog.String("state", string(StateAnswerWithTool)))
	answer, err := p.complete(ctx, conv, StateAnswerWithTool)
	if err != nil {
		return Result{}, err
	}
	if answer == "" {
		return Result{}, p.emptyAnswer()
	}
	conv.AppendAssistant(answer)

	result.Reply = answer
	result.ToolCall = true
	result.Final = StateAnswerWithTool
	return result, nil
}

// incorporateNote renders the note carrying the fetched payload. The payload
// is capped at payloadCap characters and then cut to the tokens left once
// the leading system message, the note framing and the question are
// counted, so the final trim evicts older history and never the note.
func (p *Protocol) incorporateNote(conv *conversation.Conversation, endpoint, message, payload string, log *slog.Logger) (string, error) {
	payload = truncate.Head(payload, p.payloadCap)

	var kept []provider.Message
	if msgs := conv.Messages(); len(msgs) > 0 && msgs[0].Role == provider.RoleSystem {
		kept = append(kept, msgs[0])
	}
	noteAt := len(kept)
	kept = append(kept,
		provider.NewTextMessage(provider.RoleSystem, ""),
		provider.NewTextMessage(provider.RoleUser, message),
	)

	fitter := truncate.NewTruncator(tokens.TextCounter(p.counter, p.model), truncate.KeepHead)
	budget := conv.Budget()
	room := budget
	for {
		fitted, cut := fitter.Truncate(payload, room)
		note, err := p.prompts.IncorporateNote(endpoint, fitted)
		if err != nil {
			return "", fmt.Errorf("dispatch: render incorporate note: %w", err)
		}
		kept[noteAt].Content = note
		total := p.counter.CountMessages(kept, p.model)
		if total <= budget {
			if cut {
				log.Debug("payload cut to fit history budget",
					slog.Int("payload_chars", len(fitted)),
					slog.Int("budget", budget),
				)
			}
			return note, nil
		}
		if fitted == "" {
			err := &conversation.BudgetError{Tokens: total, Budget: budget, Messages: len(kept)}
			log.Error("history budget cannot hold fetched data", slog.Any("error", err))
			return "", err
		}
		// Shrink by the overshoot; at least one token so the loop ends.
		room = min(room, p.counter.CountMessages(kept[noteAt:noteAt+1], p.model)) - max(total-budget, 1)
		if room < 0 {
			room = 0
		}
	}
}

func (p *Protocol) answerDirect(ctx context.Context, conv *conversation.Conversation, log *slog.Logger) (Result, error) {
	log.Debug("dispatch state", slog.String("state", string(StateAnswerDirect)))
	conv.AppendSystemNote(p.prompts.AnswerDirect)
	answer, err := p.complete(ctx, conv, StateAnswerDirect)
	if err != nil {
		return Result{}, err
	}
	if answer == "" {
		return Result{}, p.emptyAnswer()
	}
	conv.AppendAssistant(answer)
	return Result{Reply: answer, Final: StateAnswerDirect}, nil
}

func (p *Protocol) failGraceful(result Result, log *slog.Logger) Result {
	log.Debug("dispatch state", slog.String("state", string(StateFailGraceful)))
	result.Reply = p.prompts.Apology
	result.ToolCall = false
	result.Final = StateFailGraceful
	return result
}

// Chat runs a plain turn without the tool protocol: the message is
// appended, the engine answers from history and the answer is appended.
func (p *Protocol) Chat(ctx context.Context, conv *conversation.Conversation, message string) (string, error) {
	conv.AppendUser(message)
	answer, err := p.complete(ctx, conv, StateAnswerDirect)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", p.emptyAnswer()
	}
	conv.AppendAssistant(answer)
	return answer, nil
}

// complete trims the history, calls the engine under the engine timeout,
// records usage and returns the reply with reasoning blocks removed.
func (p *Protocol) complete(ctx context.Context, conv *conversation.Conversation, state State) (string, error) {
	history, err := conv.Trimmed(p.counter, p.model)
	if err != nil {
		p.logger.Error("history budget cannot be met",
			slog.String("state", string(state)),
			slog.Int("budget", conv.Budget()),
			slog.Any("error", err),
		)
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, p.engineTimeout)
	defer cancel()

	resp, err := p.engine.Complete(cctx, provider.Request{Messages: history, Model: p.model})
	if err != nil {
		var perr *provider.Error
		if !errors.As(err, &perr) {
			cause := cctx.Err()
			if cause == nil {
				cause = err
			}
			if ctxErr := provider.FromContext(p.engine.Provider(), "complete", cause); ctxErr != nil {
				err = ctxErr
			} else {
				err = provider.NewError(p.engine.Provider(), "complete", err, true)
			}
		}
		return "", fmt.Errorf("dispatch %s: %w", state, err)
	}

	if p.usage != nil {
		model := resp.Model
		if model == "" {
			model = p.model
		}
		p.usage.Record(model, resp.Usage)
	}
	return parser.StripReasoning(resp.Content), nil
}

// fetchAbort returns the error that aborts the turn when a fetch failed
// because it ran out of time or the turn itself was cancelled. Any other
// failure returns nil and is answered with the apology.
func fetchAbort(ctx context.Context, err error, timedOut bool, req fetch.Request) error {
	if ctxErr := provider.FromContext("fetch", "fetch", ctx.Err()); ctxErr != nil {
		return ctxErr
	}
	var perr *provider.Error
	if errors.As(err, &perr) && provider.IsTimeout(perr) {
		return perr
	}
	if timedOut || provider.IsTimeout(err) {
		return provider.NewError("fetch", "fetch", fmt.Errorf("%w: %s", provider.ErrTimeout, req), true)
	}
	return nil
}

func (p *Protocol) emptyAnswer() error {
	return provider.NewError(p.engine.Provider(), "complete", provider.ErrEmptyResponse, true)
}
