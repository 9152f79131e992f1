package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/randalmurphal/esdiag/conversation"
	"github.com/randalmurphal/esdiag/dispatch"
	"github.com/randalmurphal/esdiag/fetch"
	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/session"
	"github.com/randalmurphal/esdiag/tokens"
	"github.com/randalmurphal/esdiag/truncate"
)

// Session keys.
const (
	KeyStats      = "stats"
	KeyTimeSeries = "timeseries"
	toolKeyPrefix = "tool:"
)

// ToolKey returns the session key for tool queries against a cluster.
func ToolKey(clusterID string) string {
	return toolKeyPrefix + clusterID
}

// Metric selects the seeded session a plain chat message goes to.
type Metric string

// Metrics accepted by Send.
const (
	MetricStats      Metric = "stats"
	MetricTimeSeries Metric = "timeseries"
)

var (
	// ErrUnknownMetric is returned by Send for a metric with no session.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrUnknownCluster is returned for a cluster the service cannot reach.
	ErrUnknownCluster = errors.New("unknown cluster")
)

func (m Metric) key() (string, error) {
	switch m {
	case MetricStats:
		return KeyStats, nil
	case MetricTimeSeries:
		return KeyTimeSeries, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, string(m))
}

// DefaultSeedBudget is the character budget shared by all diagnostic
// sources collected by InitStatsDebug.
const DefaultSeedBudget = 20000

// DefaultStatsEndpoints are read by InitStatsDebug, in seed order.
var DefaultStatsEndpoints = []string{
	"_nodes/hot_threads",
	"_tasks?detailed=true",
	"_cluster/stats",
	"_nodes/stats/jvm",
}

// Service implements the chat operations.
type Service struct {
	store          *session.Store
	proto          *dispatch.Protocol
	fetcher        fetch.Fetcher
	counter        tokens.MessageCounter
	model          string
	seedBudget     int
	statsEndpoints []string
	knownCluster   func(id string) bool
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCounter sets the tokenizer used to fit seeds into the history budget.
// It should match the one given to the protocol.
func WithCounter(c tokens.MessageCounter, model string) Option {
	return func(s *Service) {
		if c != nil {
			s.counter = c
		}
		s.model = model
	}
}

// WithSeedBudget sets the character budget for InitStatsDebug.
func WithSeedBudget(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.seedBudget = n
		}
	}
}

// WithStatsEndpoints overrides the endpoints read by InitStatsDebug.
func WithStatsEndpoints(endpoints ...string) Option {
	return func(s *Service) {
		if len(endpoints) > 0 {
			s.statsEndpoints = endpoints
		}
	}
}

// WithClusterCheck rejects cluster ids for which known returns false
// before any session is touched.
func WithClusterCheck(known func(id string) bool) Option {
	return func(s *Service) {
		s.knownCluster = known
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(store *session.Store, proto *dispatch.Protocol, fetcher fetch.Fetcher, opts ...Option) *Service {
	s := &Service{
		store:          store,
		proto:          proto,
		fetcher:        fetcher,
		counter:        tokens.NewChatEstimator(),
		seedBudget:     DefaultSeedBudget,
		statsEndpoints: DefaultStatsEndpoints,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions returns a summary of every session.
func (s *Service) Sessions() []session.Info {
	return s.store.Infos()
}

// SeedStats replaces the stats session with the diagnostics-analyst
// preamble followed by text as the first user message. clusterID may be
// empty when the text did not come from a registered cluster.
func (s *Service) SeedStats(ctx context.Context, clusterID, text string) error {
	return s.seed(ctx, KeyStats, clusterID, s.proto.Prompts().StatsPreamble, text)
}

// SeedTimeSeries reduces records to their third field and replaces the
// time-series session with that series.
func (s *Service) SeedTimeSeries(ctx context.Context, records []Record) (Series, error) {
	series, err := ExtractSeries(records)
	if err != nil {
		return Series{}, err
	}
	if err := s.seed(ctx, KeyTimeSeries, "", s.proto.Prompts().TimeSeriesPreamble, series.Text()); err != nil {
		return Series{}, err
	}
	return series, nil
}

func (s *Service) seed(ctx context.Context, key, clusterID, preamble, text string) error {
	return s.store.WithSessionOrCreate(ctx, key, clusterID, func(sess *session.Session) error {
		conv := sess.Conversation()
		fitted, err := s.fitSeed(conv, preamble, text)
		if err != nil {
			return err
		}
		conv.InstallSystemPreamble(preamble)
		conv.AppendUser(fitted)
		sess.SetClusterID(clusterID)

		s.logger.Info("session seeded",
			slog.String("session", key),
			slog.String("cluster", clusterID),
			slog.Int("chars", len(fitted)),
			slog.Bool("truncated", len(fitted) != len(text)),
		)
		return nil
	})
}

// fitSeed cuts the middle out of text so that the preamble and seed use at
// most three quarters of the history budget, leaving room for the turns
// that follow.
func (s *Service) fitSeed(conv *conversation.Conversation, preamble, text string) (string, error) {
	framing := s.counter.CountMessages([]provider.Message{
		provider.NewTextMessage(provider.RoleSystem, preamble),
		provider.NewTextMessage(provider.RoleUser, ""),
	}, s.model)

	limit := conv.Budget()*3/4 - framing
	if limit <= 0 {
		return "", &conversation.BudgetError{Tokens: framing, Budget: conv.Budget(), Messages: 2}
	}

	fitted, truncated := truncate.NewTruncator(tokens.TextCounter(s.counter, s.model), truncate.KeepEnds).
		Truncate(text, limit)
	if truncated {
		s.logger.Debug("seed truncated to fit history budget", slog.Int("token_limit", limit))
	}
	return fitted, nil
}

// SourceReport describes one diagnostic source read by InitStatsDebug.
type SourceReport struct {
	Endpoint string `json:"endpoint"`
	OK       bool   `json:"ok"`
	Chars    int    `json:"chars"`
	Error    string `json:"error,omitempty"`
}

// InitReport is the result of InitStatsDebug.
type InitReport struct {
	ClusterID      string         `json:"cluster_name"`
	Sources        []SourceReport `json:"sources"`
	PerSourceChars int            `json:"per_source_chars"`
	SeedChars      int            `json:"seed_chars"`
}

// InitStatsDebug reads the diagnostic endpoints from a cluster, divides
// the seed budget evenly between the sources that answered, and seeds the
// stats session with the result. If no source answered it returns an error
// wrapping truncate.ErrNoSources and the stats session is left unchanged.
func (s *Service) InitStatsDebug(ctx context.Context, clusterID string) (InitReport, error) {
	if err := s.checkCluster(clusterID); err != nil {
		return InitReport{ClusterID: clusterID}, err
	}
	report := InitReport{ClusterID: clusterID, Sources: make([]SourceReport, len(s.statsEndpoints))}
	results := make([]fetch.Result, len(s.statsEndpoints))

	var wg sync.WaitGroup
	for i, endpoint := range s.statsEndpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.fetcher.Fetch(ctx, fetch.Request{ClusterID: clusterID, Path: endpoint})
		}()
	}
	wg.Wait()

	var labels, sources []string
	var reported []int // report index of each entry in sources
	for i, res := range results {
		rep := SourceReport{Endpoint: s.statsEndpoints[i], OK: res.OK && res.Payload != ""}
		if rep.OK {
			labels = append(labels, fmt.Sprintf("### GET %s\n", s.statsEndpoints[i]))
			sources = append(sources, res.Payload)
			reported = append(reported, i)
		} else {
			if res.Err != nil {
				rep.Error = res.Err.Error()
			}
			s.logger.Warn("diagnostic source failed",
				slog.String("cluster", clusterID),
				slog.String("endpoint", s.statsEndpoints[i]),
				slog.Any("error", res.Err),
			)
		}
		report.Sources[i] = rep
	}

	// Labels and separators come out of the same budget as the payloads.
	overhead := 0
	for _, l := range labels {
		overhead += utf8.RuneCountInString(l) + 2
	}
	budget := s.seedBudget - overhead
	perSource, err := truncate.PerSource(len(sources), budget)
	if err != nil {
		return report, fmt.Errorf("init stats for %q: %w", clusterID, err)
	}
	report.PerSourceChars = perSource
	parts, err := truncate.Allocate(sources, budget)
	if err != nil {
		return report, fmt.Errorf("init stats for %q: %w", clusterID, err)
	}

	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(labels[i])
		b.WriteString(part)
		report.Sources[reported[i]].Chars = utf8.RuneCountInString(part)
	}

	seed := b.String()
	report.SeedChars = utf8.RuneCountInString(seed)
	if err := s.SeedStats(ctx, clusterID, seed); err != nil {
		return report, err
	}
	return report, nil
}

// Send runs a plain chat turn on a seeded session.
func (s *Service) Send(ctx context.Context, metric Metric, message string) (string, error) {
	key, err := metric.key()
	if err != nil {
		return "", err
	}

	var reply string
	err = s.store.WithSession(ctx, key, func(sess *session.Session) error {
		var err error
		reply, err = s.proto.Chat(ctx, sess.Conversation(), message)
		return err
	})
	if err != nil {
		s.logTurnError(key, err)
		return "", err
	}
	return reply, nil
}

// ToolQuery runs a tool-dispatch turn against a cluster. The cluster's
// session is created on first use.
func (s *Service) ToolQuery(ctx context.Context, clusterID, message string) (dispatch.Result, error) {
	if err := s.checkCluster(clusterID); err != nil {
		return dispatch.Result{}, err
	}
	key := ToolKey(clusterID)

	var result dispatch.Result
	err := s.store.WithSessionOrCreate(ctx, key, clusterID, func(sess *session.Session) error {
		conv := sess.Conversation()
		if !conv.HasPreamble() {
			preamble, err := s.proto.Prompts().ToolPreambleFor(clusterID)
			if err != nil {
				return err
			}
			conv.InstallSystemPreamble(preamble)
		}

		var err error
		result, err = s.proto.Run(ctx, conv, sess.ClusterID(), message)
		return err
	})
	if err != nil {
		s.logTurnError(key, err)
		return dispatch.Result{}, err
	}
	return result, nil
}

func (s *Service) checkCluster(id string) error {
	if id == "" || (s.knownCluster != nil && !s.knownCluster(id)) {
		return fmt.Errorf("%w: %q", ErrUnknownCluster, id)
	}
	return nil
}

func (s *Service) logTurnError(key string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, conversation.ErrBudgetUnsatisfiable) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "chat turn failed",
		slog.String("session", key),
		slog.Bool("retryable", provider.IsRetryable(err)),
		slog.Any("error", err),
	)
}
