package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/esdiag/conversation"
)

// ErrUnknownSession is returned for a key that has never been created.
var ErrUnknownSession = errors.New("unknown session")

// DefaultTokenBudget is the history budget for new sessions.
const DefaultTokenBudget = 6000

type storeConfig struct {
	tokenBudget     int
	idleTTL         time.Duration
	cleanupInterval time.Duration
	logger          *slog.Logger
}

// Option configures a Store.
type Option func(*storeConfig)

// WithTokenBudget sets the history budget for sessions created afterwards.
func WithTokenBudget(n int) Option {
	return func(c *storeConfig) {
		if n > 0 {
			c.tokenBudget = n
		}
	}
}

// WithIdleTTL drops sessions that have been idle longer than ttl, checking
// every interval. Busy sessions are never dropped.
func WithIdleTTL(ttl, interval time.Duration) Option {
	return func(c *storeConfig) {
		c.idleTTL = ttl
		c.cleanupInterval = interval
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Store owns every session. It is safe for concurrent use.
type Store struct {
	cfg       storeConfig
	mu        sync.RWMutex
	sessions  map[string]*Session
	stopClean chan struct{}
	closeOnce sync.Once
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	cfg := storeConfig{
		tokenBudget: DefaultTokenBudget,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store{
		cfg:       cfg,
		sessions:  make(map[string]*Session),
		stopClean: make(chan struct{}),
	}
	if cfg.idleTTL > 0 && cfg.cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

// GetOrCreate returns the session for key, creating it bound to clusterID
// if it does not exist. An existing session keeps its binding.
func (s *Store) GetOrCreate(key, clusterID string) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	sess = newSession(key, clusterID, conversation.New(s.cfg.tokenBudget,
		conversation.WithLogger(s.cfg.logger.With(slog.String("session", key)))))
	s.sessions[key] = sess
	s.cfg.logger.Debug("session created", slog.String("session", key), slog.String("cluster", clusterID))
	return sess
}

// Get returns the session for key.
func (s *Store) Get(key string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// WithSession runs fn while holding the lock of an existing session.
// It returns ErrUnknownSession if key was never created, ctx.Err() if the
// lock could not be taken before ctx ended, or fn's error.
func (s *Store) WithSession(ctx context.Context, key string, fn func(*Session) error) error {
	return s.run(ctx, key, "", false, fn)
}

// WithSessionOrCreate is WithSession for a session created on first use.
func (s *Store) WithSessionOrCreate(ctx context.Context, key, clusterID string, fn func(*Session) error) error {
	return s.run(ctx, key, clusterID, true, fn)
}

func (s *Store) run(ctx context.Context, key, clusterID string, create bool, fn func(*Session) error) error {
	for {
		var sess *Session
		if create {
			sess = s.GetOrCreate(key, clusterID)
		} else {
			var ok bool
			if sess, ok = s.Get(key); !ok {
				return fmt.Errorf("%w: %q", ErrUnknownSession, key)
			}
		}

		if err := sess.acquire(ctx); err != nil {
			return fmt.Errorf("session %q: %w", key, err)
		}
		// The session expired while we waited; look it up again.
		if sess.dropped.Load() {
			<-sess.lock
			continue
		}

		defer sess.release()
		sess.turns.Add(1)
		return fn(sess)
	}
}

// Count returns the number of sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Infos returns a summary of every session sorted by key.
func (s *Store) Infos() []Info {
	s.mu.RLock()
	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close stops the idle cleanup loop. Sessions remain readable.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stopClean)
	})
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cfg.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopClean:
			return
		case now := <-ticker.C:
			s.dropIdle(now)
		}
	}
}

// dropIdle removes sessions idle since before now-idleTTL. A session is
// locked while it is removed so no turn can start on a dropped session.
func (s *Store) dropIdle(now time.Time) {
	cutoff := now.Add(-s.cfg.idleTTL).UnixNano()

	s.mu.Lock()
	dropped := 0
	for key, sess := range s.sessions {
		if sess.lastUsed.Load() > cutoff || !sess.tryAcquire() {
			continue
		}
		delete(s.sessions, key)
		sess.dropped.Store(true)
		<-sess.lock
		dropped++
		s.cfg.logger.Debug("session expired", slog.String("session", key))
	}
	s.mu.Unlock()

	if dropped > 0 {
		s.cfg.logger.Info("expired idle sessions",
			slog.Int("expired", dropped),
			slog.Int("remaining", s.Count()),
		)
	}
}
