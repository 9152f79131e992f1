package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/esdiag/conversation"
)

// Session is one conversation and the cluster it talks about. Its methods
// other than Key and Info must only be used while holding the session's
// lock, i.e. inside a WithSession callback.
type Session struct {
	key       string
	clusterID string
	conv      *conversation.Conversation
	created   time.Time
	lastUsed  atomic.Int64 // unix nanos
	turns     atomic.Int64
	dropped   atomic.Bool

	// lock is a one-slot semaphore so waiting can honour a context.
	lock chan struct{}
}

func newSession(key, clusterID string, conv *conversation.Conversation) *Session {
	now := time.Now()
	s := &Session{
		key:       key,
		clusterID: clusterID,
		conv:      conv,
		created:   now,
		lock:      make(chan struct{}, 1),
	}
	s.lastUsed.Store(now.UnixNano())
	return s
}

// Key returns the session key.
func (s *Session) Key() string {
	return s.key
}

// ClusterID returns the cluster the session is bound to.
func (s *Session) ClusterID() string {
	return s.clusterID
}

// SetClusterID rebinds the session, typically when it is reseeded.
func (s *Session) SetClusterID(id string) {
	s.clusterID = id
}

// Conversation returns the session's history.
func (s *Session) Conversation() *conversation.Conversation {
	return s.conv
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) tryAcquire() bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) release() {
	s.lastUsed.Store(time.Now().UnixNano())
	<-s.lock
}

// Info is a point-in-time summary of a session.
type Info struct {
	Key      string    `json:"key"`
	Created  time.Time `json:"created"`
	LastUsed time.Time `json:"last_used"`
	Turns    int64     `json:"turns"`
	Busy     bool      `json:"busy"`
}

// Info returns a summary that is safe to read without the lock.
func (s *Session) Info() Info {
	return Info{
		Key:      s.key,
		Created:  s.created,
		LastUsed: time.Unix(0, s.lastUsed.Load()),
		Turns:    s.turns.Load(),
		Busy:     len(s.lock) > 0,
	}
}
