package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetOrCreate(t *testing.T) {
	store := NewStore(WithTokenBudget(123))

	a := store.GetOrCreate("tool:prod", "prod")
	b := store.GetOrCreate("tool:prod", "other")

	assert.Same(t, a, b)
	assert.Equal(t, "prod", b.ClusterID(), "existing session keeps its binding")
	assert.Equal(t, 123, a.Conversation().Budget())
	assert.Equal(t, 1, store.Count())

	got, ok := store.Get("tool:prod")
	assert.True(t, ok)
	assert.Same(t, a, got)
}

func TestStore_WithSessionUnknown(t *testing.T) {
	store := NewStore()

	called := false
	err := store.WithSession(context.Background(), "stats", func(*Session) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.False(t, called)
}

func TestStore_SameKeyIsSerialised(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("stats", "")

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithSession(context.Background(), "stats", func(s *Session) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				s.Conversation().AppendUser("turn")
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	sess, _ := store.Get("stats")
	assert.Equal(t, 20, sess.Conversation().Len())
	assert.Equal(t, int64(20), sess.Info().Turns)
}

func TestStore_DifferentKeysRunConcurrently(t *testing.T) {
	store := NewStore()
	entered := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithSessionOrCreate(context.Background(), "a", "", func(*Session) error {
			select {
			case <-entered:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("session b never ran while a was held")
			}
		})
	}()

	err := store.WithSessionOrCreate(context.Background(), "b", "", func(*Session) error {
		close(entered)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, <-done)
}

func TestStore_LockReleasedOnErrorAndPanic(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("k", "")
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithSession(ctx, "k", func(*Session) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = store.WithSession(ctx, "k", func(*Session) error { panic("engine exploded") })
	})

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, store.WithSession(ctx, "k", func(*Session) error { return nil }))
}

func TestStore_WaitHonoursContext(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("k", "")

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithSession(context.Background(), "k", func(*Session) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.WithSession(ctx, "k", func(*Session) error { return nil })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	sess, _ := store.Get("k")
	assert.True(t, sess.Info().Busy)
}

func TestStore_DropIdle(t *testing.T) {
	store := NewStore(WithIdleTTL(time.Minute, 0))
	store.GetOrCreate("idle", "")
	store.GetOrCreate("busy", "")

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithSession(context.Background(), "busy", func(*Session) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	store.dropIdle(time.Now().Add(time.Hour))
	close(release)

	infos := store.Infos()
	require.Len(t, infos, 1)
	assert.Equal(t, "busy", infos[0].Key)
	err := store.WithSession(context.Background(), "idle", func(*Session) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownSession)

	// A dropped session is recreated on the next seeding call.
	err = store.WithSessionOrCreate(context.Background(), "idle", "prod", func(s *Session) error {
		assert.Equal(t, "prod", s.ClusterID())
		return nil
	})
	assert.NoError(t, err)
}

func TestStore_InfosAndClose(t *testing.T) {
	store := NewStore(WithIdleTTL(time.Hour, time.Hour))
	defer store.Close()

	store.GetOrCreate("b", "")
	store.GetOrCreate("a", "")

	infos := store.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Key)
	assert.False(t, infos[0].Busy)
	assert.False(t, infos[0].Created.IsZero())

	store.Close()
	store.Close()
}
