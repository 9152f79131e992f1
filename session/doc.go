// Package session maps session keys to conversations and serialises
// access to each one.
//
// A turn holds its session's lock from the first history mutation until
// the reply is appended, including the time spent waiting on the reasoning
// engine and the cluster. Turns on different keys never wait for each
// other.
//
//	store := session.NewStore(session.WithTokenBudget(6000))
//	err := store.WithSession(ctx, "stats", func(s *session.Session) error {
//	    reply, err = proto.Chat(ctx, s.Conversation(), msg)
//	    return err
//	})
//
// Sessions live until the process exits unless WithIdleTTL is set.
package session
