package session

import "context"

// Store maps session identifiers to sessions. Implementations must be safe
// for concurrent use. Entries are never expired or evicted.
type Store interface {
	// GetOrCreate returns the session stored under id. On a miss it creates
	// an empty session, stores it under id and returns it: a lookup can
	// write.
	GetOrCreate(ctx context.Context, id string) (*Session, error)

	// Put stores s under id, replacing any previous session.
	Put(ctx context.Context, id string, s *Session) error

	// Contains reports whether id is stored. It never creates.
	Contains(ctx context.Context, id string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "session: store is closed"
}
