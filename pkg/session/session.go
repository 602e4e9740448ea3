package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Session is server-side state keyed by an opaque identifier.
// A Session is safe for concurrent use.
type Session struct {
	ID string

	mu     sync.RWMutex
	values map[string]any
}

// New returns an empty session with the given id.
func New(id string) *Session {
	return &Session{ID: id, values: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (s *Session) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set stores a value. Values must be JSON-encodable to survive the Redis
// and bolt stores.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns the stored keys in sorted order.
func (s *Session) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Len returns the number of stored values.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// serializedSession is the stored form of a Session.
type serializedSession struct {
	ID      string                     `json:"id"`
	Values  map[string]json.RawMessage `json:"values,omitempty"`
	Version int                        `json:"version"`
}

// CurrentSerializationVersion is the version written by MarshalJSON.
// Increment when making breaking changes to the format.
const CurrentSerializationVersion = 1

// MarshalJSON encodes the session with its values.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss := serializedSession{
		ID:      s.ID,
		Values:  make(map[string]json.RawMessage, len(s.values)),
		Version: CurrentSerializationVersion,
	}
	for k, v := range s.values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("session: encode %q: %w", k, err)
		}
		ss.Values[k] = raw
	}
	return json.Marshal(ss)
}

// UnmarshalJSON decodes a session. Values come back as their generic JSON
// forms: numbers as float64, objects as map[string]any.
func (s *Session) UnmarshalJSON(data []byte) error {
	var ss serializedSession
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	if ss.Version > CurrentSerializationVersion {
		return fmt.Errorf("session: unsupported version %d", ss.Version)
	}

	values := make(map[string]any, len(ss.Values))
	for k, raw := range ss.Values {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("session: decode %q: %w", k, err)
		}
		values[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ID = ss.ID
	s.values = values
	return nil
}

// Decode parses a stored session.
func Decode(data []byte) (*Session, error) {
	s := New("")
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

const idBytes = 16

// NewID returns a fresh 32 character hex identifier.
func NewID() string {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		// Weak identifiers are worse than no server.
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// ValidID reports whether id has the shape NewID produces.
func ValidID(id string) bool {
	if len(id) != idBytes*2 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
