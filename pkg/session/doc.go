// Package session provides server-side sessions and their stores.
//
// A client presents a session identifier in a cookie. The store maps the
// identifier to a Session, creating an empty one on the first lookup:
//
//	store := session.NewMemoryStore()
//	// or
//	store, err := session.DialRedis("localhost:6379", "", 0)
//	// or
//	store, err := session.OpenBoltStore("sessions.db")
//
//	s, err := store.GetOrCreate(ctx, id)
//	s.Set("user", "alice")
//	err = store.Put(ctx, id, s)
//
// The Redis and bolt stores encode sessions as JSON, so values read back
// from them have their generic JSON types. No store expires or evicts
// entries.
package session
