package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore keeps JSON-encoded sessions in a bbolt file, so sessions survive
// a restart of a single process.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// BoltStoreOption configures BoltStore behavior.
type BoltStoreOption func(*boltStoreConfig)

type boltStoreConfig struct {
	bucket  string
	timeout time.Duration
}

// WithBucket sets the bucket sessions live in.
// Default: "sessions".
func WithBucket(name string) BoltStoreOption {
	return func(c *boltStoreConfig) {
		c.bucket = name
	}
}

// WithLockTimeout bounds the wait for the file lock on open.
// Default: 1 second.
func WithLockTimeout(d time.Duration) BoltStoreOption {
	return func(c *boltStoreConfig) {
		c.timeout = d
	}
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string, opts ...BoltStoreOption) (*BoltStore, error) {
	cfg := &boltStoreConfig{
		bucket:  "sessions",
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: cfg.timeout})
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	bucket := []byte(cfg.bucket)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	return &BoltStore{db: db, bucket: bucket}, nil
}

// GetOrCreate loads the session under id, creating and storing one on a
// miss in the same transaction.
func (b *BoltStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s *Session
	err := b.update(func(bk *bbolt.Bucket) error {
		if data := bk.Get([]byte(id)); data != nil {
			var err error
			s, err = Decode(data)
			return err
		}
		s = New(id)
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		return bk.Put([]byte(id), data)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Put encodes s and stores it under id.
func (b *BoltStore) Put(ctx context.Context, id string, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return b.update(func(bk *bbolt.Bucket) error {
		return bk.Put([]byte(id), data)
	})
}

// Contains reports whether id is stored.
func (b *BoltStore) Contains(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return fmt.Errorf("session: bucket %q missing", b.bucket)
		}
		found = bk.Get([]byte(id)) != nil
		return nil
	})
	if err == bbolt.ErrDatabaseNotOpen {
		return false, ErrStoreClosed{}
	}
	return found, err
}

func (b *BoltStore) update(fn func(*bbolt.Bucket) error) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return fmt.Errorf("session: bucket %q missing", b.bucket)
		}
		return fn(bk)
	})
	if err == bbolt.ErrDatabaseNotOpen {
		return ErrStoreClosed{}
	}
	return err
}

// Close closes the database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
