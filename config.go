package cinder

import (
	"log/slog"
	"time"

	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/protocol"
	"github.com/cinder-go/cinder/pkg/session"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the application configuration. The zero value is usable.
type Config struct {
	// Session configures the session store and cookie.
	Session SessionConfig

	// Static mounts a directory of files ahead of the route tree.
	// Leave Dir empty to serve nothing.
	Static StaticConfig

	// ResponseTimeout bounds the emission of each response.
	// Default: 60 seconds.
	ResponseTimeout time.Duration

	// ChunkSize is the size of emitted response body chunks.
	// Default: 1024 bytes.
	ChunkSize int

	// Middleware wraps every dispatch, first to last.
	Middleware []dispatch.Middleware

	// Logger is the structured logger for the application.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// AccessLogger receives one line per HTTP exchange and socket event.
	// If nil, access logging is off.
	AccessLogger *slog.Logger
}

// SessionConfig configures sessions.
type SessionConfig struct {
	// Store holds sessions. Default: session.NewMemoryStore().
	// Use session.DialRedis or session.OpenBoltStore for persistence.
	Store session.Store

	// CookieName is the session cookie. Default: "cinder_session".
	CookieName string
}

// StaticConfig configures static file serving.
type StaticConfig struct {
	// Dir is the directory containing static files (e.g., "public").
	Dir string

	// Prefix is the URL path prefix for static files (e.g., "/static").
	// Default: "/".
	Prefix string

	// CacheControl determines caching behavior for static files.
	// Default: CacheControlNone (no caching headers).
	CacheControl CacheControlStrategy

	// Headers are custom headers added to all static file responses.
	Headers map[string]string
}

// CacheControlStrategy determines caching behavior for static files.
type CacheControlStrategy int

const (
	// CacheControlNone adds no caching headers.
	CacheControlNone CacheControlStrategy = iota

	// CacheControlProduction caches fingerprinted files ("app.3f9a2c1b.css")
	// for a year and everything else for an hour with revalidation.
	CacheControlProduction

	// CacheControlDisabled forbids caching, which suits development.
	CacheControlDisabled
)

// DefaultConfig returns the configuration New falls back to.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			CookieName: protocol.DefaultCookieName,
		},
		Static: StaticConfig{
			Prefix: "/",
		},
		ResponseTimeout: message.DefaultTimeout,
		ChunkSize:       message.DefaultChunkSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Session.CookieName == "" {
		c.Session.CookieName = d.Session.CookieName
	}
	if c.Session.Store == nil {
		c.Session.Store = session.NewMemoryStore()
	}
	if c.Static.Prefix == "" {
		c.Static.Prefix = d.Static.Prefix
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) protocolOptions() []protocol.Option {
	return []protocol.Option{
		protocol.WithCookieName(c.Session.CookieName),
		protocol.WithTimeout(c.ResponseTimeout),
		protocol.WithChunkSize(c.ChunkSize),
		protocol.WithLogger(c.Logger.With("component", "protocol")),
		protocol.WithAccessLogger(c.AccessLogger),
	}
}
