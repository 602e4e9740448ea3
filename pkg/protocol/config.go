package protocol

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cinder-go/cinder/pkg/message"
)

// DefaultCookieName is the name of the session cookie.
const DefaultCookieName = "cinder_session"

// ErrUnexpectedEvent is returned by the lifespan handler for events it does
// not understand.
var ErrUnexpectedEvent = errors.New("protocol: unexpected event")

// Config holds the settings shared by the protocol handlers.
type Config struct {
	// CookieName is the session cookie (default: "cinder_session").
	CookieName string

	// Timeout bounds response emission (default: 60s).
	Timeout time.Duration

	// ChunkSize is the emitted body chunk size (default: 1024).
	ChunkSize int

	// Logger receives application errors.
	Logger *slog.Logger

	// AccessLogger receives one line per exchange. Nil disables access
	// logging.
	AccessLogger *slog.Logger
}

// Option configures a protocol handler.
type Option func(*Config)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.CookieName = name
		}
	}
}

// WithTimeout sets the response emission timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithChunkSize sets the emitted body chunk size.
func WithChunkSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ChunkSize = n
		}
	}
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithAccessLogger sets the access logger.
func WithAccessLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.AccessLogger = l
	}
}

func newConfig(opts []Option) Config {
	c := Config{
		CookieName: DefaultCookieName,
		Timeout:    message.DefaultTimeout,
		ChunkSize:  message.DefaultChunkSize,
		Logger:     slog.Default().With("component", "protocol"),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *Config) newResponse() *message.Response {
	resp := message.NewResponse()
	resp.Timeout = c.Timeout
	resp.ChunkSize = c.ChunkSize
	return resp
}
