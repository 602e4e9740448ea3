package protocol

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/cinder-go/cinder/pkg/gateway"
)

// Callback runs at startup or shutdown.
type Callback func(ctx context.Context) error

// Lifespan serves the lifespan scope.
type Lifespan struct {
	startup  []Callback
	shutdown []Callback
	config   Config
}

// NewLifespan returns a lifespan handler running the given callbacks.
func NewLifespan(startup, shutdown []Callback, opts ...Option) *Lifespan {
	return &Lifespan{
		startup:  startup,
		shutdown: shutdown,
		config:   newConfig(opts),
	}
}

// Serve implements gateway.Application for lifespan scopes. It answers
// startup and shutdown events until shutdown has been handled. Every
// callback of a phase runs even when an earlier one fails; the failures are
// joined into the .failed message.
func (l *Lifespan) Serve(ctx context.Context, scope gateway.Scope, receive gateway.Receive, send gateway.Send) error {
	if scope.Type != gateway.ScopeLifespan {
		return fmt.Errorf("protocol: lifespan handler got %q scope", scope.Type)
	}
	logger := l.config.Logger

	for {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}

		switch ev.Type {
		case gateway.LifespanStartup:
			if err := l.phase(ctx, send, "startup", l.startup, gateway.LifespanStartupComplete, gateway.LifespanStartupFailed); err != nil {
				return err
			}

		case gateway.LifespanShutdown:
			return l.phase(ctx, send, "shutdown", l.shutdown, gateway.LifespanShutdownComplete, gateway.LifespanShutdownFailed)

		default:
			err := fmt.Errorf("%w: %s", ErrUnexpectedEvent, ev.Type)
			logger.Error("lifespan stopped", "error", err)
			return err
		}
	}
}

func (l *Lifespan) phase(ctx context.Context, send gateway.Send, name string, callbacks []Callback, complete, failed string) error {
	var errs []error
	for _, cb := range callbacks {
		if err := l.run(ctx, name, cb); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		l.config.Logger.Error(name+" failed", "error", err)
		return send(ctx, gateway.Event{Type: failed, Message: err.Error()})
	}
	l.config.Logger.Info(name + " complete")
	return send(ctx, gateway.Event{Type: complete})
}

// run calls cb, turning a panic into an error.
func (l *Lifespan) run(ctx context.Context, name string, cb Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.config.Logger.Error(name+" callback panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("protocol: %s callback panicked: %v", name, r)
		}
	}()
	return cb(ctx)
}
