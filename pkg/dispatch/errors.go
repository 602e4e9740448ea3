package dispatch

import (
	"fmt"

	"github.com/cinder-go/cinder/pkg/router"
)

// BindError reports that a request's arguments do not fit the handler.
// It matches router.ErrRouteNotFound: a handler that cannot take the call
// is treated as not matching it.
type BindError struct {
	Handler string
	Param   string
	Reason  string
	Err     error
}

func (e *BindError) Error() string {
	msg := "dispatch: bind " + e.Handler
	if e.Param != "" {
		msg += " param " + e.Param
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap matches router.ErrRouteNotFound and the underlying cause.
func (e *BindError) Unwrap() []error {
	if e.Err == nil {
		return []error{router.ErrRouteNotFound}
	}
	return []error{router.ErrRouteNotFound, e.Err}
}

// HandlerError wraps a panic raised by a handler.
type HandlerError struct {
	Handler string
	Panic   any
	Stack   []byte
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("dispatch: handler %s panicked: %v", e.Handler, e.Panic)
}

// Unwrap returns the panic value when it is an error.
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}
