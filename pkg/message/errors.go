package message

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cinder-go/cinder/pkg/router"
)

var (
	// ErrUnsupportedResult is returned when a handler produces a value that
	// has no body encoding. It signals a programming error in the handler.
	ErrUnsupportedResult = errors.New("message: unsupported result")

	// ErrClientDisconnected is returned when the client went away while the
	// body was being read.
	ErrClientDisconnected = errors.New("message: client disconnected")
)

// Redirect is returned or raised by a handler to send the client elsewhere.
// It is a control transfer, not a failure.
type Redirect struct {
	Location string
	Status   int
}

// NewRedirect returns a 307 redirect to location.
func NewRedirect(location string) *Redirect {
	return &Redirect{Location: location, Status: http.StatusTemporaryRedirect}
}

// NewRedirectStatus returns a redirect with an explicit status code.
func NewRedirectStatus(location string, status int) *Redirect {
	return &Redirect{Location: location, Status: status}
}

func (r *Redirect) Error() string {
	return fmt.Sprintf("redirect %d to %s", r.Status, r.Location)
}

// HTTPError is an expected failure whose status and detail are shown to the
// client.
type HTTPError struct {
	Status int
	Detail string
}

// NewHTTPError returns an HTTPError. An empty detail becomes the status text.
func NewHTTPError(status int, detail string) *HTTPError {
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &HTTPError{Status: status, Detail: detail}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Detail)
}

// StatusOf maps a dispatch outcome to the response status it produces.
// A nil error means the handler's own status (ok) stands.
func StatusOf(err error, ok int) int {
	if err == nil {
		return ok
	}
	var redirect *Redirect
	var httpErr *HTTPError
	switch {
	case errors.As(err, &redirect):
		return redirect.Status
	case errors.As(err, &httpErr):
		return httpErr.Status
	case errors.Is(err, router.ErrRouteNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
