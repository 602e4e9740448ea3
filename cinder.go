// Package cinder is a microframework that routes requests by walking an
// application object graph.
//
// Handlers are methods declared on a route registry against the type that
// owns them. Mounting an object graph builds a route tree whose branches are
// the objects and whose leaves are their handlers: GET /child/show reaches
// the Show handler of the object exposed as "child" under the root.
//
//	app := cinder.New(cinder.Config{})
//	r := app.Routes()
//	r.Get(router.OwnerOf[Root](), "index", (*Root).Index)
//	r.Post(router.OwnerOf[Child](), "create", (*Child).Create)
//	if err := app.Mount(router.Object(root, router.Child("child", child))); err != nil {
//		log.Fatal(err)
//	}
//	http.ListenAndServe(":8000", app.Handler())
//
// The App speaks the gateway protocol of package gateway, so any front end
// producing gateway scopes and events can serve it; App.Handler adapts it to
// net/http.
//
// Handlers reach the current request, response, session and socket through
// the context; see package ambient.
package cinder

import (
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
)

type (
	// Request is the inbound HTTP request.
	Request = message.Request

	// Response is the response under construction.
	Response = message.Response

	// Result is what a handler's return value is served as.
	Result = message.Result

	// Spec declares the object graph passed to App.Mount.
	Spec = router.Spec
)

// Object declares the root object of the graph.
func Object(value any, children ...*Spec) *Spec {
	return router.Object(value, children...)
}

// Child declares an object exposed under name.
func Child(name string, value any, children ...*Spec) *Spec {
	return router.Child(name, value, children...)
}

// Redirect returns an error that makes the response a 307 to location.
func Redirect(location string) error {
	return message.NewRedirect(location)
}

// Error returns an error that makes the response status with detail as
// its body.
func Error(status int, detail string) error {
	return message.NewHTTPError(status, detail)
}

// JSON serves v as application/json.
func JSON(v any) message.Structured {
	return message.JSON(v)
}
