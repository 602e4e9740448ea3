// Package demo is a small application used by the cinder command and the
// integration tests.
package demo

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/cinder-go/cinder/pkg/ambient"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
)

// Thing is the aggregate posted to /child/create.
type Thing struct {
	Thing1 int    `json:"thing1"`
	Thing2 string `json:"thing2"`
}

// Root is the application root.
type Root struct{}

// Index greets.
func (r *Root) Index() string { return "Hello" }

// Visits counts requests in the caller's session.
func (r *Root) Visits(ctx context.Context) string {
	sess := ambient.MustSession(ctx)
	v, _ := sess.Get("visits")
	n, _ := v.(float64)
	n++
	sess.Set("visits", n)
	return strconv.Itoa(int(n))
}

// Home redirects to the root.
func (r *Root) Home() error { return message.NewRedirect("/") }

// Echo answers every text frame with the same text in upper case.
func (r *Root) Echo(ctx context.Context) error {
	conn := ambient.MustSocket(ctx)
	for {
		text, err := conn.ReceiveText(ctx)
		if err != nil {
			return err
		}
		if err := conn.SendText(ctx, strings.ToUpper(text)); err != nil {
			return err
		}
	}
}

// Child keeps what was posted to it.
type Child struct {
	mu     sync.Mutex
	things []Thing
}

// Index lists the stored things.
func (c *Child) Index() message.Structured {
	c.mu.Lock()
	defer c.mu.Unlock()
	return message.JSON(append([]Thing{}, c.things...))
}

// Create stores t and echoes it back.
func (c *Child) Create(t Thing) message.Structured {
	c.mu.Lock()
	c.things = append(c.things, t)
	c.mu.Unlock()
	return message.JSON(t)
}

// Show returns the thing at position id.
func (c *Child) Show(id int) (message.Structured, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 0 || id >= len(c.things) {
		return message.Structured{}, message.NewHTTPError(404, "no thing "+strconv.Itoa(id))
	}
	return message.JSON(c.things[id]), nil
}

// Register declares the demo handlers on reg.
func Register(reg *router.Registry) {
	root := router.OwnerOf[Root]()
	reg.Get(root, "index", (*Root).Index)
	reg.Get(root, "visits", (*Root).Visits)
	reg.Get(root, "home", (*Root).Home)
	reg.WebSocket(root, "echo", (*Root).Echo)

	child := router.OwnerOf[Child]()
	reg.Get(child, "index", (*Child).Index)
	reg.Post(child, "create", (*Child).Create)
	reg.Get(child, "show", (*Child).Show, router.Args("id"))
}

// Spec returns a fresh object graph for the demo handlers.
func Spec() *router.Spec {
	return router.Object(&Root{},
		router.Child("child", &Child{}),
	)
}
