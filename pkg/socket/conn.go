// Package socket models one bidirectional socket connection over the
// gateway protocol.
//
// Each side of the connection has its own state. The client side moves
// Connecting → Connected on websocket.connect and to Disconnected on
// websocket.disconnect. The application side moves Connecting → Connected
// on accept and to Disconnected on close. Operations illegal in the current
// state fail with an error wrapping ErrProtocolViolation.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cinder-go/cinder/pkg/gateway"
)

// State of one side of the connection.
type State int

const (
	Connecting State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	sideClient = "client"
	sideApp    = "application"
)

// Conn is a socket connection. Reads and writes may happen on different
// goroutines; events in each direction keep their order.
type Conn struct {
	receive gateway.Receive
	send    gateway.Send

	mu          sync.Mutex
	client      State
	app         State
	subprotocol string
}

// New wraps the gateway functions of one socket scope.
func New(receive gateway.Receive, send gateway.Send) *Conn {
	return &Conn{receive: receive, send: send}
}

// ClientState returns the client-perceived state.
func (c *Conn) ClientState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// AppState returns the application-perceived state.
func (c *Conn) AppState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app
}

// Subprotocol returns the subprotocol chosen on accept.
func (c *Conn) Subprotocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subprotocol
}

// Receive returns the next raw event. The first event must be
// websocket.connect; after that only websocket.receive and
// websocket.disconnect are legal.
func (c *Conn) Receive(ctx context.Context) (gateway.Event, error) {
	c.mu.Lock()
	st := c.client
	c.mu.Unlock()
	if st == Disconnected {
		return gateway.Event{}, &StateError{Op: "receive", Side: sideClient, State: st}
	}

	ev, err := c.receive(ctx)
	if err != nil {
		return gateway.Event{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.client {
	case Connecting:
		if ev.Type != gateway.WebSocketConnect {
			return gateway.Event{}, &StateError{Op: "receive", Side: sideClient, State: c.client, Event: ev.Type}
		}
		c.client = Connected
	case Connected:
		switch ev.Type {
		case gateway.WebSocketReceive:
		case gateway.WebSocketDisconnect:
			c.client = Disconnected
		default:
			return gateway.Event{}, &StateError{Op: "receive", Side: sideClient, State: c.client, Event: ev.Type}
		}
	default:
		return gateway.Event{}, &StateError{Op: "receive", Side: sideClient, State: c.client, Event: ev.Type}
	}
	return ev, nil
}

// Send emits a raw event. Before accept only websocket.accept and
// websocket.close are legal; after accept only websocket.send and
// websocket.close.
func (c *Conn) Send(ctx context.Context, ev gateway.Event) error {
	c.mu.Lock()
	switch c.app {
	case Connecting:
		switch ev.Type {
		case gateway.WebSocketAccept:
			c.app = Connected
			c.subprotocol = ev.Subprotocol
		case gateway.WebSocketClose:
			c.app = Disconnected
		default:
			st := c.app
			c.mu.Unlock()
			return &StateError{Op: "send", Side: sideApp, State: st, Event: ev.Type}
		}
	case Connected:
		switch ev.Type {
		case gateway.WebSocketSend:
		case gateway.WebSocketClose:
			c.app = Disconnected
		default:
			st := c.app
			c.mu.Unlock()
			return &StateError{Op: "send", Side: sideApp, State: st, Event: ev.Type}
		}
	default:
		st := c.app
		c.mu.Unlock()
		return &StateError{Op: "send", Side: sideApp, State: st, Event: ev.Type}
	}
	c.mu.Unlock()

	return c.send(ctx, ev)
}

// Accept consumes the connect event if it has not been read yet, then
// accepts the connection.
func (c *Conn) Accept(ctx context.Context, subprotocol string) error {
	if c.ClientState() == Connecting {
		if _, err := c.Receive(ctx); err != nil {
			return err
		}
	}
	return c.Send(ctx, gateway.Event{Type: gateway.WebSocketAccept, Subprotocol: subprotocol})
}

// Close closes the application side with code.
func (c *Conn) Close(ctx context.Context, code int) error {
	return c.Send(ctx, gateway.Event{Type: gateway.WebSocketClose, Code: code})
}

// receiveData reads one data event. The application side must be connected.
func (c *Conn) receiveData(ctx context.Context, op string) (gateway.Event, error) {
	if st := c.AppState(); st != Connected {
		return gateway.Event{}, &StateError{Op: op, Side: sideApp, State: st}
	}
	ev, err := c.Receive(ctx)
	if err != nil {
		return gateway.Event{}, err
	}
	if ev.Type == gateway.WebSocketDisconnect {
		return gateway.Event{}, &DisconnectError{Code: ev.Code, Reason: ev.Reason}
	}
	return ev, nil
}

// ReceiveText reads a text frame.
func (c *Conn) ReceiveText(ctx context.Context) (string, error) {
	ev, err := c.receiveData(ctx, "receive text")
	if err != nil {
		return "", err
	}
	if ev.IsBinary() {
		return "", fmt.Errorf("%w: got bytes, want text", ErrFrameType)
	}
	return ev.Text, nil
}

// ReceiveBytes reads a binary frame.
func (c *Conn) ReceiveBytes(ctx context.Context) ([]byte, error) {
	ev, err := c.receiveData(ctx, "receive bytes")
	if err != nil {
		return nil, err
	}
	if !ev.IsBinary() {
		return nil, fmt.Errorf("%w: got text, want bytes", ErrFrameType)
	}
	return ev.Bytes, nil
}

// ReceiveJSON reads a text or binary frame and decodes it into v.
func (c *Conn) ReceiveJSON(ctx context.Context, v any) error {
	ev, err := c.receiveData(ctx, "receive json")
	if err != nil {
		return err
	}
	data := ev.Bytes
	if !ev.IsBinary() {
		data = []byte(ev.Text)
	}
	return json.Unmarshal(data, v)
}

// SendText sends a text frame.
func (c *Conn) SendText(ctx context.Context, text string) error {
	return c.Send(ctx, gateway.Event{Type: gateway.WebSocketSend, Text: text})
}

// SendBytes sends a binary frame.
func (c *Conn) SendBytes(ctx context.Context, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return c.Send(ctx, gateway.Event{Type: gateway.WebSocketSend, Bytes: data})
}

// SendJSON encodes v and sends it as a text frame.
func (c *Conn) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendText(ctx, string(data))
}
