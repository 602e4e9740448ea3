package ambient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/session"
	"github.com/cinder-go/cinder/pkg/socket"
)

func TestUnboundIsNotAvailable(t *testing.T) {
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["request"] = Request(ctx)
	_, checks["response"] = Response(ctx)
	_, checks["session"] = Session(ctx)
	_, checks["socket"] = Socket(ctx)

	for name, err := range checks {
		if !errors.Is(err, ErrNotAvailable) {
			t.Errorf("%s: err = %v, want ErrNotAvailable", name, err)
		}
		if err != nil && !strings.Contains(err.Error(), name) {
			t.Errorf("%s: error %q does not name the handle", name, err)
		}
	}
}

func TestBindAndRead(t *testing.T) {
	req := message.NewRequest(gateway.Scope{Path: "/a"}, nil)
	resp := message.NewResponse()
	sess := session.New("id")
	conn := socket.New(nil, nil)

	ctx := WithRequest(context.Background(), req)
	ctx = WithResponse(ctx, resp)
	ctx = WithSession(ctx, sess)
	ctx = WithSocket(ctx, conn)

	deep := func(ctx context.Context) string {
		return MustRequest(ctx).Path
	}
	if deep(ctx) != "/a" {
		t.Error("request not visible deep in the call chain")
	}
	if MustResponse(ctx) != resp || MustSession(ctx) != sess || MustSocket(ctx) != conn {
		t.Error("bound values not returned")
	}
}

func TestBindNilIsNoop(t *testing.T) {
	ctx := WithSession(context.Background(), nil)
	if _, err := Session(ctx); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("err = %v, want ErrNotAvailable", err)
	}
}

func TestMustPanicsWhenUnbound(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNotAvailable) {
			t.Errorf("recovered %v, want ErrNotAvailable", r)
		}
	}()
	MustRequest(context.Background())
}

func TestIsolationBetweenConnections(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan string, 100)

	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%26)) + strings.Repeat("x", i)
			ctx := WithSession(context.Background(), session.New(id))
			if got := MustSession(ctx).ID; got != id {
				errs <- got
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("connection saw foreign session %q", got)
	}

	if _, err := Session(context.Background()); !errors.Is(err, ErrNotAvailable) {
		t.Error("session leaked into an unrelated context")
	}
}
