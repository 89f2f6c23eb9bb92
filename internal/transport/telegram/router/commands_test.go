package router

import (
	"context"
	"reflect"
	"testing"
	"time"

	kit "mcwatch/internal/transport"
	logx "mcwatch/pkg/logx"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		route string
		args  []string
		ok    bool
	}{
		{"/serverstatus mc.example.com", "serverstatus", []string{"mc.example.com"}, true},
		{"/motd@mcwatch_bot play.host.net 10", "motd", []string{"play.host.net", "10"}, true},
		{"/ChannelStatus", "channelstatus", nil, true},
		{"  /help  ", "help", nil, true},
		{"hello there", "", nil, false},
		{"/", "", nil, false},
		{"", "", nil, false},
	}
	for _, tc := range cases {
		route, args, ok := ParseCommand(tc.in)
		if ok != tc.ok || route != tc.route {
			t.Fatalf("ParseCommand(%q) = %q, %v, %v; want %q, %v", tc.in, route, args, ok, tc.route, tc.ok)
		}
		if tc.ok && len(tc.args) > 0 && !reflect.DeepEqual(args, tc.args) {
			t.Fatalf("ParseCommand(%q) args = %v; want %v", tc.in, args, tc.args)
		}
	}
}

type fakeAdapter struct {
	kit.Adapter
	sent []string
}

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: 1, MessageID: len(f.sent)}, nil
}

func update(text string, from int64) kit.Update {
	return kit.Update{Message: &kit.Message{ChatID: 1, FromID: from, Text: text}}
}

func TestDispatchRoutesToHandler(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	m := NewManager(logx.Nop(), fa, nil)

	got := make(chan []string, 1)
	m.Register(Command{Route: "ping", Handle: func(ctx context.Context, req *Request) error {
		got <- req.Args
		_, err := req.Reply(ctx, "pong")
		return err
	}})

	m.dispatch(context.Background(), update("/ping a b", 7))

	select {
	case args := <-got:
		if !reflect.DeepEqual(args, []string{"a", "b"}) {
			t.Fatalf("args = %v", args)
		}
	default:
		t.Fatal("handler not invoked")
	}
	if len(fa.sent) != 1 || fa.sent[0] != "pong" {
		t.Fatalf("sent = %v", fa.sent)
	}
}

func TestDispatchOwnerOnly(t *testing.T) {
	t.Parallel()

	m := NewManager(logx.Nop(), &fakeAdapter{}, []int64{42})

	calls := 0
	m.Register(Command{Route: "admin", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error {
		calls++
		return nil
	}})

	m.dispatch(context.Background(), update("/admin", 7))
	if calls != 0 {
		t.Fatal("non-owner dispatched")
	}
	m.dispatch(context.Background(), update("/admin", 42))
	if calls != 1 {
		t.Fatalf("owner calls = %d", calls)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	t.Parallel()

	m := NewManager(logx.Nop(), &fakeAdapter{}, nil)
	m.Register(Command{Route: "boom", Handle: func(context.Context, *Request) error {
		panic("boom")
	}})

	// Must not propagate.
	m.dispatch(context.Background(), update("/boom", 1))
}

func TestDispatchLoopStopsOnContext(t *testing.T) {
	t.Parallel()

	m := NewManager(logx.Nop(), &fakeAdapter{}, nil)
	ch := make(chan kit.Update)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.DispatchLoop(ctx, ch) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
