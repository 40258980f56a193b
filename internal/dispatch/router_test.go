package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"taskbot/internal/command"
	"taskbot/internal/schedule"
	"taskbot/internal/transport"
	"taskbot/pkg/logx"
)

type sinkSpy struct {
	mu    sync.Mutex
	sends []sentItem
	fail  error
}

type sentItem struct {
	to transport.Target
	p  transport.Payload
}

func (s *sinkSpy) Send(ctx context.Context, to transport.Target, p transport.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sends = append(s.sends, sentItem{to: to, p: p})
	return nil
}

func (s *sinkSpy) all() []sentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentItem(nil), s.sends...)
}

func newTestRouter(t *testing.T, reg *command.Registry) (*Router, *sinkSpy) {
	t.Helper()
	spy := &sinkSpy{}
	return NewRouter(reg, spy, logx.Nop(), nil), spy
}

func TestDispatchLiteralMessageSkipsRegistry(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	invoked := false
	reg.MustRegister(command.Spec{Name: "ping", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		invoked = true
		return &command.Result{Content: "pong"}, nil
	}})
	r, spy := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{
		ID:            "s1",
		Message:       "drink water",
		Command:       "/ping",
		TargetChannel: "c1",
	})

	sends := spy.all()
	if len(sends) != 1 {
		t.Fatalf("want 1 send, got %d", len(sends))
	}
	if sends[0].p.Text != "drink water" {
		t.Fatalf("payload = %q, want literal message", sends[0].p.Text)
	}
	if invoked {
		t.Fatal("registry was invoked despite literal message")
	}
}

func TestDispatchUnknownCommandProducesNoDelivery(t *testing.T) {
	t.Parallel()
	r, spy := newTestRouter(t, command.NewRegistry())

	r.Dispatch(context.Background(), schedule.Record{
		ID:            "s1",
		Command:       "/nosuch a b",
		TargetChannel: "c1",
	})

	if n := len(spy.all()); n != 0 {
		t.Fatalf("want 0 sends for unknown command, got %d", n)
	}
}

func TestDispatchPositionalArgMapping(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	var got command.Params
	reg.MustRegister(command.Spec{Name: "exercise", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		got = p
		return &command.Result{Content: "ok"}, nil
	}})
	r, _ := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{
		ID:         "s1",
		Command:    "/exercise log 25 week extra",
		TargetUser: "u1",
	})

	if got.Subcommand != "log" {
		t.Errorf("subcommand = %q, want log", got.Subcommand)
	}
	if !got.AmountOK || got.AmountValue != 25 || got.Amount != "25" {
		t.Errorf("amount = %q/%d/%v, want 25 parsed", got.Amount, got.AmountValue, got.AmountOK)
	}
	if got.Timeframe != "week" {
		t.Errorf("timeframe = %q, want week", got.Timeframe)
	}
	if len(got.Args) != 4 || got.Args[3] != "extra" {
		t.Errorf("args = %v, want all four passed through", got.Args)
	}
}

func TestDispatchNonNumericAmountStaysString(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	var got command.Params
	reg.MustRegister(command.Spec{Name: "exercise", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		got = p
		return &command.Result{Content: "ok"}, nil
	}})
	r, _ := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{
		ID:         "s1",
		Command:    "/exercise log many",
		TargetUser: "u1",
	})

	if got.AmountOK {
		t.Error("non-numeric amount reported as parsed")
	}
	if got.Amount != "many" {
		t.Errorf("amount = %q, want raw string kept", got.Amount)
	}
}

func TestDispatchCoreErrorSubstitutesFallback(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "broken", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		return nil, errors.New("boom")
	}})
	r, spy := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{ID: "s1", Command: "/broken", TargetChannel: "c1"})

	sends := spy.all()
	if len(sends) != 1 {
		t.Fatalf("want 1 send, got %d", len(sends))
	}
	if want := "Failed to run scheduled command: broken"; sends[0].p.Text != want {
		t.Fatalf("payload = %q, want %q", sends[0].p.Text, want)
	}
}

func TestDispatchCorePanicIsContained(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "panicky", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		panic("ouch")
	}})
	r, spy := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{ID: "s1", Command: "/panicky", TargetChannel: "c1"})

	sends := spy.all()
	if len(sends) != 1 {
		t.Fatalf("want 1 fallback send after panic, got %d", len(sends))
	}
	if want := "Failed to run scheduled command: panicky"; sends[0].p.Text != want {
		t.Fatalf("payload = %q, want %q", sends[0].p.Text, want)
	}
}

func TestDispatchUserTargetWinsOverChannel(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "ping", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		return &command.Result{Content: "pong"}, nil
	}})
	r, spy := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{
		ID:            "s1",
		Command:       "/ping",
		TargetUser:    "u1",
		TargetChannel: "c1",
	})

	sends := spy.all()
	if len(sends) != 1 {
		t.Fatalf("want 1 send, got %d", len(sends))
	}
	if sends[0].to.UserID != "u1" || sends[0].to.ChannelID != "" {
		t.Fatalf("target = %+v, want DM only", sends[0].to)
	}
}

func TestDispatchNoTargetAborts(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "ping", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		return &command.Result{Content: "pong"}, nil
	}})
	r, spy := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{ID: "s1", Command: "/ping"})

	if n := len(spy.all()); n != 0 {
		t.Fatalf("want 0 sends without a target, got %d", n)
	}
}

func TestDispatchEmptyContentGetsFallbackLine(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "quiet", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		return &command.Result{}, nil
	}})
	r, spy := newTestRouter(t, reg)

	r.Dispatch(context.Background(), schedule.Record{ID: "s1", Command: "/quiet", TargetChannel: "c1"})

	sends := spy.all()
	if len(sends) != 1 {
		t.Fatalf("want 1 send, got %d", len(sends))
	}
	if want := "Scheduled command ran: quiet"; sends[0].p.Text != want {
		t.Fatalf("payload = %q, want %q", sends[0].p.Text, want)
	}
}

func TestDispatchDeliveryErrorDoesNotPanic(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "ping", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		return &command.Result{Content: "pong"}, nil
	}})
	spy := &sinkSpy{fail: errors.New("dms closed")}
	r := NewRouter(reg, spy, logx.Nop(), nil)

	// No failover to channel, no panic.
	r.Dispatch(context.Background(), schedule.Record{
		ID:            "s1",
		Command:       "/ping",
		TargetUser:    "u1",
		TargetChannel: "c1",
	})

	if n := len(spy.all()); n != 0 {
		t.Fatalf("want 0 successful sends, got %d", n)
	}
}

func TestSplitCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in       string
		name     string
		argCount int
	}{
		{"/exercise log 20", "exercise", 2},
		{"ping", "ping", 0},
		{"  /Today  ", "today", 0},
		{"", "", 0},
	}
	for _, tc := range cases {
		name, args := SplitCommandLine(tc.in)
		if name != tc.name || len(args) != tc.argCount {
			t.Errorf("SplitCommandLine(%q) = %q/%d, want %q/%d", tc.in, name, len(args), tc.name, tc.argCount)
		}
	}
}
