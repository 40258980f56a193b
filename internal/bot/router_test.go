package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"taskbot/internal/command"
	"taskbot/internal/commands"
	"taskbot/internal/transport"
	"taskbot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	sends   []transport.Payload
	answers []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) Send(ctx context.Context, to transport.Target, p transport.Payload) error {
	f.mu.Lock()
	f.sends = append(f.sends, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) waitSends(t *testing.T, n int) []transport.Payload {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.sends) >= n {
			out := append([]transport.Payload(nil), f.sends...)
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends", n)
	return nil
}

func (f *fakeAdapter) waitAnswers(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.answers) >= n {
			out := append([]string(nil), f.answers...)
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d callback answers", n)
	return nil
}

type routerEnv struct {
	adapter *fakeAdapter
	updates chan transport.Update
}

func startRouter(t *testing.T, cfg Config, reg *command.Registry, deps commands.Deps) *routerEnv {
	t.Helper()
	ad := &fakeAdapter{}
	r := NewRouter(cfg, reg, deps, ad, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("router did not stop")
		}
	})
	return &routerEnv{adapter: ad, updates: updates}
}

func msgUpdate(from, channel, text string) transport.Update {
	return transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID:        "m1",
			ChannelID: channel,
			FromID:    from,
			Text:      text,
		},
	}
}

func TestRouterRunsCommandAndReplies(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "ping", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		return &command.Result{Content: "Pong!"}, nil
	}})
	env := startRouter(t, Config{}, reg, commands.Deps{Log: logx.Nop()})

	env.updates <- msgUpdate("u1", "c1", "/ping")
	sends := env.adapter.waitSends(t, 1)
	if sends[0].Text != "Pong!" {
		t.Fatalf("reply = %q", sends[0].Text)
	}
}

func TestRouterUnknownCommandSuggestsHelp(t *testing.T) {
	t.Parallel()
	env := startRouter(t, Config{}, command.NewRegistry(), commands.Deps{Log: logx.Nop()})

	env.updates <- msgUpdate("u1", "c1", "/bogus")
	sends := env.adapter.waitSends(t, 1)
	if !strings.Contains(sends[0].Text, "/help") {
		t.Fatalf("reply = %q", sends[0].Text)
	}
}

func TestRouterIgnoresPlainText(t *testing.T) {
	t.Parallel()
	env := startRouter(t, Config{}, command.NewRegistry(), commands.Deps{Log: logx.Nop()})

	env.updates <- msgUpdate("u1", "c1", "just chatting")
	time.Sleep(150 * time.Millisecond)
	env.adapter.mu.Lock()
	n := len(env.adapter.sends)
	env.adapter.mu.Unlock()
	if n != 0 {
		t.Fatalf("plain text produced %d replies", n)
	}
}

func TestRouterOwnerGateOnScheduleCommand(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	invoked := false
	reg.MustRegister(command.Spec{Name: "schedule", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		invoked = true
		return &command.Result{Content: "ok"}, nil
	}})
	env := startRouter(t, Config{OwnerUserIDs: []string{"owner"}}, reg, commands.Deps{Log: logx.Nop()})

	env.updates <- msgUpdate("intruder", "c1", "/schedule list")
	sends := env.adapter.waitSends(t, 1)
	if !strings.Contains(sends[0].Text, "owner") {
		t.Fatalf("reply = %q", sends[0].Text)
	}
	if invoked {
		t.Fatal("owner-only command ran for non-owner")
	}

	env.updates <- msgUpdate("owner", "c1", "/schedule list")
	sends = env.adapter.waitSends(t, 2)
	if sends[1].Text != "ok" {
		t.Fatalf("owner reply = %q", sends[1].Text)
	}
}

func TestRouterHelpListsCommands(t *testing.T) {
	t.Parallel()
	reg := command.NewRegistry()
	reg.MustRegister(command.Spec{Name: "ping", Description: "Liveness check", Run: func(ctx context.Context, p command.Params) (*command.Result, error) {
		return &command.Result{Content: "Pong!"}, nil
	}})
	env := startRouter(t, Config{}, reg, commands.Deps{Log: logx.Nop()})

	env.updates <- msgUpdate("u1", "c1", "/help")
	sends := env.adapter.waitSends(t, 1)
	if !strings.Contains(sends[0].Text, "/ping") || !strings.Contains(sends[0].Text, "Liveness check") {
		t.Fatalf("help = %q", sends[0].Text)
	}
}

func TestRouterCallbackOwnerGate(t *testing.T) {
	t.Parallel()
	env := startRouter(t, Config{OwnerUserIDs: []string{"owner"}}, command.NewRegistry(), commands.Deps{Log: logx.Nop()})

	env.updates <- transport.Update{
		Kind: transport.UpdateCallback,
		Callback: &transport.Callback{
			ID:        "cb1",
			ChannelID: "c1",
			FromID:    "intruder",
			Data:      "sched_rm:some-id",
		},
	}
	answers := env.adapter.waitAnswers(t, 1)
	if answers[0] != "forbidden" {
		t.Fatalf("answer = %q", answers[0])
	}
}
