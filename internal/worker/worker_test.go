package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/botherd/botherd/internal/botclient"
	"github.com/botherd/botherd/internal/control"
	"github.com/botherd/botherd/internal/protocol"
)

type fakeBot struct {
	mu         sync.Mutex
	registered bool
	ready      bool
	shutdowns  int
	commands   []protocol.Message
}

func (b *fakeBot) RegisterCommands() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = true
	return nil
}

func (b *fakeBot) OnReady(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = true
	return nil
}

func (b *fakeBot) OnCommand(_ context.Context, m protocol.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, m)
	return nil
}

func (b *fakeBot) Shutdown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdowns++
	return nil
}

func startServer(t *testing.T) *control.Server {
	t.Helper()
	srv := control.NewServer(control.Config{Addr: "127.0.0.1:0"})
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func waitConnected(t *testing.T, srv *control.Server, botID string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Registry().Connected(botID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("worker %s never registered", botID)
}

func TestRunnerStopsOnStopCommand(t *testing.T) {
	srv := startServer(t)

	bot := &fakeBot{}
	client := botclient.New(botclient.Config{
		BotID:       "w1",
		ManagerAddr: srv.Addr().String(),
	})
	r := NewRunner(RunnerConfig{
		BotID:        "w1",
		Bot:          bot,
		Client:       client,
		TickInterval: 20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	waitConnected(t, srv, "w1")
	if err := srv.SendTo("w1", protocol.Stop("w1")); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop on stop command")
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if !bot.registered || !bot.ready {
		t.Fatalf("lifecycle hooks skipped: registered=%v ready=%v", bot.registered, bot.ready)
	}
	if bot.shutdowns != 1 {
		t.Fatalf("expected exactly one shutdown, got %d", bot.shutdowns)
	}
}

func TestRunnerDispatchesCustomCommands(t *testing.T) {
	srv := startServer(t)

	bot := &fakeBot{}
	client := botclient.New(botclient.Config{
		BotID:       "w2",
		ManagerAddr: srv.Addr().String(),
	})
	r := NewRunner(RunnerConfig{
		BotID:        "w2",
		Bot:          bot,
		Client:       client,
		TickInterval: 20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	waitConnected(t, srv, "w2")
	if err := srv.SendTo("w2", protocol.Custom("w2", []byte(`{"n":1}`))); err != nil {
		t.Fatalf("SendTo custom: %v", err)
	}
	if err := srv.SendTo("w2", protocol.Custom("w2", []byte(`{"n":2}`))); err != nil {
		t.Fatalf("SendTo custom: %v", err)
	}
	if err := srv.SendTo("w2", protocol.Stop("w2")); err != nil {
		t.Fatalf("SendTo stop: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop")
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.commands) != 2 {
		t.Fatalf("expected 2 custom commands before stop, got %d", len(bot.commands))
	}
	if string(bot.commands[0].Payload) != `{"n":1}` || string(bot.commands[1].Payload) != `{"n":2}` {
		t.Fatalf("commands out of order: %s, %s", bot.commands[0].Payload, bot.commands[1].Payload)
	}
}

type staticResponder struct{}

func (staticResponder) Respond(_ context.Context, prompt string) (string, error) {
	return "re: " + prompt, nil
}

func TestChatBotHandlesPrompt(t *testing.T) {
	b := NewChatBot(NewLogGateway(nil), staticResponder{}, "tok", nil)
	if err := b.OnReady(context.Background()); err != nil {
		t.Fatalf("OnReady: %v", err)
	}
	m := protocol.Custom("w1", []byte(`{"prompt":"hi"}`))
	if err := b.OnCommand(context.Background(), m); err != nil {
		t.Fatalf("OnCommand: %v", err)
	}
	// Malformed payloads are ignored, not fatal.
	if err := b.OnCommand(context.Background(), protocol.Custom("w1", []byte(`{`))); err != nil {
		t.Fatalf("malformed payload should be ignored: %v", err)
	}
	if err := b.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestResolveToken(t *testing.T) {
	t.Setenv("BOTHERD_TEST_TOKEN", "secret")
	tok, err := ResolveToken("BOTHERD_TEST_TOKEN")
	if err != nil || tok != "secret" {
		t.Fatalf("ResolveToken: %q, %v", tok, err)
	}
	if _, err := ResolveToken("BOTHERD_TEST_TOKEN_MISSING"); err == nil {
		t.Fatal("expected error for unset variable")
	}
	if _, err := ResolveToken(""); err == nil {
		t.Fatal("expected error for empty variable name")
	}
}
