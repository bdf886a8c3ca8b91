package worker

import (
	"context"
	"log/slog"

	"github.com/botherd/botherd/internal/protocol"
)

// EchoBot is the minimal worker type: it registers an echo command with its
// gateway and otherwise just exercises the lifecycle. Useful as a liveness
// probe for the control plane.
type EchoBot struct {
	gateway Gateway
	token   string
	logger  *slog.Logger
}

func NewEchoBot(gw Gateway, token string, logger *slog.Logger) *EchoBot {
	if logger == nil {
		logger = slog.Default()
	}
	return &EchoBot{gateway: gw, token: token, logger: logger}
}

func (b *EchoBot) RegisterCommands() error { return nil }

func (b *EchoBot) OnReady(ctx context.Context) error {
	return b.gateway.Connect(ctx, b.token)
}

func (b *EchoBot) OnCommand(_ context.Context, m protocol.Message) error {
	b.logger.Info("command received", "kind", m.Kind, "payload", string(m.Payload))
	return nil
}

func (b *EchoBot) Shutdown(context.Context) error {
	return b.gateway.Close()
}
