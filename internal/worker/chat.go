package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/botherd/botherd/internal/protocol"
)

// Responder produces a reply for a prompt. Model inference lives behind this
// interface; this core never calls a model directly.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// ChatBot answers prompts forwarded by the manager as custom control
// messages with a {"prompt": ...} payload. Platform-side chat traffic goes
// through the gateway and is out of scope here.
type ChatBot struct {
	gateway   Gateway
	responder Responder
	token     string
	logger    *slog.Logger
}

func NewChatBot(gw Gateway, r Responder, token string, logger *slog.Logger) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatBot{gateway: gw, responder: r, token: token, logger: logger}
}

func (b *ChatBot) RegisterCommands() error { return nil }

func (b *ChatBot) OnReady(ctx context.Context) error {
	return b.gateway.Connect(ctx, b.token)
}

func (b *ChatBot) OnCommand(ctx context.Context, m protocol.Message) error {
	if m.Kind != protocol.KindCustom || len(m.Payload) == 0 {
		return nil
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(m.Payload, &req); err != nil || req.Prompt == "" {
		b.logger.Warn("ignoring custom message without prompt")
		return nil
	}
	reply, err := b.responder.Respond(ctx, req.Prompt)
	if err != nil {
		return err
	}
	b.logger.Info("prompt answered", "prompt", req.Prompt, "reply", reply)
	return nil
}

func (b *ChatBot) Shutdown(context.Context) error {
	return b.gateway.Close()
}
