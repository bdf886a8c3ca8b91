package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/botherd/botherd/internal/botclient"
	"github.com/botherd/botherd/internal/config"
	"github.com/botherd/botherd/internal/worker"
)

func runWorker(f *WorkerFlags) error {
	addr := f.Addr
	if addr == "" {
		addr = net.JoinHostPort(config.DefaultHost, strconv.Itoa(config.DefaultPort))
	}
	logger := slog.Default().With("bot_id", f.ID)

	token := ""
	if f.TokenEnv != "" {
		t, err := worker.ResolveToken(f.TokenEnv)
		if err != nil {
			logger.Warn("token not resolved", "env_var", f.TokenEnv, "err", err)
		} else {
			token = t
		}
	}

	cli := botclient.New(botclient.Config{
		BotID:       f.ID,
		ManagerAddr: addr,
		Logger:      logger,
	})
	gw := worker.NewLogGateway(logger)

	var bot worker.Bot
	switch f.Type {
	case "chat":
		bot = worker.NewChatBot(gw, promptEcho{}, token, logger)
	case "echo", "":
		bot = worker.NewEchoBot(gw, token, logger)
	default:
		return fmt.Errorf("unknown worker type %q", f.Type)
	}

	r := worker.NewRunner(worker.RunnerConfig{
		BotID:  f.ID,
		Bot:    bot,
		Client: cli,
		Logger: logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return r.Run(ctx)
}

// promptEcho answers prompts with the prompt itself. Real response
// generation lives behind the Responder interface and is provided by the
// embedding application.
type promptEcho struct{}

func (promptEcho) Respond(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}
