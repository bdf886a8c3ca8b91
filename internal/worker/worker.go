// Package worker defines the capability surface a bot implements and the
// run loop that composes a bot with its control client. Command handling is
// synchronized with the bot's own single-threaded loop: the queue is drained
// once per iteration, never interleaved with business logic.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/botherd/botherd/internal/botclient"
	"github.com/botherd/botherd/internal/protocol"
)

// Gateway is the messaging-platform client a bot talks through. Only the
// surface this core needs is declared here; implementations live outside.
type Gateway interface {
	// Connect authenticates with the platform using the resolved token.
	Connect(ctx context.Context, token string) error
	// Close tears the platform session down.
	Close() error
}

// Bot is the per-worker-type capability interface. It replaces the legacy
// deep base-class hierarchy: implementations are composed into a Runner,
// not inherited from.
type Bot interface {
	// RegisterCommands wires the bot's user-facing commands into its gateway.
	RegisterCommands() error
	// OnReady runs once after the gateway session is up.
	OnReady(ctx context.Context) error
	// OnCommand handles one control message from the manager. Stop is
	// handled by the Runner before OnCommand sees anything.
	OnCommand(ctx context.Context, m protocol.Message) error
	// Shutdown releases the bot's own resources.
	Shutdown(ctx context.Context) error
}

// DefaultTickInterval paces the run loop when the bot has no work.
const DefaultTickInterval = 500 * time.Millisecond

// Runner drives one bot: control client in the background, single-threaded
// run loop in the foreground.
type Runner struct {
	botID  string
	bot    Bot
	client *botclient.Client
	logger *slog.Logger
	tick   time.Duration
}

// RunnerConfig assembles a Runner.
type RunnerConfig struct {
	BotID        string
	Bot          Bot
	Client       *botclient.Client
	Logger       *slog.Logger
	TickInterval time.Duration
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Runner{
		botID:  cfg.BotID,
		bot:    cfg.Bot,
		client: cfg.Client,
		logger: cfg.Logger.With("bot_id", cfg.BotID),
		tick:   cfg.TickInterval,
	}
}

// Run blocks until a stop command arrives, the bot fails, or ctx is
// cancelled. The control client reconnects on its own; the run loop keeps
// going while the manager is unreachable.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.bot.RegisterCommands(); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		r.client.Run(cctx)
	}()

	if err := r.bot.OnReady(cctx); err != nil {
		cancel()
		<-clientDone
		return fmt.Errorf("on ready: %w", err)
	}
	r.logger.Info("worker running")

	err := r.loop(cctx)

	// Unblock the control client and wait for it before shutting the bot
	// down, so no command handler races the teardown.
	cancel()
	<-clientDone

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if serr := r.bot.Shutdown(sctx); serr != nil {
		r.logger.Error("bot shutdown failed", "error", serr)
		if err == nil {
			err = serr
		}
	}
	r.logger.Info("worker stopped")
	return err
}

func (r *Runner) loop(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		// Drain everything queued since the last iteration, then yield.
		for {
			select {
			case m, ok := <-r.client.Commands():
				if !ok {
					return nil
				}
				if m.Kind == protocol.KindStop {
					r.logger.Info("stop command received")
					return nil
				}
				if err := r.bot.OnCommand(ctx, m); err != nil {
					r.logger.Error("command failed", "kind", m.Kind, "error", err)
				}
				continue
			default:
			}
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
