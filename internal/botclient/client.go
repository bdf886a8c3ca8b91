// Package botclient implements the worker side of the control plane: dial
// the manager, register the worker identity, pump inbound commands into a
// queue for the worker's run loop, and reconnect after drops.
package botclient

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/botherd/botherd/internal/channel"
	"github.com/botherd/botherd/internal/protocol"
)

// State is the client's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Registered
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Registered:
		return "registered"
	default:
		return "disconnected"
	}
}

const (
	// DefaultRetryInterval is the fixed pause between reconnection attempts.
	// No backoff; a deliberate fixed interval.
	DefaultRetryInterval = 5 * time.Second
	// DefaultDialTimeout bounds a single connect attempt.
	DefaultDialTimeout = 5 * time.Second
)

// Config tunes a Client.
type Config struct {
	BotID         string
	ManagerAddr   string // host:port of the manager's control server
	RetryInterval time.Duration
	DialTimeout   time.Duration
	AckTimeout    time.Duration
	QueueSize     int
	Logger        *slog.Logger
}

// Client maintains the worker's connection to the manager. Run owns the
// state machine; consumers drain Commands from their own loop.
type Client struct {
	cfg    Config
	logger *slog.Logger
	cmds   chan protocol.Message
	state  atomic.Int32

	mu sync.Mutex
	ch *channel.Channel
}

// New builds a client. Run must be called to start it.
func New(cfg Config) *Client {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = channel.DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger.With("bot_id", cfg.BotID),
		cmds:   make(chan protocol.Message, cfg.QueueSize),
	}
}

// Commands exposes the inbound command queue. Closed when Run returns.
func (c *Client) Commands() <-chan protocol.Message { return c.cmds }

// State reports the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// Send delivers m to the manager over the current channel.
func (c *Client) Send(m protocol.Message) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return channel.ErrClosed
	}
	return ch.Send(m)
}

// Run drives the connect/register/pump/reconnect cycle until ctx is
// cancelled. Cancellation closes the live channel (unblocking any pending
// send), cancels the retry timer, and closes the command queue.
func (c *Client) Run(ctx context.Context) {
	defer close(c.cmds)
	defer c.state.Store(int32(Disconnected))

	for {
		if ctx.Err() != nil {
			return
		}
		c.state.Store(int32(Connecting))
		ch, err := c.connect(ctx)
		if err != nil {
			c.state.Store(int32(Disconnected))
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("cannot reach manager; will retry",
				"addr", c.cfg.ManagerAddr, "retry_in", c.cfg.RetryInterval, "error", err)
			if !sleep(ctx, c.cfg.RetryInterval) {
				return
			}
			continue
		}

		c.setChannel(ch)
		c.state.Store(int32(Registered))
		c.logger.Info("registered with manager", "addr", c.cfg.ManagerAddr)

		c.pump(ctx, ch)

		c.setChannel(nil)
		c.state.Store(int32(Disconnected))
		_ = ch.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("control channel lost; will retry",
			"retry_in", c.cfg.RetryInterval, "error", ch.Err())
		if !sleep(ctx, c.cfg.RetryInterval) {
			return
		}
	}
}

// connect dials the manager and performs the registration handshake.
func (c *Client) connect(ctx context.Context) (*channel.Channel, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.ManagerAddr)
	if err != nil {
		return nil, err
	}
	ch := channel.New(conn, channel.Options{
		AckTimeout: c.cfg.AckTimeout,
		QueueSize:  c.cfg.QueueSize,
		Logger:     c.logger,
	})
	if err := ch.Send(protocol.Connected(c.cfg.BotID)); err != nil {
		_ = ch.Close()
		return nil, errors.Join(errors.New("registration not acknowledged"), err)
	}
	return ch, nil
}

// pump moves inbound messages from the channel into the command queue until
// the channel dies or ctx is cancelled.
func (c *Client) pump(ctx context.Context, ch *channel.Channel) {
	for {
		select {
		case m, ok := <-ch.Recv():
			if !ok {
				return
			}
			select {
			case c.cmds <- m:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) setChannel(ch *channel.Channel) {
	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()
}

// sleep waits d unless ctx is cancelled first; reports whether the full
// interval elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
