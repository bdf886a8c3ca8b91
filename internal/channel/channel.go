// Package channel wraps a single control connection with framed sends,
// transport-level acknowledgments, and a queued receive path. Both the
// manager and the workers speak through it; neither side ever reads the
// socket directly.
package channel

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/botherd/botherd/internal/protocol"
)

const (
	// DefaultAckTimeout bounds how long Send waits for the peer's ack.
	DefaultAckTimeout = 5 * time.Second
	// DefaultQueueSize bounds the inbound message queue.
	DefaultQueueSize = 64
)

// ErrAckTimeout is returned by Send when the peer does not acknowledge a
// frame within the configured deadline. Not fatal to the channel.
var ErrAckTimeout = errors.New("channel: ack timeout")

// ErrClosed is returned by Send after the channel has been closed. Any Send
// blocked in an ack wait is unblocked with it.
var ErrClosed = errors.New("channel: closed")

// Options tunes a Channel. Zero values fall back to defaults.
type Options struct {
	AckTimeout time.Duration
	QueueSize  int
	Logger     *slog.Logger
}

// Channel is a duplex control connection. A background reader decodes frames
// into the receive queue and echoes an ack for every non-ack message;
// consumers drain Recv rather than the socket.
type Channel struct {
	conn       net.Conn
	logger     *slog.Logger
	recv       chan protocol.Message
	ackCh      chan struct{}
	ackTimeout time.Duration

	sendMu  sync.Mutex // serializes send-and-confirm sequences
	writeMu sync.Mutex // guards raw writes (sender vs. reader's auto-ack)

	closeOnce sync.Once
	closed    chan struct{}

	errMu   sync.Mutex
	readErr error
}

// New wraps conn and starts its reader. The caller owns closing the channel.
func New(conn net.Conn, opts Options) *Channel {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Channel{
		conn:       conn,
		logger:     opts.Logger,
		recv:       make(chan protocol.Message, opts.QueueSize),
		ackCh:      make(chan struct{}, 1),
		ackTimeout: opts.AckTimeout,
		closed:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send frames and writes m. For ack-expecting kinds it blocks until the
// peer's ack arrives, the ack timeout expires (ErrAckTimeout), or the
// channel closes (ErrClosed). Sends are serialized; concurrent callers
// queue behind each other, never interleave frames.
func (c *Channel) Send(m protocol.Message) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	// Discard an ack left over from a previous timed-out send so it cannot
	// satisfy this one.
	select {
	case <-c.ackCh:
	default:
	}

	if err := c.write(m); err != nil {
		return err
	}
	if !m.NeedsAck() {
		return nil
	}
	t := time.NewTimer(c.ackTimeout)
	defer t.Stop()
	select {
	case <-c.ackCh:
		return nil
	case <-t.C:
		return ErrAckTimeout
	case <-c.closed:
		return ErrClosed
	}
}

// Recv exposes the inbound queue. It is closed when the reader exits, after
// which Err reports the cause (nil on clean peer close).
func (c *Channel) Recv() <-chan protocol.Message { return c.recv }

// Err returns the reader's terminal error, if any. Valid once Recv is closed.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// RemoteAddr reports the peer address for logging.
func (c *Channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close releases the socket and unblocks any Send stuck in an ack wait.
// Safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) write(m protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteFrame(c.conn, m)
}

func (c *Channel) readLoop() {
	defer close(c.recv)
	for {
		m, err := protocol.ReadFrame(c.conn)
		if err != nil {
			c.finish(err)
			return
		}
		if m.Kind == protocol.KindAck {
			select {
			case c.ackCh <- struct{}{}:
			default:
				// Unsolicited ack; nobody is waiting.
			}
			continue
		}
		// Transport-level receipt, sent regardless of when (or whether) the
		// consumer processes the message.
		if err := c.write(protocol.Ack()); err != nil {
			c.finish(err)
			return
		}
		select {
		case c.recv <- m:
		case <-c.closed:
			c.finish(ErrClosed)
			return
		}
	}
}

func (c *Channel) finish(err error) {
	if err == io.EOF || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed) {
		err = nil
	}
	c.errMu.Lock()
	c.readErr = err
	c.errMu.Unlock()
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			c.logger.Warn("protocol error on channel", "remote", c.conn.RemoteAddr(), "error", err)
		}
	}
	_ = c.Close()
}
