// Package control implements the manager side of the control plane: a TCP
// listener accepting worker connections, the identity registry, and the API
// for sending commands to a named worker.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/botherd/botherd/internal/channel"
	"github.com/botherd/botherd/internal/metrics"
	"github.com/botherd/botherd/internal/protocol"
)

// DefaultRegisterTimeout bounds how long a handler waits for the initial
// connected message before dropping the connection.
const DefaultRegisterTimeout = 10 * time.Second

// Config tunes the control server.
type Config struct {
	Addr            string // host:port to listen on
	AckTimeout      time.Duration
	RegisterTimeout time.Duration
	Logger          *slog.Logger
}

// Server accepts inbound worker connections and maintains the registry.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry

	ln net.Listener
	wg sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	channels map[*channel.Channel]struct{} // all live channels, registered or not

	// onEvent, when set, observes worker connect/disconnect transitions.
	onEvent func(botID string, connected bool)
	// onMessage, when set, receives post-registration messages from workers.
	onMessage func(botID string, m protocol.Message)
}

// NewServer builds a server. Listen must be called before Serve.
func NewServer(cfg Config) *Server {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = channel.DefaultAckTimeout
	}
	if cfg.RegisterTimeout <= 0 {
		cfg.RegisterTimeout = DefaultRegisterTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: NewRegistry(),
		closed:   make(chan struct{}),
		channels: make(map[*channel.Channel]struct{}),
	}
}

// OnEvent registers an observer for connect/disconnect transitions.
// Must be called before Serve.
func (s *Server) OnEvent(fn func(botID string, connected bool)) { s.onEvent = fn }

// OnMessage registers an observer for post-registration worker messages.
// Must be called before Serve.
func (s *Server) OnMessage(fn func(botID string, m protocol.Message)) { s.onMessage = fn }

// Listen binds the listening socket. A bind failure is fatal to the manager
// and is surfaced to the caller rather than retried.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr reports the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until Close. Each accepted connection gets its
// own handler goroutine.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Registry exposes the identity registry for status queries.
func (s *Server) Registry() *Registry { return s.registry }

// SendTo delivers m to the worker registered under botID, waiting for the
// transport ack. The registry lock is released before the blocking send.
func (s *Server) SendTo(botID string, m protocol.Message) error {
	ch, ok := s.registry.lookup(botID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, botID)
	}
	metrics.IncMessageSent(string(m.Kind))
	if err := ch.Send(m); err != nil {
		if errors.Is(err, channel.ErrAckTimeout) {
			metrics.IncAckTimeout()
		}
		return err
	}
	s.registry.touch(botID)
	return nil
}

// Close stops the accept loop, closes every live channel, and waits for all
// handlers to exit.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.ln != nil {
			err = s.ln.Close()
		}
		s.mu.Lock()
		for ch := range s.channels {
			_ = ch.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return err
}

func (s *Server) handle(conn net.Conn) {
	ch := channel.New(conn, channel.Options{AckTimeout: s.cfg.AckTimeout, Logger: s.logger})
	s.trackChannel(ch, true)
	defer s.trackChannel(ch, false)
	defer func() { _ = ch.Close() }()

	botID, ok := s.awaitRegistration(ch)
	if !ok {
		return
	}

	if err := s.registry.register(botID, ch); err != nil {
		metrics.IncRegistryConflict()
		s.logger.Error("duplicate registration rejected",
			"bot_id", botID, "remote", ch.RemoteAddr(), "error", err)
		return
	}
	metrics.SetConnectedWorkers(s.registry.Len())
	s.logger.Info("worker connected", "bot_id", botID, "remote", ch.RemoteAddr())
	if s.onEvent != nil {
		s.onEvent(botID, true)
	}

	defer func() {
		if s.registry.unregister(botID, ch) {
			metrics.SetConnectedWorkers(s.registry.Len())
			s.logger.Info("worker disconnected", "bot_id", botID, "error", ch.Err())
			if s.onEvent != nil {
				s.onEvent(botID, false)
			}
		}
	}()

	// Post-registration inbound traffic (status reports, custom messages).
	for m := range ch.Recv() {
		s.registry.touch(botID)
		if m.Kind == protocol.KindConnected {
			// Re-registration on a live channel is a no-op.
			continue
		}
		if s.onMessage != nil {
			s.onMessage(botID, m)
		}
	}
}

// awaitRegistration waits (bounded) for the initial connected frame.
func (s *Server) awaitRegistration(ch *channel.Channel) (string, bool) {
	t := time.NewTimer(s.cfg.RegisterTimeout)
	defer t.Stop()
	select {
	case m, ok := <-ch.Recv():
		if !ok {
			return "", false
		}
		if m.Kind != protocol.KindConnected {
			s.logger.Warn("first frame was not a registration; dropping connection",
				"remote", ch.RemoteAddr(), "kind", m.Kind)
			return "", false
		}
		return m.BotID, true
	case <-t.C:
		s.logger.Warn("registration timed out", "remote", ch.RemoteAddr())
		return "", false
	case <-s.closed:
		return "", false
	}
}

func (s *Server) trackChannel(ch *channel.Channel, add bool) {
	s.mu.Lock()
	if add {
		s.channels[ch] = struct{}{}
	} else {
		delete(s.channels, ch)
	}
	s.mu.Unlock()
}
