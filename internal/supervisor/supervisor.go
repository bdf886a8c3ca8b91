//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/botherd/botherd/internal/channel"
	"github.com/botherd/botherd/internal/control"
	"github.com/botherd/botherd/internal/detector"
	"github.com/botherd/botherd/internal/env"
	"github.com/botherd/botherd/internal/history"
	"github.com/botherd/botherd/internal/metrics"
	"github.com/botherd/botherd/internal/process"
	"github.com/botherd/botherd/internal/protocol"
	"github.com/botherd/botherd/internal/store"
)

// ErrAlreadyRunning is returned by Start when a live duplicate exists.
var ErrAlreadyRunning = errors.New("supervisor: bot already running")

// ErrUnknownBot is returned for bot ids with no configured spec.
var ErrUnknownBot = errors.New("supervisor: unknown bot")

// ErrStopTimeout is returned when a bot survives even the forced kill.
var ErrStopTimeout = errors.New("supervisor: process did not exit")

// DefaultStopWait bounds how long Stop waits for a graceful exit before
// escalating to a forced kill.
const DefaultStopWait = 5 * time.Second

const pollInterval = 50 * time.Millisecond

// Status is the operator-facing view of one bot.
type Status struct {
	BotID     string    `json:"bot_id"`
	Running   bool      `json:"running"`
	Connected bool      `json:"connected"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Supervisor starts, stops, and monitors bot worker processes. Graceful stop
// goes through the control server; the process table is persisted so a
// restarted manager can refuse duplicate starts and still kill old workers.
type Supervisor struct {
	mu    sync.Mutex
	specs map[string]process.Spec
	procs map[string]*process.Process
	st    store.Store
	sinks []history.Sink
	envM  *env.Env

	ctrl   *control.Server
	logger *slog.Logger
}

func New(ctrl *control.Server, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		specs:  make(map[string]process.Spec),
		procs:  make(map[string]*process.Process),
		envM:   env.New(),
		ctrl:   ctrl,
		logger: logger,
	}
}

// SetStore configures the persisted process table and ensures its schema.
func (s *Supervisor) SetStore(st store.Store) error {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.EnsureSchema(context.Background())
}

// SetHistorySinks configures lifecycle event sinks. Passing none clears them.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// SetGlobalEnv sets KEY=VALUE pairs applied to every bot's environment.
func (s *Supervisor) SetGlobalEnv(kvs []string) {
	s.mu.Lock()
	s.envM.SetAll(kvs)
	s.mu.Unlock()
}

// Register adds or replaces a bot spec. Replacing the spec does not affect an
// already running process.
func (s *Supervisor) Register(spec process.Spec) {
	s.mu.Lock()
	s.specs[spec.BotID] = spec
	s.mu.Unlock()
}

// IDs returns all configured bot ids.
func (s *Supervisor) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.specs))
	for id := range s.specs {
		out = append(out, id)
	}
	return out
}

// Start launches the configured bot process. It returns without waiting for
// the worker to register on the control plane; that happens asynchronously.
// A live duplicate, found either in this manager's memory or through the
// persisted record of a previous manager run, yields ErrAlreadyRunning.
func (s *Supervisor) Start(ctx context.Context, botID string) error {
	s.mu.Lock()
	spec, ok := s.specs[botID]
	prev := s.procs[botID]
	st := s.st
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBot, botID)
	}
	if prev != nil && prev.DetectAlive() {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, botID)
	}
	if st != nil {
		if rec, err := st.Get(ctx, botID); err == nil {
			det := detector.CmdlineDetector{PID: rec.PID, Command: rec.Command}
			if alive, _ := det.Alive(); alive {
				return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, botID, rec.PID)
			}
			// stale record from a dead process, overwritten below
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("read process record for %s: %w", botID, err)
		}
	}

	p := process.New(spec)
	cmd := p.ConfigureCmd(s.mergedEnvFor(spec))
	if err := p.TryStart(cmd); err != nil {
		return fmt.Errorf("start %s: %w", botID, err)
	}
	snap := p.Snapshot()
	if st != nil {
		rec := store.Record{BotID: botID, PID: snap.PID, Command: spec.Command, StartedAt: snap.StartedAt}
		if err := st.Put(ctx, rec); err != nil {
			s.logger.Error("persist process record", "bot_id", botID, "err", err)
		}
	}
	s.mu.Lock()
	s.procs[botID] = p
	s.mu.Unlock()
	metrics.IncBotStart(botID)
	metrics.SetRunningBots(s.runningCount())
	s.emit(ctx, history.EventStart, botID, snap.PID, "")
	s.logger.Info("bot started", "bot_id", botID, "pid", snap.PID)
	return nil
}

// Stop gracefully stops a bot: a stop command over the control plane when the
// worker is connected, then bounded polling for process exit, then a forced
// kill. The process record is removed only after the exit is confirmed.
// Stopping a bot that is not running is a no-op.
func (s *Supervisor) Stop(ctx context.Context, botID string, wait time.Duration) error {
	if wait <= 0 {
		wait = DefaultStopWait
	}
	s.mu.Lock()
	_, known := s.specs[botID]
	p := s.procs[botID]
	st := s.st
	s.mu.Unlock()

	pid, alive := s.liveness(ctx, botID, p, st)
	if !known && pid == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownBot, botID)
	}
	if !alive {
		s.forget(ctx, botID, st)
		return nil
	}

	if s.ctrl != nil {
		err := s.ctrl.SendTo(botID, protocol.Stop(botID))
		switch {
		case err == nil:
		case errors.Is(err, control.ErrNotConnected), errors.Is(err, channel.ErrAckTimeout):
			s.logger.Warn("graceful stop not delivered", "bot_id", botID, "err", err)
		default:
			s.logger.Warn("stop command failed", "bot_id", botID, "err", err)
		}
	}
	if p != nil {
		p.SetStopRequested(true)
	}

	deadline := time.Now().Add(wait)
	if s.pollExit(ctx, botID, p, pid, deadline) {
		s.forget(ctx, botID, st)
		metrics.IncBotStop(botID)
		metrics.SetRunningBots(s.runningCount())
		s.emit(ctx, history.EventStop, botID, pid, "")
		s.logger.Info("bot stopped", "bot_id", botID, "pid", pid)
		return nil
	}

	// deadline expired, force kill the process group
	s.logger.Warn("stop deadline expired, killing", "bot_id", botID, "pid", pid)
	s.kill(p, pid)
	if s.pollExit(ctx, botID, p, pid, time.Now().Add(2*time.Second)) {
		s.forget(ctx, botID, st)
		metrics.IncBotKill(botID)
		metrics.SetRunningBots(s.runningCount())
		s.emit(ctx, history.EventKill, botID, pid, "stop timeout")
		return nil
	}
	return fmt.Errorf("%w: %s (pid %d)", ErrStopTimeout, botID, pid)
}

// Status reports whether the bot's process is alive and whether it has a live
// control-plane registration.
func (s *Supervisor) Status(ctx context.Context, botID string) (Status, error) {
	s.mu.Lock()
	_, known := s.specs[botID]
	p := s.procs[botID]
	st := s.st
	s.mu.Unlock()
	if !known {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownBot, botID)
	}
	out := Status{BotID: botID}
	if p != nil {
		snap := p.Snapshot()
		out.PID = snap.PID
		out.StartedAt = snap.StartedAt
		out.Running = p.DetectAlive()
	}
	if !out.Running && st != nil {
		if rec, err := st.Get(ctx, botID); err == nil {
			det := detector.CmdlineDetector{PID: rec.PID, Command: rec.Command}
			if alive, _ := det.Alive(); alive {
				out.Running = true
				out.PID = rec.PID
				out.StartedAt = rec.StartedAt
			}
		}
	}
	if s.ctrl != nil {
		out.Connected = s.ctrl.Registry().Connected(botID)
	}
	return out, nil
}

// StatusAll reports every configured bot, sorted by the caller if needed.
func (s *Supervisor) StatusAll(ctx context.Context) []Status {
	out := make([]Status, 0)
	for _, id := range s.IDs() {
		st, err := s.Status(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

// ShutdownAll stops every configured bot. Used at manager exit when
// stop_bots_on_shutdown is set.
func (s *Supervisor) ShutdownAll(ctx context.Context, wait time.Duration) error {
	var errs []error
	for _, id := range s.IDs() {
		if err := s.Stop(ctx, id, wait); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// liveness resolves the bot's pid and whether it is currently alive, checking
// the in-memory process first and falling back to the persisted record.
func (s *Supervisor) liveness(ctx context.Context, botID string, p *process.Process, st store.Store) (int, bool) {
	if p != nil {
		snap := p.Snapshot()
		if p.DetectAlive() {
			return snap.PID, true
		}
		return snap.PID, false
	}
	if st != nil {
		if rec, err := st.Get(ctx, botID); err == nil {
			det := detector.CmdlineDetector{PID: rec.PID, Command: rec.Command}
			alive, _ := det.Alive()
			return rec.PID, alive
		}
	}
	return 0, false
}

// pollExit waits for the process to die, using the reaper channel for owned
// processes and pid probing for recovered ones.
func (s *Supervisor) pollExit(ctx context.Context, botID string, p *process.Process, pid int, deadline time.Time) bool {
	for {
		if p != nil {
			select {
			case <-p.WaitDone():
				return true
			case <-ctx.Done():
				return !p.DetectAlive()
			case <-time.After(pollInterval):
			}
			if !p.DetectAlive() {
				return true
			}
		} else {
			det := detector.PIDDetector{PID: pid}
			if alive, _ := det.Alive(); !alive {
				return true
			}
			select {
			case <-ctx.Done():
				return false
			case <-time.After(pollInterval):
			}
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

func (s *Supervisor) kill(p *process.Process, pid int) {
	if p != nil {
		_ = p.Kill()
		return
	}
	if pid > 0 {
		// group first, then the pid itself in case it was never a leader
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// forget drops the in-memory handle and deletes the persisted record.
func (s *Supervisor) forget(ctx context.Context, botID string, st store.Store) {
	s.mu.Lock()
	delete(s.procs, botID)
	s.mu.Unlock()
	if st != nil {
		if err := st.Delete(ctx, botID); err != nil {
			s.logger.Error("delete process record", "bot_id", botID, "err", err)
		}
	}
}

func (s *Supervisor) runningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.procs {
		if p.DetectAlive() {
			n++
		}
	}
	return n
}

func (s *Supervisor) mergedEnvFor(spec process.Spec) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envM.Merge(spec.Env)
}

func (s *Supervisor) emit(ctx context.Context, t history.EventType, botID string, pid int, detail string) {
	s.mu.Lock()
	sinks := append([]history.Sink(nil), s.sinks...)
	s.mu.Unlock()
	if len(sinks) == 0 {
		return
	}
	history.Fanout(ctx, sinks, history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		BotID:      botID,
		PID:        pid,
		Detail:     detail,
	})
}
