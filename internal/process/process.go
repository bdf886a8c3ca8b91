//go:build !windows

package process

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/botherd/botherd/internal/detector"
)

// Process owns one launched worker: its exec.Cmd, stdio writers, and exit
// state. A single reaper goroutine (started by TryStart) waits on the child;
// Stop and Kill coordinate with it through waitDone instead of calling
// cmd.Wait themselves.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	mu        sync.Mutex
	stopping  bool // true once Stop has been requested
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{} // closed by the reaper when cmd.Wait returns
}

func New(spec Spec) *Process { return &Process{spec: spec} }

// Spec returns a copy of the launch spec.
func (r *Process) Spec() Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

// ConfigureCmd builds and configures *exec.Cmd for this process using mergedEnv.
// It sets workdir, environment, stdio/logging, and process group attributes.
func (r *Process) ConfigureCmd(mergedEnv []string) *exec.Cmd {
	r.mu.Lock()
	spec := r.spec // copy to avoid holding the lock during I/O
	r.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if spec.Log.File.Dir != "" || spec.Log.File.StdoutPath != "" || spec.Log.File.StderrPath != "" {
		if spec.Log.File.Dir != "" {
			_ = os.MkdirAll(spec.Log.File.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.ProcessWriters(spec.BotID)
		r.setWriters(outW, errW)
		if outW != nil {
			cmd.Stdout = outW
		} else {
			cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		if errW != nil {
			cmd.Stderr = errW
		} else {
			cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}
	return cmd
}

// TryStart starts the command, records the run state, and spawns the reaper
// that waits for the child and finalizes status on exit.
func (r *Process) TryStart(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan struct{})
	r.mu.Lock()
	r.cmd = cmd
	r.waitDone = done
	r.status = Status{
		BotID:     r.spec.BotID,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	r.stopping = false
	r.mu.Unlock()

	go func() {
		err := cmd.Wait()
		r.markExited(err)
		r.closeWriters()
		close(done)
	}()
	return nil
}

func (r *Process) markExited(err error) {
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = time.Now()
	r.status.ExitErr = err
	r.mu.Unlock()
}

// SetStopRequested flags an operator-initiated stop; the exit is expected.
func (r *Process) SetStopRequested(v bool) {
	r.mu.Lock()
	r.stopping = v
	r.mu.Unlock()
}

func (r *Process) StopRequested() bool {
	r.mu.Lock()
	v := r.stopping
	r.mu.Unlock()
	return v
}

func (r *Process) setWriters(stdout, stderr io.WriteCloser) {
	r.mu.Lock()
	if r.outCloser == nil && stdout != nil {
		r.outCloser = stdout
	}
	if r.errCloser == nil && stderr != nil {
		r.errCloser = stderr
	}
	r.mu.Unlock()
}

func (r *Process) closeWriters() {
	r.mu.Lock()
	if r.outCloser != nil {
		_ = r.outCloser.Close()
		r.outCloser = nil
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
		r.errCloser = nil
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	s := r.status
	r.mu.Unlock()
	return s
}

// WaitDone exposes the reaper's completion channel; nil before TryStart.
func (r *Process) WaitDone() <-chan struct{} {
	r.mu.Lock()
	wd := r.waitDone
	r.mu.Unlock()
	return wd
}

// DetectAlive probes liveness avoiding races with os/exec internals.
func (r *Process) DetectAlive() bool {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	pid := cmd.Process.Pid
	// On Linux, a quickly-exiting child can linger as a zombie; not alive.
	if runtime.GOOS == "linux" {
		if isZombieLinux(pid) {
			return false
		}
		return syscall.Kill(pid, 0) == nil
	}
	return syscall.Kill(-pid, 0) == nil
}

// Detector returns the PID-reuse-safe liveness check for the current run.
func (r *Process) Detector() detector.Detector {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid := 0
	if r.cmd != nil && r.cmd.Process != nil {
		pid = r.cmd.Process.Pid
	}
	return detector.CmdlineDetector{PID: pid, Command: r.spec.Command}
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z) on Linux.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// Stop terminates the process group gracefully, escalating to SIGKILL when
// the child has not exited within wait. It returns once the reaper has
// finished (or a short grace period after the kill expires).
func (r *Process) Stop(wait time.Duration) error {
	if !r.DetectAlive() {
		return nil
	}
	r.SetStopRequested(true)
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	wd := r.WaitDone()
	select {
	case <-wd:
	case <-time.After(wait):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
			// best-effort; the reaper will still finalize state
		}
	}
	return r.Snapshot().ExitErr
}

// Kill sends SIGKILL to the process group and waits briefly for the reaper.
func (r *Process) Kill() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	r.SetStopRequested(true)
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if wd := r.WaitDone(); wd != nil {
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
		}
	}
	return r.Snapshot().ExitErr
}
