//go:build !windows

package detector

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// CmdlineDetector reports a process alive only when the PID exists AND its
// command line still matches the one recorded at launch. A recycled PID
// running something else reads as dead, so a stale process record cannot
// block a restart or mark a stranger as ours.
type CmdlineDetector struct {
	PID     int
	Command string
}

func (d CmdlineDetector) Alive() (bool, error) {
	if !pidAlive(d.PID) {
		return false, nil
	}
	cmdline := readCmdline(d.PID)
	if cmdline == "" {
		// Process exists but its command line is unreadable (permissions,
		// or it exited between the two probes). Treat as not ours.
		return false, nil
	}
	return cmdlineMatches(cmdline, d.Command), nil
}

func (d CmdlineDetector) Describe() string {
	return "cmdline:" + strconv.Itoa(d.PID)
}

// cmdlineMatches tolerates shell wrapping: the recorded command may appear
// as a suffix of "/bin/sh -c <command>" or be the argv itself.
func cmdlineMatches(cmdline, command string) bool {
	cmdline = strings.TrimSpace(cmdline)
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	return cmdline == command || strings.Contains(cmdline, command)
}

func readCmdline(pid int) string {
	if runtime.GOOS == "linux" {
		b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
		if err != nil {
			return ""
		}
		// argv entries are NUL-separated
		return strings.TrimSpace(strings.ReplaceAll(string(b), "\x00", " "))
	}
	p, err := gopsproc.NewProcess(int32(pid)) // #nosec G115 -- PIDs fit in int32
	if err != nil {
		return ""
	}
	s, err := p.Cmdline()
	if err != nil {
		return ""
	}
	return s
}
