package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/botherd/botherd"
)

// embedded_logger: demonstrate per-bot log capture. It starts a short command
// that writes to stdout and stderr, then shows where the rotated logs landed.
func main() {
	logDir := os.Getenv("BOTHERD_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("botherd-logs-%d", time.Now().UnixNano()))
	}
	_ = os.MkdirAll(logDir, 0o750)

	mgr := botherd.New("127.0.0.1:0", nil)
	if err := mgr.Listen(); err != nil {
		panic(err)
	}
	defer func() { _ = mgr.Close() }()
	go mgr.Serve()

	spec := botherd.Spec{
		BotID:   "logger-demo",
		Command: "sh -c 'echo hello-out; echo hello-err 1>&2; sleep 0.2'",
	}
	spec.Log.File.Dir = logDir
	mgr.Register(spec)

	ctx := context.Background()
	if err := mgr.Start(ctx, spec.BotID); err != nil {
		panic(err)
	}
	time.Sleep(400 * time.Millisecond)
	_ = mgr.Stop(ctx, spec.BotID, 2*time.Second)

	fmt.Println("Embedded logger example")
	fmt.Println("  Log directory:", logDir)
	fmt.Println("  Stdout log:", filepath.Join(logDir, "logger-demo.stdout.log"))
	fmt.Println("  Stderr log:", filepath.Join(logDir, "logger-demo.stderr.log"))
	fmt.Println("Tip: set BOTHERD_LOG_DIR to choose a custom log directory.")
}
