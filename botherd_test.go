//go:build !windows

package botherd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/botherd/botherd/internal/metrics"
)

func TestManagerFacadeStartStatusStop(t *testing.T) {
	m := New("127.0.0.1:0", nil)
	if err := m.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = m.Close() }()
	go m.Serve()

	m.Register(Spec{BotID: "pf1", Command: "sleep 5"})
	ctx := context.Background()
	if err := m.Start(ctx, "pf1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	st, err := m.Status(ctx, "pf1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Running || st.PID == 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if all := m.StatusAll(ctx); len(all) != 1 {
		t.Fatalf("expected 1 status, got %d", len(all))
	}
	if err := m.Stop(ctx, "pf1", 300*time.Millisecond); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st, err = m.Status(ctx, "pf1")
	if err != nil {
		t.Fatalf("status after stop: %v", err)
	}
	if st.Running {
		t.Fatalf("still running after stop: %+v", st)
	}
}

func TestManagerFacadeShutdownAll(t *testing.T) {
	m := New("127.0.0.1:0", nil)
	if err := m.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = m.Close() }()
	go m.Serve()

	m.Register(Spec{BotID: "sa-1", Command: "sleep 5"})
	m.Register(Spec{BotID: "sa-2", Command: "sleep 5"})
	ctx := context.Background()
	for _, id := range []string{"sa-1", "sa-2"} {
		if err := m.Start(ctx, id); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	if err := m.ShutdownAll(ctx, 300*time.Millisecond); err != nil {
		t.Fatalf("shutdown all: %v", err)
	}
	for _, st := range m.StatusAll(ctx) {
		if st.Running {
			t.Fatalf("%s still running after shutdown", st.BotID)
		}
	}
}

func TestUseStorePersistsRecords(t *testing.T) {
	m := New("127.0.0.1:0", nil)
	if err := m.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = m.Close() }()
	go m.Serve()

	dsn := t.TempDir() + "/bots.db"
	if err := m.UseStore(dsn); err != nil {
		t.Fatalf("use store: %v", err)
	}
	m.Register(Spec{BotID: "st-1", Command: "sleep 5"})
	ctx := context.Background()
	if err := m.Start(ctx, "st-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = m.Stop(ctx, "st-1", 300*time.Millisecond) }()
	st, err := m.Status(ctx, "st-1")
	if err != nil || st.PID == 0 {
		t.Fatalf("status: %+v err=%v", st, err)
	}
}

func TestMetricsFacade(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status: %d", resp.StatusCode)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/botherd.toml"); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestSendToDisconnectedWorker(t *testing.T) {
	m := New("127.0.0.1:0", nil)
	if err := m.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = m.Close() }()
	go m.Serve()

	err := m.Send("ghost", []byte(`{"cmd":"ping"}`))
	if err == nil {
		t.Fatalf("expected error sending to disconnected worker")
	}
	if !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := m.Workers(); len(ids) != 0 {
		t.Fatalf("expected no workers, got %v", ids)
	}
}
