//go:build !windows

package botherd

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/botherd/botherd/internal/config"
	"github.com/botherd/botherd/internal/control"
	"github.com/botherd/botherd/internal/history"
	histfactory "github.com/botherd/botherd/internal/history/factory"
	"github.com/botherd/botherd/internal/metrics"
	"github.com/botherd/botherd/internal/process"
	"github.com/botherd/botherd/internal/protocol"
	iapi "github.com/botherd/botherd/internal/server"
	storefactory "github.com/botherd/botherd/internal/store/factory"
	"github.com/botherd/botherd/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = supervisor.Status

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Message = protocol.Message

// Manager is a thin facade over the control-plane server and the bot
// supervisor. It provides a stable public API for embedding.

type Manager struct {
	sup  *supervisor.Supervisor
	ctrl *control.Server
}

// New builds a manager listening for worker connections on controlAddr.
// Call Listen then Serve (Serve blocks; run it in a goroutine).
func New(controlAddr string, logger *slog.Logger) *Manager {
	ctrl := control.NewServer(control.Config{Addr: controlAddr, Logger: logger})
	return &Manager{sup: supervisor.New(ctrl, logger), ctrl: ctrl}
}

func (m *Manager) Listen() error { return m.ctrl.Listen() }
func (m *Manager) Serve()        { m.ctrl.Serve() }
func (m *Manager) Close() error  { return m.ctrl.Close() }

func (m *Manager) SetGlobalEnv(kvs []string) { m.sup.SetGlobalEnv(kvs) }
func (m *Manager) Register(s Spec)           { m.sup.Register(s) }
func (m *Manager) IDs() []string             { return m.sup.IDs() }

func (m *Manager) Start(ctx context.Context, botID string) error { return m.sup.Start(ctx, botID) }
func (m *Manager) Stop(ctx context.Context, botID string, wait time.Duration) error {
	return m.sup.Stop(ctx, botID, wait)
}
func (m *Manager) Status(ctx context.Context, botID string) (Status, error) {
	return m.sup.Status(ctx, botID)
}
func (m *Manager) StatusAll(ctx context.Context) []Status { return m.sup.StatusAll(ctx) }
func (m *Manager) ShutdownAll(ctx context.Context, wait time.Duration) error {
	return m.sup.ShutdownAll(ctx, wait)
}

// Send delivers a custom JSON command to a connected worker and waits for
// its acknowledgment.
func (m *Manager) Send(botID string, payload []byte) error {
	return m.ctrl.SendTo(botID, protocol.Custom(botID, payload))
}

// Workers returns the bot ids with a live control-plane connection.
func (m *Manager) Workers() []string { return m.ctrl.Registry().IDs() }

// UseStore attaches a persisted process table from a DSN
// (sqlite path, sqlite://..., or postgres://...).
func (m *Manager) UseStore(dsn string) error {
	st, err := storefactory.NewFromDSN(dsn)
	if err != nil {
		return err
	}
	return m.sup.SetStore(st)
}

// UseHistory attaches lifecycle event sinks from DSNs
// (sqlite/postgres/clickhouse/opensearch).
func (m *Manager) UseHistory(dsns ...string) error {
	sinks := make([]history.Sink, 0, len(dsns))
	for _, dsn := range dsns {
		s, err := histfactory.NewSinkFromDSN(dsn)
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}
	m.sup.SetHistorySinks(sinks...)
	return nil
}

func LoadConfig(path string) (*config.FileConfig, error) {
	return config.Load(path)
}

// LoadGlobalEnv reads the top-level env and env_files entries from a config
// file without building specs.
func LoadGlobalEnv(path string) ([]string, error) {
	return config.LoadGlobalEnv(path)
}

// NewHTTPServer starts an HTTP server exposing the operator API using the
// given manager.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return iapi.NewServer(addr, basePath, m.sup, m.ctrl)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it runs
// the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
