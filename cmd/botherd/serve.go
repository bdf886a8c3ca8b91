package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/botherd/botherd/internal/config"
	"github.com/botherd/botherd/internal/control"
	"github.com/botherd/botherd/internal/history"
	histfactory "github.com/botherd/botherd/internal/history/factory"
	"github.com/botherd/botherd/internal/metrics"
	"github.com/botherd/botherd/internal/server"
	storefactory "github.com/botherd/botherd/internal/store/factory"
	"github.com/botherd/botherd/internal/supervisor"
)

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required: use --config=botherd.toml or pass it as an argument")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Log.NewSlogger()
	slog.SetDefault(logger)

	specs, err := cfg.Specs()
	if err != nil {
		return fmt.Errorf("build bot specs: %w", err)
	}

	// a failed bind aborts the manager before any worker is launched
	ctrl := control.NewServer(control.Config{Addr: cfg.Manager.Addr(), Logger: logger})
	if err := ctrl.Listen(); err != nil {
		return err
	}

	sup := supervisor.New(ctrl, logger)
	if cfg.Store != nil && cfg.Store.Enabled {
		st, err := storefactory.NewFromDSN(cfg.Store.DSN)
		if err != nil {
			_ = ctrl.Close()
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = st.Close() }()
		if err := sup.SetStore(st); err != nil {
			_ = ctrl.Close()
			return fmt.Errorf("prepare store schema: %w", err)
		}
	}

	var sinks []history.Sink
	if cfg.History != nil && cfg.History.Enabled {
		for _, dsn := range cfg.History.DSNs {
			sink, err := histfactory.NewSinkFromDSN(dsn)
			if err != nil {
				logger.Warn("history sink disabled", "dsn", dsn, "err", err)
				continue
			}
			sinks = append(sinks, sink)
		}
		sup.SetHistorySinks(sinks...)
	}
	ctrl.OnEvent(func(botID string, connected bool) {
		t := history.EventConnect
		if !connected {
			t = history.EventDisconnect
		}
		history.Fanout(context.Background(), sinks, history.Event{
			Type: t, OccurredAt: time.Now().UTC(), BotID: botID,
		})
	})

	genv, err := config.LoadGlobalEnv(configPath)
	if err != nil {
		logger.Warn("global env not loaded", "err", err)
	} else {
		sup.SetGlobalEnv(genv)
	}
	for _, s := range specs {
		sup.Register(s)
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			logger.Warn("metrics registration failed", "err", err)
		}
		if cfg.Metrics.Listen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			go func() {
				msrv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				if err := msrv.ListenAndServe(); err != nil {
					logger.Error("metrics server", "err", err)
				}
			}()
		}
	}

	go ctrl.Serve()

	var api *http.Server
	if cfg.API != nil && cfg.API.Listen != "" {
		api, err = server.NewServerTLS(*cfg.API, sup, ctrl)
		if err != nil {
			_ = ctrl.Close()
			return fmt.Errorf("operator API setup: %w", err)
		}
		tlsOn := cfg.API.TLS != nil && cfg.API.TLS.Enabled
		logger.Info("operator API listening", "addr", cfg.API.Listen, "base_path", cfg.API.BasePath, "tls", tlsOn)
	}
	logger.Info("manager started", "control_addr", cfg.Manager.Addr(), "bots", len(specs))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if cfg.Manager.StopBotsOnShutdown {
		if err := sup.ShutdownAll(context.Background(), cfg.Manager.StopWait); err != nil {
			logger.Error("stopping bots on shutdown", "err", err)
		}
	}
	if api != nil {
		_ = api.Close()
	}
	return ctrl.Close()
}
