//go:build !windows

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botherd/botherd/internal/config"
	"github.com/botherd/botherd/internal/control"
	"github.com/botherd/botherd/internal/protocol"
	"github.com/botherd/botherd/internal/supervisor"
	itls "github.com/botherd/botherd/internal/tls"
)

// Router provides embeddable HTTP handlers for the operator surface.
// Endpoints:
//
//	POST {basePath}/start   query: id=...
//	POST {basePath}/stop    query: id=...&wait=5s (wait optional)
//	GET  {basePath}/status  query: id=... (single) or none (all bots)
//	GET  {basePath}/workers connected worker ids
//	POST {basePath}/send    query: id=..., body: raw JSON command payload
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	ctrl     *control.Server
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
// Example basePath "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(sup *supervisor.Supervisor, ctrl *control.Server, basePath string) *Router {
	return &Router{sup: sup, ctrl: ctrl, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/status", r.handleStatus)
	group.GET("/workers", r.handleWorkers)
	group.POST("/send", r.handleSend)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, ctrl *control.Server) *http.Server {
	r := NewRouter(sup, ctrl, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// NewServerTLS starts the API server honoring the [api] TLS settings. When
// TLS is disabled it behaves like NewServer.
func NewServerTLS(cfg config.APIConfig, sup *supervisor.Supervisor, ctrl *control.Server) (*http.Server, error) {
	tlsCfg, err := itls.Setup(cfg)
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return NewServer(cfg.Listen, cfg.BasePath, sup, ctrl), nil
	}
	r := NewRouter(sup, ctrl, cfg.BasePath)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServeTLS("", "") }()
	return srv, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStart(c *gin.Context) {
	id := c.Query("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "id query param required: allowed [A-Za-z0-9._-]"})
		return
	}
	err := r.sup.Start(c.Request.Context(), id)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, okResp{OK: true})
	case errors.Is(err, supervisor.ErrUnknownBot):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleStop(c *gin.Context) {
	id := c.Query("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "id query param required: allowed [A-Za-z0-9._-]"})
		return
	}
	wait := time.Duration(0)
	if ws := c.Query("wait"); ws != "" {
		d, err := time.ParseDuration(ws)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid wait duration: " + err.Error()})
			return
		}
		wait = d
	}
	err := r.sup.Stop(c.Request.Context(), id, wait)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, okResp{OK: true})
	case errors.Is(err, supervisor.ErrUnknownBot):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		writeJSON(c, http.StatusOK, r.sup.StatusAll(c.Request.Context()))
		return
	}
	st, err := r.sup.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, supervisor.ErrUnknownBot) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleWorkers(c *gin.Context) {
	if r.ctrl == nil {
		writeJSON(c, http.StatusOK, []string{})
		return
	}
	writeJSON(c, http.StatusOK, r.ctrl.Registry().IDs())
}

func (r *Router) handleSend(c *gin.Context) {
	id := c.Query("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "id query param required: allowed [A-Za-z0-9._-]"})
		return
	}
	if r.ctrl == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "control server not running"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "body must be a JSON command payload"})
		return
	}
	err = r.ctrl.SendTo(id, protocol.Custom(id, body))
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, okResp{OK: true})
	case errors.Is(err, control.ErrNotConnected):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
	}
}
