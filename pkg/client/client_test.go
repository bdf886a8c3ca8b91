package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second})
}

func TestStartAndStop(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	ctx := context.Background()
	if err := c.Start(ctx, "b1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(ctx, "b1", 3*time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths: %v", paths)
	}
	if paths[0] != "/api/start?id=b1" {
		t.Fatalf("start path: %s", paths[0])
	}
	if paths[1] != "/api/stop?id=b1&wait=3s" {
		t.Fatalf("stop path: %s", paths[1])
	}
}

func TestStatusDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(BotStatus{BotID: "b1", Running: true, Connected: true, PID: 42})
	})
	st, err := c.Status(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.BotID != "b1" || !st.Running || !st.Connected || st.PID != 42 {
		t.Fatalf("status: %+v", st)
	}
}

func TestStatusAllAndWorkers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			_ = json.NewEncoder(w).Encode([]BotStatus{{BotID: "a"}, {BotID: "b"}})
		case "/api/workers":
			_ = json.NewEncoder(w).Encode([]string{"a"})
		default:
			http.NotFound(w, r)
		}
	})
	sts, err := c.StatusAll(context.Background())
	if err != nil {
		t.Fatalf("StatusAll: %v", err)
	}
	if len(sts) != 2 {
		t.Fatalf("statuses: %+v", sts)
	}
	ids, err := c.Workers(context.Background())
	if err != nil {
		t.Fatalf("Workers: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("workers: %v", ids)
	}
}

func TestSend(t *testing.T) {
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(b)
		gotBody = string(b)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	if err := c.Send(context.Background(), "b1", json.RawMessage(`{"cmd":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotBody != `{"cmd":"ping"}` {
		t.Fatalf("body: %s", gotBody)
	}
}

func TestAPIErrorSurface(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "bot already running"})
	})
	err := c.Start(context.Background(), "b1")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "API error: bot already running" {
		t.Fatalf("error text: %s", got)
	}
}

func TestIsReachable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]BotStatus{})
	})
	if !c.IsReachable(context.Background()) {
		t.Fatal("expected reachable")
	}
	down := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond})
	if down.IsReachable(context.Background()) {
		t.Fatal("expected unreachable")
	}
}
