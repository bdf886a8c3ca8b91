package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/botherd/botherd/internal/history"
)

func TestSinkPostsDocument(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := New(srv.URL, "bot-history")
	e := history.Event{
		Type:       history.EventDisconnect,
		OccurredAt: time.Now().UTC(),
		BotID:      "chat-2",
		PID:        77,
	}
	if err := s.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/bot-history/_doc" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	var decoded history.Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if decoded.BotID != "chat-2" || decoded.Type != history.EventDisconnect {
		t.Fatalf("unexpected document: %+v", decoded)
	}
}

func TestSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mapping error", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New(srv.URL, "bot-history")
	if err := s.Send(context.Background(), history.Event{Type: history.EventStart, BotID: "b"}); err == nil {
		t.Fatal("expected error on 4xx status")
	}
}
