package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLSinkSqliteAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist.db")
	s, err := NewSQLSinkFromDSN(path)
	if err != nil {
		t.Fatalf("NewSQLSinkFromDSN: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	events := []Event{
		{Type: EventStart, OccurredAt: time.Now().UTC(), BotID: "echo-1", PID: 1234},
		{Type: EventConnect, OccurredAt: time.Now().UTC(), BotID: "echo-1", PID: 1234},
		{Type: EventStop, OccurredAt: time.Now().UTC(), BotID: "echo-1", PID: 1234, Detail: "operator request"},
	}
	for _, e := range events {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("Send(%s): %v", e.Type, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT event, bot_id, pid FROM bot_history ORDER BY id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var got []string
	for rows.Next() {
		var ev, id string
		var pid int
		if err := rows.Scan(&ev, &id, &pid); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if id != "echo-1" || pid != 1234 {
			t.Fatalf("unexpected row: %s %s %d", ev, id, pid)
		}
		got = append(got, ev)
	}
	want := []string{"start", "connect", "stop"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestSQLSinkEmptyDSN(t *testing.T) {
	if _, err := NewSQLSinkFromDSN(" "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestFanoutIgnoresSinkErrors(t *testing.T) {
	var okCalls int
	ok := sinkFunc(func(ctx context.Context, e Event) error { okCalls++; return nil })
	bad := sinkFunc(func(ctx context.Context, e Event) error { return context.DeadlineExceeded })
	Fanout(context.Background(), []Sink{bad, ok}, Event{Type: EventStart, BotID: "b"})
	if okCalls != 1 {
		t.Fatalf("expected fanout to continue past failing sink, okCalls=%d", okCalls)
	}
}

type sinkFunc func(ctx context.Context, e Event) error

func (f sinkFunc) Send(ctx context.Context, e Event) error { return f(ctx, e) }
