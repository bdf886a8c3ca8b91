package clickhouse

import (
	"strings"
	"testing"
)

func TestNewUnreachable(t *testing.T) {
	if _, err := New(Options{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected error for unreachable clickhouse")
	}
}

func TestOptionsDefaults(t *testing.T) {
	// Connection fails but the error should mention clickhouse, not a panic
	// from empty options.
	_, err := New(Options{Addr: "127.0.0.1:1"})
	if err == nil || !strings.Contains(err.Error(), "clickhouse") {
		t.Fatalf("unexpected error: %v", err)
	}
}
