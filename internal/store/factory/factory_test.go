package factory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewFromDSNSqlitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	for _, dsn := range []string{path, "sqlite://" + path} {
		st, err := NewFromDSN(dsn)
		if err != nil {
			t.Fatalf("NewFromDSN(%q): %v", dsn, err)
		}
		if err := st.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		_ = st.Close()
	}
}

func TestNewFromDSNEmpty(t *testing.T) {
	if _, err := NewFromDSN("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestNewFromDSNPostgres(t *testing.T) {
	// Opening is lazy for pgx stdlib; constructing must succeed without a server.
	st, err := NewFromDSN("postgres://u:p@127.0.0.1:5/db")
	if err != nil {
		t.Fatalf("NewFromDSN postgres: %v", err)
	}
	_ = st.Close()
}
