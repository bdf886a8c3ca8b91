package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(r); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestHelpersNoPanic(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	IncBotStart("w1")
	IncBotStop("w1")
	IncBotKill("w1")
	SetRunningBots(2)
	SetConnectedWorkers(1)
	IncMessageSent("stop")
	IncAckTimeout()
	IncRegistryConflict()

	mfs, err := r.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("no metric families gathered")
	}
}
