package app

import (
	"context"
	"testing"
)

// The default config needs no external stores; the full runtime must wire
// from a clean environment.
func TestNew_InMemoryWiring(t *testing.T) {
	cfg := LoadConfig()
	log := NewLogger("error", "json")

	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.reg == nil || a.bc == nil || a.ws == nil || a.auth == nil || a.metrics == nil {
		t.Fatal("incomplete wiring")
	}
	if a.dbPool != nil || a.rdb != nil || a.mirror != nil {
		t.Fatal("external stores should be disabled by default")
	}
	a.closeStores()
}
