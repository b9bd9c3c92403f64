package store

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/health"
)

// unreachableURL parses fine but points nowhere, so Connect fails at the
// ping without needing a live server.
const unreachableURL = "postgres://queuewatch@127.0.0.1:1/queuewatch?connect_timeout=1"

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	tracker := health.NewTracker("remote-test", zap.NewNop())
	p, err := NewPostgres(unreachableURL, "service-key", tracker, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPostgres failed: %v", err)
	}
	return p
}

func TestNewPostgresRequiresCredentials(t *testing.T) {
	tracker := health.NewTracker("remote-test", zap.NewNop())

	if _, err := NewPostgres("", "key", tracker, zap.NewNop()); err == nil {
		t.Error("missing URL must fail construction")
	}
	if _, err := NewPostgres(unreachableURL, "", tracker, zap.NewNop()); err == nil {
		t.Error("missing service key must fail construction")
	}
}

func TestPostgresSentinelsWithoutConnection(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	if p.Healthy() {
		t.Fatal("backend must start unhealthy")
	}
	if id := p.AddEntry(ctx, validEntry()); id != "" {
		t.Fatalf("add without a pool must return the sentinel, got %q", id)
	}
	if entries := p.GetEntries(ctx); len(entries) != 0 {
		t.Fatalf("get without a pool must return the sentinel, got %d entries", len(entries))
	}
	if n := p.CleanupExpired(ctx); n != 0 {
		t.Fatalf("cleanup without a pool must return 0, got %d", n)
	}
	if p.SetConfigValue(ctx, "flow_paused", "true") {
		t.Fatal("set without a pool must return false")
	}
	if _, ok := p.GetConfigValue(ctx, "flow_paused"); ok {
		t.Fatal("get without a pool must miss")
	}
	if cfg := p.GetAllConfig(ctx); len(cfg) != 0 {
		t.Fatalf("get-all without a pool must be empty, got %v", cfg)
	}
}

func TestPostgresConnectSafeAlongsideOperations(t *testing.T) {
	// Reconnect is operator-triggered and can land while a tick is mid-cycle
	// on this backend; pool swaps and operation reads must not race.
	p := newTestPostgres(t)
	defer p.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Connect(ctx)
		}()
		go func() {
			defer wg.Done()
			p.GetEntries(ctx)
			p.GetAllConfig(ctx)
			p.Healthy()
		}()
	}
	wg.Wait()

	if p.Healthy() {
		t.Fatal("connecting to an unreachable store must leave the backend down")
	}
}
