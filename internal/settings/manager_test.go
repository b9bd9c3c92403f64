package settings

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

// fakeStore is an in-memory ConfigStore.
type fakeStore struct {
	kv       map[string]string
	setCalls int
	failSet  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{kv: make(map[string]string)}
}

func (f *fakeStore) SetConfigValue(ctx context.Context, key, value string) bool {
	f.setCalls++
	if f.failSet {
		return false
	}
	f.kv[key] = value
	return true
}

func (f *fakeStore) GetAllConfig(ctx context.Context) map[string]string {
	out := make(map[string]string, len(f.kv))
	for k, v := range f.kv {
		out[k] = v
	}
	return out
}

func boolPtr(b bool) *bool       { return &b }
func strPtr(s string) *string    { return &s }
func intPtr(n int) *int          { return &n }
func listPtr(s ...string) *[]string { v := s; return &v }

func TestManagerLoadAppliesStoredValues(t *testing.T) {
	store := newFakeStore()
	store.kv[KeyFlowPaused] = "true"
	store.kv[KeyEndOfDayTime] = "16:45"

	m := NewManager(store, zap.NewNop())
	m.Load(context.Background())

	cfg := m.Current()
	if !cfg.FlowPaused || cfg.EndOfDayTime != "16:45" {
		t.Fatalf("loaded config wrong: %+v", cfg)
	}
}

func TestManagerUpdateRoundTrip(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()

	before := m.Current()

	if err := m.Update(ctx, Patch{FlowPaused: boolPtr(true)}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	after := m.Current()
	if !after.FlowPaused {
		t.Fatal("flow_paused should be true after update")
	}
	if store.kv[KeyFlowPaused] != "true" {
		t.Fatal("update should persist the changed key")
	}

	// Everything else untouched.
	after.FlowPaused = before.FlowPaused
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("unrelated fields changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestManagerInvalidUpdateIsNoOp(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()

	before := m.Current()

	if err := m.Update(ctx, Patch{EndOfDayTime: strPtr("25:99")}); err == nil {
		t.Fatal("expected validation error for 25:99")
	}

	if !reflect.DeepEqual(before, m.Current()) {
		t.Fatal("invalid update must leave config unchanged")
	}
	if store.setCalls != 0 {
		t.Fatalf("invalid update must not touch the store, got %d writes", store.setCalls)
	}
}

func TestManagerUpdateValidatesWaitBounds(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()

	if err := m.Update(ctx, Patch{MinWaitMinutes: intPtr(60), MaxWaitMinutes: intPtr(50)}); err == nil {
		t.Fatal("max below min must be rejected")
	}
	if err := m.Update(ctx, Patch{MinWaitMinutes: intPtr(0)}); err == nil {
		t.Fatal("zero min wait must be rejected")
	}
	if err := m.Update(ctx, Patch{MinWaitMinutes: intPtr(15), MaxWaitMinutes: intPtr(120)}); err != nil {
		t.Fatalf("valid bounds rejected: %v", err)
	}
}

func TestManagerUpdateLists(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()

	if err := m.Update(ctx, Patch{ExcludedSectors: listPtr("s1", "s2")}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	cfg := m.Current()
	if !cfg.SectorExcluded("s1") || !cfg.SectorExcluded("s2") {
		t.Fatal("sectors not applied")
	}
	if store.kv[KeyExcludedSectors] != "s1,s2" {
		t.Fatalf("sectors not persisted, got %q", store.kv[KeyExcludedSectors])
	}
}

func TestManagerUpdateSurvivesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failSet = true
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()

	// The store degrades to the sentinel; the running system still honors
	// the operator's update in memory.
	if err := m.Update(ctx, Patch{FlowPaused: boolPtr(true)}); err != nil {
		t.Fatalf("update should not fail on store sentinel: %v", err)
	}
	if !m.Current().FlowPaused {
		t.Fatal("in-memory config should still move forward")
	}
}
