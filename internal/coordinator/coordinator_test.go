package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/chatapi"
	"github.com/mvnascimento/queuewatch/internal/eligibility"
	"github.com/mvnascimento/queuewatch/internal/settings"
	"github.com/mvnascimento/queuewatch/internal/store"
)

// Monday 10:00 UTC, inside default business hours.
var businessMorning = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

type sendCall struct {
	entityID string
	cardID   string
}

type fakeClient struct {
	entities []chatapi.WaitingEntity
	fetchErr error

	sends      []sendCall
	rejectIDs  map[string]bool // application-level rejection (false, nil)
	errorIDs   map[string]bool // transport failure
}

func (f *fakeClient) ListWaitingEntities(ctx context.Context) ([]chatapi.WaitingEntity, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.entities, nil
}

func (f *fakeClient) SendActionCard(ctx context.Context, entityID, cardID string) (bool, error) {
	f.sends = append(f.sends, sendCall{entityID: entityID, cardID: cardID})
	if f.errorIDs[entityID] {
		return false, errors.New("transport down")
	}
	if f.rejectIDs[entityID] {
		return false, nil
	}
	return true, nil
}

type fakeStorage struct {
	entries  []store.NewEntry
	excluded map[string]bool
	addFail  bool
	cleaned  int
}

func (f *fakeStorage) AddEntry(ctx context.Context, e store.NewEntry) string {
	if f.addFail {
		return ""
	}
	f.entries = append(f.entries, e)
	return "id-1"
}

func (f *fakeStorage) IsExcluded(ctx context.Context, entityID string, mt store.MessageType) bool {
	return f.excluded[entityID+"|"+string(mt)]
}

func (f *fakeStorage) CleanupExpired(ctx context.Context) int {
	return f.cleaned
}

type nopConfigStore struct{}

func (nopConfigStore) SetConfigValue(ctx context.Context, key, value string) bool { return true }
func (nopConfigStore) GetAllConfig(ctx context.Context) map[string]string {
	return map[string]string{}
}

func newTestCoordinator(t *testing.T, client *fakeClient, storage *fakeStorage, at time.Time) *Coordinator {
	t.Helper()
	mgr := settings.NewManager(nopConfigStore{}, zap.NewNop())
	c := New(client, storage, mgr, &eligibility.Evaluator{}, Config{
		Card30MinID:    "card-30",
		CardEndOfDayID: "card-eod",
		Location:       time.UTC,
	}, zap.NewNop())
	c.now = func() time.Time { return at }
	return c
}

func waiting(id string, minutes int) chatapi.WaitingEntity {
	return chatapi.WaitingEntity{
		ID:              id,
		SectorID:        "s1",
		ChannelID:       "c1",
		WaitTimeMinutes: minutes,
		WaitStartTime:   businessMorning.Add(-time.Duration(minutes) * time.Minute),
	}
}

func TestRunCycleSendsAndRecordsExclusion(t *testing.T) {
	client := &fakeClient{entities: []chatapi.WaitingEntity{waiting("p1", 35)}}
	storage := &fakeStorage{excluded: map[string]bool{}}
	c := newTestCoordinator(t, client, storage, businessMorning)

	result := c.RunCycle(context.Background())

	if result.Success != 1 || result.Failed != 0 {
		t.Fatalf("got %+v, want 1 success", result)
	}
	if len(client.sends) != 1 || client.sends[0].cardID != "card-30" {
		t.Fatalf("unexpected sends: %+v", client.sends)
	}
	if len(storage.entries) != 1 {
		t.Fatalf("expected 1 exclusion entry, got %d", len(storage.entries))
	}

	entry := storage.entries[0]
	if entry.MessageType != store.MessageType30Min || entry.EntityID != "p1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	wantExpiry := time.Date(2026, 8, 31, 23, 59, 59, 999_000_000, time.UTC)
	if !entry.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("30min suppression must expire at end of day, got %v", entry.ExpiresAt)
	}
}

func TestRunCycleSkipsExcludedEntity(t *testing.T) {
	client := &fakeClient{entities: []chatapi.WaitingEntity{waiting("p1", 35)}}
	storage := &fakeStorage{excluded: map[string]bool{"p1|30min": true}}
	c := newTestCoordinator(t, client, storage, businessMorning)

	result := c.RunCycle(context.Background())

	if result.Success != 0 || len(client.sends) != 0 {
		t.Fatalf("suppressed entity must not be sent to: %+v, sends %v", result, client.sends)
	}
}

func TestRunCycleFailedSendLeavesNoEntry(t *testing.T) {
	client := &fakeClient{
		entities:  []chatapi.WaitingEntity{waiting("p1", 35)},
		rejectIDs: map[string]bool{"p1": true},
	}
	storage := &fakeStorage{excluded: map[string]bool{}}
	c := newTestCoordinator(t, client, storage, businessMorning)

	result := c.RunCycle(context.Background())

	if result.Failed != 1 || result.Success != 0 {
		t.Fatalf("got %+v, want 1 failed", result)
	}
	if len(storage.entries) != 0 {
		t.Fatal("failed send must not record a suppression, so the next tick retries")
	}
}

func TestRunCyclePartialFailure(t *testing.T) {
	client := &fakeClient{
		entities: []chatapi.WaitingEntity{waiting("p1", 35), waiting("p2", 40), waiting("p3", 45)},
		errorIDs: map[string]bool{"p2": true},
	}
	storage := &fakeStorage{excluded: map[string]bool{}}
	c := newTestCoordinator(t, client, storage, businessMorning)

	result := c.RunCycle(context.Background())

	if result.Success != 2 || result.Failed != 1 {
		t.Fatalf("one failure must not abort the batch: %+v", result)
	}
	if len(storage.entries) != 2 {
		t.Fatalf("expected entries only for successful sends, got %d", len(storage.entries))
	}
}

func TestRunCycleFetchFailureReturnsEmptyResult(t *testing.T) {
	client := &fakeClient{fetchErr: errors.New("api unreachable")}
	storage := &fakeStorage{excluded: map[string]bool{}}
	c := newTestCoordinator(t, client, storage, businessMorning)

	result := c.RunCycle(context.Background())

	if result.Success != 0 || result.Failed != 0 {
		t.Fatalf("fetch failure must yield an empty result, got %+v", result)
	}
	if len(client.sends) != 0 {
		t.Fatal("nothing should be sent when the fetch fails")
	}
}

func TestRunCycleEndOfDayBlast(t *testing.T) {
	// 17:30 on a working day: the short waiter gets only the end-of-day
	// card; prior exclusions are not consulted for it.
	at := time.Date(2026, 8, 31, 17, 30, 0, 0, time.UTC)
	client := &fakeClient{entities: []chatapi.WaitingEntity{waiting("p1", 5)}}
	storage := &fakeStorage{excluded: map[string]bool{"p1|end_of_day": true}}
	c := newTestCoordinator(t, client, storage, at)

	result := c.RunCycle(context.Background())

	if result.Success != 1 {
		t.Fatalf("got %+v, want 1 success", result)
	}
	if len(client.sends) != 1 || client.sends[0].cardID != "card-eod" {
		t.Fatalf("unexpected sends: %+v", client.sends)
	}

	entry := storage.entries[0]
	if entry.MessageType != store.MessageTypeEndOfDay {
		t.Fatalf("unexpected entry type: %+v", entry)
	}
	if !entry.ExpiresAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("end-of-day bookkeeping entry must expire 1h after send, got %v", entry.ExpiresAt)
	}
}

func TestRunCycleLongWaiterGetsBothCardsAtEndOfDay(t *testing.T) {
	at := time.Date(2026, 8, 31, 17, 30, 0, 0, time.UTC)
	client := &fakeClient{entities: []chatapi.WaitingEntity{waiting("p1", 45)}}
	storage := &fakeStorage{excluded: map[string]bool{}}
	c := newTestCoordinator(t, client, storage, at)

	result := c.RunCycle(context.Background())

	if result.Success != 2 {
		t.Fatalf("long waiter inside the window gets both cards, got %+v", result)
	}
	if len(storage.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(storage.entries))
	}
}

func TestRunCycleCrossingMidnightRecordsConsistentEntry(t *testing.T) {
	// The cycle starts just before midnight and the send lands just after.
	// The suppression must expire at the end of the day it was sent on, not
	// before its own send instant.
	clock := []time.Time{
		time.Date(2026, 8, 31, 23, 59, 59, 900_000_000, time.UTC), // cycle start
		time.Date(2026, 9, 1, 0, 0, 0, 50_000_000, time.UTC),      // send instant
	}
	calls := 0

	client := &fakeClient{entities: []chatapi.WaitingEntity{waiting("p1", 35)}}
	storage := &fakeStorage{excluded: map[string]bool{}}
	mgr := settings.NewManager(nopConfigStore{}, zap.NewNop())
	eval := &eligibility.Evaluator{BusinessHours: func(time.Time) bool { return true }}
	c := New(client, storage, mgr, eval, Config{
		Card30MinID:    "card-30",
		CardEndOfDayID: "card-eod",
		Location:       time.UTC,
	}, zap.NewNop())
	c.now = func() time.Time {
		at := clock[calls]
		if calls < len(clock)-1 {
			calls++
		}
		return at
	}

	result := c.RunCycle(context.Background())

	if result.Success != 1 || len(storage.entries) != 1 {
		t.Fatalf("got %+v with %d entries, want 1 success", result, len(storage.entries))
	}

	entry := storage.entries[0]
	if !entry.ExpiresAt.After(entry.SentAt) {
		t.Fatalf("entry must expire after its send instant: sent %v, expires %v",
			entry.SentAt, entry.ExpiresAt)
	}
	wantExpiry := time.Date(2026, 9, 1, 23, 59, 59, 999_000_000, time.UTC)
	if !entry.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry must follow the send day, got %v", entry.ExpiresAt)
	}
}

func TestEvaluate30MinFiltersEntities(t *testing.T) {
	storage := &fakeStorage{excluded: map[string]bool{"p2|30min": true}}
	c := newTestCoordinator(t, &fakeClient{}, storage, businessMorning)

	eligible := c.Evaluate30Min(context.Background(), []chatapi.WaitingEntity{
		waiting("p1", 35),
		waiting("p2", 40), // suppressed
		waiting("p3", 10), // too short
	})

	if len(eligible) != 1 || eligible[0].ID != "p1" {
		t.Fatalf("unexpected eligible set: %+v", eligible)
	}
}

func TestCleanupDelegatesToStorage(t *testing.T) {
	storage := &fakeStorage{excluded: map[string]bool{}, cleaned: 3}
	c := newTestCoordinator(t, &fakeClient{}, storage, businessMorning)

	if got := c.Cleanup(context.Background()); got != 3 {
		t.Fatalf("Cleanup = %d, want 3", got)
	}
}
