// Package coordinator drives one polling cycle: fetch the queue, decide who
// gets an action card, send, and record suppressions for successful sends.
package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/chatapi"
	"github.com/mvnascimento/queuewatch/internal/eligibility"
	"github.com/mvnascimento/queuewatch/internal/metrics"
	"github.com/mvnascimento/queuewatch/internal/settings"
	"github.com/mvnascimento/queuewatch/internal/store"
)

// Storage is the slice of the orchestrator the coordinator needs. It never
// returns errors; the sentinel contract applies.
type Storage interface {
	AddEntry(ctx context.Context, e store.NewEntry) string
	IsExcluded(ctx context.Context, entityID string, mt store.MessageType) bool
	CleanupExpired(ctx context.Context) int
}

// CycleResult aggregates one tick's send outcomes.
type CycleResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Config holds the card template IDs and the timezone for day-boundary
// decisions.
type Config struct {
	Card30MinID    string
	CardEndOfDayID string
	Location       *time.Location
}

// Coordinator runs polling cycles. It is driven by the scheduler and by the
// manual trigger endpoint; ticks are expected not to overlap.
type Coordinator struct {
	client   chatapi.Client
	storage  Storage
	settings *settings.Manager
	eval     *eligibility.Evaluator
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a coordinator.
func New(client chatapi.Client, storage Storage, mgr *settings.Manager, eval *eligibility.Evaluator, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Coordinator{
		client:   client,
		storage:  storage,
		settings: mgr,
		eval:     eval,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunCycle executes one polling tick. A fetch failure is logged and yields
// an empty result; the next tick simply retries. Send failures are counted
// but never abort the rest of the batch, and no suppression is recorded for
// them, so the entity stays eligible on the next tick.
func (c *Coordinator) RunCycle(ctx context.Context) CycleResult {
	cycleID := uuid.New().String()
	now := c.now().In(c.config.Location)
	cfg := c.settings.Current()

	entities, err := c.client.ListWaitingEntities(ctx)
	if err != nil {
		c.logger.Error("failed to fetch waiting entities",
			zap.Error(err),
			zap.String("cycle_id", cycleID),
		)
		metrics.RecordCycle("fetch_failed")
		return CycleResult{}
	}

	metrics.SetWaitingEntities(len(entities))

	var result CycleResult
	for _, e := range entities {
		eligible := c.eval.EligibleFor30Min(e, cfg, c.excluded30Min(ctx), now)
		if !eligible {
			continue
		}
		c.send(ctx, e, store.MessageType30Min, c.config.Card30MinID, endOfDay, &result, cycleID)
	}

	for _, e := range entities {
		if !c.eval.EligibleForEndOfDay(e, cfg, now) {
			continue
		}
		c.send(ctx, e, store.MessageTypeEndOfDay, c.config.CardEndOfDayID, plusOneHour, &result, cycleID)
	}

	metrics.RecordCycle("ok")
	c.logger.Info("cycle complete",
		zap.String("cycle_id", cycleID),
		zap.Int("waiting", len(entities)),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
	return result
}

// Evaluate30Min returns the subset of entities the 30-minute card would
// fire for right now. Read-only; used by the admin API.
func (c *Coordinator) Evaluate30Min(ctx context.Context, entities []chatapi.WaitingEntity) []chatapi.WaitingEntity {
	now := c.now().In(c.config.Location)
	cfg := c.settings.Current()

	var out []chatapi.WaitingEntity
	for _, e := range entities {
		if c.eval.EligibleFor30Min(e, cfg, c.excluded30Min(ctx), now) {
			out = append(out, e)
		}
	}
	return out
}

// EvaluateEndOfDay returns the subset of entities the end-of-day card would
// fire for right now.
func (c *Coordinator) EvaluateEndOfDay(ctx context.Context, entities []chatapi.WaitingEntity) []chatapi.WaitingEntity {
	now := c.now().In(c.config.Location)
	cfg := c.settings.Current()

	var out []chatapi.WaitingEntity
	for _, e := range entities {
		if c.eval.EligibleForEndOfDay(e, cfg, now) {
			out = append(out, e)
		}
	}
	return out
}

// Cleanup runs one expired-entry sweep. Safe to run concurrently with a
// tick: removing an already-filtered entry is idempotent.
func (c *Coordinator) Cleanup(ctx context.Context) int {
	removed := c.storage.CleanupExpired(ctx)
	if removed > 0 {
		c.logger.Info("cleanup sweep removed expired exclusions", zap.Int("removed", removed))
	}
	return removed
}

func (c *Coordinator) excluded30Min(ctx context.Context) eligibility.ExcludedFunc {
	return func(entityID string) bool {
		return c.storage.IsExcluded(ctx, entityID, store.MessageType30Min)
	}
}

// send delivers one card and, only on success, records the suppression. A
// failed send leaves no entry behind so the next tick retries it.
//
// The expiry is derived from the same clock reading as sentAt: a slow cycle
// that crosses midnight between eligibility and send would otherwise produce
// an entry that expires before it was sent.
func (c *Coordinator) send(ctx context.Context, e chatapi.WaitingEntity, mt store.MessageType, cardID string, expiry func(time.Time) time.Time, result *CycleResult, cycleID string) {
	sentAt := c.now().In(c.config.Location)
	expiresAt := expiry(sentAt)

	ok, err := c.client.SendActionCard(ctx, e.ID, cardID)
	if err != nil || !ok {
		result.Failed++
		metrics.RecordCardSent(string(mt), "failed")
		c.logger.Warn("action card send failed",
			zap.Error(err),
			zap.String("cycle_id", cycleID),
			zap.String("entity_id", e.ID),
			zap.String("message_type", string(mt)),
		)
		return
	}

	result.Success++
	metrics.RecordCardSent(string(mt), "success")

	id := c.storage.AddEntry(ctx, store.NewEntry{
		EntityID:    e.ID,
		MessageType: mt,
		SentAt:      sentAt,
		ExpiresAt:   expiresAt,
	})
	if id == "" {
		// The card went out but the suppression did not stick; the next
		// tick may resend. Surfaced loudly since it breaks dedup.
		c.logger.Error("exclusion entry not persisted after send",
			zap.String("cycle_id", cycleID),
			zap.String("entity_id", e.ID),
			zap.String("message_type", string(mt)),
		)
		return
	}

	c.logger.Info("action card sent",
		zap.String("cycle_id", cycleID),
		zap.String("entity_id", e.ID),
		zap.String("message_type", string(mt)),
		zap.String("exclusion_id", id),
		zap.Time("expires_at", expiresAt),
	)
}

// endOfDay returns 23:59:59.999 of t's day in t's location. Thirty-minute
// suppressions last until then so yesterday's long waiters are eligible
// again today.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, t.Location())
}

// plusOneHour is the end-of-day entry lifetime; the entry is bookkeeping
// only and just needs to outlive the tolerance window.
func plusOneHour(t time.Time) time.Time {
	return t.Add(1 * time.Hour)
}
