package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/health"
	"github.com/mvnascimento/queuewatch/internal/metrics"
	"github.com/mvnascimento/queuewatch/internal/redis"
)

// RemoteBackend is an ExclusionStore whose connection must be established
// explicitly.
type RemoteBackend interface {
	ExclusionStore
	Connect(ctx context.Context) bool
}

// Orchestrator presents both backends as a single ExclusionStore.
//
// The remote store is preferred. When an operation against it comes back as
// the failure sentinel — including an empty result set, matching the
// backend contract — or the remote store is unhealthy, the call is retried
// against local storage and the orchestrator stays on local for every
// subsequent call. Only an explicit Reconnect moves it back to remote.
type Orchestrator struct {
	mu          sync.RWMutex
	usingRemote bool

	remote  RemoteBackend
	local   ExclusionStore
	cache   *redis.ExclusionCache // nil when Redis is not configured
	tracker *health.Tracker
	logger  *zap.Logger
}

// NewOrchestrator wires the two backends. cache may be nil.
func NewOrchestrator(remote RemoteBackend, local ExclusionStore, cache *redis.ExclusionCache, tracker *health.Tracker, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		remote:  remote,
		local:   local,
		cache:   cache,
		tracker: tracker,
		logger:  logger,
	}
}

// Initialize attempts the one startup connection to the remote store and
// picks the primary backend accordingly.
func (o *Orchestrator) Initialize(ctx context.Context) {
	ok := o.remote.Connect(ctx)
	o.setUsingRemote(ok)

	if ok {
		o.logger.Info("storage initialized with remote backend")
	} else {
		o.logger.Warn("remote store unavailable at startup, using local storage")
	}
}

// Reconnect re-attempts the remote connection on operator request. This is
// the only path back to the remote backend after a failover.
func (o *Orchestrator) Reconnect(ctx context.Context) bool {
	ok := o.remote.Connect(ctx)
	if ok {
		o.setUsingRemote(true)
		o.logger.Info("remote store reconnected, resuming remote usage")
	} else {
		o.logger.Warn("remote store reconnect failed, staying on local storage")
	}
	return ok
}

// UsingRemote reports which backend is currently active.
func (o *Orchestrator) UsingRemote() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.usingRemote
}

// Stats exposes remote health for the status endpoint.
func (o *Orchestrator) Stats() health.Stats {
	return o.tracker.Stats()
}

// AddEntry persists through the active backend, falling back to local.
// Validation happens here, before any backend is involved: a rejected entry
// is the caller's bug, not a backend failure, and must not trip the failover.
func (o *Orchestrator) AddEntry(ctx context.Context, e NewEntry) string {
	if err := e.Validate(); err != nil {
		o.logger.Warn("rejected exclusion entry", zap.Error(err))
		return ""
	}

	if o.UsingRemote() {
		id := o.remote.AddEntry(ctx, e)
		if id != "" && o.remote.Healthy() {
			o.cacheEntry(ctx, e)
			return id
		}
		o.failOver("add_entry")
	}

	id := o.local.AddEntry(ctx, e)
	if id != "" {
		o.cacheEntry(ctx, e)
	}
	return id
}

// GetEntries returns the active backend's non-expired entries.
func (o *Orchestrator) GetEntries(ctx context.Context) []ExclusionEntry {
	if o.UsingRemote() {
		entries := o.remote.GetEntries(ctx)
		if len(entries) > 0 && o.remote.Healthy() {
			return entries
		}
		o.failOver("get_entries")
	}
	return o.local.GetEntries(ctx)
}

// CleanupExpired sweeps the active backend. A zero count is a normal result
// here, so only remote unhealthiness triggers the failover.
func (o *Orchestrator) CleanupExpired(ctx context.Context) int {
	if o.UsingRemote() {
		if o.remote.Healthy() {
			count := o.remote.CleanupExpired(ctx)
			metrics.RecordExclusionsCleaned(count)
			return count
		}
		o.failOver("cleanup_expired")
	}
	count := o.local.CleanupExpired(ctx)
	metrics.RecordExclusionsCleaned(count)
	return count
}

// SetConfigValue writes the key to the active backend. While remote is
// active and healthy the value is mirrored to local storage so a later
// failover starts from reasonably fresh config.
func (o *Orchestrator) SetConfigValue(ctx context.Context, key, value string) bool {
	if o.UsingRemote() {
		ok := o.remote.SetConfigValue(ctx, key, value)
		if ok && o.remote.Healthy() {
			if !o.local.SetConfigValue(ctx, key, value) {
				o.logger.Warn("config mirror to local storage failed", zap.String("key", key))
			}
			return true
		}
		o.failOver("set_config")
	}
	return o.local.SetConfigValue(ctx, key, value)
}

// GetConfigValue reads one key from the active backend.
func (o *Orchestrator) GetConfigValue(ctx context.Context, key string) (string, bool) {
	if o.UsingRemote() {
		value, ok := o.remote.GetConfigValue(ctx, key)
		if ok && o.remote.Healthy() {
			return value, true
		}
		o.failOver("get_config")
	}
	return o.local.GetConfigValue(ctx, key)
}

// GetAllConfig merges both backends while remote is healthy, with remote
// winning on key collisions. When remote is unhealthy or inactive, local is
// returned alone.
func (o *Orchestrator) GetAllConfig(ctx context.Context) map[string]string {
	if o.UsingRemote() {
		remoteCfg := o.remote.GetAllConfig(ctx)
		if len(remoteCfg) > 0 && o.remote.Healthy() {
			merged := o.local.GetAllConfig(ctx)
			for k, v := range remoteCfg {
				merged[k] = v
			}
			return merged
		}
		o.failOver("get_all_config")
	}
	return o.local.GetAllConfig(ctx)
}

// Healthy reports the active backend's health.
func (o *Orchestrator) Healthy() bool {
	if o.UsingRemote() {
		return o.remote.Healthy()
	}
	return o.local.Healthy()
}

// IsExcluded reports whether a live suppression exists for the pair. The
// Redis cache answers positively without a store scan; misses fall through
// to the entry list.
func (o *Orchestrator) IsExcluded(ctx context.Context, entityID string, mt MessageType) bool {
	if o.cache != nil {
		hit, err := o.cache.IsExcluded(ctx, entityID, string(mt))
		if err != nil {
			o.logger.Warn("exclusion cache lookup failed", zap.Error(err))
		} else if hit {
			metrics.RecordCacheHit()
			return true
		}
	}

	for _, e := range o.GetEntries(ctx) {
		if e.EntityID == entityID && e.MessageType == mt {
			return true
		}
	}
	return false
}

func (o *Orchestrator) cacheEntry(ctx context.Context, e NewEntry) {
	if o.cache == nil {
		return
	}
	if err := o.cache.MarkExcluded(ctx, e.EntityID, string(e.MessageType), e.ExpiresAt); err != nil {
		o.logger.Warn("exclusion cache write failed",
			zap.Error(err),
			zap.String("entity_id", e.EntityID),
		)
	}
}

// failOver flips the orchestrator to local storage. The flip is sticky:
// remote is not retried until Reconnect succeeds.
func (o *Orchestrator) failOver(operation string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.usingRemote {
		return
	}
	o.usingRemote = false
	o.tracker.RecordFailover()
	metrics.RecordFailover(operation)
	metrics.SetUsingRemote(false)

	o.logger.Warn("storage failover to local backend",
		zap.String("operation", operation),
	)
}

func (o *Orchestrator) setUsingRemote(v bool) {
	o.mu.Lock()
	o.usingRemote = v
	o.mu.Unlock()
	metrics.SetUsingRemote(v)
}
