// Package health tracks last-known connectivity of the remote store.
package health

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tracker holds a boolean up/down state plus operation counters for the
// admin status endpoint.
//
// The flag only moves on Connect/Reconnect outcomes (MarkUp/MarkDown);
// individual operation failures are counted but do not flip it. Recovery is
// manual: nothing in here probes the remote store on its own.
type Tracker struct {
	mu     sync.RWMutex
	name   string
	logger *zap.Logger

	up          bool
	lastError   string
	lastFailure time.Time
	lastChange  time.Time

	totalOps       int64
	totalFailures  int64
	totalFailovers int64
}

// NewTracker creates a tracker that starts in the down state until the first
// successful connect.
func NewTracker(name string, logger *zap.Logger) *Tracker {
	return &Tracker{
		name:       name,
		logger:     logger,
		lastChange: time.Now(),
	}
}

// MarkUp records a successful connect.
func (t *Tracker) MarkUp() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.up {
		t.up = true
		t.lastChange = time.Now()
		t.logger.Info("backend marked healthy", zap.String("name", t.name))
	}
}

// MarkDown records a failed connect or an operator-visible loss of the
// backend.
func (t *Tracker) MarkDown(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.lastError = err.Error()
		t.lastFailure = time.Now()
	}
	if t.up {
		t.up = false
		t.lastChange = time.Now()
		t.logger.Warn("backend marked unhealthy",
			zap.String("name", t.name),
			zap.Error(err),
		)
	}
}

// RecordSuccess counts one successful operation.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalOps++
}

// RecordFailure counts one failed operation. The up flag is left alone: per
// the storage contract, only connect attempts move it.
func (t *Tracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalOps++
	t.totalFailures++
	t.lastFailure = time.Now()
	if err != nil {
		t.lastError = err.Error()
	}
}

// RecordFailover counts one orchestrator failover event.
func (t *Tracker) RecordFailover() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFailovers++
}

// Up returns the last-known connectivity state without any I/O.
func (t *Tracker) Up() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.up
}

// Stats is a snapshot for monitoring/status endpoints.
type Stats struct {
	Name           string `json:"name"`
	Up             bool   `json:"up"`
	LastError      string `json:"last_error,omitempty"`
	LastFailure    string `json:"last_failure,omitempty"`
	LastChange     string `json:"last_change"`
	TotalOps       int64  `json:"total_ops"`
	TotalFailures  int64  `json:"total_failures"`
	TotalFailovers int64  `json:"total_failovers"`
}

// Stats returns current tracker statistics.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{
		Name:           t.name,
		Up:             t.up,
		LastError:      t.lastError,
		LastChange:     t.lastChange.Format(time.RFC3339),
		TotalOps:       t.totalOps,
		TotalFailures:  t.totalFailures,
		TotalFailovers: t.totalFailovers,
	}
	if !t.lastFailure.IsZero() {
		s.LastFailure = t.lastFailure.Format(time.RFC3339)
	}
	return s
}
