// Package eligibility holds the pure decision logic for whether a waiting
// entity should be notified right now. It performs no I/O: exclusion state
// and the clock come in as arguments.
package eligibility

import (
	"time"

	"github.com/mvnascimento/queuewatch/internal/chatapi"
	"github.com/mvnascimento/queuewatch/internal/settings"
)

// DefaultEndOfDayTolerance is how far from the configured end-of-day time a
// tick still counts as "end of day".
const DefaultEndOfDayTolerance = 5 * time.Minute

// ExcludedFunc answers whether a live suppression exists for an entity.
type ExcludedFunc func(entityID string) bool

// BusinessHoursFunc is the injected business-hours policy.
type BusinessHoursFunc func(t time.Time) bool

// Evaluator bundles the two eligibility decisions. The zero value uses the
// configuration-driven business-hours policy and the default tolerance.
type Evaluator struct {
	// BusinessHours overrides the config-derived policy when set.
	BusinessHours BusinessHoursFunc

	// EndOfDayTolerance defaults to DefaultEndOfDayTolerance when zero.
	EndOfDayTolerance time.Duration
}

// EligibleFor30Min decides whether the 30-minute wait card should fire for
// this entity now. Suppression is per entity: a live "30min" exclusion
// blocks the send until it expires.
func (ev *Evaluator) EligibleFor30Min(e chatapi.WaitingEntity, cfg settings.SystemConfig, isExcluded ExcludedFunc, now time.Time) bool {
	if e.WaitTimeMinutes < cfg.MinWaitMinutes || e.WaitTimeMinutes > cfg.MaxWaitMinutes {
		return false
	}
	if isExcluded != nil && isExcluded(e.ID) {
		return false
	}
	if cfg.FlowPaused {
		return false
	}
	if !ev.withinBusinessHours(cfg, now) {
		return false
	}
	if cfg.SectorExcluded(e.SectorID) || cfg.ChannelExcluded(e.ChannelID) {
		return false
	}
	return true
}

// EligibleForEndOfDay decides whether the end-of-day card should fire for
// this entity now.
//
// Unlike the 30-minute path this deliberately never consults exclusion
// entries: end-of-day is a blast to everyone still waiting inside the
// window. Repeated sends within the tolerance window are possible when the
// polling interval is shorter than the window.
func (ev *Evaluator) EligibleForEndOfDay(e chatapi.WaitingEntity, cfg settings.SystemConfig, now time.Time) bool {
	tolerance := ev.EndOfDayTolerance
	if tolerance == 0 {
		tolerance = DefaultEndOfDayTolerance
	}

	if !cfg.WithinEndOfDayWindow(now, tolerance) {
		return false
	}
	if !cfg.WorkingDay(now) {
		return false
	}
	if cfg.FlowPaused || cfg.EndOfDayPaused {
		return false
	}
	if cfg.SectorExcluded(e.SectorID) || cfg.ChannelExcluded(e.ChannelID) {
		return false
	}
	return true
}

func (ev *Evaluator) withinBusinessHours(cfg settings.SystemConfig, now time.Time) bool {
	if ev.BusinessHours != nil {
		return ev.BusinessHours(now)
	}
	return cfg.WithinBusinessHours(now)
}
