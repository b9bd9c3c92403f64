package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ConfigStore is the slice of the storage orchestrator the manager needs.
type ConfigStore interface {
	SetConfigValue(ctx context.Context, key, value string) bool
	GetAllConfig(ctx context.Context) map[string]string
}

// Patch is a partial configuration update. Nil fields are left unchanged.
type Patch struct {
	FlowPaused       *bool           `json:"flow_paused,omitempty"`
	EndOfDayPaused   *bool           `json:"end_of_day_paused,omitempty"`
	ExcludedSectors  *[]string       `json:"excluded_sectors,omitempty"`
	ExcludedChannels *[]string       `json:"excluded_channels,omitempty"`
	EndOfDayTime     *string         `json:"end_of_day_time,omitempty"`
	MinWaitMinutes   *int            `json:"min_wait_minutes,omitempty"`
	MaxWaitMinutes   *int            `json:"max_wait_minutes,omitempty"`
	BusinessStart    *string         `json:"business_start,omitempty"`
	BusinessEnd      *string         `json:"business_end,omitempty"`
	WorkingDays      *[]time.Weekday `json:"working_days,omitempty"`
}

// Manager owns the live SystemConfig. Components read through Current and
// pick up updates without a restart; all mutation goes through Update so an
// invalid patch can never leave partial state behind.
type Manager struct {
	mu       sync.RWMutex
	cfg      SystemConfig
	store    ConfigStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewManager builds a manager with defaults; call Load to hydrate it from
// the store.
func NewManager(store ConfigStore, logger *zap.Logger) *Manager {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})

	return &Manager{
		cfg:      Default(),
		store:    store,
		validate: v,
		logger:   logger,
	}
}

// Load reads the merged key/value view from the store and swaps in the
// parsed configuration. Missing keys keep their defaults.
func (m *Manager) Load(ctx context.Context) {
	kv := m.store.GetAllConfig(ctx)
	cfg := FromKV(kv)

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.logger.Info("system config loaded",
		zap.Int("stored_keys", len(kv)),
		zap.Bool("flow_paused", cfg.FlowPaused),
		zap.String("end_of_day_time", cfg.EndOfDayTime),
	)
}

// Current returns a copy of the live configuration.
func (m *Manager) Current() SystemConfig {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	cfg.ExcludedSectors = append([]string(nil), cfg.ExcludedSectors...)
	cfg.ExcludedChannels = append([]string(nil), cfg.ExcludedChannels...)
	cfg.WorkingDays = append([]time.Weekday(nil), cfg.WorkingDays...)
	return cfg
}

// Update merges the patch into the current configuration, validates the
// result, persists the changed keys, and swaps the live config. A
// validation failure leaves both memory and store untouched.
func (m *Manager) Update(ctx context.Context, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := m.cfg
	merged.ExcludedSectors = append([]string(nil), m.cfg.ExcludedSectors...)
	merged.ExcludedChannels = append([]string(nil), m.cfg.ExcludedChannels...)
	merged.WorkingDays = append([]time.Weekday(nil), m.cfg.WorkingDays...)

	if p.FlowPaused != nil {
		merged.FlowPaused = *p.FlowPaused
	}
	if p.EndOfDayPaused != nil {
		merged.EndOfDayPaused = *p.EndOfDayPaused
	}
	if p.ExcludedSectors != nil {
		merged.ExcludedSectors = append([]string(nil), (*p.ExcludedSectors)...)
	}
	if p.ExcludedChannels != nil {
		merged.ExcludedChannels = append([]string(nil), (*p.ExcludedChannels)...)
	}
	if p.EndOfDayTime != nil {
		merged.EndOfDayTime = *p.EndOfDayTime
	}
	if p.MinWaitMinutes != nil {
		merged.MinWaitMinutes = *p.MinWaitMinutes
	}
	if p.MaxWaitMinutes != nil {
		merged.MaxWaitMinutes = *p.MaxWaitMinutes
	}
	if p.BusinessStart != nil {
		merged.BusinessStart = *p.BusinessStart
	}
	if p.BusinessEnd != nil {
		merged.BusinessEnd = *p.BusinessEnd
	}
	if p.WorkingDays != nil {
		merged.WorkingDays = append([]time.Weekday(nil), (*p.WorkingDays)...)
	}

	if err := m.validate.Struct(merged); err != nil {
		return fmt.Errorf("invalid system config: %w", err)
	}
	for _, d := range merged.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid system config: unknown weekday %d", d)
		}
	}

	// Persist only what changed. Store failures degrade to the sentinel
	// and are logged; the in-memory config still moves forward so the
	// running system honors the operator's update.
	oldKV := m.cfg.ToKV()
	for key, value := range merged.ToKV() {
		if oldKV[key] == value {
			continue
		}
		if !m.store.SetConfigValue(ctx, key, value) {
			m.logger.Warn("config key not persisted", zap.String("key", key))
		}
	}

	m.cfg = merged
	m.logger.Info("system config updated",
		zap.Bool("flow_paused", merged.FlowPaused),
		zap.Bool("end_of_day_paused", merged.EndOfDayPaused),
		zap.String("end_of_day_time", merged.EndOfDayTime),
	)
	return nil
}
