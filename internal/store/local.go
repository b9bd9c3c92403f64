package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	exclusionsFile = "exclusions.json"
	configFile     = "config.json"
)

// Local is the on-disk ExclusionStore backend used when the remote store is
// unavailable. State lives in two JSON documents under the data directory.
//
// Every mutation rewrites the whole file, so the directory must be owned by
// a single process. A mutex serializes access within this process.
type Local struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewLocal creates the data directory if needed and returns the backend.
func NewLocal(dir string, logger *zap.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	return &Local{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}, nil
}

// AddEntry appends an entry with a locally generated ID.
func (l *Local) AddEntry(ctx context.Context, e NewEntry) string {
	if err := e.Validate(); err != nil {
		l.logger.Warn("rejected exclusion entry", zap.Error(err))
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readEntries()
	if err != nil {
		l.logger.Error("failed to read local exclusions", zap.Error(err))
		return ""
	}

	entry := ExclusionEntry{
		ID:          l.newID(),
		EntityID:    e.EntityID,
		MessageType: e.MessageType,
		SentAt:      e.SentAt,
		ExpiresAt:   e.ExpiresAt,
	}
	entries = append(entries, entry)

	if err := l.writeJSON(exclusionsFile, entries); err != nil {
		l.logger.Error("failed to write local exclusions", zap.Error(err))
		return ""
	}

	return entry.ID
}

// GetEntries reads all entries and filters out expired ones.
func (l *Local) GetEntries(ctx context.Context) []ExclusionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readEntries()
	if err != nil {
		l.logger.Error("failed to read local exclusions", zap.Error(err))
		return nil
	}

	now := l.now()
	var active []ExclusionEntry
	for _, e := range entries {
		if !e.Expired(now) {
			active = append(active, e)
		}
	}
	return active
}

// CleanupExpired rewrites the exclusions file without expired entries. The
// file is only touched when something actually changed.
func (l *Local) CleanupExpired(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readEntries()
	if err != nil {
		l.logger.Error("failed to read local exclusions", zap.Error(err))
		return 0
	}

	now := l.now()
	kept := entries[:0]
	for _, e := range entries {
		if !e.Expired(now) {
			kept = append(kept, e)
		}
	}

	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0
	}

	if err := l.writeJSON(exclusionsFile, kept); err != nil {
		l.logger.Error("failed to rewrite local exclusions", zap.Error(err))
		return 0
	}

	l.logger.Info("local cleanup removed expired entries", zap.Int("removed", removed))
	return removed
}

// SetConfigValue stores one key in the local config document.
func (l *Local) SetConfigValue(ctx context.Context, key, value string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.readConfig()
	if err != nil {
		l.logger.Error("failed to read local config", zap.Error(err))
		return false
	}

	cfg[key] = value
	if err := l.writeJSON(configFile, cfg); err != nil {
		l.logger.Error("failed to write local config", zap.Error(err))
		return false
	}
	return true
}

// GetConfigValue reads one key from the local config document.
func (l *Local) GetConfigValue(ctx context.Context, key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.readConfig()
	if err != nil {
		l.logger.Error("failed to read local config", zap.Error(err))
		return "", false
	}

	value, ok := cfg[key]
	return value, ok
}

// GetAllConfig returns the full local config document.
func (l *Local) GetAllConfig(ctx context.Context) map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.readConfig()
	if err != nil {
		l.logger.Error("failed to read local config", zap.Error(err))
		return map[string]string{}
	}
	return cfg
}

// Healthy is true as long as the data directory is usable; the local store
// has no connection to lose.
func (l *Local) Healthy() bool {
	return true
}

func (l *Local) newID() string {
	return ulid.MustNew(ulid.Timestamp(l.now()), rand.Reader).String()
}

func (l *Local) readEntries() ([]ExclusionEntry, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, exclusionsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []ExclusionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", exclusionsFile, err)
	}
	return entries, nil
}

func (l *Local) readConfig() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, configFile))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := make(map[string]string)
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return cfg, nil
}

func (l *Local) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(l.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
