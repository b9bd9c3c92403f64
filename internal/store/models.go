// Package store persists exclusion entries and system configuration across
// two backends: a remote Postgres store and a local JSON file store, fronted
// by a sticky-failover orchestrator.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies which notification a suppression record applies to.
type MessageType string

const (
	MessageType30Min    MessageType = "30min"
	MessageTypeEndOfDay MessageType = "end_of_day"
)

// Valid reports whether mt is one of the two known message types.
func (mt MessageType) Valid() bool {
	return mt == MessageType30Min || mt == MessageTypeEndOfDay
}

// ExclusionEntry records that a notification of MessageType was sent for
// EntityID at SentAt, suppressing resends until ExpiresAt. Entries are
// immutable once persisted; they go inert when ExpiresAt passes and are
// physically removed by cleanup sweeps.
type ExclusionEntry struct {
	ID          string      `json:"id"`
	EntityID    string      `json:"entity_id"`
	MessageType MessageType `json:"message_type"`
	SentAt      time.Time   `json:"sent_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// NewEntry is an ExclusionEntry before a backend assigned it an ID.
type NewEntry struct {
	EntityID    string
	MessageType MessageType
	SentAt      time.Time
	ExpiresAt   time.Time
}

var errEntryInvalid = errors.New("invalid exclusion entry")

// Validate rejects malformed entries before any I/O happens.
func (e NewEntry) Validate() error {
	if e.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", errEntryInvalid)
	}
	if !e.MessageType.Valid() {
		return fmt.Errorf("%w: unknown message type %q", errEntryInvalid, e.MessageType)
	}
	if !e.ExpiresAt.After(e.SentAt) {
		return fmt.Errorf("%w: expires_at must be after sent_at", errEntryInvalid)
	}
	return nil
}

// Expired reports whether the entry no longer suppresses anything.
func (e ExclusionEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// ExclusionStore is the contract shared by both backends and the
// orchestrator. No method returns an error: each implementation catches and
// logs failures internally and maps them to the documented sentinel (empty
// string, empty slice, zero, false). Callers must treat the sentinel as
// "operation did not take effect".
type ExclusionStore interface {
	// AddEntry persists a validated entry and returns its ID, or "" when
	// the entry was not persisted.
	AddEntry(ctx context.Context, e NewEntry) string

	// GetEntries returns all non-expired entries, or an empty slice on
	// failure.
	GetEntries(ctx context.Context) []ExclusionEntry

	// CleanupExpired removes expired entries and returns how many were
	// dropped. Idempotent; 0 on failure.
	CleanupExpired(ctx context.Context) int

	SetConfigValue(ctx context.Context, key, value string) bool
	GetConfigValue(ctx context.Context, key string) (string, bool)
	GetAllConfig(ctx context.Context) map[string]string

	// Healthy reflects last-known connectivity; it never performs I/O.
	Healthy() bool
}
