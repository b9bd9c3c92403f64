package chatapi

import "time"

// WaitingEntity is one patient currently waiting in the helpdesk queue.
// It is read-only input sourced from the chat API; queuewatch never writes
// it back.
type WaitingEntity struct {
	ID              string    `json:"id"`
	SectorID        string    `json:"sector_id"`
	ChannelID       string    `json:"channel_id"`
	WaitTimeMinutes int       `json:"wait_time_minutes"`
	WaitStartTime   time.Time `json:"wait_start_time"`
}
