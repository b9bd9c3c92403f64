// Package settings holds the runtime system configuration: pause flags,
// sector/channel exclusions, wait-time bounds, business hours and the
// end-of-day schedule. It is persisted as flat key/value pairs through the
// storage orchestrator and mutated only through a validated merge.
package settings

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Storage keys. Values are strings; lists are comma-joined.
const (
	KeyFlowPaused       = "flow_paused"
	KeyEndOfDayPaused   = "end_of_day_paused"
	KeyExcludedSectors  = "excluded_sectors"
	KeyExcludedChannels = "excluded_channels"
	KeyEndOfDayTime     = "end_of_day_time"
	KeyMinWaitMinutes   = "min_wait_minutes"
	KeyMaxWaitMinutes   = "max_wait_minutes"
	KeyBusinessStart    = "business_start"
	KeyBusinessEnd      = "business_end"
	KeyWorkingDays      = "working_days"
)

var hhmmPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// SystemConfig is the fully defined runtime configuration. Every field
// always carries a value; defaults fill whatever the store is missing.
type SystemConfig struct {
	FlowPaused       bool           `json:"flow_paused"`
	EndOfDayPaused   bool           `json:"end_of_day_paused"`
	ExcludedSectors  []string       `json:"excluded_sectors"`
	ExcludedChannels []string       `json:"excluded_channels"`
	EndOfDayTime     string         `json:"end_of_day_time" validate:"required,hhmm"`
	MinWaitMinutes   int            `json:"min_wait_minutes" validate:"gte=1"`
	MaxWaitMinutes   int            `json:"max_wait_minutes" validate:"gtfield=MinWaitMinutes"`
	BusinessStart    string         `json:"business_start" validate:"required,hhmm"`
	BusinessEnd      string         `json:"business_end" validate:"required,hhmm"`
	WorkingDays      []time.Weekday `json:"working_days" validate:"min=1"`
}

// Default returns the configuration used when the store is empty.
func Default() SystemConfig {
	return SystemConfig{
		FlowPaused:       false,
		EndOfDayPaused:   false,
		ExcludedSectors:  []string{},
		ExcludedChannels: []string{},
		EndOfDayTime:     "17:30",
		MinWaitMinutes:   30,
		MaxWaitMinutes:   720,
		BusinessStart:    "08:00",
		BusinessEnd:      "18:00",
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

// SectorExcluded reports whether a sector is on the exclusion list.
func (c SystemConfig) SectorExcluded(sectorID string) bool {
	for _, s := range c.ExcludedSectors {
		if s == sectorID {
			return true
		}
	}
	return false
}

// ChannelExcluded reports whether a channel is on the exclusion list.
func (c SystemConfig) ChannelExcluded(channelID string) bool {
	for _, ch := range c.ExcludedChannels {
		if ch == channelID {
			return true
		}
	}
	return false
}

// WorkingDay reports whether t falls on a configured working day.
func (c SystemConfig) WorkingDay(t time.Time) bool {
	for _, d := range c.WorkingDays {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

// WithinBusinessHours reports whether t is inside [BusinessStart,
// BusinessEnd) on a working day.
func (c SystemConfig) WithinBusinessHours(t time.Time) bool {
	if !c.WorkingDay(t) {
		return false
	}

	startH, startM, err := ParseHHMM(c.BusinessStart)
	if err != nil {
		return false
	}
	endH, endM, err := ParseHHMM(c.BusinessEnd)
	if err != nil {
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	return minutes >= startH*60+startM && minutes < endH*60+endM
}

// WithinEndOfDayWindow reports whether t is within tolerance of the
// configured end-of-day time.
func (c SystemConfig) WithinEndOfDayWindow(t time.Time, tolerance time.Duration) bool {
	h, m, err := ParseHHMM(c.EndOfDayTime)
	if err != nil {
		return false
	}

	target := time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, t.Location())
	diff := t.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// ParseHHMM parses a 24h "HH:MM" string.
func ParseHHMM(s string) (hour, minute int, err error) {
	if !hhmmPattern.MatchString(s) {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	parts := strings.SplitN(s, ":", 2)
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute, nil
}

// FromKV builds a SystemConfig from stored key/values, with defaults
// filling any missing or unparseable key.
func FromKV(kv map[string]string) SystemConfig {
	cfg := Default()

	if v, ok := kv[KeyFlowPaused]; ok {
		cfg.FlowPaused = v == "true"
	}
	if v, ok := kv[KeyEndOfDayPaused]; ok {
		cfg.EndOfDayPaused = v == "true"
	}
	if v, ok := kv[KeyExcludedSectors]; ok {
		cfg.ExcludedSectors = splitList(v)
	}
	if v, ok := kv[KeyExcludedChannels]; ok {
		cfg.ExcludedChannels = splitList(v)
	}
	if v, ok := kv[KeyEndOfDayTime]; ok && hhmmPattern.MatchString(v) {
		cfg.EndOfDayTime = v
	}
	if v, ok := kv[KeyMinWaitMinutes]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.MinWaitMinutes = n
		}
	}
	if v, ok := kv[KeyMaxWaitMinutes]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > cfg.MinWaitMinutes {
			cfg.MaxWaitMinutes = n
		}
	}
	if v, ok := kv[KeyBusinessStart]; ok && hhmmPattern.MatchString(v) {
		cfg.BusinessStart = v
	}
	if v, ok := kv[KeyBusinessEnd]; ok && hhmmPattern.MatchString(v) {
		cfg.BusinessEnd = v
	}
	if v, ok := kv[KeyWorkingDays]; ok {
		if days := parseWorkingDays(v); len(days) > 0 {
			cfg.WorkingDays = days
		}
	}

	return cfg
}

// ToKV serializes the configuration into its stored key/value form.
func (c SystemConfig) ToKV() map[string]string {
	return map[string]string{
		KeyFlowPaused:       strconv.FormatBool(c.FlowPaused),
		KeyEndOfDayPaused:   strconv.FormatBool(c.EndOfDayPaused),
		KeyExcludedSectors:  strings.Join(c.ExcludedSectors, ","),
		KeyExcludedChannels: strings.Join(c.ExcludedChannels, ","),
		KeyEndOfDayTime:     c.EndOfDayTime,
		KeyMinWaitMinutes:   strconv.Itoa(c.MinWaitMinutes),
		KeyMaxWaitMinutes:   strconv.Itoa(c.MaxWaitMinutes),
		KeyBusinessStart:    c.BusinessStart,
		KeyBusinessEnd:      c.BusinessEnd,
		KeyWorkingDays:      joinWorkingDays(c.WorkingDays),
	}
}

func splitList(v string) []string {
	if v == "" {
		return []string{}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseWorkingDays(v string) []time.Weekday {
	var days []time.Weekday
	for _, p := range splitList(v) {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 6 {
			return nil
		}
		days = append(days, time.Weekday(n))
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

func joinWorkingDays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}
