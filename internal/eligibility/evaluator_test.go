package eligibility

import (
	"testing"
	"time"

	"github.com/mvnascimento/queuewatch/internal/chatapi"
	"github.com/mvnascimento/queuewatch/internal/settings"
)

var (
	neverExcluded  = func(string) bool { return false }
	alwaysExcluded = func(string) bool { return true }
)

// Monday 10:00 UTC, well inside default business hours.
var businessMorning = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

func waitingEntity() chatapi.WaitingEntity {
	return chatapi.WaitingEntity{
		ID:              "p1",
		SectorID:        "s1",
		ChannelID:       "c1",
		WaitTimeMinutes: 35,
		WaitStartTime:   businessMorning.Add(-35 * time.Minute),
	}
}

func TestEligibleFor30MinHappyPath(t *testing.T) {
	ev := &Evaluator{}
	cfg := settings.Default()

	if !ev.EligibleFor30Min(waitingEntity(), cfg, neverExcluded, businessMorning) {
		t.Fatal("35-minute wait with default config should be eligible")
	}
}

func TestEligibleFor30MinWaitBounds(t *testing.T) {
	ev := &Evaluator{}
	cfg := settings.Default() // 30..720

	e := waitingEntity()

	e.WaitTimeMinutes = 29
	if ev.EligibleFor30Min(e, cfg, neverExcluded, businessMorning) {
		t.Error("below min wait must not be eligible")
	}

	e.WaitTimeMinutes = 30
	if !ev.EligibleFor30Min(e, cfg, neverExcluded, businessMorning) {
		t.Error("min wait boundary should be eligible")
	}

	e.WaitTimeMinutes = 721
	if ev.EligibleFor30Min(e, cfg, neverExcluded, businessMorning) {
		t.Error("stale entries above max wait must not be eligible")
	}
}

func TestEligibleFor30MinSuppressedByExclusion(t *testing.T) {
	ev := &Evaluator{}
	cfg := settings.Default()

	if ev.EligibleFor30Min(waitingEntity(), cfg, alwaysExcluded, businessMorning) {
		t.Fatal("a live exclusion must suppress the send regardless of other fields")
	}
}

func TestEligibleFor30MinFlowPaused(t *testing.T) {
	ev := &Evaluator{}
	cfg := settings.Default()
	cfg.FlowPaused = true

	if ev.EligibleFor30Min(waitingEntity(), cfg, neverExcluded, businessMorning) {
		t.Fatal("paused flow must suppress an otherwise fully eligible entity")
	}
}

func TestEligibleFor30MinSectorAndChannelExclusions(t *testing.T) {
	ev := &Evaluator{}

	cfg := settings.Default()
	cfg.ExcludedSectors = []string{"s1"}
	if ev.EligibleFor30Min(waitingEntity(), cfg, neverExcluded, businessMorning) {
		t.Error("excluded sector must not be eligible")
	}

	cfg = settings.Default()
	cfg.ExcludedChannels = []string{"c1"}
	if ev.EligibleFor30Min(waitingEntity(), cfg, neverExcluded, businessMorning) {
		t.Error("excluded channel must not be eligible")
	}
}

func TestEligibleFor30MinOutsideBusinessHours(t *testing.T) {
	ev := &Evaluator{}
	cfg := settings.Default()

	night := time.Date(2026, 8, 31, 22, 0, 0, 0, time.UTC)
	if ev.EligibleFor30Min(waitingEntity(), cfg, neverExcluded, night) {
		t.Fatal("outside business hours must not be eligible")
	}
}

func TestEligibleFor30MinInjectedBusinessHoursPolicy(t *testing.T) {
	cfg := settings.Default()

	ev := &Evaluator{BusinessHours: func(time.Time) bool { return false }}
	if ev.EligibleFor30Min(waitingEntity(), cfg, neverExcluded, businessMorning) {
		t.Fatal("injected policy must override the config-derived one")
	}

	ev = &Evaluator{BusinessHours: func(time.Time) bool { return true }}
	night := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	if !ev.EligibleFor30Min(waitingEntity(), cfg, neverExcluded, night) {
		t.Fatal("permissive injected policy should allow off-hours sends")
	}
}

func TestEligibleForEndOfDayWindow(t *testing.T) {
	ev := &Evaluator{}
	cfg := settings.Default()
	cfg.EndOfDayTime = "17:30"

	inWindow := time.Date(2026, 8, 31, 17, 28, 0, 0, time.UTC)
	if !ev.EligibleForEndOfDay(waitingEntity(), cfg, inWindow) {
		t.Error("inside tolerance window should be eligible")
	}

	outOfWindow := time.Date(2026, 8, 31, 17, 0, 0, 0, time.UTC)
	if ev.EligibleForEndOfDay(waitingEntity(), cfg, outOfWindow) {
		t.Error("outside tolerance window must not be eligible")
	}

	weekend := time.Date(2026, 9, 5, 17, 30, 0, 0, time.UTC) // Saturday
	if ev.EligibleForEndOfDay(waitingEntity(), cfg, weekend) {
		t.Error("non-working day must not be eligible")
	}
}

func TestEligibleForEndOfDayIgnoresExclusions(t *testing.T) {
	// End-of-day is a blast: prior exclusion entries are not consulted at
	// all, unlike the 30-minute path.
	ev := &Evaluator{}
	cfg := settings.Default()
	cfg.EndOfDayTime = "17:30"
	inWindow := time.Date(2026, 8, 31, 17, 30, 0, 0, time.UTC)

	e := waitingEntity()
	e.WaitTimeMinutes = 5 // wait bounds do not apply either
	if !ev.EligibleForEndOfDay(e, cfg, inWindow) {
		t.Fatal("end-of-day must not depend on wait time or exclusion state")
	}
}

func TestEligibleForEndOfDayPauses(t *testing.T) {
	ev := &Evaluator{}
	inWindow := time.Date(2026, 8, 31, 17, 30, 0, 0, time.UTC)

	cfg := settings.Default()
	cfg.EndOfDayTime = "17:30"
	cfg.FlowPaused = true
	if ev.EligibleForEndOfDay(waitingEntity(), cfg, inWindow) {
		t.Error("flow pause must suppress end-of-day sends")
	}

	cfg = settings.Default()
	cfg.EndOfDayTime = "17:30"
	cfg.EndOfDayPaused = true
	if ev.EligibleForEndOfDay(waitingEntity(), cfg, inWindow) {
		t.Error("end-of-day pause must suppress end-of-day sends")
	}
}

func TestEligibleForEndOfDaySectorExclusion(t *testing.T) {
	ev := &Evaluator{}
	cfg := settings.Default()
	cfg.EndOfDayTime = "17:30"
	cfg.ExcludedSectors = []string{"s1"}
	inWindow := time.Date(2026, 8, 31, 17, 30, 0, 0, time.UTC)

	if ev.EligibleForEndOfDay(waitingEntity(), cfg, inWindow) {
		t.Fatal("sector exclusions apply to end-of-day too")
	}
}

func TestEligibleForEndOfDayCustomTolerance(t *testing.T) {
	ev := &Evaluator{EndOfDayTolerance: time.Minute}
	cfg := settings.Default()
	cfg.EndOfDayTime = "17:30"

	at := time.Date(2026, 8, 31, 17, 33, 0, 0, time.UTC)
	if ev.EligibleForEndOfDay(waitingEntity(), cfg, at) {
		t.Fatal("tighter tolerance must shrink the window")
	}
}
