package mapcycle

import (
	"strings"
	"time"
)

// CueID names a one-shot audio/visual notification. The IDs mirror the
// sound files the UI plays for them.
type CueID string

const (
	CueRestartFirst  CueID = "restart_first"
	CueRestartSecond CueID = "restart_second"
	CueMinute30      CueID = "thirty"
	CueMinute45      CueID = "fifteen"
	CueMinute55      CueID = "five"
	CueNewCycle      CueID = "new_cycle"
	CueMapOrdinance  CueID = "ordinance"
	CueMapOrdCry     CueID = "ord_cry"
	CueMapOrdErr     CueID = "ord_err"
	CueMapOrdRen     CueID = "ord_ren"
	CueMapChange     CueID = "ord_mapchange"
)

// RestartPhase is the position inside the hourly server restart window.
type RestartPhase string

const (
	PhaseNone   RestartPhase = "none"
	PhaseFirst  RestartPhase = "first"
	PhaseSecond RestartPhase = "second"
)

// specialMapCues maps the named special maps to their dedicated cues. Any
// other "ord_" map falls back to the generic map-change cue.
var specialMapCues = map[string]CueID{
	"ordinance": CueMapOrdinance,
	"ord_cry":   CueMapOrdCry,
	"ord_err":   CueMapOrdErr,
	"ord_ren":   CueMapOrdRen,
}

// minuteCues fire at second 0 of the given minutes, once per occurrence.
var minuteCues = map[int]CueID{
	30: CueMinute30,
	45: CueMinute45,
	55: CueMinute55,
}

// TickResult is everything the presentation layer needs from one wall-clock
// tick: the schedule lookup, the restart phase and the cues that fired on
// exactly this tick.
type TickResult struct {
	ExpectedMap    string       `json:"expected_map"`
	PreviousMap    string       `json:"previous_map"`
	NextMap        string       `json:"next_map"`
	SecondsToCycle int          `json:"seconds_to_cycle"`
	RestartPhase   RestartPhase `json:"restart_phase"`
	Cues           []CueID      `json:"cues,omitempty"`
}

// Scheduler holds the edge-trigger state that makes every cue fire once per
// occurrence instead of once per tick. Purely a function of monotonically
// advancing wall-clock input plus this state, so replaying the same tick
// sequence is idempotent. Not safe for concurrent use.
type Scheduler struct {
	lastPhase        RestartPhase
	lastMinuteCue    int
	newCycleHour     int
	lastKnownMap     string
	haveLastKnownMap bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		lastPhase:     PhaseNone,
		lastMinuteCue: -1,
		newCycleHour:  -1,
	}
}

// Tick evaluates one wall-clock instant (interpreted in UTC, the server's
// authoritative time zone).
func (s *Scheduler) Tick(now time.Time) TickResult {
	now = now.UTC()
	hour, minute, second := now.Hour(), now.Minute(), now.Second()

	result := TickResult{
		ExpectedMap:    MapForHour(hour),
		PreviousMap:    MapForHour(hour - 1),
		NextMap:        MapForHour(hour + 1),
		SecondsToCycle: (59-minute)*60 + (59 - second),
		RestartPhase:   phaseFor(minute, second),
	}

	// Restart phase cues fire on the transition into a non-NONE phase; the
	// marker clears once the phase returns to NONE so the next hour fires
	// again.
	if result.RestartPhase != s.lastPhase {
		s.lastPhase = result.RestartPhase
		switch result.RestartPhase {
		case PhaseFirst:
			result.Cues = append(result.Cues, CueRestartFirst)
		case PhaseSecond:
			result.Cues = append(result.Cues, CueRestartSecond)
		}
	}

	if second == 0 {
		if cue, present := minuteCues[minute]; present && s.lastMinuteCue != minute {
			s.lastMinuteCue = minute
			result.Cues = append(result.Cues, cue)
		}
		if minute == 59 && s.newCycleHour != hour {
			s.newCycleHour = hour
			result.Cues = append(result.Cues, CueNewCycle)
		}
	}
	if _, present := minuteCues[minute]; !present {
		s.lastMinuteCue = -1
	}

	return result
}

// ObserveMap compares the polled map name against the last observed one and
// returns the cue to fire on a change, if any. The first observation only
// records the baseline.
func (s *Scheduler) ObserveMap(mapName string) (CueID, bool) {
	defer func() {
		s.lastKnownMap = mapName
		s.haveLastKnownMap = true
	}()

	if !s.haveLastKnownMap || s.lastKnownMap == mapName {
		return "", false
	}

	if cue, present := specialMapCues[mapName]; present {
		return cue, true
	}
	if strings.HasPrefix(mapName, "ord_") {
		return CueMapChange, true
	}
	return "", false
}

func phaseFor(minute, second int) RestartPhase {
	switch {
	case minute == 59 && second >= 10:
		return PhaseFirst
	case minute == 1 && second <= 30:
		return PhaseSecond
	default:
		return PhaseNone
	}
}
