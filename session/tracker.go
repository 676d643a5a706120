// Package session assigns stable, human-meaningful slot numbers to players
// across polls. The query protocol provides no persistent player IDs, so a
// session is keyed by its estimated join epoch (now minus reported
// connected duration), matched fuzzily poll-to-poll.
package session

import (
	"fmt"
	"sort"
	"time"

	"gitlab.com/kiverix/reployer/model"
)

const (
	// Placeholder shown while the query layer has not yet reported a real
	// name for a freshly joined player.
	Placeholder = "connecting..."

	// DefaultMaxSlots is used when the server did not advertise a player
	// limit.
	DefaultMaxSlots = 17

	// epochTolerance is how far a candidate join-epoch estimate may drift
	// from an existing session and still be considered the same player.
	epochTolerance = 5

	// settleDelay is how long a first-seen real name must stand before it is
	// frozen as the session's display name.
	settleDelay = time.Second
)

type sessionEntry struct {
	slot         int
	originalName string
	settled      bool
	pendingName  string
	pendingAt    time.Time
}

// Tracker reconciles raw roster snapshots into stable display rows. Not safe
// for concurrent use; serialize through the poll dispatch goroutine.
type Tracker struct {
	sessions  map[int64]*sessionEntry
	assigned  map[int]bool
	resetHour int
}

func New() *Tracker {
	return &Tracker{
		sessions:  make(map[int64]*sessionEntry),
		assigned:  make(map[int]bool),
		resetHour: -1,
	}
}

// Reconcile runs once per successful poll. It matches the roster against the
// known sessions, drops sessions absent from the snapshot, assigns slot
// numbers first-fit and returns the rendered rows sorted by slot. Callers
// must not invoke it for failed polls; the previous rows simply persist.
func (t *Tracker) Reconcile(roster []model.RawPlayer, maxSlots int, now time.Time) []model.PlayerRow {
	t.resetIfNewHour(now)

	if len(roster) == 0 {
		t.Reset()
		return nil
	}

	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}

	type candidate struct {
		epoch  int64
		player model.RawPlayer
	}

	candidates := make([]candidate, 0, len(roster))
	seen := make(map[int64]bool, len(roster))
	for _, player := range roster {
		epoch := estimateJoinEpoch(player.Duration, now)
		if existing, matched := t.findExisting(epoch); matched {
			epoch = existing
		}
		candidates = append(candidates, candidate{epoch, player})
		seen[epoch] = true
	}

	// Sessions absent from the current snapshot are dropped immediately and
	// their slot numbers returned to the pool.
	for epoch, entry := range t.sessions {
		if !seen[epoch] {
			delete(t.assigned, entry.slot)
			delete(t.sessions, epoch)
		}
	}

	rows := make([]model.PlayerRow, 0, len(candidates))
	for _, c := range candidates {
		entry, present := t.sessions[c.epoch]
		if !present {
			entry = &sessionEntry{slot: t.assignSlot(maxSlots)}
			t.sessions[c.epoch] = entry
		}

		name := c.player.Name
		if name == "" {
			name = Placeholder
		}

		// The first real name is frozen only after it has stood for the
		// settle delay; until then the live name is shown.
		if !entry.settled && name != Placeholder {
			if entry.pendingAt.IsZero() {
				entry.pendingName = name
				entry.pendingAt = now
			} else if now.Sub(entry.pendingAt) >= settleDelay {
				entry.originalName = entry.pendingName
				entry.settled = true
			}
		}

		display := name
		if entry.settled {
			display = entry.originalName
		}

		rows = append(rows, model.PlayerRow{
			Slot: entry.slot,
			Line: renderLine(entry.slot, display, c.player.Duration),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Slot < rows[j].Slot })
	return rows
}

// Reset force-clears all sessions, slot assignments and pending settles.
func (t *Tracker) Reset() {
	t.sessions = make(map[int64]*sessionEntry)
	t.assigned = make(map[int]bool)
}

func (t *Tracker) resetIfNewHour(now time.Time) {
	hour := now.UTC().Hour()
	if t.resetHour != hour {
		if t.resetHour >= 0 {
			t.Reset()
		}
		t.resetHour = hour
	}
}

// findExisting matches a candidate epoch to the nearest known session within
// the tolerance window. Keys are scanned in sorted order so a tie inside the
// window resolves deterministically.
func (t *Tracker) findExisting(epoch int64) (int64, bool) {
	keys := make([]int64, 0, len(t.sessions))
	for k := range t.sessions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, existing := range keys {
		delta := existing - epoch
		if delta < 0 {
			delta = -delta
		}
		if delta <= epochTolerance {
			return existing, true
		}
	}
	return 0, false
}

// assignSlot hands out the lowest free number in 1..maxSlots. An exhausted
// pool oversubscribes maxSlots itself rather than rejecting the player.
func (t *Tracker) assignSlot(maxSlots int) int {
	for n := 1; n <= maxSlots; n++ {
		if !t.assigned[n] {
			t.assigned[n] = true
			return n
		}
	}
	t.assigned[maxSlots] = true
	return maxSlots
}

func estimateJoinEpoch(duration float64, now time.Time) int64 {
	seconds := int64(duration)
	if seconds < 0 {
		seconds = 0
	}
	return now.Unix() - seconds
}

func renderLine(slot int, name string, duration float64) string {
	seconds := int(duration)
	if seconds > 0 {
		hours := seconds / 3600
		minutes := (seconds % 3600) / 60
		return fmt.Sprintf("[%02d] %s (%dh %dm)", slot, name, hours, minutes)
	}
	return fmt.Sprintf("[%02d] %s", slot, name)
}
