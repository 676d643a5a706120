// Package connstate debounces transient query failures into a stable
// ONLINE/UNSTABLE/OFFLINE presentation. A single failed poll never surfaces;
// only a configured run of consecutive failures flips the state, and the
// flip is reported exactly once.
package connstate

import "gitlab.com/kiverix/reployer/model"

// State is the debounced connectivity of a monitored server.
type State string

const (
	StateOnline   State = "online"
	StateUnstable State = "unstable"
	StateOffline  State = "offline"
)

const (
	// DefaultThreshold is the consecutive-failure count at which the state
	// becomes OFFLINE and the transition event fires.
	DefaultThreshold = 5
	// DefaultHardThreshold is the stricter count after which callers stop
	// re-surfacing stale data and show a hard offline presentation.
	DefaultHardThreshold = 15
)

// Tracker consumes poll outcomes and owns the failure hysteresis. It is not
// safe for concurrent use; callers serialize Observe through one dispatch
// goroutine.
type Tracker struct {
	threshold     int
	hardThreshold int
	failCount     int
	lastGood      *model.PollOutcome
	lastOffline   *bool
}

// New creates a tracker. Non-positive thresholds take the defaults; the hard
// threshold is raised to at least the soft one.
func New(threshold, hardThreshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if hardThreshold <= 0 {
		hardThreshold = DefaultHardThreshold
	}
	if hardThreshold < threshold {
		hardThreshold = threshold
	}
	return &Tracker{threshold: threshold, hardThreshold: hardThreshold}
}

// Observe feeds one poll outcome into the state machine and returns the
// resulting state plus whether the online/offline flag flipped on this
// observation. The very first observation sets a silent baseline and never
// reports a transition.
func (t *Tracker) Observe(outcome model.PollOutcome) (State, bool) {
	if outcome.Ok {
		t.failCount = 0
		copied := outcome
		t.lastGood = &copied
	} else {
		t.failCount++
	}

	offline := t.failCount >= t.threshold

	transitioned := false
	if t.lastOffline == nil {
		t.lastOffline = &offline
	} else if *t.lastOffline != offline {
		*t.lastOffline = offline
		transitioned = true
	}

	return t.State(), transitioned
}

// State returns the current debounced state without observing anything.
func (t *Tracker) State() State {
	switch {
	case t.failCount == 0:
		return StateOnline
	case t.failCount < t.threshold:
		return StateUnstable
	default:
		return StateOffline
	}
}

// LastGood returns the most recent successful outcome, re-surfaced while the
// server is failing so consumers can keep showing stale-but-real data. Nil
// until the first successful poll.
func (t *Tracker) LastGood() *model.PollOutcome {
	return t.lastGood
}

// HardOffline reports whether the stricter secondary threshold has been
// exceeded, after which stale data should no longer be displayed.
func (t *Tracker) HardOffline() bool {
	return t.failCount >= t.hardThreshold
}

// FailCount returns the current consecutive-failure count.
func (t *Tracker) FailCount() int {
	return t.failCount
}
