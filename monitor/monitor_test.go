package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitlab.com/kiverix/reployer/connstate"
	"gitlab.com/kiverix/reployer/download"
	"gitlab.com/kiverix/reployer/events"
	"gitlab.com/kiverix/reployer/model"
	"gitlab.com/kiverix/reployer/monstore"
)

func newTestMonitor(t *testing.T, profile model.ServerProfile, prefs *model.Prefs) (*Monitor, <-chan events.Event, monstore.Store) {
	t.Helper()

	if err := profile.Normalize(); err != nil {
		t.Fatalf("invalid test profile: %s", err)
	}

	bus := events.NewBus()
	store := monstore.New(time.Minute)
	t.Cleanup(bus.Close)
	t.Cleanup(store.Close)

	monitor, err := New(Config{
		Profile:       profile,
		Querier:       Unavailable("not used"),
		Pool:          NewPool(1),
		Bus:           bus,
		Store:         store,
		Downloads:     download.NewManager(),
		DownloadsRoot: t.TempDir(),
		LogsRoot:      t.TempDir(),
		Prefs:         func() model.Prefs { return *prefs },
	})
	if err != nil {
		t.Fatalf("could not create monitor: %s", err)
	}

	_, channel := bus.Subscribe()
	return monitor, channel, store
}

func drain(channel <-chan events.Event) []events.Event {
	var drained []events.Event
	for {
		select {
		case event := <-channel:
			drained = append(drained, event)
		default:
			return drained
		}
	}
}

func eventsOfKind(drained []events.Event, kind events.Kind) []events.Event {
	var matched []events.Event
	for _, event := range drained {
		if event.Kind == kind {
			matched = append(matched, event)
		}
	}
	return matched
}

func goodOutcome(mapName string, playerCount int) model.PollOutcome {
	players := make([]model.RawPlayer, playerCount)
	for i := range players {
		players[i] = model.RawPlayer{Name: "player", Duration: 120}
	}
	return model.PollOutcome{
		Ok:          true,
		ServerName:  "cge #1",
		MapName:     mapName,
		PlayerCount: playerCount,
		MaxPlayers:  24,
		Players:     players,
	}
}

func TestGoodOutcomePublishesRosterAndSnapshot(t *testing.T) {
	prefs := model.DefaultPrefs()
	monitor, channel, store := newTestMonitor(t, model.ServerProfile{Name: "cge", Address: "host"}, &prefs)

	monitor.handleOutcome(goodOutcome("ask", 2))

	drained := drain(channel)
	assert.Len(t, eventsOfKind(drained, events.KindPoll), 1)
	assert.Len(t, eventsOfKind(drained, events.KindRoster), 1)
	assert.Empty(t, eventsOfKind(drained, events.KindTransition), "first observation is a silent baseline")

	status, present := store.Get("cge")
	assert.True(t, present)
	assert.Equal(t, "ask", status.MapName)
	assert.Equal(t, 2, status.PlayerCount)
	assert.Equal(t, string(connstate.StateOnline), status.State)
	assert.False(t, status.Stale)
	assert.Len(t, status.Players, 2)

	rows, err := monitor.History().Window(time.Minute, time.Now().UTC())
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].PlayerCount)
}

func TestFailureHysteresisKeepsStaleDataUntilHardThreshold(t *testing.T) {
	prefs := model.DefaultPrefs()
	monitor, channel, store := newTestMonitor(t, model.ServerProfile{Name: "cge", Address: "host"}, &prefs)

	monitor.handleOutcome(goodOutcome("ask", 3))
	drain(channel)

	failed := model.PollOutcome{Ok: false, Error: "timed out"}

	for i := 0; i < connstate.DefaultThreshold-1; i++ {
		monitor.handleOutcome(failed)
	}
	drained := drain(channel)
	assert.Empty(t, eventsOfKind(drained, events.KindTransition), "below the threshold nothing flips")

	status, _ := store.Get("cge")
	assert.True(t, status.Stale)
	assert.Equal(t, "ask", status.MapName, "stale snapshots re-surface the last good data")
	assert.Equal(t, string(connstate.StateUnstable), status.State)

	monitor.handleOutcome(failed)
	drained = drain(channel)
	transitions := eventsOfKind(drained, events.KindTransition)
	assert.Len(t, transitions, 1, "the flip fires exactly once")

	for i := connstate.DefaultThreshold; i < connstate.DefaultHardThreshold; i++ {
		monitor.handleOutcome(failed)
	}
	status, _ = store.Get("cge")
	assert.Equal(t, string(connstate.StateOffline), status.State)
	assert.False(t, status.Stale, "past the hard threshold no stale data is shown")
	assert.Empty(t, status.MapName)

	// Recovery flips back exactly once.
	monitor.handleOutcome(goodOutcome("ask", 1))
	drained = drain(channel)
	assert.Len(t, eventsOfKind(drained, events.KindTransition), 1)
}

func TestMapChangeAlertAndAutoDownload(t *testing.T) {
	mirror := httptest.NewServer(http.NotFoundHandler())
	defer mirror.Close()

	prefs := model.DefaultPrefs()
	monitor, channel, _ := newTestMonitor(t, model.ServerProfile{
		Name:         "cge",
		Address:      "host",
		FastDL:       mirror.URL,
		AutoDownload: true,
	}, &prefs)

	monitor.handleOutcome(goodOutcome("ask", 1))
	drained := drain(channel)
	assert.Empty(t, eventsOfKind(drained, events.KindAlert), "the first map is a baseline, not a change")

	monitor.handleOutcome(goodOutcome("dustbowl", 1))

	var alerted, downloadTerminal bool
	deadline := time.After(5 * time.Second)
	for !downloadTerminal {
		select {
		case event := <-channel:
			switch event.Kind {
			case events.KindAlert:
				alerted = true
			case events.KindDownload:
				if downloadEvent, ok := event.Data.(download.Event); ok && downloadEvent.Terminal {
					downloadTerminal = true
				}
			}
		case <-deadline:
			t.Fatal("no terminal download event arrived")
		}
	}
	assert.True(t, alerted, "a map change publishes an alert")
}

func TestMapChangeAlertRespectsPrefs(t *testing.T) {
	prefs := model.DefaultPrefs()
	prefs.AlertOnMapChange = false
	monitor, channel, _ := newTestMonitor(t, model.ServerProfile{Name: "cge", Address: "host"}, &prefs)

	monitor.handleOutcome(goodOutcome("ask", 1))
	monitor.handleOutcome(goodOutcome("dustbowl", 1))

	assert.Empty(t, eventsOfKind(drain(channel), events.KindAlert))
}

func TestPlayerCountAlertIsEdgeTriggered(t *testing.T) {
	prefs := model.DefaultPrefs()
	prefs.PlayerAlertThreshold = 3
	monitor, channel, _ := newTestMonitor(t, model.ServerProfile{Name: "cge", Address: "host"}, &prefs)

	counts := []int{2, 3, 4, 1, 5}
	alerts := 0
	for _, count := range counts {
		monitor.handleOutcome(goodOutcome("ask", count))
		alerts += len(eventsOfKind(drain(channel), events.KindAlert))
	}

	// Crossing the threshold alerts once; staying above it does not repeat,
	// dropping below re-arms.
	assert.Equal(t, 2, alerts)
}

func TestCueTickPublishesOnlyWhenCuesFire(t *testing.T) {
	prefs := model.DefaultPrefs()
	monitor, channel, _ := newTestMonitor(t, model.ServerProfile{Name: "cge", Address: "host"}, &prefs)

	monitor.handleCueTick(time.Date(2025, 6, 1, 10, 20, 0, 0, time.UTC))
	assert.Empty(t, drain(channel))

	monitor.handleCueTick(time.Date(2025, 6, 1, 10, 59, 10, 0, time.UTC))
	cueEvents := eventsOfKind(drain(channel), events.KindCue)
	assert.Len(t, cueEvents, 1)
}
