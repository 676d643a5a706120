// Package monitor drives the poll loop for one server profile. All state
// mutation happens on a single dispatch goroutine; network calls run on a
// small shared worker pool so a hanging query never blocks the next tick.
package monitor

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.com/kiverix/reployer/connstate"
	"gitlab.com/kiverix/reployer/download"
	"gitlab.com/kiverix/reployer/events"
	"gitlab.com/kiverix/reployer/history"
	"gitlab.com/kiverix/reployer/mapcycle"
	"gitlab.com/kiverix/reployer/model"
	"gitlab.com/kiverix/reployer/monstore"
	"gitlab.com/kiverix/reployer/session"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 5 * time.Second
	DefaultPoolSize     = 6

	cueInterval = time.Second
)

var (
	pollsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reployer",
		Subsystem: "monitor",
		Name:      "polls",
		Help:      "Counts poll attempts per profile and result",
	}, []string{"profile", "result"})

	failureGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reployer",
		Subsystem: "monitor",
		Name:      "consecutive_failures",
		Help:      "Current consecutive query failure count per profile",
	}, []string{"profile"})
)

// Querier is the injected query capability. Implementations issue one
// blocking query round-trip and reduce every failure into an outcome with
// Ok=false; they never panic or return transport errors directly.
type Querier interface {
	Query(endpoint model.Endpoint, timeout time.Duration) model.PollOutcome
}

// Pool is the shared worker semaphore bounding concurrent queries across all
// monitors.
type Pool chan struct{}

func NewPool(size int) Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return make(Pool, size)
}

// Config carries the collaborator-supplied knobs for one monitor.
type Config struct {
	Profile       model.ServerProfile
	Querier       Querier
	Pool          Pool
	Bus           *events.Bus
	Store         monstore.Store
	Downloads     *download.Manager
	DownloadsRoot string
	LogsRoot      string
	PollInterval  time.Duration
	PollTimeout   time.Duration
	// Prefs returns the current preference values; called on the dispatch
	// goroutine so the UI may swap them at any time.
	Prefs func() model.Prefs
}

// Monitor owns the connectivity, session and cue state for one profile.
type Monitor struct {
	config   Config
	logger   *log.Logger
	conn     *connstate.Tracker
	sessions *session.Tracker
	cues     *mapcycle.Scheduler
	histLog  *history.Log

	rows           []model.PlayerRow
	lastMap        string
	alertTriggered bool

	inFlight bool
	results  chan model.PollOutcome
	done     chan struct{}
}

// New creates a monitor and opens its history log.
func New(config Config) (*Monitor, error) {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = DefaultPollTimeout
	}
	if config.Prefs == nil {
		prefs := model.DefaultPrefs()
		config.Prefs = func() model.Prefs { return prefs }
	}

	histLog, err := history.Open(filepath.Join(config.LogsRoot, model.SafeFolder(config.Profile.Name)))
	if err != nil {
		return nil, err
	}

	return &Monitor{
		config:   config,
		logger:   log.New(os.Stdout, "Monitor > ", log.LstdFlags),
		conn:     connstate.New(connstate.DefaultThreshold, connstate.DefaultHardThreshold),
		sessions: session.New(),
		cues:     mapcycle.NewScheduler(),
		histLog:  histLog,
		results:  make(chan model.PollOutcome, 1),
		done:     make(chan struct{}),
	}, nil
}

// History exposes the monitor's history log for the read API.
func (m *Monitor) History() *history.Log {
	return m.histLog
}

// Start runs the dispatch loop until Stop is called.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) Stop() {
	close(m.done)
}

func (m *Monitor) run() {
	m.logger.Printf("Monitoring %s (%s) every %s\n",
		m.config.Profile.Name, m.config.Profile.Endpoint, m.config.PollInterval)

	pollTicker := time.NewTicker(m.config.PollInterval)
	cueTicker := time.NewTicker(cueInterval)
	defer pollTicker.Stop()
	defer cueTicker.Stop()

	m.triggerPoll()

	for {
		select {
		case <-m.done:
			return
		case <-pollTicker.C:
			m.triggerPoll()
		case outcome := <-m.results:
			m.inFlight = false
			m.handleOutcome(outcome)
		case now := <-cueTicker.C:
			m.handleCueTick(now)
		}
	}
}

// triggerPoll hands a query to the worker pool. At most one poll per
// endpoint is in flight; a tick while one is outstanding is a no-op.
func (m *Monitor) triggerPoll() {
	if m.inFlight || m.config.Querier == nil {
		return
	}
	m.inFlight = true

	endpoint := m.config.Profile.Endpoint
	timeout := m.config.PollTimeout
	go func() {
		m.config.Pool <- struct{}{}
		outcome := m.config.Querier.Query(endpoint, timeout)
		<-m.config.Pool
		m.results <- outcome
	}()
}

func (m *Monitor) handleOutcome(outcome model.PollOutcome) {
	profile := m.config.Profile.Name

	result := "ok"
	if !outcome.Ok {
		result = "fail"
	}
	pollsCounter.WithLabelValues(profile, result).Inc()

	state, transitioned := m.conn.Observe(outcome)
	failureGauge.WithLabelValues(profile).Set(float64(m.conn.FailCount()))

	m.config.Bus.Publish(events.Event{Kind: events.KindPoll, Profile: profile, Data: outcome})

	if transitioned {
		m.logger.Printf("%s transitioned to %s\n", profile, state)
		m.config.Bus.Publish(events.Event{
			Kind:    events.KindTransition,
			Profile: profile,
			Data:    map[string]interface{}{"state": state, "fail_count": m.conn.FailCount()},
		})
	}

	if outcome.Ok {
		m.handleGoodOutcome(outcome, state)
		return
	}
	m.handleFailedOutcome(state)
}

func (m *Monitor) handleGoodOutcome(outcome model.PollOutcome, state connstate.State) {
	profile := m.config.Profile.Name
	now := time.Now().UTC()

	m.rows = m.sessions.Reconcile(outcome.Players, outcome.MaxPlayers, now)
	m.config.Bus.Publish(events.Event{Kind: events.KindRoster, Profile: profile, Data: m.rows})

	names := make([]string, 0, len(outcome.Players))
	for _, player := range outcome.Players {
		names = append(names, player.Name)
	}
	if err := m.histLog.Append(now, outcome.PlayerCount, outcome.MapName, names); err != nil {
		m.logger.Printf("Could not append history for %s: %s\n", profile, err)
	}

	m.handleMapChange(outcome.MapName)
	m.handleAlerts(outcome.PlayerCount)

	m.config.Store.Put(profile, &model.ServerStatus{
		Profile:     profile,
		ServerName:  outcome.ServerName,
		MapName:     outcome.MapName,
		PlayerCount: outcome.PlayerCount,
		MaxPlayers:  outcome.MaxPlayers,
		Players:     m.rows,
		State:       string(state),
		Stale:       false,
		UpdatedAt:   now,
	})
}

// handleFailedOutcome re-surfaces the last-known-good data while the server
// is flapping; only past the hard threshold does the presentation drop to a
// bare OFFLINE snapshot.
func (m *Monitor) handleFailedOutcome(state connstate.State) {
	profile := m.config.Profile.Name
	lastGood := m.conn.LastGood()

	if lastGood == nil || m.conn.HardOffline() {
		m.config.Store.Put(profile, &model.ServerStatus{
			Profile:   profile,
			State:     string(connstate.StateOffline),
			Stale:     false,
			UpdatedAt: time.Now().UTC(),
		})
		return
	}

	m.config.Store.Put(profile, &model.ServerStatus{
		Profile:     profile,
		ServerName:  lastGood.ServerName,
		MapName:     lastGood.MapName,
		PlayerCount: lastGood.PlayerCount,
		MaxPlayers:  lastGood.MaxPlayers,
		Players:     m.rows,
		State:       string(state),
		Stale:       true,
		UpdatedAt:   time.Now().UTC(),
	})
}

func (m *Monitor) handleMapChange(mapName string) {
	changed := m.lastMap != "" && m.lastMap != mapName
	previous := m.lastMap
	m.lastMap = mapName

	if cue, fired := m.cues.ObserveMap(mapName); fired {
		m.config.Bus.Publish(events.Event{
			Kind:    events.KindCue,
			Profile: m.config.Profile.Name,
			Data:    map[string]interface{}{"cue": cue, "map": mapName},
		})
	}

	if !changed {
		return
	}

	if m.config.Prefs().AlertOnMapChange {
		m.config.Bus.Publish(events.Event{
			Kind:    events.KindAlert,
			Profile: m.config.Profile.Name,
			Data:    map[string]interface{}{"reason": "map_change", "from": previous, "to": mapName},
		})
	}

	if m.config.Profile.AutoDownload && m.config.Downloads != nil {
		m.StartDownload(mapName)
	}
}

// handleAlerts fires the player-count alert on the upward edge through the
// threshold and re-arms once the count falls below it again.
func (m *Monitor) handleAlerts(playerCount int) {
	threshold := m.config.Prefs().PlayerAlertThreshold
	if threshold <= 0 {
		m.alertTriggered = false
		return
	}

	if playerCount >= threshold {
		if !m.alertTriggered {
			m.alertTriggered = true
			m.config.Bus.Publish(events.Event{
				Kind:    events.KindAlert,
				Profile: m.config.Profile.Name,
				Data: map[string]interface{}{
					"reason":    "player_count",
					"count":     playerCount,
					"threshold": threshold,
				},
			})
		}
	} else {
		m.alertTriggered = false
	}
}

func (m *Monitor) handleCueTick(now time.Time) {
	result := m.cues.Tick(now)
	if len(result.Cues) == 0 {
		return
	}
	m.config.Bus.Publish(events.Event{
		Kind:    events.KindCue,
		Profile: m.config.Profile.Name,
		Data:    result,
	})
}

// StartDownload launches a FastDL job for the given map. Callable from any
// goroutine; the download manager serializes per-target jobs itself.
func (m *Monitor) StartDownload(mapName string) bool {
	profile := m.config.Profile
	outDir := filepath.Join(m.config.DownloadsRoot, model.SafeFolder(profile.Name))

	return m.config.Downloads.Start(profile.Name, mapName, profile.FastDL, profile.Template, outDir,
		func(event download.Event) {
			m.config.Bus.Publish(events.Event{
				Kind:    events.KindDownload,
				Profile: profile.Name,
				Data:    event,
			})
		})
}

// CancelDownload cancels the profile's running job, if any.
func (m *Monitor) CancelDownload() bool {
	return m.config.Downloads.Cancel(m.config.Profile.Name)
}
