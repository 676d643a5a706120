// Package views consumes an external websocket feed of view notifications.
// Every view with an id above the highest one seen so far is appended to its
// own CSV log and republished on the event bus, so UI clients get the
// new-view notification without holding their own feed connection.
package views

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"gitlab.com/kiverix/reployer/events"
)

const retryDelay = 5 * time.Second

// View is one notification as republished on the event bus.
type View struct {
	ID        int64   `json:"id"`
	Timestamp float64 `json:"timestamp"`
}

// feedMessage is the feed's wire envelope. Only NEW_VIEW messages are acted
// on; everything else is dropped silently.
type feedMessage struct {
	Type string `json:"type"`
	Data View   `json:"data"`
}

// Monitor holds one feed connection, reconnecting with a fixed delay for as
// long as it is running.
type Monitor struct {
	url        string
	bus        *events.Bus
	logger     *log.Logger
	viewLog    *Log
	retryDelay time.Duration

	lastViewID int64
	haveLast   bool

	done chan struct{}
}

func NewMonitor(url string, bus *events.Bus, viewLog *Log) *Monitor {
	return &Monitor{
		url:        url,
		bus:        bus,
		logger:     log.New(os.Stdout, "Views > ", log.LstdFlags),
		viewLog:    viewLog,
		retryDelay: retryDelay,
		done:       make(chan struct{}),
	}
}

// Start runs the feed loop until Stop is called.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) Stop() {
	close(m.done)
}

func (m *Monitor) run() {
	m.logger.Printf("Consuming view feed %s\n", m.url)

	for {
		select {
		case <-m.done:
			return
		default:
		}

		if err := m.consume(); err != nil {
			m.logger.Printf("View feed dropped: %s\n", err)
		}

		select {
		case <-m.done:
			return
		case <-time.After(m.retryDelay):
		}
	}
}

// consume holds one connection open and processes messages until the
// connection or the monitor dies.
func (m *Monitor) consume() error {
	conn, _, err := websocket.DefaultDialer.Dial(m.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock the read below when
	// Stop is called.
	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-m.done:
			_ = conn.Close()
		case <-watch:
		}
	}()

	for {
		_, payload, readErr := conn.ReadMessage()
		if readErr != nil {
			return readErr
		}
		m.handleMessage(payload, time.Now().UTC())
	}
}

// handleMessage processes one raw feed message. Views with ids at or below
// the highest seen one are duplicates or replays and are dropped; the very
// first view always counts as new.
func (m *Monitor) handleMessage(payload []byte, now time.Time) {
	var message feedMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		m.logger.Printf("Could not de-serialize feed message: %s\n", err)
		return
	}
	if message.Type != "NEW_VIEW" {
		return
	}

	view := message.Data
	if m.haveLast && view.ID <= m.lastViewID {
		return
	}
	m.lastViewID = view.ID
	m.haveLast = true

	if err := m.viewLog.Append(now, view.ID, view.Timestamp); err != nil {
		m.logger.Printf("Could not append view %d: %s\n", view.ID, err)
	}

	m.bus.Publish(events.Event{Kind: events.KindView, Time: now, Data: view})
}
