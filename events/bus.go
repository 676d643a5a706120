// Package events carries one-way notifications from the monitor's worker
// goroutines to however many presentation clients are attached. Producers
// never block: a subscriber that stops draining loses its oldest events.
package events

import (
	"sync"
	"time"
)

// Kind discriminates the event envelope payloads.
type Kind string

const (
	KindPoll       Kind = "poll"
	KindTransition Kind = "transition"
	KindRoster     Kind = "roster"
	KindCue        Kind = "cue"
	KindDownload   Kind = "download"
	KindAlert      Kind = "alert"
	KindView       Kind = "view"
)

// Event is the envelope delivered to subscribers and serialized as-is onto
// the websocket.
type Event struct {
	Kind    Kind        `json:"kind"`
	Profile string      `json:"profile,omitempty"`
	Time    time.Time   `json:"time"`
	Data    interface{} `json:"data"`
}

const subscriberBufferSize = 64

// Bus fans events out to subscribers, each of which owns a buffered channel
// drained by a single consuming context.
type Bus struct {
	locker      sync.Locker
	nextID      int
	subscribers map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{
		locker:      &sync.Mutex{},
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe returns a channel of events plus an id for Unsubscribe.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.locker.Lock()
	defer b.locker.Unlock()

	id := b.nextID
	b.nextID++
	channel := make(chan Event, subscriberBufferSize)
	b.subscribers[id] = channel
	return id, channel
}

// Unsubscribe releases a subscription; the channel is closed.
func (b *Bus) Unsubscribe(id int) {
	b.locker.Lock()
	defer b.locker.Unlock()

	if channel, present := b.subscribers[id]; present {
		delete(b.subscribers, id)
		close(channel)
	}
}

// Publish delivers an event to every subscriber. A full subscriber buffer
// sheds its oldest event first so that a stalled client can never block the
// dispatch goroutine.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	b.locker.Lock()
	defer b.locker.Unlock()

	for _, channel := range b.subscribers {
		select {
		case channel <- event:
		default:
			select {
			case <-channel:
			default:
			}
			select {
			case channel <- event:
			default:
			}
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.locker.Lock()
	defer b.locker.Unlock()

	for id, channel := range b.subscribers {
		delete(b.subscribers, id)
		close(channel)
	}
}
