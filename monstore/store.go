package monstore

import (
	"reflect"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.com/kiverix/reployer/model"
)

const (
	channelBufferSize = 10
)

var (
	operationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reployer",
		Subsystem: "status",
		Name:      "operations",
		Help:      "Counts the number of operations on the status store per profile",
	}, []string{"profile", "operation"})
)

// Defines the public API for the status store. The store is responsible for
// saving the latest server snapshot per profile and evicting it once it goes
// stale. Additionally the store provides a channel object, that can be used
// to get notified, if a snapshot updates.
type Store interface {
	// Returns a channel that is filled with updates of the snapshot for the
	// given profile. Calling this method also means that the caller needs to
	// call ReleaseChannel(profile), once he is done with using the channel.
	GetChannel(profile string) chan *model.ServerStatus
	// Releases a channel that was previously acquired by GetChannel(profile).
	ReleaseChannel(profile string)
	// Returns a snapshot for the given profile, if one is present.
	Get(profile string) (status *model.ServerStatus, present bool)
	// Puts a new snapshot for the given profile, if none is already present.
	// Otherwise the existing snapshot will be updated with the passed one.
	Put(profile string, status *model.ServerStatus)
	// Removes a snapshot for the given profile, if one is present.
	Remove(profile string)
	// Closes the store and releases all resources held by it.
	Close()
}

type store struct {
	channels      map[string]*channelContainer
	internalCache *cache.Cache
	locker        sync.Locker
}

type channelContainer struct {
	channel chan *model.ServerStatus
	clients int
}

// Creates a new status store, with a given TTL. The TTL is the duration for
// snapshots, before they are considered stale.
func New(ttl time.Duration) Store {
	return newStore(ttl)
}

func newStore(ttl time.Duration) *store {
	internalCache := cache.New(ttl, ttl*10)
	channels := make(map[string]*channelContainer)
	store := &store{channels, internalCache, &sync.Mutex{}}

	internalCache.OnEvicted(func(profile string, item interface{}) {
		store.pushUpdate(profile, nil)
	})

	return store
}

func (s *store) GetChannel(profile string) chan *model.ServerStatus {
	operationsCounter.WithLabelValues(profile, "channel_get").Inc()

	s.locker.Lock()

	if _, present := s.channels[profile]; !present {
		status, _ := s.Get(profile)

		s.channels[profile] = &channelContainer{make(chan *model.ServerStatus, channelBufferSize), 0}
		s.channels[profile].channel <- status
	}

	container := s.channels[profile]
	container.clients++

	s.locker.Unlock()

	return container.channel
}

func (s *store) ReleaseChannel(profile string) {
	operationsCounter.WithLabelValues(profile, "channel_release").Inc()

	if _, present := s.channels[profile]; present {
		s.locker.Lock()

		if container, present := s.channels[profile]; present {
			container.clients--
			if container.clients < 1 {
				delete(s.channels, profile)
				close(container.channel)
			}
		}

		s.locker.Unlock()
	}
}

func (s *store) Get(profile string) (status *model.ServerStatus, present bool) {
	operationsCounter.WithLabelValues(profile, "get").Inc()

	if cached, isCached := s.internalCache.Get(profile); isCached {
		status = cached.(*model.ServerStatus)
		present = isCached
	}
	return
}

func (s *store) Put(profile string, status *model.ServerStatus) {
	operationsCounter.WithLabelValues(profile, "put").Inc()

	previousStatus, _ := s.internalCache.Get(profile)
	s.internalCache.Set(profile, status, cache.DefaultExpiration)

	if !reflect.DeepEqual(previousStatus, status) {
		s.pushUpdate(profile, status)
	}
}

func (s *store) Remove(profile string) {
	operationsCounter.WithLabelValues(profile, "remove").Inc()

	s.internalCache.Delete(profile)
}

func (s *store) Close() {
	for profile, channelContainer := range s.channels {
		delete(s.channels, profile)
		close(channelContainer.channel)
	}
}

func (s *store) pushUpdate(profile string, status *model.ServerStatus) {
	if _, present := s.channels[profile]; present {
		s.locker.Lock()

		if channel, present := s.channels[profile]; present {
			channel.channel <- status
		}

		s.locker.Unlock()
	}
}
