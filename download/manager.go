package download

import (
	"log"
	"os"
	"sync"
)

// Manager enforces the one-job-per-target rule. A second start request while
// a job is in flight is answered with an informational event, not queued.
type Manager struct {
	logger *log.Logger
	locker sync.Locker
	active map[string]*Job
}

func NewManager() *Manager {
	return &Manager{
		logger: log.New(os.Stdout, "Download > ", log.LstdFlags),
		locker: &sync.Mutex{},
		active: make(map[string]*Job),
	}
}

// Start launches a job for the target on its own goroutine. All job events,
// including the rejection of a duplicate start, flow through sink.
func (m *Manager) Start(target, mapName, fastdlBase, template, outDir string, sink func(Event)) bool {
	m.locker.Lock()
	if _, running := m.active[target]; running {
		m.locker.Unlock()
		m.logger.Printf("Rejected duplicate download for %s (%s already in flight)\n", target, mapName)
		sink(Event{Status: "A download is already running for this server"})
		return false
	}

	job := NewJob(mapName, fastdlBase, template, outDir)
	m.active[target] = job
	m.locker.Unlock()

	m.logger.Printf("Starting download of %s for %s\n", mapName, target)

	go func() {
		job.Run(func(event Event) {
			if event.Terminal {
				m.locker.Lock()
				delete(m.active, target)
				m.locker.Unlock()
				m.logger.Printf("Download of %s for %s finished: %s\n", mapName, target, event.Message)
			}
			sink(event)
		})
	}()

	return true
}

// Cancel requests cancellation of the target's running job, if any.
func (m *Manager) Cancel(target string) bool {
	m.locker.Lock()
	defer m.locker.Unlock()

	if job, running := m.active[target]; running {
		job.Cancel()
		return true
	}
	return false
}

// Running reports whether a job is currently in flight for the target.
func (m *Manager) Running(target string) bool {
	m.locker.Lock()
	defer m.locker.Unlock()

	_, running := m.active[target]
	return running
}
