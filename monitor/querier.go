package monitor

import (
	"time"

	"gitlab.com/kiverix/reployer/model"
)

// QuerierFunc adapts a plain query function to the Querier interface.
type QuerierFunc func(endpoint model.Endpoint, timeout time.Duration) model.PollOutcome

func (f QuerierFunc) Query(endpoint model.Endpoint, timeout time.Duration) model.PollOutcome {
	return f(endpoint, timeout)
}

// Unavailable returns the querier used when no query backend is linked into
// the build. Every poll fails with the given reason, which the connectivity
// tracker then debounces into a steady OFFLINE presentation, the same way
// the desktop UI behaves when its query module is missing.
func Unavailable(reason string) Querier {
	return QuerierFunc(func(model.Endpoint, time.Duration) model.PollOutcome {
		return model.PollOutcome{Ok: false, Error: reason}
	})
}
