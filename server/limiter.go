package server

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ClientLimiter hands out one token bucket per client IP so a single
// misbehaving UI cannot starve the API.
type ClientLimiter struct {
	locker   sync.Locker
	limiters map[string]*rate.Limiter
}

func NewClientLimiter() *ClientLimiter {
	return &ClientLimiter{
		locker:   &sync.Mutex{},
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *ClientLimiter) limiterFor(ip string) *rate.Limiter {
	c.locker.Lock()
	defer c.locker.Unlock()

	limiter, present := c.limiters[ip]
	if !present {
		limiter = rate.NewLimiter(10, 20) // 10 per second, burst 20
		c.limiters[ip] = limiter
	}
	return limiter
}

// Middleware rejects requests from clients that exceed their bucket.
func (c *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !c.limiterFor(clientIP(request.RemoteAddr)).Allow() {
			writer.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(writer, request)
	})
}
