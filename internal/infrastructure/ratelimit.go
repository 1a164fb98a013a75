package infrastructure

import (
	"sync"
	"time"

	"github.com/yourusername/media-fetch-go/internal/domain"
	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateGate admits fetches per client with a token bucket each
type ClientRateGate struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewClientRateGate builds a gate from config. A disabled config admits everything.
func NewClientRateGate(config domain.RateLimitConfig) *ClientRateGate {
	limit := rate.Inf
	burst := config.Burst
	if config.Enabled && config.RequestsPerMinute > 0 {
		limit = rate.Limit(config.RequestsPerMinute / 60)
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientRateGate{
		clients: make(map[string]*clientLimiter),
		limit:   limit,
		burst:   burst,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
}

// Allow implements domain.RateGate
func (g *ClientRateGate) Allow(clientID string) bool {
	if g.limit == rate.Inf {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweepLocked(now)

	c, ok := g.clients[clientID]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.clients[clientID] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients
func (g *ClientRateGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

func (g *ClientRateGate) sweepLocked(now time.Time) {
	if now.Sub(g.lastSweep) < g.idleTTL {
		return
	}
	g.lastSweep = now
	for id, c := range g.clients {
		if now.Sub(c.lastSeen) > g.idleTTL {
			delete(g.clients, id)
		}
	}
}
