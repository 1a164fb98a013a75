package infrastructure

import (
	"strings"
	"sync/atomic"
)

// RoundRobinProxies rotates through a fixed list of proxy endpoints
type RoundRobinProxies struct {
	endpoints []string
	next      atomic.Uint64
}

// NewRoundRobinProxies drops blank entries; an empty list disables proxying
func NewRoundRobinProxies(endpoints []string) *RoundRobinProxies {
	kept := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimSpace(e); e != "" {
			kept = append(kept, e)
		}
	}
	return &RoundRobinProxies{endpoints: kept}
}

// Next implements domain.ProxyProvider
func (p *RoundRobinProxies) Next() (string, bool) {
	if len(p.endpoints) == 0 {
		return "", false
	}
	i := p.next.Add(1) - 1
	return p.endpoints[i%uint64(len(p.endpoints))], true
}
