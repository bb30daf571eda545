package integration

import "sync"

// inflightGuard tracks which keys have a run in progress. Scheduled ticks
// and on-demand triggers share it through the service that owns it.
type inflightGuard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{keys: make(map[string]struct{})}
}

// claim marks key as in flight. It returns false if it already is.
func (g *inflightGuard) claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.keys[key]; busy {
		return false
	}
	g.keys[key] = struct{}{}
	return true
}

func (g *inflightGuard) release(key string) {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
}
