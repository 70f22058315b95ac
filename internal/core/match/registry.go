package match

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/stumpline/cricket-live/internal/telemetry"
)

// Registry is a thread-safe map of all live match contexts, keyed by
// match ID.
//
// The registry's RWMutex protects the map itself (lookups, inserts,
// deletes). It does NOT protect Context contents — each Context serializes
// its own mutations through its inbox channel.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Context
}

func NewRegistry() *Registry {
	return &Registry{
		matches: make(map[string]*Context),
	}
}

// Create registers a new match. Team names arrive from operator input and
// are normalized (NFC, trimmed) so the same side always renders and
// compares identically.
func (r *Registry) Create(id, homeTeam, awayTeam string, totalOvers int) (*Context, error) {
	home := CanonicalName(homeTeam)
	away := CanonicalName(awayTeam)
	if id == "" || home == "" || away == "" {
		return nil, fmt.Errorf("match id and both team names required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.matches[id]; exists {
		return nil, fmt.Errorf("match %s already registered", id)
	}

	mc := NewContext(id, home, away, totalOvers)
	r.matches[id] = mc
	telemetry.Metrics.ActiveMatches.Set(int64(len(r.matches)))
	return mc, nil
}

func (r *Registry) Get(id string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mc, ok := r.matches[id]
	return mc, ok
}

// Delete removes a match from the registry and shuts down its goroutine.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	mc, ok := r.matches[id]
	delete(r.matches, id)
	telemetry.Metrics.ActiveMatches.Set(int64(len(r.matches)))
	r.mu.Unlock()

	if ok {
		mc.Close()
	}
}

// All returns a snapshot of all match contexts. Safe for iteration.
func (r *Registry) All() []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Context, 0, len(r.matches))
	for _, mc := range r.matches {
		out = append(out, mc)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// CanonicalName normalizes a team or player display name to NFC with
// collapsed whitespace.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}
