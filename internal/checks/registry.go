package checks

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the enabled checks in registration order. It is built at
// startup and handed to the engine; the engine snapshots it per assessment.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Check
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Check)}
}

// Register adds c. A nil check, an empty ID or an ID that is already present
// is a ConfigError and leaves the registry unchanged.
func (r *Registry) Register(c Check) error {
	if c == nil {
		return ConfigErrorf("", "check must not be nil")
	}
	id := strings.TrimSpace(c.ID())
	if id == "" {
		return ConfigErrorf("", "check ID must not be empty")
	}
	if id != c.ID() {
		return ConfigErrorf(c.ID(), "check ID must not have surrounding whitespace")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return ConfigErrorf(id, "already registered")
	}
	r.byID[id] = c
	r.order = append(r.order, id)
	return nil
}

// MustRegister is Register for static setup code.
func (r *Registry) MustRegister(c Check) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Remove drops the check with the given ID and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Get(id string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns the checks in registration order.
func (r *Registry) List() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []Check {
	out := make([]Check, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the registered IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Resolve selects checks by a comma-separated list of IDs. An empty selector
// selects everything. The result keeps registration order.
func (r *Registry) Resolve(selector string) ([]Check, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.TrimSpace(selector) == "" {
		return r.listLocked(), nil
	}

	wanted := make(map[string]struct{})
	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := r.byID[id]; !ok {
			return nil, fmt.Errorf("check not found: %s", id)
		}
		wanted[id] = struct{}{}
	}

	var selected []Check
	for _, id := range r.order {
		if _, ok := wanted[id]; ok {
			selected = append(selected, r.byID[id])
		}
	}
	return selected, nil
}

// SortedByID returns the checks sorted by ID, for listings.
func SortedByID(list []Check) []Check {
	out := append([]Check(nil), list...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
