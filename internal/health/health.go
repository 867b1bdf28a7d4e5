// Package health runs named subsystem probes for the readiness endpoints.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Checker probes one subsystem. A nil error means healthy.
type Checker func(ctx context.Context) error

// Status is the outcome of a single probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency"`
}

// Registry holds named checkers and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Checker)}
}

// Register adds a named checker. Registering the same name twice replaces
// the earlier checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checks[name] = check
	r.mu.Unlock()
}

// CheckAll probes every registered subsystem concurrently and reports the
// aggregate plus per-subsystem results, sorted by name.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checks := make(map[string]Checker, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = make([]Status, 0, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()
			start := time.Now()
			err := check(ctx)
			st := Status{
				Name:    name,
				Healthy: err == nil,
				Latency: time.Since(start).Round(time.Microsecond).String(),
			}
			if err != nil {
				st.Detail = err.Error()
			}
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

	healthy := true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
			break
		}
	}
	return healthy, statuses
}
