// Package registry implements the process-wide, thread-safe detector cache
// (C1). Grounded on the teacher's internal/service/upstream_manager.go:
// a mutex-guarded map keyed by connection identity, construct-once-on-miss.
// Every Get takes the mutex for the map lookup; it is never held while a
// factory runs.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dannycabezas/semantic-firewall/internal/domain/detector"
)

// Key identifies one cached detector instance.
type Key struct {
	Kind      detector.Kind
	ModelName string
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Kind, k.ModelName) }

// Factory constructs a detector instance for one key. Called at most once
// per key until the registry is cleared.
type Factory func() (any, error)

// entry gates a single key's construction. The ready channel is closed once
// the instance (or construction error) is available, letting concurrent
// callers for the SAME key block without holding the registry's mutex,
// while callers for OTHER keys proceed in parallel.
type entry struct {
	ready    chan struct{}
	instance any
	err      error
}

// Registry is the detector cache. Zero value is not usable; use New.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
	logger  *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[Key]*entry),
		logger:  logger,
	}
}

// Get returns the shared instance for key, constructing it via factory on
// first request. Concurrent first calls for the same key block on one
// construction; concurrent calls for different keys proceed in parallel.
func (r *Registry) Get(key Key, factory Factory) (any, error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[key] = e
		r.mu.Unlock()

		e.instance, e.err = factory()
		if e.err != nil {
			r.logger.Error("detector construction failed", "key", key.String(), "error", e.err)
		}
		close(e.ready)
		return e.instance, e.err
	}
	r.mu.Unlock()

	<-e.ready
	return e.instance, e.err
}

// Keys lists every cache key currently populated, for admin inspection.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Key, 0, len(r.entries))
	for k, e := range r.entries {
		select {
		case <-e.ready:
			keys = append(keys, k)
		default:
			// still constructing; not yet a usable cache entry
		}
	}
	return keys
}

// Size returns the number of populated cache entries.
func (r *Registry) Size() int {
	return len(r.Keys())
}

// Clear drops all cached references. Outstanding holders of an instance
// keep working; a subsequent Get reconstructs.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[Key]*entry)
}

// WarmUp invokes each already-constructed default detector once with a
// canned prompt, forcing lazy initialization (model load, connection pool
// setup) at startup rather than on the first production request, per
// spec.md §4.1. Construction happens through Get before WarmUp runs; WarmUp
// only forces the first Detect call down the warm path. A detector that
// does not satisfy its kind's expected interface is skipped and logged,
// never causes startup to fail.
func WarmUp(logger *slog.Logger, instances map[Key]any) {
	if logger == nil {
		logger = slog.Default()
	}
	const canned = "the quick brown fox jumps over the lazy dog"

	for key, inst := range instances {
		switch key.Kind {
		case detector.KindPII:
			d, ok := inst.(detector.PIIDetector)
			if !ok {
				logger.Warn("warm-up: instance does not implement PIIDetector", "key", key.String())
				continue
			}
			d.Detect(canned)
		case detector.KindToxicity:
			d, ok := inst.(detector.ToxicityDetector)
			if !ok {
				logger.Warn("warm-up: instance does not implement ToxicityDetector", "key", key.String())
				continue
			}
			d.Detect(canned)
		case detector.KindPromptInjection:
			d, ok := inst.(detector.PromptInjectionDetector)
			if !ok {
				logger.Warn("warm-up: instance does not implement PromptInjectionDetector", "key", key.String())
				continue
			}
			d.Detect(canned, nil)
		case detector.KindHeuristic:
			d, ok := inst.(detector.HeuristicDetector)
			if !ok {
				logger.Warn("warm-up: instance does not implement HeuristicDetector", "key", key.String())
				continue
			}
			d.Detect(canned)
		default:
			logger.Warn("warm-up: unrecognized detector kind", "key", key.String())
		}
	}
}
