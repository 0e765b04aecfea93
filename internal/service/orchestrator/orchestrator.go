// Package orchestrator implements the action orchestrator (C5): it turns a
// policy Decision into structured logs and optional alerts, idempotently
// per request_id. Grounded on the teacher's policy_evaluation_service's
// bounded-FIFO idempotency idiom and its plain log/slog usage.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
)

// IdempotencyRecord is what gets stored per request_id once executed.
type IdempotencyRecord struct {
	Decision  bool
	Reason    string
	Timestamp time.Time
}

// IdempotencyStore records which request IDs have already been executed.
// Optional: a nil store makes the orchestrator degrade to "always execute".
type IdempotencyStore interface {
	Seen(requestID string) (IdempotencyRecord, bool)
	Record(requestID string, rec IdempotencyRecord)
}

// Alerter emits an out-of-band alert for high-confidence blocks. Optional.
type Alerter interface {
	Alert(severity, reason, requestID string, confidence float64)
}

// MemoryIdempotencyStore is a bounded-FIFO in-memory IdempotencyStore,
// grounded on the teacher's eviction idiom: a map plus an ordered key
// slice, trimmed from the front once capacity is exceeded.
type MemoryIdempotencyStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	records  map[string]IdempotencyRecord
}

// NewMemoryIdempotencyStore builds a store retaining at most capacity
// entries. capacity <= 0 defaults to 10000.
func NewMemoryIdempotencyStore(capacity int) *MemoryIdempotencyStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryIdempotencyStore{
		capacity: capacity,
		records:  make(map[string]IdempotencyRecord),
	}
}

func (s *MemoryIdempotencyStore) Seen(requestID string) (IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[requestID]
	return rec, ok
}

func (s *MemoryIdempotencyStore) Record(requestID string, rec IdempotencyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[requestID]; !exists {
		s.order = append(s.order, requestID)
		if len(s.order) > s.capacity {
			evict := s.order[0]
			s.order = s.order[1:]
			delete(s.records, evict)
		}
	}
	s.records[requestID] = rec
}

// Orchestrator executes decisions: structured logging, optional alerting,
// optional idempotent skip.
type Orchestrator struct {
	idempotency IdempotencyStore
	alerter     Alerter
	logger      *slog.Logger
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithIdempotencyStore wires an idempotency store. Without one, every call
// to Execute runs unconditionally.
func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(o *Orchestrator) { o.idempotency = store }
}

// WithAlerter wires an alerter. Without one, no alert is ever emitted.
func WithAlerter(alerter Alerter) Option {
	return func(o *Orchestrator) { o.alerter = alerter }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New builds an Orchestrator. Idempotency store and alerter are optional;
// the orchestrator degrades gracefully when either is absent.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the four steps of spec.md §4.5 against one decision.
func (o *Orchestrator) Execute(decision policy.Decision, requestID string, fields map[string]any) {
	if o.idempotency != nil {
		if _, seen := o.idempotency.Seen(requestID); seen {
			o.logger.Debug("request already executed, skipping", "request_id", requestID)
			return
		}
	}

	eventName := "request_allowed"
	level := slog.LevelInfo
	if decision.Blocked {
		eventName = "request_blocked"
		level = slog.LevelWarn
	}

	attrs := []any{
		"event", eventName,
		"request_id", requestID,
		"reason", decision.Reason,
		"confidence", decision.Confidence,
		"matched_rule", decision.MatchedRule,
	}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	o.logger.Log(context.Background(), level, eventName, attrs...)

	if o.alerter != nil && decision.Blocked && decision.Confidence > 0.8 {
		severity := "medium"
		if decision.Confidence > 0.9 {
			severity = "high"
		}
		o.alerter.Alert(severity, decision.Reason, requestID, decision.Confidence)
	}

	if o.idempotency != nil {
		o.idempotency.Record(requestID, IdempotencyRecord{
			Decision:  decision.Blocked,
			Reason:    decision.Reason,
			Timestamp: time.Now(),
		})
	}
}
