// Package metrics implements the rolling metrics store (C9): a thread-safe
// ring buffer of the last N events plus per-session aggregates. Grounded on
// the teacher's MemoryAuditStore (internal/adapter/outbound/memory,
// now removed): same shift-left eviction ring buffer, generalized from
// audit.AuditRecord to event.Event and extended with the stats/
// session_analytics/temporal_breakdown aggregations spec.md §4.9 names.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/event"
)

const defaultCapacity = 500

// sessionAggregate tracks per-session counters updated on every Add.
type sessionAggregate struct {
	SessionID string    `json:"session_id"`
	Total     int       `json:"total"`
	Malicious int       `json:"malicious"`
	Suspicious int      `json:"suspicious"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store is a bounded ring buffer of the most recent events plus per-session
// aggregates, safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	recent   []event.Event
	sessions map[string]*sessionAggregate
}

// New builds a Store retaining at most capacity events (default 500).
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{
		capacity: capacity,
		recent:   make([]event.Event, 0, capacity),
		sessions: make(map[string]*sessionAggregate),
	}
}

// Add inserts an event, evicting the oldest entry via shift-left once
// capacity is reached, and updates the event's session aggregate. At
// capacity each insert copies the whole buffer, so it is O(capacity), not
// O(1).
func (s *Store) Add(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.recent) >= s.capacity {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = e
	} else {
		s.recent = append(s.recent, e)
	}

	agg, ok := s.sessions[e.SessionID]
	if !ok {
		agg = &sessionAggregate{SessionID: e.SessionID}
		s.sessions[e.SessionID] = agg
	}
	agg.Total++
	switch e.RiskLevel {
	case event.RiskMalicious:
		agg.Malicious++
	case event.RiskSuspect:
		agg.Suspicious++
	}
	agg.LastSeen = e.TimestampUTC
}

// Recent returns the limit most recent events, newest first.
func (s *Store) Recent(limit int) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.recent)
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]event.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.recent[total-1-i]
	}
	return out
}

// Stats is the aggregate summary returned by the /api/stats endpoint.
type Stats struct {
	Total               int                        `json:"total"`
	RiskLevelCounts      map[string]int            `json:"risk_level_counts"`
	RiskLevelPercentages map[string]float64        `json:"risk_level_percentages"`
	BlockAllowRatio      float64                   `json:"block_allow_ratio"`
	PromptsPerMinute     float64                   `json:"prompts_per_minute"`
	AverageLatency       event.LatencyBreakdown    `json:"average_latency_ms"`
	RiskTrend            string                    `json:"risk_trend"`
}

// Stats computes totals, per-risk-level counts/percentages, the
// block:allow ratio, prompts-per-minute over the last 5 minutes of event
// timestamps, average per-stage latency, and the risk trend: the average
// risk score of the newest 10% of events compared against the remainder.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	events := make([]event.Event, len(s.recent))
	copy(events, s.recent)
	s.mu.Unlock()

	out := Stats{
		RiskLevelCounts:      map[string]int{},
		RiskLevelPercentages: map[string]float64{},
	}
	total := len(events)
	out.Total = total
	if total == 0 {
		out.RiskTrend = "stable"
		return out
	}

	var blocked, allowed int
	var sumPre, sumML, sumPolicy, sumBackend, sumTotal int64
	var latest time.Time
	for _, e := range events {
		out.RiskLevelCounts[string(e.RiskLevel)]++
		if e.Action == event.ActionBlock {
			blocked++
		} else {
			allowed++
		}
		sumPre += e.LatencyMs.PreprocessingMs
		sumML += e.LatencyMs.MLMs
		sumPolicy += e.LatencyMs.PolicyMs
		sumBackend += e.LatencyMs.BackendMs
		sumTotal += e.LatencyMs.TotalMs
		if e.TimestampUTC.After(latest) {
			latest = e.TimestampUTC
		}
	}
	for level, count := range out.RiskLevelCounts {
		out.RiskLevelPercentages[level] = 100 * float64(count) / float64(total)
	}
	if allowed > 0 {
		out.BlockAllowRatio = float64(blocked) / float64(allowed)
	} else if blocked > 0 {
		out.BlockAllowRatio = float64(blocked)
	}

	cutoff := latest.Add(-5 * time.Minute)
	var recentCount int
	for _, e := range events {
		if e.TimestampUTC.After(cutoff) {
			recentCount++
		}
	}
	out.PromptsPerMinute = float64(recentCount) / 5.0

	n := int64(total)
	out.AverageLatency = event.LatencyBreakdown{
		PreprocessingMs: sumPre / n,
		MLMs:            sumML / n,
		PolicyMs:        sumPolicy / n,
		BackendMs:       sumBackend / n,
		TotalMs:         sumTotal / n,
	}

	out.RiskTrend = riskTrend(events)
	return out
}

// riskTrend compares the average risk score of the newest 10% of events
// (at least one event) against the remainder.
func riskTrend(events []event.Event) string {
	total := len(events)
	if total < 2 {
		return "stable"
	}
	newestN := total / 10
	if newestN < 1 {
		newestN = 1
	}
	olderCount := total - newestN
	if olderCount <= 0 {
		return "stable"
	}

	var newestSum, olderSum float64
	for i := total - newestN; i < total; i++ {
		newestSum += riskScore(events[i])
	}
	for i := 0; i < olderCount; i++ {
		olderSum += riskScore(events[i])
	}
	newestAvg := newestSum / float64(newestN)
	olderAvg := olderSum / float64(olderCount)

	const epsilon = 0.02
	switch {
	case newestAvg > olderAvg+epsilon:
		return "increasing"
	case newestAvg < olderAvg-epsilon:
		return "decreasing"
	default:
		return "stable"
	}
}

func riskScore(e event.Event) float64 {
	max := e.Scores.PII
	if e.Scores.Toxicity > max {
		max = e.Scores.Toxicity
	}
	if e.Scores.PromptInjection > max {
		max = e.Scores.PromptInjection
	}
	return max
}

// SessionSummary is one entry in the session_analytics response.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	Total      int       `json:"total"`
	Malicious  int       `json:"malicious"`
	Suspicious int       `json:"suspicious"`
	LastSeen   time.Time `json:"last_seen"`
}

// SessionAnalytics returns the topN sessions sorted by malicious+suspicious
// descending.
func (s *Store) SessionAnalytics(topN int) []SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]SessionSummary, 0, len(s.sessions))
	for _, agg := range s.sessions {
		summaries = append(summaries, SessionSummary{
			SessionID:  agg.SessionID,
			Total:      agg.Total,
			Malicious:  agg.Malicious,
			Suspicious: agg.Suspicious,
			LastSeen:   agg.LastSeen,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		si := summaries[i].Malicious + summaries[i].Suspicious
		sj := summaries[j].Malicious + summaries[j].Suspicious
		return si > sj
	})
	if topN > 0 && topN < len(summaries) {
		summaries = summaries[:topN]
	}
	return summaries
}

// TemporalBucket is one minute's worth of risk-category counts.
type TemporalBucket struct {
	MinuteUTC time.Time      `json:"minute_utc"`
	Counts    map[string]int `json:"counts"`
}

// TemporalBreakdown buckets the last `minutes` minutes of events by minute,
// counting per risk category.
func (s *Store) TemporalBreakdown(minutes int) []TemporalBucket {
	s.mu.Lock()
	events := make([]event.Event, len(s.recent))
	copy(events, s.recent)
	s.mu.Unlock()

	if minutes <= 0 {
		minutes = 60
	}
	if len(events) == 0 {
		return nil
	}

	buckets := make(map[time.Time]map[string]int)
	var latest time.Time
	for _, e := range events {
		if e.TimestampUTC.After(latest) {
			latest = e.TimestampUTC
		}
	}
	cutoff := latest.Add(-time.Duration(minutes) * time.Minute)

	var order []time.Time
	for _, e := range events {
		if e.TimestampUTC.Before(cutoff) {
			continue
		}
		bucket := e.TimestampUTC.Truncate(time.Minute)
		if _, ok := buckets[bucket]; !ok {
			buckets[bucket] = map[string]int{}
			order = append(order, bucket)
		}
		buckets[bucket][string(e.RiskCategory)]++
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := make([]TemporalBucket, 0, len(order))
	for _, t := range order {
		out = append(out, TemporalBucket{MinuteUTC: t, Counts: buckets[t]})
	}
	return out
}
