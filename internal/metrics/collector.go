// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpHTTPRequest   = "http_request"
	OpOracleCompare = "oracle_compare"
	OpDiagnose      = "llm_diagnose"
	OpStateWrite    = "state_write"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                      `json:"uptime_seconds"`
	JobsStarted   int64                        `json:"jobs_started"`
	JobsFinished  int64                        `json:"jobs_finished"`
	Phases        map[string]OperationSnapshot `json:"phases,omitempty"`
	Operations    map[string]OperationSnapshot `json:"operations,omitempty"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu           sync.RWMutex
	startTime    time.Time
	jobsStarted  int64
	jobsFinished int64
	phases       map[string]*OperationMetrics
	ops          map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		phases:    make(map[string]*OperationMetrics),
		ops:       make(map[string]*OperationMetrics),
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record(c.ops, op, duration)
}

// RecordPhase records how long one pipeline phase took.
func (c *Collector) RecordPhase(phase string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record(c.phases, phase, duration)
}

// JobStarted counts a started migration job.
func (c *Collector) JobStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsStarted++
}

// JobFinished counts a finished migration job, successful or not.
func (c *Collector) JobFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsFinished++
}

// record updates aggregates for one key. Caller must hold the write lock.
func record(metrics map[string]*OperationMetrics, key string, duration time.Duration) {
	m, ok := metrics[key]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		metrics[key] = m
	}

	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning a zero value if
// no data was recorded.
func snapshotOp(m *OperationMetrics) OperationSnapshot {
	if m == nil || m.Count == 0 {
		return OperationSnapshot{}
	}

	return OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		JobsStarted:   c.jobsStarted,
		JobsFinished:  c.jobsFinished,
	}
	if len(c.phases) > 0 {
		snap.Phases = make(map[string]OperationSnapshot, len(c.phases))
		for phase, m := range c.phases {
			snap.Phases[phase] = snapshotOp(m)
		}
	}
	if len(c.ops) > 0 {
		snap.Operations = make(map[string]OperationSnapshot, len(c.ops))
		for op, m := range c.ops {
			snap.Operations[op] = snapshotOp(m)
		}
	}
	return snap
}
