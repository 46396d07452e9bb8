package dispatcher

import (
	"sort"
	"sync"
	"time"
)

// Metrics collects dispatch statistics.
type Metrics struct {
	mu sync.RWMutex

	events map[string]*EventMetrics

	totalDispatches uint64
	totalErrors     uint64
	totalPanics     uint64
	totalDuration   time.Duration
}

// EventMetrics holds metrics for one event name.
type EventMetrics struct {
	Name          string
	DispatchCount uint64
	ErrorCount    uint64
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	LastStatus    ResultStatus
	LastDispatch  time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		events: make(map[string]*EventMetrics),
	}
}

// RecordDispatch records a dispatch.
func (m *Metrics) RecordDispatch(name string, duration time.Duration, status ResultStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalDispatches++
	m.totalDuration += duration
	if status == StatusError {
		m.totalErrors++
	}

	em := m.events[name]
	if em == nil {
		em = &EventMetrics{
			Name:        name,
			MinDuration: duration,
			MaxDuration: duration,
		}
		m.events[name] = em
	}

	em.DispatchCount++
	em.TotalDuration += duration
	em.LastStatus = status
	em.LastDispatch = time.Now()
	if duration < em.MinDuration {
		em.MinDuration = duration
	}
	if duration > em.MaxDuration {
		em.MaxDuration = duration
	}
	if status == StatusError {
		em.ErrorCount++
	}
}

// RecordPanic records a panic recovery.
func (m *Metrics) RecordPanic(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPanics++
}

// EventStats returns a copy of the metrics for one event name, or nil.
func (m *Metrics) EventStats(name string) *EventMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	em := m.events[name]
	if em == nil {
		return nil
	}
	c := *em
	return &c
}

// TopEvents returns the n most dispatched events.
func (m *Metrics) TopEvents(n int) []*EventMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*EventMetrics, 0, len(m.events))
	for _, em := range m.events {
		c := *em
		events = append(events, &c)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].DispatchCount != events[j].DispatchCount {
			return events[i].DispatchCount > events[j].DispatchCount
		}
		return events[i].Name < events[j].Name
	})

	if n > len(events) {
		n = len(events)
	}
	return events[:n]
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = make(map[string]*EventMetrics)
	m.totalDispatches = 0
	m.totalErrors = 0
	m.totalPanics = 0
	m.totalDuration = 0
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalDispatches uint64
	TotalErrors     uint64
	TotalPanics     uint64
	TotalDuration   time.Duration
	AverageDuration time.Duration
	EventCount      int
	Timestamp       time.Time
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MetricsSnapshot{
		TotalDispatches: m.totalDispatches,
		TotalErrors:     m.totalErrors,
		TotalPanics:     m.totalPanics,
		TotalDuration:   m.totalDuration,
		EventCount:      len(m.events),
		Timestamp:       time.Now(),
	}
	if m.totalDispatches > 0 {
		s.AverageDuration = m.totalDuration / time.Duration(m.totalDispatches)
	}
	return s
}

// ErrorRate returns the error rate as a percentage.
func (em *EventMetrics) ErrorRate() float64 {
	if em.DispatchCount == 0 {
		return 0
	}
	return float64(em.ErrorCount) / float64(em.DispatchCount) * 100
}
