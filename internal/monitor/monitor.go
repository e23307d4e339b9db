// Package monitor is the passive observability component: it records
// connection, message and error events fired by the broker and the queue,
// and computes system metrics, threshold alerts and a health score from a
// rolling window.
package monitor

import (
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// latencySampleCap bounds the rolling latency window.
const latencySampleCap = 1000

// Thresholds are the fixed alerting limits. Severity is fixed per
// threshold type (see alerts.go), not per magnitude.
type Thresholds struct {
	MaxConnections int64
	AvgLatency     time.Duration
	ErrorRate      float64
	MemoryBytes    uint64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxConnections: 8000,
		AvgLatency:     250 * time.Millisecond,
		ErrorRate:      0.05,
		MemoryBytes:    1 << 30,
	}
}

// Monitor records events fire-and-forget: every method returns immediately
// and never raises back into the caller. Internal failures (process
// sampling, collector updates) are swallowed and logged.
type Monitor struct {
	logger     *slog.Logger
	thresholds Thresholds
	startedAt  time.Time

	connectionsTotal  int64
	connectionsActive int64
	connectionsPeak   int64
	messagesSent      int64
	messagesReceived  int64
	errorsTotal       int64

	mu        sync.Mutex
	latencies []time.Duration
	rate      rateTracker

	proc *process.Process
	prom *collectors
}

func New(logger *slog.Logger, thresholds Thresholds) *Monitor {
	m := &Monitor{
		logger:     logger,
		thresholds: thresholds,
		startedAt:  time.Now(),
		latencies:  make([]time.Duration, 0, latencySampleCap),
		rate:       rateTracker{lastAt: time.Now()},
		prom:       newCollectors(),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("process metrics unavailable", "error", err)
	} else {
		m.proc = proc
	}
	return m
}

func (m *Monitor) RecordConnectionEstablished(connectionID string) {
	atomic.AddInt64(&m.connectionsTotal, 1)
	active := atomic.AddInt64(&m.connectionsActive, 1)
	for {
		peak := atomic.LoadInt64(&m.connectionsPeak)
		if active <= peak || atomic.CompareAndSwapInt64(&m.connectionsPeak, peak, active) {
			break
		}
	}
	m.prom.connectionsTotal.Inc()
	m.prom.connectionsActive.Set(float64(active))
}

func (m *Monitor) RecordConnectionClosed(connectionID string) {
	active := atomic.AddInt64(&m.connectionsActive, -1)
	if active < 0 {
		// Close without a matching establish; clamp rather than propagate.
		atomic.StoreInt64(&m.connectionsActive, 0)
		active = 0
	}
	m.prom.connectionsActive.Set(float64(active))
}

func (m *Monitor) RecordMessageSent(latency time.Duration) {
	atomic.AddInt64(&m.messagesSent, 1)
	m.prom.messagesSent.Inc()

	m.mu.Lock()
	if len(m.latencies) >= latencySampleCap {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Monitor) RecordMessageReceived() {
	atomic.AddInt64(&m.messagesReceived, 1)
	m.prom.messagesReceived.Inc()
}

func (m *Monitor) RecordRoomSubscription(roomID string) {
	m.prom.roomSubscriptions.Inc()
}

func (m *Monitor) RecordError(kind string) {
	atomic.AddInt64(&m.errorsTotal, 1)
	m.prom.errorsTotal.WithLabelValues(kind).Inc()
}

// GetSystemMetrics computes a snapshot from the rolling window plus current
// process state. Safe to call at any time; never mutates broker state.
func (m *Monitor) GetSystemMetrics() model.SystemMetrics {
	sent := atomic.LoadInt64(&m.messagesSent)
	received := atomic.LoadInt64(&m.messagesReceived)
	errs := atomic.LoadInt64(&m.errorsTotal)

	m.mu.Lock()
	perSecond := m.rate.update(sent + received)
	avg, p95 := summarizeLatencies(m.latencies)
	m.mu.Unlock()

	// Floor of 1 avoids division by zero before the first message.
	totalMessages := sent + received
	if totalMessages < 1 {
		totalMessages = 1
	}

	memory, cpu := m.sampleProcess()
	return model.SystemMetrics{
		ConnectionsTotal:  atomic.LoadInt64(&m.connectionsTotal),
		ConnectionsActive: atomic.LoadInt64(&m.connectionsActive),
		ConnectionsPeak:   atomic.LoadInt64(&m.connectionsPeak),
		MessagesSent:      sent,
		MessagesReceived:  received,
		MessagesPerSecond: perSecond,
		AvgLatency:        avg,
		P95Latency:        p95,
		ErrorRate:         float64(errs) / float64(totalMessages),
		MemoryBytes:       memory,
		CPUPercent:        cpu,
		Uptime:            time.Since(m.startedAt),
	}
}

func (m *Monitor) sampleProcess() (uint64, float64) {
	if m.proc == nil {
		return 0, 0
	}
	var memory uint64
	if info, err := m.proc.MemoryInfo(); err == nil {
		memory = info.RSS
	} else {
		m.logger.Debug("memory sample failed", "error", err)
	}
	var cpu float64
	if percent, err := m.proc.CPUPercent(); err == nil {
		cpu = percent
	} else {
		m.logger.Debug("cpu sample failed", "error", err)
	}
	return memory, cpu
}

func summarizeLatencies(samples []time.Duration) (avg, p95 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	idx := (len(sorted) * 95) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return total / time.Duration(len(sorted)), sorted[idx]
}

// rateTracker derives messages/second from counter deltas between reads.
type rateTracker struct {
	lastCount int64
	lastAt    time.Time
	current   float64
}

func (r *rateTracker) update(count int64) float64 {
	now := time.Now()
	elapsed := now.Sub(r.lastAt).Seconds()
	if elapsed >= 1 {
		r.current = float64(count-r.lastCount) / elapsed
		r.lastCount = count
		r.lastAt = now
	}
	return r.current
}
