package monitor

import (
	"fmt"
	"time"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// Health score deduction per breached threshold. Each penalty is bounded so
// a single runaway metric cannot zero the score on its own.
const (
	penaltyConnections = 15.0
	penaltyLatency     = 20.0
	penaltyErrorRate   = 35.0
	penaltyMemory      = 30.0
)

// GetPerformanceAlerts compares current metrics against the fixed
// thresholds and emits one alert per breach.
func (m *Monitor) GetPerformanceAlerts() []model.PerformanceAlert {
	return m.alertsFor(m.GetSystemMetrics())
}

func (m *Monitor) alertsFor(metrics model.SystemMetrics) []model.PerformanceAlert {
	now := time.Now().UTC()
	var alerts []model.PerformanceAlert

	if metrics.ConnectionsActive > m.thresholds.MaxConnections {
		alerts = append(alerts, model.PerformanceAlert{
			Metric:    "connections_active",
			Severity:  model.SeverityWarning,
			Value:     float64(metrics.ConnectionsActive),
			Threshold: float64(m.thresholds.MaxConnections),
			Message:   fmt.Sprintf("active connections %d above threshold %d", metrics.ConnectionsActive, m.thresholds.MaxConnections),
			RaisedAt:  now,
		})
	}
	if metrics.AvgLatency > m.thresholds.AvgLatency {
		alerts = append(alerts, model.PerformanceAlert{
			Metric:    "avg_latency",
			Severity:  model.SeverityWarning,
			Value:     float64(metrics.AvgLatency.Milliseconds()),
			Threshold: float64(m.thresholds.AvgLatency.Milliseconds()),
			Message:   fmt.Sprintf("average send latency %s above ceiling %s", metrics.AvgLatency, m.thresholds.AvgLatency),
			RaisedAt:  now,
		})
	}
	if metrics.ErrorRate > m.thresholds.ErrorRate {
		alerts = append(alerts, model.PerformanceAlert{
			Metric:    "error_rate",
			Severity:  model.SeverityCritical,
			Value:     metrics.ErrorRate,
			Threshold: m.thresholds.ErrorRate,
			Message:   fmt.Sprintf("error rate %.4f above ceiling %.4f", metrics.ErrorRate, m.thresholds.ErrorRate),
			RaisedAt:  now,
		})
	}
	if metrics.MemoryBytes > m.thresholds.MemoryBytes {
		alerts = append(alerts, model.PerformanceAlert{
			Metric:    "memory_bytes",
			Severity:  model.SeverityCritical,
			Value:     float64(metrics.MemoryBytes),
			Threshold: float64(m.thresholds.MemoryBytes),
			Message:   fmt.Sprintf("process memory %d bytes above ceiling %d", metrics.MemoryBytes, m.thresholds.MemoryBytes),
			RaisedAt:  now,
		})
	}
	return alerts
}

// CalculateHealthScore maps metrics to [0, 100]: 100 means no threshold
// breach was detected; each breach deducts its bounded penalty.
func (m *Monitor) CalculateHealthScore(metrics model.SystemMetrics) float64 {
	score := 100.0
	if metrics.ConnectionsActive > m.thresholds.MaxConnections {
		score -= penaltyConnections
	}
	if metrics.AvgLatency > m.thresholds.AvgLatency {
		score -= penaltyLatency
	}
	if metrics.ErrorRate > m.thresholds.ErrorRate {
		score -= penaltyErrorRate
	}
	if metrics.MemoryBytes > m.thresholds.MemoryBytes {
		score -= penaltyMemory
	}
	if score < 0 {
		return 0
	}
	return score
}
