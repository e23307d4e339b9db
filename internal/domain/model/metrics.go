package model

import (
	"encoding/json"
	"time"
)

// ConnectionRecord mirrors the in-memory registry entry in the durable
// store. Used for fail-over visibility, not as source of truth while the
// owning process is alive.
type ConnectionRecord struct {
	ConnectionID string    `json:"connection_id"`
	SubjectID    string    `json:"subject_id,omitempty"`
	NodeID       string    `json:"node_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}

func (r ConnectionRecord) MarshalBinary() ([]byte, error) { return json.Marshal(r) }

// ConnectionMetrics is the per-connection slice of a stats snapshot.
type ConnectionMetrics struct {
	ConnectionID string    `json:"connection_id"`
	SubjectID    string    `json:"subject_id,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	Sequence     int64     `json:"sequence"`
	Rooms        []string  `json:"rooms,omitempty"`
}

// BrokerStats is an eventually consistent snapshot of the registry.
type BrokerStats struct {
	ActiveConnections int            `json:"active_connections"`
	MaxConnections    int            `json:"max_connections"`
	Utilization       float64        `json:"utilization"`
	Rooms             map[string]int `json:"rooms"`
	Uptime            time.Duration  `json:"uptime"`
}

// SystemMetrics is computed by the Monitor from a rolling window of events
// plus current process state. Recomputing it never mutates broker state.
type SystemMetrics struct {
	ConnectionsTotal  int64         `json:"connections_total"`
	ConnectionsActive int64         `json:"connections_active"`
	ConnectionsPeak   int64         `json:"connections_peak"`
	MessagesSent      int64         `json:"messages_sent"`
	MessagesReceived  int64         `json:"messages_received"`
	MessagesPerSecond float64       `json:"messages_per_second"`
	AvgLatency        time.Duration `json:"avg_latency_ns"`
	P95Latency        time.Duration `json:"p95_latency_ns"`
	ErrorRate         float64       `json:"error_rate"`
	MemoryBytes       uint64        `json:"memory_bytes"`
	CPUPercent        float64       `json:"cpu_percent"`
	Uptime            time.Duration `json:"uptime_ns"`
}

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// PerformanceAlert reports one breached threshold. Severity is fixed per
// threshold type, not per magnitude.
type PerformanceAlert struct {
	Metric    string        `json:"metric"`
	Severity  AlertSeverity `json:"severity"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Message   string        `json:"message"`
	RaisedAt  time.Time     `json:"raised_at"`
}

// QueueStats is the per-priority view of the durable queue.
type QueueStats struct {
	Priority      Priority      `json:"priority"`
	Pending       int64         `json:"pending"`
	Processing    int64         `json:"processing"`
	DeadLettered  int64         `json:"dead_lettered"`
	AvgProcessing time.Duration `json:"avg_processing_ns"`
}
