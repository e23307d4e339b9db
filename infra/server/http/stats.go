package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
	"github.com/quoteflow/realtime-delivery-service/internal/monitor"
	"github.com/quoteflow/realtime-delivery-service/internal/queue"
)

type statsResponse struct {
	Broker      model.BrokerStats         `json:"broker"`
	System      model.SystemMetrics       `json:"system"`
	Queue       []model.QueueStats        `json:"queue,omitempty"`
	Alerts      []model.PerformanceAlert  `json:"alerts,omitempty"`
	HealthScore float64                   `json:"health_score"`
	Connections []model.ConnectionMetrics `json:"connections,omitempty"`
}

func newStatsHandler(logger *slog.Logger, broker *registry.Broker, mon *monitor.Monitor, pq *queue.PriorityQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		system := mon.GetSystemMetrics()
		resp := statsResponse{
			Broker:      broker.Stats(),
			System:      system,
			Alerts:      mon.GetPerformanceAlerts(),
			HealthScore: mon.CalculateHealthScore(system),
		}
		if r.URL.Query().Get("connections") == "true" {
			resp.Connections = broker.Connections()
		}
		if queueStats, err := pq.GetStats(r.Context()); err != nil {
			logger.Warn("queue stats unavailable", "error", err)
		} else {
			resp.Queue = queueStats
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("stats encode failed", "error", err)
		}
	}
}

func newHealthHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		score := mon.CalculateHealthScore(mon.GetSystemMetrics())
		status := http.StatusOK
		if score < 50 {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]float64{"health_score": score})
	}
}
