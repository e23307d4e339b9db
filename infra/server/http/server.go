// Package http serves the operational surface: the websocket endpoint,
// Prometheus metrics, the stats snapshot and the health probe.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
	"github.com/quoteflow/realtime-delivery-service/internal/handler/ws"
	"github.com/quoteflow/realtime-delivery-service/internal/monitor"
	"github.com/quoteflow/realtime-delivery-service/internal/queue"
)

type Server struct {
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(addr string, logger *slog.Logger, wsHandler *ws.WSHandler, broker *registry.Broker, mon *monitor.Monitor, pq *queue.PriorityQueue) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/ws", wsHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(mon.Registry(), promhttp.HandlerOpts{}))
	r.Get("/stats", newStatsHandler(logger, broker, mon, pq))
	r.Get("/healthz", newHealthHandler(mon))

	return &Server{
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
