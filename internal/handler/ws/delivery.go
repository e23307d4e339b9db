package ws

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
	"github.com/quoteflow/realtime-delivery-service/internal/domain/registry"
)

// Header carrying the pre-authenticated subject identity. Authentication
// itself happens upstream of this core.
const subjectHeader = "X-Subject-ID"

type WSHandler struct {
	logger   *slog.Logger
	broker   *registry.Broker
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, broker *registry.Broker) *WSHandler {
	return &WSHandler{
		logger: logger,
		broker: broker,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connectionID := r.URL.Query().Get("connection_id")
	if connectionID == "" {
		connectionID = uuid.NewString()
	}
	subjectID := r.Header.Get(subjectHeader)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}

	metadata := map[string]string{
		"remote_ip":  r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	if err := h.broker.Connect(r.Context(), conn, connectionID, subjectID, metadata); err != nil {
		h.logger.Warn("connect rejected", "connection_id", connectionID, "error", err)
		_ = conn.Close()
		return
	}

	h.logger.Info("ws opened", "connection_id", connectionID, "subject_id", subjectID)

	// Read pump: every inbound frame goes through the broker's dispatch;
	// validation failures keep the connection open, read errors end it.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if discErr := h.broker.Disconnect(r.Context(), connectionID, "client closed", true); discErr != nil &&
				!errors.Is(discErr, model.ErrConnectionNotFound) {
				h.logger.Warn("ws teardown failed", "connection_id", connectionID, "error", discErr)
			}
			return
		}
		if err := h.broker.HandleInbound(r.Context(), connectionID, raw); err != nil {
			if errors.Is(err, model.ErrConnectionNotFound) {
				return
			}
			h.logger.Debug("inbound rejected", "connection_id", connectionID, "error", err)
		}
	}
}
