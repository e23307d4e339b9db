package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quoteflow/realtime-delivery-service/internal/domain/model"
)

// MessageSource is the slice of the priority queue the worker consumes.
type MessageSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*model.QueuedMessage, error)
	Acknowledge(ctx context.Context, messageID string) error
	Reject(ctx context.Context, messageID, cause string, retry bool) error
}

// PersonalSender is the slice of the broker the worker delivers through.
type PersonalSender interface {
	SendPersonal(ctx context.Context, connectionID string, env model.Envelope) error
}

// DeliveryWorker is the queue's in-process consumer: it drains queued
// messages in priority order and hands them to the broker, acknowledging
// successes and rejecting failures back into the retry machinery.
type DeliveryWorker struct {
	source MessageSource
	sender PersonalSender
	logger *slog.Logger

	pollTimeout time.Duration
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewDeliveryWorker(source MessageSource, sender PersonalSender, logger *slog.Logger) *DeliveryWorker {
	return &DeliveryWorker{
		source:      source,
		sender:      sender,
		logger:      logger,
		pollTimeout: time.Second,
	}
}

func (w *DeliveryWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

func (w *DeliveryWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *DeliveryWorker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := w.source.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Warn("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollTimeout):
			}
			continue
		}
		if msg == nil {
			continue
		}
		w.process(ctx, msg)
	}
}

// process attempts one delivery. A dead or vanished connection is a
// retryable failure: the peer may reconnect under the same id before the
// retry budget runs out, and the dead-letter set catches it otherwise.
func (w *DeliveryWorker) process(ctx context.Context, msg *model.QueuedMessage) {
	if err := w.sender.SendPersonal(ctx, msg.ConnectionID, msg.Envelope); err != nil {
		if rejectErr := w.source.Reject(ctx, msg.ID, err.Error(), true); rejectErr != nil {
			w.logger.Error("reject failed", "message_id", msg.ID, "error", rejectErr)
		}
		return
	}
	if err := w.source.Acknowledge(ctx, msg.ID); err != nil {
		w.logger.Warn("acknowledge failed", "message_id", msg.ID, "error", err)
	}
}
