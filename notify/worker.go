package notify

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"portal-api/domain"
	"portal-api/storage"
)

// Queue is the slice of the storage layer the worker drains.
type Queue interface {
	DequeueNotification(ctx context.Context) (*storage.QueuedNotification, error)
	DeleteNotification(ctx context.Context, messageID, popReceipt string) error
}

// Sender dispatches a single notification.
type Sender interface {
	Dispatch(ctx context.Context, n domain.AssignmentNotification) Result
}

// Worker drains the assignment-notification queue. Outcomes are logged and
// the message is deleted regardless; there is no retry, matching the
// at-least-once, fire-and-forget contract of reassignment notifications.
type Worker struct {
	queue    Queue
	sender   Sender
	logger   *log.Logger
	pollWait time.Duration
}

// NewWorker creates a queue worker.
func NewWorker(queue Queue, sender Sender, logger *log.Logger, pollWait time.Duration) *Worker {
	if pollWait <= 0 {
		pollWait = time.Second
	}
	return &Worker{queue: queue, sender: sender, logger: logger, pollWait: pollWait}
}

// Run processes messages until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !w.processOne(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollWait):
			}
		}
	}
}

// processOne handles a single queue message. It reports false when the queue
// was empty or unavailable so the caller backs off.
func (w *Worker) processOne(ctx context.Context) bool {
	qn, err := w.queue.DequeueNotification(ctx)
	if err != nil && !errors.Is(err, storage.ErrMalformedNotification) {
		w.logger.WithError(err).Error("notification dequeue failed")
		return false
	}
	if qn == nil {
		return false
	}
	if errors.Is(err, storage.ErrMalformedNotification) {
		w.logger.WithField("message_id", qn.MessageID).Warn("dropping malformed notification message")
		w.delete(ctx, qn)
		return true
	}

	res := w.sender.Dispatch(ctx, qn.Notification)
	fields := log.Fields{
		"kind":     qn.Notification.Kind,
		"assignee": qn.Notification.AssigneeID,
		"success":  res.Success,
	}
	if res.Reason != "" {
		fields["reason"] = res.Reason
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	if res.Success {
		w.logger.WithFields(fields).Info("assignment notification dispatched")
	} else {
		w.logger.WithFields(fields).Error("assignment notification failed")
	}

	w.delete(ctx, qn)
	return true
}

func (w *Worker) delete(ctx context.Context, qn *storage.QueuedNotification) {
	if err := w.queue.DeleteNotification(ctx, qn.MessageID, qn.PopReceipt); err != nil {
		w.logger.WithError(err).Error("notification message delete failed")
	}
}
