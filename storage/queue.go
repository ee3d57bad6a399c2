package storage

import (
	"context"
	"encoding/json"
	"errors"

	"portal-api/domain"
)

// ErrMalformedNotification marks a queue message that cannot be decoded. The
// worker deletes such messages instead of retrying them forever.
var ErrMalformedNotification = errors.New("malformed notification message")

// QueuedNotification pairs a dequeued notification with the receipt needed
// to delete the underlying message.
type QueuedNotification struct {
	Notification domain.AssignmentNotification
	MessageID    string
	PopReceipt   string
}

// EnqueueNotification puts an assignment notification request on the
// dispatch queue. The caller treats this as fire-and-forget.
func (s *Storage) EnqueueNotification(ctx context.Context, n domain.AssignmentNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.notifyQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// DequeueNotification pops one message off the dispatch queue. An empty
// queue yields (nil, nil). A message that cannot be decoded is returned with
// ErrMalformedNotification so the caller can still delete it.
func (s *Storage) DequeueNotification(ctx context.Context) (*QueuedNotification, error) {
	resp, err := s.notifyQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	qn := &QueuedNotification{}
	if msg.MessageID != nil {
		qn.MessageID = *msg.MessageID
	}
	if msg.PopReceipt != nil {
		qn.PopReceipt = *msg.PopReceipt
	}
	if msg.MessageText == nil {
		return qn, ErrMalformedNotification
	}
	if err := json.Unmarshal([]byte(*msg.MessageText), &qn.Notification); err != nil {
		return qn, ErrMalformedNotification
	}
	return qn, nil
}

// DeleteNotification acknowledges a dequeued message.
func (s *Storage) DeleteNotification(ctx context.Context, messageID, popReceipt string) error {
	_, err := s.notifyQueue.DeleteMessage(ctx, messageID, popReceipt, nil)
	return err
}
