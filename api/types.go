package api

import (
	"context"

	"portal-api/billing"
	"portal-api/domain"
	"portal-api/notify"
)

// Authenticator is implemented by types able to extract user IDs from
// Authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Directory resolves portal users and persists their payment customer id.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*domain.DirectoryEntry, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
}

// SettingsLoader reads the administrative settings rows.
type SettingsLoader interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// NotificationQueue accepts assignment notifications for asynchronous
// dispatch. Enqueue failures are logged, never surfaced to the mutation that
// produced the notification.
type NotificationQueue interface {
	EnqueueNotification(ctx context.Context, n domain.AssignmentNotification) error
}

// Dispatcher sends one assignment notification synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.AssignmentNotification) notify.Result
}

// GatewayFactory builds a payment gateway from the operator's secret key.
// The key lives in the settings store and is read per request.
type GatewayFactory func(secretKey string) billing.Gateway
