// Package notify defines the notification collaborator consumed by the
// emergency-access state machine, and an SMTP implementation of it.
package notify

import "context"

// DeliveryResult reports the outcome of an owner notification attempt.
type DeliveryResult struct {
	Delivered bool
	Detail    string
}

// Notifier delivers emergency-access notifications. Implementations must
// honor ctx cancellation: the state machine bounds every delivery attempt
// with a timeout and advances on expiry instead of stalling.
type Notifier interface {
	NotifyOwnerOfRequest(ctx context.Context, ownerEmail, requestID string) (*DeliveryResult, error)
	NotifyContactOfResolution(ctx context.Context, contactEmail, requestID, outcome string) error
	NotifyContactOfInvite(ctx context.Context, contactEmail, inviteToken string) error
}

// NoopNotifier reports success without delivering anything. Used in tests and
// when no SMTP endpoint is configured.
type NoopNotifier struct{}

func (NoopNotifier) NotifyOwnerOfRequest(ctx context.Context, ownerEmail, requestID string) (*DeliveryResult, error) {
	return &DeliveryResult{Delivered: true, Detail: "noop"}, nil
}

func (NoopNotifier) NotifyContactOfResolution(ctx context.Context, contactEmail, requestID, outcome string) error {
	return nil
}

func (NoopNotifier) NotifyContactOfInvite(ctx context.Context, contactEmail, inviteToken string) error {
	return nil
}
