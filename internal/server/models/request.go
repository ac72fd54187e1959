package models

import "time"

type RequestState string

const (
	StateRequested     RequestState = "requested"
	StateOwnerNotified RequestState = "owner_notified"
	StateWaiting       RequestState = "waiting"
	StateOwnerDenied   RequestState = "owner_denied"
	StateGranted       RequestState = "granted"
	StateExpired       RequestState = "expired"
	StateCancelled     RequestState = "cancelled"
	StateRevoked       RequestState = "revoked"
)

// legalTransitions is the full emergency-access state machine. cancelled is
// reachable from every non-terminal state; revoked only from granted.
var legalTransitions = map[RequestState][]RequestState{
	StateRequested:     {StateOwnerNotified, StateCancelled, StateExpired},
	StateOwnerNotified: {StateWaiting, StateCancelled, StateExpired},
	StateWaiting:       {StateOwnerDenied, StateGranted, StateExpired, StateCancelled},
	StateGranted:       {StateRevoked},
}

// Resolved reports whether the state is past the point of owner/contact
// action on the waiting window. granted counts as resolved even though it
// still admits the revoked transition.
func (s RequestState) Resolved() bool {
	switch s {
	case StateOwnerDenied, StateGranted, StateExpired, StateCancelled, StateRevoked:
		return true
	}
	return false
}

// Terminal reports whether no further transition is legal from s.
func (s RequestState) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is a legal move.
func (s RequestState) CanTransitionTo(next RequestState) bool {
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// AccessRequest is an emergency-access request filed by a trusted contact.
// WaitingPeriod is copied from the owner's configuration at creation time and
// never changes afterwards, so the owner cannot shorten an in-flight window.
type AccessRequest struct {
	ID               string
	OwnerID          string
	ContactID        string
	State            RequestState
	WaitingPeriod    time.Duration
	RequestedAt      time.Time
	NotifiedAt       *time.Time
	WaitStartedAt    *time.Time
	ResolvedAt       *time.Time
	ResolutionReason string
}

// WaitDeadline returns the instant the waiting period elapses, and false if
// the wait has not started.
func (r *AccessRequest) WaitDeadline() (time.Time, bool) {
	if r.WaitStartedAt == nil {
		return time.Time{}, false
	}
	return r.WaitStartedAt.Add(r.WaitingPeriod), true
}

// RequestTransition is one audit row in the append-only transition history.
type RequestTransition struct {
	ID        string
	RequestID string
	From      RequestState
	To        RequestState
	Reason    string
	CreatedAt time.Time
}
