package services

import (
	"time"

	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

// Snapshot is everything the state machine needs to decide the next move for
// one request at one instant. It is assembled under the request's row lock,
// so contact status and owner eligibility are re-checked at the top of every
// transition rather than captured by long-lived timers.
type Snapshot struct {
	State         models.RequestState
	WaitStartedAt *time.Time
	WaitingPeriod time.Duration

	// Inbound actions observed in this evaluation pass.
	OwnerDeny     bool
	ContactCancel bool

	ContactStatus models.ContactStatus
	OwnerEligible bool
}

// Outcome is the transition Evaluate selected.
type Outcome struct {
	To     models.RequestState
	Reason string
}

// Evaluate is the pure decision function of the emergency-access state
// machine. It never reads clocks or repositories; callers inject now and a
// Snapshot. A nil result means no transition is due.
//
// An owner deny observed in the same pass as waiting-period expiry wins:
// owner intent takes precedence over the timeout.
func Evaluate(s Snapshot, now time.Time) *Outcome {
	if s.State.Resolved() {
		return nil
	}

	if s.ContactCancel {
		return &Outcome{To: models.StateCancelled, Reason: "withdrawn by contact"}
	}

	// A revoked contact can never move a request past notification.
	if s.ContactStatus == models.ContactStatusRevoked {
		return &Outcome{To: models.StateExpired, Reason: "contact revoked"}
	}

	if s.State != models.StateWaiting {
		return nil
	}

	if s.OwnerDeny {
		return &Outcome{To: models.StateOwnerDenied, Reason: "denied by owner"}
	}

	if s.WaitStartedAt != nil && !now.Before(s.WaitStartedAt.Add(s.WaitingPeriod)) {
		// Eligibility is re-checked at expiry: an owner who became active
		// during the wait turns the auto-grant into expiry.
		if s.OwnerEligible {
			return &Outcome{To: models.StateGranted, Reason: "waiting period elapsed without owner response"}
		}
		return &Outcome{To: models.StateExpired, Reason: "owner active during waiting period"}
	}

	return nil
}
