package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/dbx"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/metrics"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/notify"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// EmergencyService orchestrates the emergency-access state machine:
// request -> notify owner -> wait -> (deny | auto-grant | expire), plus
// cancellation and revocation. Every transition runs in a transaction under
// the request's row lock; the sweep and inbound actions serialize there.
type EmergencyService struct {
	db              *sql.DB
	rm              repomanager.RepositoryManager
	ledger          *Ledger
	grants          *GrantService
	notifier        notify.Notifier
	logger          logging.Logger
	deliveryTimeout time.Duration
}

func NewEmergencyService(db *sql.DB, rm repomanager.RepositoryManager, ledger *Ledger, grants *GrantService,
	notifier notify.Notifier, logger logging.Logger, deliveryTimeout time.Duration) *EmergencyService {
	return &EmergencyService{
		db:              db,
		rm:              rm,
		ledger:          ledger,
		grants:          grants,
		notifier:        notifier,
		logger:          logger.With("module", "emergency"),
		deliveryTimeout: deliveryTimeout,
	}
}

// RequestAccess files an emergency-access request on behalf of a contact.
// Eligibility failures surface before any owner notification fires, so an
// ineligible contact never triggers a spurious alert.
func (s *EmergencyService) RequestAccess(ctx context.Context, contactID string, now time.Time) (*models.AccessRequest, error) {
	contact, err := s.rm.Contacts(s.db).GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contact.Status != models.ContactStatusActive {
		return nil, common.ErrContactNotEligible
	}

	owner, err := s.rm.Owners(s.db).GetByID(ctx, contact.OwnerID)
	if err != nil {
		return nil, err
	}

	if err := s.checkDenialCooldown(ctx, owner.ID, contact.ID, now); err != nil {
		return nil, err
	}

	if !ownerEligible(owner, now) {
		return nil, common.ErrInactivityThresholdNotMet
	}

	var request *models.AccessRequest
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var txErr error
		request, txErr = s.ledger.CreateRequest(ctx, tx, owner, contact, now)
		if txErr != nil {
			return txErr
		}
		return s.ledger.Apply(ctx, tx, request, models.StateOwnerNotified, "owner notified", now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "emergency access requested",
		"request_id", request.ID, "owner_id", owner.ID, "contact_id", contact.ID)

	// Delivery is bounded: a confirmation, an error, or the timeout all start
	// the waiting period rather than stalling the request.
	reason := s.deliverOwnerNotification(ctx, owner, request)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		locked, txErr := s.rm.Requests(tx).GetForUpdate(ctx, request.ID)
		if txErr != nil {
			return txErr
		}
		if txErr := s.ledger.Apply(ctx, tx, locked, models.StateWaiting, reason, now); txErr != nil {
			return txErr
		}
		request = locked
		return nil
	})
	if err != nil {
		// the request was cancelled or expired between creation and delivery
		if errors.Is(err, common.ErrAlreadyResolved) || errors.Is(err, common.ErrIllegalTransition) {
			return s.rm.Requests(s.db).GetByID(ctx, request.ID)
		}
		return nil, err
	}

	return request, nil
}

// Deny resolves a waiting request by explicit owner action. If the waiting
// period has also elapsed in the same pass, deny still wins.
func (s *EmergencyService) Deny(ctx context.Context, requestID, ownerID string, now time.Time) (*models.AccessRequest, error) {
	return s.resolve(ctx, requestID, now, func(request *models.AccessRequest, snap *Snapshot) error {
		if request.OwnerID != ownerID {
			return common.ErrorUnauthorized
		}
		snap.OwnerDeny = true
		return nil
	})
}

// Cancel withdraws a request by the contact that filed it; legal from any
// non-terminal state.
func (s *EmergencyService) Cancel(ctx context.Context, requestID, contactID string, now time.Time) (*models.AccessRequest, error) {
	return s.resolve(ctx, requestID, now, func(request *models.AccessRequest, snap *Snapshot) error {
		if request.ContactID != contactID {
			return common.ErrorUnauthorized
		}
		snap.ContactCancel = true
		return nil
	})
}

// Revoke retracts a granted request by explicit owner action and immediately
// invalidates every outstanding grant token for it.
func (s *EmergencyService) Revoke(ctx context.Context, requestID, ownerID string, now time.Time) (*models.AccessRequest, error) {
	var request *models.AccessRequest
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		locked, txErr := s.rm.Requests(tx).GetForUpdate(ctx, requestID)
		if txErr != nil {
			return txErr
		}
		if locked.OwnerID != ownerID {
			return common.ErrorUnauthorized
		}
		if txErr := s.ledger.Apply(ctx, tx, locked, models.StateRevoked, "revoked by owner", now); txErr != nil {
			return txErr
		}
		request = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.grants.InvalidateRequest(requestID)
	s.logger.Info(ctx, "grant revoked", "request_id", requestID)
	return request, nil
}

// RevokeByContact terminates every granted request of a contact the owner is
// removing. Non-terminal requests need no action here: the revoked status is
// re-checked at the next evaluation and expires them.
func (s *EmergencyService) RevokeByContact(ctx context.Context, contactID, ownerID string, now time.Time) error {
	granted, err := s.rm.Requests(s.db).ListGrantedByContact(ctx, contactID)
	if err != nil {
		return err
	}
	for _, request := range granted {
		if _, err := s.Revoke(ctx, request.ID, ownerID, now); err != nil && !errors.Is(err, common.ErrAlreadyResolved) {
			return err
		}
	}
	return nil
}

// Sweep evaluates every waiting request whose waiting period elapsed by now.
// It is driven by an external scheduler; each request is resolved in its own
// transaction so one failure cannot wedge the rest. Returns the number of
// requests that transitioned.
func (s *EmergencyService) Sweep(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() {
		if metrics.SweepDuration != nil {
			metrics.SweepDuration.Observe(time.Since(start).Seconds())
		}
	}()

	due, err := s.rm.Requests(s.db).ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("error listing due requests: %w", err)
	}

	resolved := 0
	for _, request := range due {
		if _, err := s.resolve(ctx, request.ID, now, nil); err != nil {
			// a concurrent action won the race for this request; move on
			if errors.Is(err, common.ErrAlreadyResolved) {
				continue
			}
			s.logger.Error(ctx, "sweep evaluation failed", "request_id", request.ID, "error", err.Error())
			continue
		}
		resolved++
	}

	return resolved, nil
}

// GetForOwner and GetForContact expose read-only views for the presentation
// layer; all mutation goes through the transition methods above.
func (s *EmergencyService) GetForOwner(ctx context.Context, ownerID string) ([]*models.AccessRequest, error) {
	return s.rm.Requests(s.db).ListByOwner(ctx, ownerID)
}

func (s *EmergencyService) GetForContact(ctx context.Context, contactID string) ([]*models.AccessRequest, error) {
	return s.rm.Requests(s.db).ListByContact(ctx, contactID)
}

// GrantsForRequest returns the outstanding grant tokens for a granted request
// the contact owns. Tokens evicted by a restart or window expiry are
// re-evaluated on demand as long as the request is still granted.
func (s *EmergencyService) GrantsForRequest(ctx context.Context, requestID, contactID string, now time.Time) ([]*models.AccessGrantToken, error) {
	request, err := s.rm.Requests(s.db).GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.ContactID != contactID {
		return nil, common.ErrorUnauthorized
	}
	if request.State != models.StateGranted {
		return nil, common.ErrRecordUnavailable
	}

	if tokens := s.grants.Tokens(requestID); len(tokens) > 0 {
		return tokens, nil
	}

	items, err := s.grants.Evaluate(ctx, request, now)
	if err != nil {
		return nil, err
	}
	tokens := make([]*models.AccessGrantToken, 0, len(items))
	for _, item := range items {
		if item.Token != nil {
			tokens = append(tokens, item.Token)
		}
	}
	return tokens, nil
}

// resolve locks the request, assembles a fresh snapshot (re-reading contact
// status and owner eligibility), lets the caller mark inbound actions, and
// applies whatever transition Evaluate selects. The second of two concurrent
// resolvers observes the terminal state and gets common.ErrAlreadyResolved.
func (s *EmergencyService) resolve(ctx context.Context, requestID string, now time.Time,
	mark func(*models.AccessRequest, *Snapshot) error) (*models.AccessRequest, error) {

	var request *models.AccessRequest
	var granted bool

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		locked, txErr := s.rm.Requests(tx).GetForUpdate(ctx, requestID)
		if txErr != nil {
			return txErr
		}

		contact, txErr := s.rm.Contacts(tx).GetByID(ctx, locked.ContactID)
		if txErr != nil {
			return txErr
		}
		owner, txErr := s.rm.Owners(tx).GetByID(ctx, locked.OwnerID)
		if txErr != nil {
			return txErr
		}

		snap := Snapshot{
			State:         locked.State,
			WaitStartedAt: locked.WaitStartedAt,
			WaitingPeriod: locked.WaitingPeriod,
			ContactStatus: contact.Status,
			OwnerEligible: ownerEligible(owner, now),
		}
		if mark != nil {
			if txErr := mark(locked, &snap); txErr != nil {
				return txErr
			}
		}

		outcome := Evaluate(snap, now)
		if outcome == nil {
			if locked.State.Resolved() {
				return common.ErrAlreadyResolved
			}
			return common.ErrIllegalTransition
		}

		if txErr := s.ledger.Apply(ctx, tx, locked, outcome.To, outcome.Reason, now); txErr != nil {
			return txErr
		}

		request = locked
		granted = outcome.To == models.StateGranted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if granted {
		if _, err := s.grants.Evaluate(ctx, request, now); err != nil {
			// the request stays granted; tokens are re-evaluated on demand
			s.logger.Error(ctx, "grant evaluation failed", "request_id", request.ID, "error", err.Error())
		}
	}

	s.notifyResolution(ctx, request)
	return request, nil
}

func (s *EmergencyService) checkDenialCooldown(ctx context.Context, ownerID, contactID string, now time.Time) error {
	last, err := s.rm.Requests(s.db).LastDenial(ctx, ownerID, contactID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	// after a denial the contact sits out a cooldown equal to the waiting
	// period of the denied request
	if last.ResolvedAt != nil && now.Before(last.ResolvedAt.Add(last.WaitingPeriod)) {
		return fmt.Errorf("denial cooldown until %s: %w",
			last.ResolvedAt.Add(last.WaitingPeriod).Format(time.RFC3339), common.ErrContactNotEligible)
	}
	return nil
}

func (s *EmergencyService) deliverOwnerNotification(ctx context.Context, owner *models.Owner, request *models.AccessRequest) string {
	nctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	result, err := s.notifier.NotifyOwnerOfRequest(nctx, owner.UserName, request.ID)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(ctx, "owner notification timed out", "request_id", request.ID,
			"error", common.ErrDeliveryTimeout.Error())
		return "delivery timeout"
	case err != nil:
		s.logger.Warn(ctx, "owner notification failed", "request_id", request.ID, "error", err.Error())
		return "delivery failed"
	case result != nil && result.Delivered:
		return "delivery confirmed"
	default:
		return "delivery unconfirmed"
	}
}

func (s *EmergencyService) notifyResolution(ctx context.Context, request *models.AccessRequest) {
	if !request.State.Resolved() {
		return
	}
	contact, err := s.rm.Contacts(s.db).GetByID(ctx, request.ContactID)
	if err != nil {
		s.logger.Warn(ctx, "resolution notification skipped", "request_id", request.ID, "error", err.Error())
		return
	}

	nctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	if err := s.notifier.NotifyContactOfResolution(nctx, contact.Email, request.ID, string(request.State)); err != nil {
		s.logger.Warn(ctx, "resolution notification failed", "request_id", request.ID, "error", err.Error())
	}
}
