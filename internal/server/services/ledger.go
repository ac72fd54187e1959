package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/dbx"
	"github.com/dmitrijs2005/keywarden/internal/server/metrics"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
)

// Ledger owns the durable lifecycle of access requests: creation and
// legality-checked transitions, each written with an append-only audit row.
type Ledger struct {
	rm repomanager.RepositoryManager
}

func NewLedger(rm repomanager.RepositoryManager) *Ledger {
	return &Ledger{rm: rm}
}

// CreateRequest inserts a request in the requested state, copying the
// owner's current waiting period onto the request so later configuration
// changes cannot shorten the window. A non-terminal request for the same
// pair yields common.ErrDuplicateRequest (enforced by a partial unique
// index, so concurrent creations cannot both succeed).
func (l *Ledger) CreateRequest(ctx context.Context, tx dbx.DBTX, owner *models.Owner, contact *models.TrustedContact, now time.Time) (*models.AccessRequest, error) {
	if contact.Status != models.ContactStatusActive {
		return nil, common.ErrContactNotEligible
	}

	request := &models.AccessRequest{
		OwnerID:       owner.ID,
		ContactID:     contact.ID,
		State:         models.StateRequested,
		WaitingPeriod: owner.WaitingPeriod,
		RequestedAt:   now,
	}

	return l.rm.Requests(tx).Create(ctx, request)
}

// Apply performs one legality-checked transition on a request the caller has
// locked, stamping lifecycle timestamps and recording the audit row. A
// request that is already resolved yields common.ErrAlreadyResolved (the
// losing side of a concurrent resolution race sees this); any other illegal
// move yields common.ErrIllegalTransition.
func (l *Ledger) Apply(ctx context.Context, tx dbx.DBTX, request *models.AccessRequest, to models.RequestState, reason string, now time.Time) error {
	from := request.State

	if !from.CanTransitionTo(to) {
		if from.Resolved() {
			return common.ErrAlreadyResolved
		}
		return fmt.Errorf("%s -> %s: %w", from, to, common.ErrIllegalTransition)
	}

	request.State = to
	switch to {
	case models.StateOwnerNotified:
		request.NotifiedAt = &now
	case models.StateWaiting:
		request.WaitStartedAt = &now
	default:
		if to.Resolved() {
			request.ResolvedAt = &now
			request.ResolutionReason = reason
		}
	}

	repo := l.rm.Requests(tx)
	if err := repo.SaveState(ctx, request); err != nil {
		return fmt.Errorf("error saving request state: %w", err)
	}
	if err := repo.AppendTransition(ctx, &models.RequestTransition{
		RequestID: request.ID,
		From:      from,
		To:        to,
		Reason:    reason,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("error recording transition: %w", err)
	}

	metrics.ObserveTransition(string(from), string(to))
	return nil
}
