// Package services contains the server-side business logic of KeyWarden:
// owner accounts and sessions, trusted contacts, encrypted records, key
// escrow, and the emergency-access state machine.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
)

// ActivityService is the inactivity tracker: it records owner activity and
// decides whether an owner has been inactive long enough for emergency
// access to be requested.
type ActivityService struct {
	db *sql.DB
	rm repomanager.RepositoryManager
}

func NewActivityService(db *sql.DB, rm repomanager.RepositoryManager) *ActivityService {
	return &ActivityService{db: db, rm: rm}
}

// RecordActivity advances the owner's last-activity timestamp. Older
// timestamps are ignored by the repository, so replayed or skewed events
// can never roll activity back.
func (s *ActivityService) RecordActivity(ctx context.Context, ownerID string, ts time.Time) error {
	if _, err := s.rm.Owners(s.db).AdvanceActivity(ctx, ownerID, ts); err != nil {
		return fmt.Errorf("error recording activity: %w", err)
	}
	return nil
}

// ElapsedInactivity returns how long the owner has been inactive as of now.
func (s *ActivityService) ElapsedInactivity(ctx context.Context, ownerID string, now time.Time) (time.Duration, error) {
	owner, err := s.rm.Owners(s.db).GetByID(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return now.Sub(owner.LastActivityAt), nil
}

// EligibleForEmergencyAccess reports whether elapsed inactivity has reached
// the owner's configured threshold.
func (s *ActivityService) EligibleForEmergencyAccess(ctx context.Context, ownerID string, now time.Time) (bool, error) {
	owner, err := s.rm.Owners(s.db).GetByID(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return ownerEligible(owner, now), nil
}

// ownerEligible evaluates the threshold against the owner's current
// last-activity timestamp. Every transition re-reads the owner row, so a
// threshold change by the owner takes effect immediately for future
// evaluations; the waiting period of an in-flight request is unaffected
// because it was copied at request creation.
func ownerEligible(owner *models.Owner, now time.Time) bool {
	return now.Sub(owner.LastActivityAt) >= owner.InactivityThreshold
}
