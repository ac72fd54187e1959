package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/cryptox"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/auth"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/notify"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
)

const inviteTokenBytes = 16

// ContactService manages trusted contacts: invitation, acceptance with escrow
// key registration, and revocation.
type ContactService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	emergency *EmergencyService
	notifier  notify.Notifier
	logger    logging.Logger

	secretKey       []byte
	tokenValidity   time.Duration
	deliveryTimeout time.Duration
}

func NewContactService(db *sql.DB, rm repomanager.RepositoryManager, emergency *EmergencyService,
	notifier notify.Notifier, logger logging.Logger, secretKey []byte, tokenValidity, deliveryTimeout time.Duration) *ContactService {
	return &ContactService{
		db:              db,
		rm:              rm,
		emergency:       emergency,
		notifier:        notifier,
		logger:          logger.With("module", "contacts"),
		secretKey:       secretKey,
		tokenValidity:   tokenValidity,
		deliveryTimeout: deliveryTimeout,
	}
}

// Invite creates a pending contact with a one-time invite token and mails it
// out. Invite delivery is best-effort: the pending row exists either way and
// the owner can re-send.
func (s *ContactService) Invite(ctx context.Context, ownerID, email string, level models.AccessLevel, recordIDs []string) (*models.TrustedContact, error) {
	switch level {
	case models.AccessLevelViewOnly, models.AccessLevelFullAccess:
		if len(recordIDs) > 0 {
			return nil, fmt.Errorf("record scope only valid for %s: %w", models.AccessLevelSpecificRecords, common.ErrorInternal)
		}
	case models.AccessLevelSpecificRecords:
		if len(recordIDs) == 0 {
			return nil, fmt.Errorf("%s requires a record scope: %w", level, common.ErrorInternal)
		}
	default:
		return nil, fmt.Errorf("unknown access level %q: %w", level, common.ErrorInternal)
	}

	inviteToken, err := common.MakeRandHexString(inviteTokenBytes)
	if err != nil {
		return nil, err
	}

	contact := &models.TrustedContact{
		OwnerID:     ownerID,
		Email:       email,
		AccessLevel: level,
		Status:      models.ContactStatusPending,
		InviteToken: inviteToken,
	}

	created, err := s.rm.Contacts(s.db).Create(ctx, contact)
	if err != nil {
		return nil, err
	}

	if level == models.AccessLevelSpecificRecords {
		if err := s.rm.Contacts(s.db).SetRecordIDs(ctx, created.ID, recordIDs); err != nil {
			return nil, err
		}
		created.RecordIDs = recordIDs
	}

	nctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	if err := s.notifier.NotifyContactOfInvite(nctx, email, created.InviteToken); err != nil {
		s.logger.Warn(ctx, "invite delivery failed", "contact_id", created.ID, "error", err.Error())
	}

	s.logger.Info(ctx, "contact invited", "contact_id", created.ID, "owner_id", ownerID, "access_level", string(level))
	return created, nil
}

// Accept redeems an invite token, registers the contact's X25519 escrow
// public key, and returns a contact-role session token.
func (s *ContactService) Accept(ctx context.Context, inviteToken string, publicKey []byte) (string, error) {
	contact, err := s.rm.Contacts(s.db).GetByInviteToken(ctx, inviteToken)
	if err != nil {
		return "", common.ErrorUnauthorized
	}
	if contact.Status != models.ContactStatusPending {
		return "", common.ErrContactNotEligible
	}

	if _, err := cryptox.NewBoxPublicKey(publicKey); err != nil {
		return "", fmt.Errorf("invalid escrow key: %w", err)
	}

	if err := s.rm.Contacts(s.db).Activate(ctx, contact.ID, publicKey); err != nil {
		return "", err
	}

	token, err := auth.GenerateToken(contact.ID, auth.RoleContact, "", s.secretKey, s.tokenValidity)
	if err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}

	s.logger.Info(ctx, "contact accepted invitation", "contact_id", contact.ID)
	return token, nil
}

// Decline marks a pending invitation as declined.
func (s *ContactService) Decline(ctx context.Context, inviteToken string) error {
	contact, err := s.rm.Contacts(s.db).GetByInviteToken(ctx, inviteToken)
	if err != nil {
		return common.ErrorUnauthorized
	}
	if contact.Status != models.ContactStatusPending {
		return common.ErrContactNotEligible
	}
	return s.rm.Contacts(s.db).UpdateStatus(ctx, contact.ID, models.ContactStatusDeclined)
}

// Revoke removes a contact from the trust set: status revoked, escrow
// deposits destroyed, and any granted request of the contact revoked. Open
// requests need no action here; the revoked status expires them at their
// next evaluation.
func (s *ContactService) Revoke(ctx context.Context, ownerID, contactID string, now time.Time) error {
	contact, err := s.rm.Contacts(s.db).GetByID(ctx, contactID)
	if err != nil {
		return err
	}
	if contact.OwnerID != ownerID {
		return common.ErrorUnauthorized
	}

	if err := s.rm.Contacts(s.db).UpdateStatus(ctx, contactID, models.ContactStatusRevoked); err != nil {
		return err
	}
	if err := s.rm.Escrows(s.db).DeleteByContact(ctx, contactID); err != nil {
		return err
	}
	if err := s.emergency.RevokeByContact(ctx, contactID, ownerID, now); err != nil {
		return err
	}

	s.logger.Info(ctx, "contact revoked", "contact_id", contactID, "owner_id", ownerID)
	return nil
}

// ListByOwner returns the owner's contacts.
func (s *ContactService) ListByOwner(ctx context.Context, ownerID string) ([]*models.TrustedContact, error) {
	return s.rm.Contacts(s.db).ListByOwner(ctx, ownerID)
}
