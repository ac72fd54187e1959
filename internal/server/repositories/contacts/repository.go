package contacts

import (
	"context"

	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, contact *models.TrustedContact) (*models.TrustedContact, error)
	GetByID(ctx context.Context, id string) (*models.TrustedContact, error)
	GetByInviteToken(ctx context.Context, token string) (*models.TrustedContact, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.TrustedContact, error)
	// Activate stores the contact's escrow public key and moves it to active.
	Activate(ctx context.Context, id string, publicKey []byte) error
	UpdateStatus(ctx context.Context, id string, status models.ContactStatus) error
	// RecordIDs returns the explicit record set for specific_records contacts.
	RecordIDs(ctx context.Context, contactID string) ([]string, error)
	SetRecordIDs(ctx context.Context, contactID string, recordIDs []string) error
}
