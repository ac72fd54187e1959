package escrows

import (
	"context"

	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, escrow *models.ContactEscrow) error
	Get(ctx context.Context, contactID, recordID string) (*models.ContactEscrow, error)
	DeleteByContact(ctx context.Context, contactID string) error
	DeleteByRecord(ctx context.Context, recordID string) error
}
