package records

import (
	"context"

	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, record *models.Record) (*models.Record, error)
	// Update replaces payload and envelope for the given version; a stale
	// version yields common.ErrVersionConflict.
	Update(ctx context.Context, record *models.Record) error
	Get(ctx context.Context, id string) (*models.Record, error)
	ListLiveByOwner(ctx context.Context, ownerID string) ([]*models.Record, error)
	SoftDelete(ctx context.Context, id, ownerID string) error
}
