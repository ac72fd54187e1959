package owners

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, owner *models.Owner) (*models.Owner, error)
	GetByID(ctx context.Context, id string) (*models.Owner, error)
	GetByUserName(ctx context.Context, userName string) (*models.Owner, error)
	// AdvanceActivity moves last_activity_at forward to ts. Timestamps older
	// than the stored value are ignored; returns whether a row was updated.
	AdvanceActivity(ctx context.Context, id string, ts time.Time) (bool, error)
	UpdateSettings(ctx context.Context, id string, threshold, waitingPeriod time.Duration) error
}
