package requests

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

type Repository interface {
	// Create inserts a new request in the requested state. A second
	// non-terminal request for the same (owner, contact) pair yields
	// common.ErrDuplicateRequest.
	Create(ctx context.Context, request *models.AccessRequest) (*models.AccessRequest, error)
	GetByID(ctx context.Context, id string) (*models.AccessRequest, error)
	// GetForUpdate reads the request under an exclusive row lock; concurrent
	// resolution attempts serialize on it.
	GetForUpdate(ctx context.Context, id string) (*models.AccessRequest, error)
	// ListDue returns waiting requests whose waiting period elapsed by now.
	ListDue(ctx context.Context, now time.Time) ([]*models.AccessRequest, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.AccessRequest, error)
	ListByContact(ctx context.Context, contactID string) ([]*models.AccessRequest, error)
	ListGrantedByContact(ctx context.Context, contactID string) ([]*models.AccessRequest, error)
	// LastDenial returns the most recent owner_denied request for the pair,
	// or common.ErrorNotFound.
	LastDenial(ctx context.Context, ownerID, contactID string) (*models.AccessRequest, error)
	SaveState(ctx context.Context, request *models.AccessRequest) error
	AppendTransition(ctx context.Context, transition *models.RequestTransition) error
}
