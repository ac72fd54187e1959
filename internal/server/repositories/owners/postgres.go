// Package owners provides the PostgreSQL-backed repository for vault owner
// accounts, including the last-activity column the inactivity tracker reads.
package owners

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/dbx"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

// PostgresRepository implements owner storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, owner *models.Owner) (*models.Owner, error) {
	query := `
		INSERT INTO owners (username, salt, master_key_verifier, inactivity_threshold_secs, waiting_period_secs, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		owner.UserName, owner.Salt, owner.Verifier,
		int64(owner.InactivityThreshold.Seconds()), int64(owner.WaitingPeriod.Seconds()),
		owner.LastActivityAt,
	).Scan(&owner.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return owner, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Owner, error) {
	query := `
		SELECT id, username, salt, master_key_verifier, inactivity_threshold_secs, waiting_period_secs, last_activity_at, created_at
		FROM owners
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByUserName(ctx context.Context, userName string) (*models.Owner, error) {
	query := `
		SELECT id, username, salt, master_key_verifier, inactivity_threshold_secs, waiting_period_secs, last_activity_at, created_at
		FROM owners
		WHERE username = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userName))
}

// AdvanceActivity is monotonic: a timestamp at or before the stored value is
// a no-op, guarding against clock skew and replayed activity events.
func (r *PostgresRepository) AdvanceActivity(ctx context.Context, id string, ts time.Time) (bool, error) {
	query := `
		UPDATE owners SET last_activity_at = $2
		WHERE id = $1 AND last_activity_at < $2
	`
	res, err := r.db.ExecContext(ctx, query, id, ts)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) UpdateSettings(ctx context.Context, id string, threshold, waitingPeriod time.Duration) error {
	query := `
		UPDATE owners SET inactivity_threshold_secs = $2, waiting_period_secs = $3
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, int64(threshold.Seconds()), int64(waitingPeriod.Seconds()))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	} else if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Owner, error) {
	owner := &models.Owner{}
	var thresholdSecs, waitingSecs int64
	err := row.Scan(
		&owner.ID, &owner.UserName, &owner.Salt, &owner.Verifier,
		&thresholdSecs, &waitingSecs, &owner.LastActivityAt, &owner.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	owner.InactivityThreshold = time.Duration(thresholdSecs) * time.Second
	owner.WaitingPeriod = time.Duration(waitingSecs) * time.Second
	return owner, nil
}
