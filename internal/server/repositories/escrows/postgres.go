// Package escrows provides the PostgreSQL-backed repository for record keys
// sealed to contact escrow keys.
package escrows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/dbx"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert replaces any previous escrow for the pair; a record update rotates
// the data key, so stale sealed keys must not survive.
func (r *PostgresRepository) Upsert(ctx context.Context, escrow *models.ContactEscrow) error {
	query := `
		INSERT INTO contact_escrows (contact_id, record_id, sealed_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id, record_id)
		DO UPDATE SET sealed_key = EXCLUDED.sealed_key, created_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, escrow.ContactID, escrow.RecordID, escrow.SealedKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, contactID, recordID string) (*models.ContactEscrow, error) {
	query := `
		SELECT contact_id, record_id, sealed_key, created_at
		FROM contact_escrows
		WHERE contact_id = $1 AND record_id = $2
	`
	escrow := &models.ContactEscrow{}
	err := r.db.QueryRowContext(ctx, query, contactID, recordID).Scan(
		&escrow.ContactID, &escrow.RecordID, &escrow.SealedKey, &escrow.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return escrow, nil
}

func (r *PostgresRepository) DeleteByContact(ctx context.Context, contactID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM contact_escrows WHERE contact_id = $1`, contactID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByRecord(ctx context.Context, recordID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM contact_escrows WHERE record_id = $1`, recordID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
