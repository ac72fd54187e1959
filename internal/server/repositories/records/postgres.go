// Package records provides the PostgreSQL-backed repository for encrypted
// vault records and their key envelopes.
package records

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

const recordColumns = `id, owner_id, title, encrypted_data, nonce, key_envelope, envelope_nonce, storage_key, deleted, version, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, record *models.Record) (*models.Record, error) {
	query := `
		INSERT INTO records (owner_id, title, encrypted_data, nonce, key_envelope, envelope_nonce, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, version
	`
	err := r.db.QueryRowContext(ctx, query,
		record.OwnerID, record.Title, record.EncryptedData, record.Nonce,
		record.KeyEnvelope, record.EnvelopeNonce, record.StorageKey,
	).Scan(&record.ID, &record.Version)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

// Update rotates the payload and envelope, guarded by optimistic concurrency
// on the version column.
func (r *PostgresRepository) Update(ctx context.Context, record *models.Record) error {
	query := `
		UPDATE records
		SET title = $3, encrypted_data = $4, nonce = $5, key_envelope = $6, envelope_nonce = $7,
		    storage_key = $8, version = version + 1, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND version = $9 AND NOT deleted
	`
	res, err := r.db.ExecContext(ctx, query,
		record.ID, record.OwnerID, record.Title, record.EncryptedData, record.Nonce,
		record.KeyEnvelope, record.EnvelopeNonce, record.StorageKey, record.Version,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		record.Version++
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	record := &models.Record{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.OwnerID, &record.Title, &record.EncryptedData, &record.Nonce,
		&record.KeyEnvelope, &record.EnvelopeNonce, &record.StorageKey,
		&record.Deleted, &record.Version, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

func (r *PostgresRepository) ListLiveByOwner(ctx context.Context, ownerID string) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE owner_id = $1 AND NOT deleted ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		record := &models.Record{}
		if err := rows.Scan(
			&record.ID, &record.OwnerID, &record.Title, &record.EncryptedData, &record.Nonce,
			&record.KeyEnvelope, &record.EnvelopeNonce, &record.StorageKey,
			&record.Deleted, &record.Version, &record.CreatedAt, &record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id, ownerID string) error {
	query := `
		UPDATE records SET deleted = true, version = version + 1, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND NOT deleted
	`
	res, err := r.db.ExecContext(ctx, query, id, ownerID)
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
