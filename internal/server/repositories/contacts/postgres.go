// Package contacts provides the PostgreSQL-backed repository for trusted
// contacts and their specific_records sets.
package contacts

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

const contactColumns = `id, owner_id, email, access_level, status, public_key, invite_token, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, contact *models.TrustedContact) (*models.TrustedContact, error) {
	query := `
		INSERT INTO trusted_contacts (owner_id, email, access_level, status, invite_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		contact.OwnerID, contact.Email, contact.AccessLevel, contact.Status, contact.InviteToken,
	).Scan(&contact.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return contact, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.TrustedContact, error) {
	query := `SELECT ` + contactColumns + ` FROM trusted_contacts WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByInviteToken(ctx context.Context, token string) (*models.TrustedContact, error) {
	query := `SELECT ` + contactColumns + ` FROM trusted_contacts WHERE invite_token = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.TrustedContact, error) {
	query := `SELECT ` + contactColumns + ` FROM trusted_contacts WHERE owner_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.TrustedContact
	for rows.Next() {
		contact, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Activate(ctx context.Context, id string, publicKey []byte) error {
	query := `
		UPDATE trusted_contacts SET status = $2, public_key = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, id, models.ContactStatusActive, publicKey, models.ContactStatusPending)
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

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.ContactStatus) error {
	query := `
		UPDATE trusted_contacts SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, status)
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

func (r *PostgresRepository) RecordIDs(ctx context.Context, contactID string) ([]string, error) {
	query := `SELECT record_id FROM contact_records WHERE contact_id = $1`
	rows, err := r.db.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) SetRecordIDs(ctx context.Context, contactID string, recordIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM contact_records WHERE contact_id = $1`, contactID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, recordID := range recordIDs {
		query := `INSERT INTO contact_records (contact_id, record_id) VALUES ($1, $2)`
		if _, err := r.db.ExecContext(ctx, query, contactID, recordID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scan(row scanner) (*models.TrustedContact, error) {
	contact := &models.TrustedContact{}
	var publicKey []byte
	var inviteToken sql.NullString
	err := row.Scan(
		&contact.ID, &contact.OwnerID, &contact.Email, &contact.AccessLevel, &contact.Status,
		&publicKey, &inviteToken, &contact.CreatedAt, &contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	contact.PublicKey = publicKey
	contact.InviteToken = inviteToken.String
	return contact, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.TrustedContact, error) {
	contact, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return contact, nil
}
