// Package requests provides the PostgreSQL-backed access-request ledger:
// current request rows plus the append-only transition history.
package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/dbx"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const requestColumns = `id, owner_id, contact_id, state, waiting_period_secs, requested_at, notified_at, wait_started_at, resolved_at, resolution_reason`

const uniqueViolation = "23505"

func (r *PostgresRepository) Create(ctx context.Context, request *models.AccessRequest) (*models.AccessRequest, error) {
	query := `
		INSERT INTO access_requests (owner_id, contact_id, state, waiting_period_secs, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		request.OwnerID, request.ContactID, request.State,
		int64(request.WaitingPeriod.Seconds()), request.RequestedAt,
	).Scan(&request.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrDuplicateRequest
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return request, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ListDue(ctx context.Context, now time.Time) ([]*models.AccessRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM access_requests
		WHERE state = $1 AND wait_started_at + waiting_period_secs * interval '1 second' <= $2
	`
	return r.list(ctx, query, models.StateWaiting, now)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE owner_id = $1 ORDER BY requested_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) ListByContact(ctx context.Context, contactID string) ([]*models.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE contact_id = $1 ORDER BY requested_at DESC`
	return r.list(ctx, query, contactID)
}

func (r *PostgresRepository) ListGrantedByContact(ctx context.Context, contactID string) ([]*models.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE contact_id = $1 AND state = $2`
	return r.list(ctx, query, contactID, models.StateGranted)
}

func (r *PostgresRepository) LastDenial(ctx context.Context, ownerID, contactID string) (*models.AccessRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM access_requests
		WHERE owner_id = $1 AND contact_id = $2 AND state = $3
		ORDER BY resolved_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, ownerID, contactID, models.StateOwnerDenied))
}

func (r *PostgresRepository) SaveState(ctx context.Context, request *models.AccessRequest) error {
	query := `
		UPDATE access_requests
		SET state = $2, notified_at = $3, wait_started_at = $4, resolved_at = $5, resolution_reason = $6
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		request.ID, request.State, request.NotifiedAt, request.WaitStartedAt,
		request.ResolvedAt, request.ResolutionReason,
	)
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

func (r *PostgresRepository) AppendTransition(ctx context.Context, transition *models.RequestTransition) error {
	query := `
		INSERT INTO access_request_transitions (request_id, from_state, to_state, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		transition.RequestID, transition.From, transition.To, transition.Reason, transition.CreatedAt,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.AccessRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessRequest
	for rows.Next() {
		request, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.AccessRequest, error) {
	request := &models.AccessRequest{}
	var waitingSecs int64
	var notifiedAt, waitStartedAt, resolvedAt sql.NullTime
	err := row.Scan(
		&request.ID, &request.OwnerID, &request.ContactID, &request.State,
		&waitingSecs, &request.RequestedAt, &notifiedAt, &waitStartedAt, &resolvedAt,
		&request.ResolutionReason,
	)
	if err != nil {
		return nil, err
	}
	request.WaitingPeriod = time.Duration(waitingSecs) * time.Second
	if notifiedAt.Valid {
		request.NotifiedAt = &notifiedAt.Time
	}
	if waitStartedAt.Valid {
		request.WaitStartedAt = &waitStartedAt.Time
	}
	if resolvedAt.Valid {
		request.ResolvedAt = &resolvedAt.Time
	}
	return request, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.AccessRequest, error) {
	request, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return request, nil
}
