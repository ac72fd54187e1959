package owners

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate_ReturnsID(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO owners")).
		WithArgs("alice", []byte("salt"), []byte("verifier"), int64(2592000), int64(604800), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("owner-1"))

	owner, err := repo.Create(context.Background(), &models.Owner{
		UserName:            "alice",
		Salt:                []byte("salt"),
		Verifier:            []byte("verifier"),
		InactivityThreshold: 30 * 24 * time.Hour,
		WaitingPeriod:       7 * 24 * time.Hour,
		LastActivityAt:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, "owner-1", owner.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_ConvertsSeconds(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "username", "salt", "master_key_verifier",
		"inactivity_threshold_secs", "waiting_period_secs", "last_activity_at", "created_at",
	}).AddRow("owner-1", "alice", []byte("salt"), []byte("verifier"), int64(2592000), int64(604800), now, now)

	mock.ExpectQuery("SELECT .+ FROM owners\\s+WHERE id").
		WithArgs("owner-1").
		WillReturnRows(rows)

	owner, err := repo.GetByID(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, owner.InactivityThreshold)
	assert.Equal(t, 7*24*time.Hour, owner.WaitingPeriod)
}

func TestGetByUserName_NotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("SELECT .+ FROM owners\\s+WHERE username").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "salt", "master_key_verifier",
			"inactivity_threshold_secs", "waiting_period_secs", "last_activity_at", "created_at",
		}))

	_, err := repo.GetByUserName(context.Background(), "nobody")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAdvanceActivity_Monotonic(t *testing.T) {
	repo, mock := newMock(t)
	ts := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE owners SET last_activity_at")).
		WithArgs("owner-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	advanced, err := repo.AdvanceActivity(context.Background(), "owner-1", ts)
	require.NoError(t, err)
	assert.True(t, advanced)

	// an older timestamp matches no row
	mock.ExpectExec(regexp.QuoteMeta("UPDATE owners SET last_activity_at")).
		WithArgs("owner-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 0))

	advanced, err = repo.AdvanceActivity(context.Background(), "owner-1", ts)
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestUpdateSettings_MissingRow(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE owners SET inactivity_threshold_secs")).
		WithArgs("missing", int64(3600), int64(7200)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateSettings(context.Background(), "missing", time.Hour, 2*time.Hour)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
