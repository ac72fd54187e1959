package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func newOwnerService(f *fixture) (*OwnerService, *ActivityService) {
	activity := NewActivityService(f.db, f.rm)
	svc := NewOwnerService(f.db, f.rm, f.keys, activity, testLogger(),
		testSecret, time.Hour, testThreshold, testWaiting)
	return svc, activity
}

func TestOwnerRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newOwnerService(f)

	owner, err := svc.Register(ctx, "alice", []byte("correct horse"))
	require.NoError(t, err)
	assert.NotEmpty(t, owner.ID)
	assert.Len(t, owner.Salt, saltSize)
	assert.NotEmpty(t, owner.Verifier)
	assert.Equal(t, testThreshold, owner.InactivityThreshold)
	assert.Equal(t, testWaiting, owner.WaitingPeriod)

	token, err := svc.Login(ctx, "alice", []byte("correct horse"), time.Now())
	require.NoError(t, err)

	claims, err := auth.ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, claims.ActorID)
	assert.Equal(t, auth.RoleOwner, claims.Role)

	// the session's master key is parked in the keyring
	key, ok := f.keys.Get(claims.SessionID)
	require.True(t, ok)
	assert.Len(t, key, 32)

	svc.Logout(ctx, claims.SessionID)
	_, ok = f.keys.Get(claims.SessionID)
	assert.False(t, ok)
}

func TestOwnerLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newOwnerService(f)

	_, err := svc.Register(ctx, "alice", []byte("correct horse"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", []byte("wrong"), time.Now())
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestOwnerLogin_UnknownUser(t *testing.T) {
	f := newFixture(t)
	svc, _ := newOwnerService(f)

	_, err := svc.Login(context.Background(), "nobody", []byte("pw"), time.Now())
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestOwnerLogin_RecordsActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, activity := newOwnerService(f)

	owner, err := svc.Register(ctx, "alice", []byte("pw1234"))
	require.NoError(t, err)

	loginAt := time.Now().Add(time.Hour)
	_, err = svc.Login(ctx, "alice", []byte("pw1234"), loginAt)
	require.NoError(t, err)

	elapsed, err := activity.ElapsedInactivity(ctx, owner.ID, loginAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, elapsed)
}

func TestOwnerGetSalt_UnknownUserGetsRandomSalt(t *testing.T) {
	f := newFixture(t)
	svc, _ := newOwnerService(f)

	s1, err := svc.GetSalt(context.Background(), "nobody")
	require.NoError(t, err)
	s2, err := svc.GetSalt(context.Background(), "nobody")
	require.NoError(t, err)

	assert.Len(t, s1, saltSize)
	assert.NotEqual(t, s1, s2)
}

func TestOwnerUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newOwnerService(f)

	owner, err := svc.Register(ctx, "alice", []byte("pw1234"))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateSettings(ctx, owner.ID, 60*24*time.Hour, 14*24*time.Hour))

	got, err := svc.Get(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 60*24*time.Hour, got.InactivityThreshold)
	assert.Equal(t, 14*24*time.Hour, got.WaitingPeriod)

	assert.Error(t, svc.UpdateSettings(ctx, owner.ID, 0, time.Hour))
}
