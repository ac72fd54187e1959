package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/cryptox"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordFixture(t *testing.T) (*fixture, *RecordService, string, string, []byte) {
	t.Helper()
	f := newFixture(t)

	owner := f.addOwner(time.Now(), testThreshold, testWaiting)

	masterKey, err := cryptox.DeriveMasterKey([]byte("password"), []byte("salt1234"))
	require.NoError(t, err)
	sessionID := newID()
	f.keys.Put(sessionID, masterKey)

	svc := NewRecordService(f.db, f.rm, f.keys, nil, testLogger())
	return f, svc, owner.ID, sessionID, masterKey
}

func TestRecordCreate_SealsPayloadAndEnvelope(t *testing.T) {
	f, svc, ownerID, sessionID, masterKey := newRecordFixture(t)
	ctx := context.Background()

	plaintext := []byte("account: 12345")
	record, err := svc.Create(ctx, ownerID, sessionID, "bank", plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, record.EncryptedData)
	assert.Equal(t, int64(1), record.Version)

	// the stored envelope unwraps under the master key and decrypts the payload
	stored, err := f.rm.records.Get(ctx, record.ID)
	require.NoError(t, err)
	recordKey, err := cryptox.UnwrapRecordKey(masterKey, &cryptox.KeyEnvelope{
		Ciphertext: stored.KeyEnvelope,
		Nonce:      stored.EnvelopeNonce,
	})
	require.NoError(t, err)
	got, err := cryptox.DecryptRecord(stored.EncryptedData, stored.Nonce, recordKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestRecordCreate_RequiresSession(t *testing.T) {
	_, svc, ownerID, _, _ := newRecordFixture(t)

	_, err := svc.Create(context.Background(), ownerID, "expired-session", "x", []byte("x"))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRecordUpdate_RotatesKeyAndDropsEscrows(t *testing.T) {
	f, svc, ownerID, sessionID, _ := newRecordFixture(t)
	ctx := context.Background()

	record, err := svc.Create(ctx, ownerID, sessionID, "doc", []byte("v1"))
	require.NoError(t, err)

	require.NoError(t, f.rm.escrows.Upsert(ctx, &models.ContactEscrow{
		ContactID: "contact-1", RecordID: record.ID, SealedKey: []byte("sealed"),
	}))

	updated, err := svc.Update(ctx, ownerID, sessionID, record.ID, "doc", []byte("v2"), record.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.NotEqual(t, record.KeyEnvelope, updated.KeyEnvelope)

	// deposits sealing the old key are gone
	_, err = f.rm.escrows.Get(ctx, "contact-1", record.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRecordUpdate_StaleVersion(t *testing.T) {
	_, svc, ownerID, sessionID, _ := newRecordFixture(t)
	ctx := context.Background()

	record, err := svc.Create(ctx, ownerID, sessionID, "doc", []byte("v1"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, ownerID, sessionID, record.ID, "doc", []byte("v2"), record.Version)
	require.NoError(t, err)

	_, err = svc.Update(ctx, ownerID, sessionID, record.ID, "doc", []byte("v3"), record.Version)
	assert.ErrorIs(t, err, common.ErrVersionConflict)
}

func TestRecordDelete_SoftDeletesAndDropsEscrows(t *testing.T) {
	f, svc, ownerID, sessionID, _ := newRecordFixture(t)
	ctx := context.Background()

	record, err := svc.Create(ctx, ownerID, sessionID, "doc", []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, f.rm.escrows.Upsert(ctx, &models.ContactEscrow{
		ContactID: "contact-1", RecordID: record.ID, SealedKey: []byte("sealed"),
	}))

	require.NoError(t, svc.Delete(ctx, ownerID, record.ID))

	_, err = svc.Get(ctx, ownerID, record.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = f.rm.escrows.Get(ctx, "contact-1", record.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	list, err := svc.List(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordGet_OtherOwner(t *testing.T) {
	f, svc, ownerID, sessionID, _ := newRecordFixture(t)
	ctx := context.Background()

	record, err := svc.Create(ctx, ownerID, sessionID, "doc", []byte("v1"))
	require.NoError(t, err)

	other := f.addOwner(time.Now(), testThreshold, testWaiting)
	_, err = svc.Get(ctx, other.ID, record.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
