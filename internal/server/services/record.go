package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/cryptox"
	"github.com/dmitrijs2005/keywarden/internal/keyring"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keywarden/internal/server/storage"
)

// uploadURLTTL bounds presigned upload URLs handed to owner clients.
const uploadURLTTL = 15 * time.Minute

// RecordService manages encrypted vault records. Each record gets its own
// data key; the payload is encrypted under the data key and the data key is
// wrapped under the session's master key. Updates rotate the data key and
// envelope, which invalidates previously deposited escrows for the record.
type RecordService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	keys   *keyring.Keyring
	signer storage.BlobSigner
	logger logging.Logger
}

func NewRecordService(db *sql.DB, rm repomanager.RepositoryManager, keys *keyring.Keyring, signer storage.BlobSigner, logger logging.Logger) *RecordService {
	return &RecordService{db: db, rm: rm, keys: keys, signer: signer, logger: logger.With("module", "records")}
}

// Create encrypts plaintext under a fresh record key and stores the record
// with the key wrapped under the session's master key.
func (s *RecordService) Create(ctx context.Context, ownerID, sessionID, title string, plaintext []byte) (*models.Record, error) {
	envelope, ciphertext, nonce, err := s.seal(sessionID, plaintext)
	if err != nil {
		return nil, err
	}

	record := &models.Record{
		OwnerID:       ownerID,
		Title:         title,
		EncryptedData: ciphertext,
		Nonce:         nonce,
		KeyEnvelope:   envelope.Ciphertext,
		EnvelopeNonce: envelope.Nonce,
		Version:       1,
	}

	created, err := s.rm.Records(s.db).Create(ctx, record)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "record created", "record_id", created.ID, "owner_id", ownerID)
	return created, nil
}

// Update replaces the record's payload, rotating the data key and envelope.
// The caller supplies the version it read; a stale version yields
// common.ErrVersionConflict. Escrow deposits for the record are destroyed
// because they seal the old key; the owner re-deposits afterwards.
func (s *RecordService) Update(ctx context.Context, ownerID, sessionID, recordID string, title string, plaintext []byte, version int64) (*models.Record, error) {
	record, err := s.rm.Records(s.db).Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID || record.Deleted {
		return nil, common.ErrorNotFound
	}

	envelope, ciphertext, nonce, err := s.seal(sessionID, plaintext)
	if err != nil {
		return nil, err
	}

	record.Title = title
	record.EncryptedData = ciphertext
	record.Nonce = nonce
	record.KeyEnvelope = envelope.Ciphertext
	record.EnvelopeNonce = envelope.Nonce
	record.Version = version

	if err := s.rm.Records(s.db).Update(ctx, record); err != nil {
		return nil, err
	}
	if err := s.rm.Escrows(s.db).DeleteByRecord(ctx, recordID); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "record updated", "record_id", recordID, "version", record.Version)
	return record, nil
}

// Get returns a live record owned by ownerID.
func (s *RecordService) Get(ctx context.Context, ownerID, recordID string) (*models.Record, error) {
	record, err := s.rm.Records(s.db).Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID || record.Deleted {
		return nil, common.ErrorNotFound
	}
	return record, nil
}

// List returns the owner's live records.
func (s *RecordService) List(ctx context.Context, ownerID string) ([]*models.Record, error) {
	return s.rm.Records(s.db).ListLiveByOwner(ctx, ownerID)
}

// Delete soft-deletes the record and destroys its escrow deposits.
func (s *RecordService) Delete(ctx context.Context, ownerID, recordID string) error {
	if err := s.rm.Records(s.db).SoftDelete(ctx, recordID, ownerID); err != nil {
		return err
	}
	if err := s.rm.Escrows(s.db).DeleteByRecord(ctx, recordID); err != nil {
		return err
	}
	s.logger.Info(ctx, "record deleted", "record_id", recordID)
	return nil
}

// UploadURL returns a storage key and presigned PUT URL for a large blob the
// client encrypts locally before upload.
func (s *RecordService) UploadURL(ctx context.Context) (key string, url string, err error) {
	if s.signer == nil {
		return "", "", fmt.Errorf("blob storage not configured: %w", common.ErrorInternal)
	}
	return s.signer.PresignPut(ctx, uploadURLTTL)
}

func (s *RecordService) seal(sessionID string, plaintext []byte) (*cryptox.KeyEnvelope, []byte, []byte, error) {
	masterKey, ok := s.keys.Get(sessionID)
	if !ok {
		return nil, nil, nil, common.ErrorUnauthorized
	}

	recordKey := cryptox.GenerateRecordKey()
	defer common.WipeByteArray(recordKey)

	ciphertext, nonce, err := cryptox.EncryptRecord(plaintext, recordKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error encrypting record: %w", err)
	}
	envelope, err := cryptox.WrapRecordKey(masterKey, recordKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error wrapping record key: %w", err)
	}
	return envelope, ciphertext, nonce, nil
}
