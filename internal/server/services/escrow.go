package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/cryptox"
	"github.com/dmitrijs2005/keywarden/internal/keyring"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
)

// EscrowService deposits record keys for trusted contacts. A deposit can only
// happen while the owner's session holds the master key: each in-scope
// record's envelope is unwrapped and the record key re-sealed to the
// contact's X25519 public key. The grant evaluator later releases the sealed
// deposits without ever needing the master key.
type EscrowService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	keys   *keyring.Keyring
	logger logging.Logger
}

func NewEscrowService(db *sql.DB, rm repomanager.RepositoryManager, keys *keyring.Keyring, logger logging.Logger) *EscrowService {
	return &EscrowService{db: db, rm: rm, keys: keys, logger: logger.With("module", "escrow")}
}

// Deposit seals every record key in the contact's scope to the contact's
// public key. Existing deposits for the same (contact, record) pair are
// replaced. Returns the number of records deposited.
func (s *EscrowService) Deposit(ctx context.Context, ownerID, sessionID, contactID string, now time.Time) (int, error) {
	masterKey, ok := s.keys.Get(sessionID)
	if !ok {
		return 0, common.ErrorUnauthorized
	}

	contact, err := s.rm.Contacts(s.db).GetByID(ctx, contactID)
	if err != nil {
		return 0, err
	}
	if contact.OwnerID != ownerID {
		return 0, common.ErrorUnauthorized
	}
	if contact.Status != models.ContactStatusActive {
		return 0, common.ErrContactNotEligible
	}

	material, err := cryptox.NewBoxPublicKey(contact.PublicKey)
	if err != nil {
		return 0, fmt.Errorf("contact escrow key invalid: %w", err)
	}

	records, err := s.scopedRecords(ctx, contact)
	if err != nil {
		return 0, err
	}

	deposited := 0
	for _, record := range records {
		recordKey, err := cryptox.UnwrapRecordKey(masterKey, &cryptox.KeyEnvelope{
			Ciphertext: record.KeyEnvelope,
			Nonce:      record.EnvelopeNonce,
		})
		if err != nil {
			return deposited, fmt.Errorf("error unwrapping key for record %s: %w", record.ID, err)
		}

		sealed, err := cryptox.RewrapForContact(recordKey, material)
		common.WipeByteArray(recordKey)
		if err != nil {
			return deposited, fmt.Errorf("error sealing key for record %s: %w", record.ID, err)
		}

		if err := s.rm.Escrows(s.db).Upsert(ctx, &models.ContactEscrow{
			ContactID: contact.ID,
			RecordID:  record.ID,
			SealedKey: sealed,
			CreatedAt: now,
		}); err != nil {
			return deposited, err
		}
		deposited++
	}

	s.logger.Info(ctx, "escrow deposited", "contact_id", contact.ID, "records", deposited)
	return deposited, nil
}

func (s *EscrowService) scopedRecords(ctx context.Context, contact *models.TrustedContact) ([]*models.Record, error) {
	if contact.AccessLevel != models.AccessLevelSpecificRecords {
		return s.rm.Records(s.db).ListLiveByOwner(ctx, contact.OwnerID)
	}

	ids, err := s.rm.Contacts(s.db).RecordIDs(ctx, contact.ID)
	if err != nil {
		return nil, err
	}
	records := make([]*models.Record, 0, len(ids))
	for _, id := range ids {
		record, err := s.rm.Records(s.db).Get(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			return nil, err
		}
		if record.Deleted {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
