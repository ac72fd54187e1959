package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keywarden/internal/server/storage"
	cache "github.com/patrickmn/go-cache"
)

// downloadURLTTL bounds presigned blob URLs; they cannot be revoked once
// minted, so they are kept short regardless of the grant window.
const downloadURLTTL = 15 * time.Minute

// GrantService is the grant evaluator: given a granted request it determines
// the record set reachable by the contact's access level and mints ephemeral
// grant tokens around the deposited escrow envelopes.
type GrantService struct {
	db          *sql.DB
	rm          repomanager.RepositoryManager
	signer      storage.BlobSigner
	logger      logging.Logger
	grantWindow time.Duration

	mu        sync.Mutex
	tokens    *cache.Cache
	byRequest map[string][]string
}

func NewGrantService(db *sql.DB, rm repomanager.RepositoryManager, signer storage.BlobSigner, logger logging.Logger, grantWindow time.Duration) *GrantService {
	return &GrantService{
		db:          db,
		rm:          rm,
		signer:      signer,
		logger:      logger.With("module", "grants"),
		grantWindow: grantWindow,
		tokens:      cache.New(grantWindow, time.Minute),
		byRequest:   make(map[string][]string),
	}
}

// Evaluate computes the per-record grant outcome for a granted request.
// A deleted record, or one with no deposited escrow, yields an item carrying
// common.ErrRecordUnavailable without aborting the rest: partial grants are
// valid.
func (s *GrantService) Evaluate(ctx context.Context, request *models.AccessRequest, now time.Time) ([]models.GrantItem, error) {
	if request.State != models.StateGranted {
		return nil, fmt.Errorf("request %s is %s: %w", request.ID, request.State, common.ErrIllegalTransition)
	}

	contact, err := s.rm.Contacts(s.db).GetByID(ctx, request.ContactID)
	if err != nil {
		return nil, fmt.Errorf("error loading contact: %w", err)
	}

	recordIDs, err := s.reachableRecordIDs(ctx, contact, request.OwnerID)
	if err != nil {
		return nil, err
	}

	readOnly := contact.AccessLevel == models.AccessLevelViewOnly
	items := make([]models.GrantItem, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		token, err := s.mintToken(ctx, request, recordID, readOnly, now)
		if err != nil {
			if errors.Is(err, common.ErrRecordUnavailable) {
				items = append(items, models.GrantItem{RecordID: recordID, Err: common.ErrRecordUnavailable})
				continue
			}
			return nil, err
		}
		items = append(items, models.GrantItem{RecordID: recordID, Token: token})
	}

	s.storeTokens(request.ID, items)
	return items, nil
}

// Tokens returns the outstanding (non-expired, non-revoked) tokens for a
// request.
func (s *GrantService) Tokens(requestID string) []*models.AccessGrantToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.AccessGrantToken
	for _, id := range s.byRequest[requestID] {
		if v, ok := s.tokens.Get(id); ok {
			result = append(result, v.(*models.AccessGrantToken))
		}
	}
	return result
}

// Token looks up a single outstanding token by id.
func (s *GrantService) Token(tokenID string) (*models.AccessGrantToken, bool) {
	v, ok := s.tokens.Get(tokenID)
	if !ok {
		return nil, false
	}
	return v.(*models.AccessGrantToken), true
}

// InvalidateRequest drops every outstanding token for a request. Called when
// the owner revokes a granted request; subsequent token lookups and unwrap
// attempts fail immediately.
func (s *GrantService) InvalidateRequest(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byRequest[requestID] {
		s.tokens.Delete(id)
	}
	delete(s.byRequest, requestID)
}

func (s *GrantService) reachableRecordIDs(ctx context.Context, contact *models.TrustedContact, ownerID string) ([]string, error) {
	// specific_records grants reach the explicit set; the other levels reach
	// all current records. view_only differs only in the read-only capability
	// flag consumed by the presentation layer.
	if contact.AccessLevel == models.AccessLevelSpecificRecords {
		ids, err := s.rm.Contacts(s.db).RecordIDs(ctx, contact.ID)
		if err != nil {
			return nil, fmt.Errorf("error loading record scope: %w", err)
		}
		return ids, nil
	}

	records, err := s.rm.Records(s.db).ListLiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *GrantService) mintToken(ctx context.Context, request *models.AccessRequest, recordID string, readOnly bool, now time.Time) (*models.AccessGrantToken, error) {
	record, err := s.rm.Records(s.db).Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRecordUnavailable
		}
		return nil, fmt.Errorf("error loading record: %w", err)
	}
	if record.Deleted {
		return nil, common.ErrRecordUnavailable
	}

	escrow, err := s.rm.Escrows(s.db).Get(ctx, request.ContactID, recordID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// record exists but the owner never deposited a sealed key for
			// this contact; nothing to release
			return nil, common.ErrRecordUnavailable
		}
		return nil, fmt.Errorf("error loading escrow: %w", err)
	}

	token := &models.AccessGrantToken{
		ID:        newID(),
		RequestID: request.ID,
		RecordID:  recordID,
		ContactID: request.ContactID,
		SealedKey: escrow.SealedKey,
		ReadOnly:  readOnly,
		ExpiresAt: now.Add(s.grantWindow),
	}

	if record.StorageKey != "" && s.signer != nil {
		url, err := s.signer.PresignGet(ctx, record.StorageKey, downloadURLTTL)
		if err != nil {
			s.logger.Warn(ctx, "presign failed, token issued without download URL",
				"record_id", recordID, "error", err.Error())
		} else {
			token.DownloadURL = url
		}
	}

	return token, nil
}

func (s *GrantService) storeTokens(requestID string, items []models.GrantItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// replace any previous evaluation for this request
	for _, id := range s.byRequest[requestID] {
		s.tokens.Delete(id)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Token == nil {
			continue
		}
		s.tokens.SetDefault(item.Token.ID, item.Token)
		ids = append(ids, item.Token.ID)
	}
	s.byRequest[requestID] = ids
}
