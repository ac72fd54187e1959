package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/cryptox"
	"github.com/dmitrijs2005/keywarden/internal/keyring"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/auth"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/repomanager"
)

const saltSize = 16

// OwnerService manages vault accounts and owner sessions. Login derives the
// master key from the presented password and parks it in the keyring for the
// session lifetime; the password and key are wiped before returning.
type OwnerService struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	keys     *keyring.Keyring
	activity *ActivityService
	logger   logging.Logger

	secretKey     []byte
	tokenValidity time.Duration

	defaultInactivityThreshold time.Duration
	defaultWaitingPeriod       time.Duration
}

func NewOwnerService(db *sql.DB, rm repomanager.RepositoryManager, keys *keyring.Keyring, activity *ActivityService,
	logger logging.Logger, secretKey []byte, tokenValidity, defaultThreshold, defaultWaitingPeriod time.Duration) *OwnerService {
	return &OwnerService{
		db:                         db,
		rm:                         rm,
		keys:                       keys,
		activity:                   activity,
		logger:                     logger.With("module", "owner"),
		secretKey:                  secretKey,
		tokenValidity:              tokenValidity,
		defaultInactivityThreshold: defaultThreshold,
		defaultWaitingPeriod:       defaultWaitingPeriod,
	}
}

// Register creates an owner account: a fresh salt, a master key derived from
// the password, and a stored verifier. Neither the password nor the key
// survives the call.
func (s *OwnerService) Register(ctx context.Context, userName string, password []byte) (*models.Owner, error) {
	defer common.WipeByteArray(password)

	salt := common.GenerateRandByteArray(saltSize)
	masterKey, err := cryptox.DeriveMasterKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(masterKey)

	owner := &models.Owner{
		UserName:            userName,
		Salt:                salt,
		Verifier:            cryptox.MakeVerifier(masterKey),
		InactivityThreshold: s.defaultInactivityThreshold,
		WaitingPeriod:       s.defaultWaitingPeriod,
		LastActivityAt:      time.Now(),
	}

	created, err := s.rm.Owners(s.db).Create(ctx, owner)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "owner registered", "owner_id", created.ID)
	return created, nil
}

// Login verifies the password, stores the derived master key in the keyring
// under a fresh session id, records activity, and returns a signed token.
func (s *OwnerService) Login(ctx context.Context, userName string, password []byte, now time.Time) (string, error) {
	defer common.WipeByteArray(password)

	owner, err := s.rm.Owners(s.db).GetByUserName(ctx, userName)
	if err != nil {
		return "", common.ErrorUnauthorized
	}

	masterKey, err := cryptox.DeriveMasterKey(password, owner.Salt)
	if err != nil {
		return "", common.ErrorUnauthorized
	}
	defer common.WipeByteArray(masterKey)

	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(masterKey), owner.Verifier) != 1 {
		return "", common.ErrorUnauthorized
	}

	sessionID := newID()
	s.keys.Put(sessionID, masterKey)

	if err := s.activity.RecordActivity(ctx, owner.ID, now); err != nil {
		s.keys.Clear(sessionID)
		return "", err
	}

	token, err := auth.GenerateToken(owner.ID, auth.RoleOwner, sessionID, s.secretKey, s.tokenValidity)
	if err != nil {
		s.keys.Clear(sessionID)
		return "", fmt.Errorf("error generating token: %w", err)
	}

	s.logger.Info(ctx, "owner logged in", "owner_id", owner.ID)
	return token, nil
}

// Logout wipes the session's master key.
func (s *OwnerService) Logout(ctx context.Context, sessionID string) {
	s.keys.Clear(sessionID)
}

// GetSalt returns the salt clients need for local key derivation. An unknown
// user gets a random salt so the lookup does not reveal account existence.
func (s *OwnerService) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	owner, err := s.rm.Owners(s.db).GetByUserName(ctx, userName)
	if err != nil {
		return common.GenerateRandByteArray(saltSize), nil
	}
	return owner.Salt, nil
}

// UpdateSettings changes the inactivity threshold and waiting period. The new
// values apply to future evaluations; the waiting period of an in-flight
// request was copied at creation and is unaffected.
func (s *OwnerService) UpdateSettings(ctx context.Context, ownerID string, threshold, waitingPeriod time.Duration) error {
	if threshold <= 0 || waitingPeriod <= 0 {
		return fmt.Errorf("thresholds must be positive: %w", common.ErrorInternal)
	}
	return s.rm.Owners(s.db).UpdateSettings(ctx, ownerID, threshold, waitingPeriod)
}

// Get returns the owner row.
func (s *OwnerService) Get(ctx context.Context, ownerID string) (*models.Owner, error) {
	return s.rm.Owners(s.db).GetByID(ctx, ownerID)
}
