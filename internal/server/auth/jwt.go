// Package auth implements JWT issuing and validation for owner and contact
// sessions.
package auth

import (
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Actor roles carried in token claims.
const (
	RoleOwner   = "owner"
	RoleContact = "contact"
)

// Claims extends the registered claims with the acting identity, its role,
// and the session id the keyring uses to locate master-key material.
type Claims struct {
	jwt.RegisteredClaims
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
}

func GenerateToken(actorID, role, sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		ActorID:   actorID,
		Role:      role,
		SessionID: sessionID,
	})

	return token.SignedString(secretKey)
}

func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
