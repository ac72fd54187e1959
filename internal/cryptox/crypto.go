// Package cryptox implements the key-management primitives of KeyWarden:
// master-key derivation from the owner's password, per-record data keys
// wrapped under the master key, and re-wrapping of record keys for trusted
// contacts. The raw master key is never persisted; callers are responsible
// for wiping it with common.WipeByteArray when a session ends.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the size of master and record keys (AES-256).
	KeySize = 32
	// NonceSize is the AES-GCM nonce size.
	NonceSize = 12
)

// KeyEnvelope is a record's data key encrypted ("wrapped") under the owner's
// master key. One envelope exists per record; it is rotated on record update.
type KeyEnvelope struct {
	Ciphertext []byte
	Nonce      []byte
}

// DeriveMasterKey derives the owner's master key from password and salt using
// Argon2id. The result is deterministic for a fixed (password, salt) pair.
// An empty password or salt yields ErrWeakDerivationInput.
func DeriveMasterKey(password, salt []byte) ([]byte, error) {
	if len(password) == 0 || len(salt) == 0 {
		return nil, common.ErrWeakDerivationInput
	}
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize), nil
}

// MakeVerifier returns a value safe to store server-side for checking that a
// presented password derives the same master key. The verifier does not
// reveal the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// GenerateRecordKey returns a fresh random data key for a single record.
func GenerateRecordKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// WrapRecordKey encrypts recordKey under masterKey with AES-GCM and a fresh
// random nonce. UnwrapRecordKey inverts it.
func WrapRecordKey(masterKey, recordKey []byte) (*KeyEnvelope, error) {
	aesgcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(NonceSize)
	ciphertext := aesgcm.Seal(nil, nonce, recordKey, nil)

	return &KeyEnvelope{Ciphertext: ciphertext, Nonce: nonce}, nil
}

// UnwrapRecordKey decrypts the envelope produced by WrapRecordKey.
// It fails if masterKey differs from the wrapping key or the envelope was
// tampered with.
func UnwrapRecordKey(masterKey []byte, envelope *KeyEnvelope) ([]byte, error) {
	aesgcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	recordKey, err := aesgcm.Open(nil, envelope.Nonce, envelope.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("envelope open error: %w", err)
	}
	return recordKey, nil
}

// EncryptRecord encrypts a record payload with its data key using AES-GCM.
// The ciphertext and the randomly generated nonce are returned separately.
func EncryptRecord(plaintext, recordKey []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(recordKey)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(NonceSize)
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptRecord decrypts a payload produced by EncryptRecord.
func DecryptRecord(ciphertext, nonce, recordKey []byte) ([]byte, error) {
	aesgcm, err := newGCM(recordKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("record open error: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
