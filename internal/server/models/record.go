package models

import "time"

// Record is an encrypted vault document. EncryptedData/Nonce hold the
// AES-GCM payload; KeyEnvelope/EnvelopeNonce hold the record's data key
// wrapped under the owner's master key. StorageKey, when set, points at an
// object-storage blob instead of an inline payload. Version backs optimistic
// concurrency on updates.
type Record struct {
	ID            string
	OwnerID       string
	Title         string
	EncryptedData []byte
	Nonce         []byte
	KeyEnvelope   []byte
	EnvelopeNonce []byte
	StorageKey    string
	Deleted       bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ContactEscrow is a record key sealed to a contact's public key, deposited
// while the owner's session held the master key.
type ContactEscrow struct {
	ContactID string
	RecordID  string
	SealedKey []byte
	CreatedAt time.Time
}
