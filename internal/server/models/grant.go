package models

import "time"

// AccessGrantToken is the ephemeral capability minted when a request is
// granted. SealedKey is the record's data key sealed to the contact's escrow
// key; DownloadURL, when set, is a presigned URL for the record's blob.
// The token expires with the grant window or on owner revocation, whichever
// comes first.
type AccessGrantToken struct {
	ID          string
	RequestID   string
	RecordID    string
	ContactID   string
	SealedKey   []byte
	ReadOnly    bool
	DownloadURL string
	ExpiresAt   time.Time
}

// GrantItem is the per-record outcome of grant evaluation: either a token or
// an error such as common.ErrRecordUnavailable. Partial grants are valid.
type GrantItem struct {
	RecordID string
	Token    *AccessGrantToken
	Err      error
}
