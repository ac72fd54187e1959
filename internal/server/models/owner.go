package models

import "time"

// Owner is a vault account. The raw master key is never stored; only the
// salt and a verifier derived from the key.
type Owner struct {
	ID                  string
	UserName            string
	Salt                []byte
	Verifier            []byte
	InactivityThreshold time.Duration
	WaitingPeriod       time.Duration
	LastActivityAt      time.Time
	CreatedAt           time.Time
}
