package models

import "time"

type AccessLevel string

const (
	AccessLevelViewOnly        AccessLevel = "view_only"
	AccessLevelFullAccess      AccessLevel = "full_access"
	AccessLevelSpecificRecords AccessLevel = "specific_records"
)

type ContactStatus string

const (
	ContactStatusPending  ContactStatus = "pending"
	ContactStatusActive   ContactStatus = "active"
	ContactStatusDeclined ContactStatus = "declined"
	ContactStatusRevoked  ContactStatus = "revoked"
)

// TrustedContact is a person the owner designates for emergency access.
// PublicKey is the X25519 escrow key the contact registers on acceptance.
// RecordIDs is populated only for the specific_records access level.
type TrustedContact struct {
	ID          string
	OwnerID     string
	Email       string
	AccessLevel AccessLevel
	Status      ContactStatus
	PublicKey   []byte
	RecordIDs   []string
	InviteToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
