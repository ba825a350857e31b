package domain

import "time"

// SigningKey is a persisted asymmetric signing key. The private half is
// encrypted at rest with the master key; the kid is what tokens carry in
// their header. Retired keys keep verifying until ExpiresAt.
type SigningKey struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}
