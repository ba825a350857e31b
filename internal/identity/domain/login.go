package domain

import (
	"time"

	"github.com/quokkaworks/identity/pkg/idx"
)

// LoginEvent records one successful credential issuance for auditing.
type LoginEvent struct {
	ID        idx.ID
	SubjectID string
	TokenID   string
	RemoteIP  string
	UserAgent string
	CreatedAt time.Time
}
