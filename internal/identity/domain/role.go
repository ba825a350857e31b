package domain

import (
	"time"

	"github.com/quokkaworks/identity/pkg/idx"
)

// Role is a named grant recorded in the directory. Subjects hold zero or
// more roles; a snapshot of the names is embedded in each access token.
type Role struct {
	ID          idx.ID
	Name        string
	Description string
	CreatedAt   time.Time
}

// RoleAssignment links a subject to a role.
type RoleAssignment struct {
	SubjectID string
	RoleID    idx.ID
	GrantedAt time.Time
}
