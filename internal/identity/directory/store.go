// Package directory is the durable side of the identity service: the
// role catalogue, subject-role assignments, login history and signing
// keys. The revocation ledger lives elsewhere since its data is
// ephemeral by design.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/quokkaworks/identity/internal/identity/domain"
	"github.com/quokkaworks/identity/pkg/idx"
)

var (
	ErrNotFound      = errors.New("directory: not found")
	ErrAlreadyExists = errors.New("directory: already exists")
)

// Store is the root data access interface. Concrete drivers implement
// this; sub-repositories keep concerns tidy and individually mockable.
type Store interface {
	Roles() Roles
	Subjects() Subjects
	LoginHistory() LoginHistory
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Roles interface {
	// CreateRole inserts a new role (id is provided by the app via ULID).
	CreateRole(ctx context.Context, r domain.Role) error

	// GetRoleByName fetches a role by its unique name.
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// RoleExists reports whether a role with the given name is defined.
	RoleExists(ctx context.Context, name string) (bool, error)

	// ListAll returns all roles ordered by name.
	ListAll(ctx context.Context) ([]domain.Role, error)

	// DeleteRole removes a role and cascades to its assignments.
	DeleteRole(ctx context.Context, id idx.ID) error

	// IsEmpty returns true if no roles are defined (for bootstrap).
	IsEmpty(ctx context.Context) (bool, error)
}

type Subjects interface {
	// AssignRole grants a role to a subject. Granting an already-held
	// role is idempotent.
	AssignRole(ctx context.Context, subjectID string, roleID idx.ID) error

	// RemoveRole revokes a role from a subject.
	RemoveRole(ctx context.Context, subjectID string, roleID idx.ID) error

	// ListRolesForSubject returns the names of all roles the subject
	// currently holds, ordered by name.
	ListRolesForSubject(ctx context.Context, subjectID string) ([]string, error)
}

type LoginHistory interface {
	// RecordLogin appends one issuance event.
	RecordLogin(ctx context.Context, ev domain.LoginEvent) error

	// ListBySubject returns the most recent events for a subject, newest
	// first, capped at limit.
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.LoginEvent, error)

	// DeleteOlderThan prunes events created before the cutoff
	// (housekeeping) and returns how many rows went away.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type SigningKeys interface {
	// CreateSigningKey stores a new signing key with encrypted private
	// key material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetSigningKeyByKid fetches a signing key by its key identifier.
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// ListActiveSigningKeys returns all non-retired, non-expired keys
	// ordered by creation date (newest first).
	ListActiveSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// ListAllSigningKeys returns every unexpired key including retired
	// ones, used for verification during the rotation grace period.
	ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// RetireSigningKey marks a key as retired. Retired keys still verify
	// but no longer sign.
	RetireSigningKey(ctx context.Context, kid string) error

	// DeleteExpiredSigningKeys removes keys past their expires_at
	// timestamp (housekeeping).
	DeleteExpiredSigningKeys(ctx context.Context) error
}
