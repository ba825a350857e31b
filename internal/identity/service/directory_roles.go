package service

import (
	"context"

	"github.com/quokkaworks/identity/internal/identity/directory"
)

// DirectoryRoles adapts the full directory store to the narrow
// RoleDirectory surface the token and authz services consume.
type DirectoryRoles struct {
	Store directory.Store
}

var _ RoleDirectory = (*DirectoryRoles)(nil)

func (d *DirectoryRoles) LookupRolesForSubject(ctx context.Context, subjectID string) ([]string, error) {
	return d.Store.Subjects().ListRolesForSubject(ctx, subjectID)
}

func (d *DirectoryRoles) RoleExists(ctx context.Context, name string) (bool, error) {
	return d.Store.Roles().RoleExists(ctx, name)
}
