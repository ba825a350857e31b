package sqlite

import (
	"context"
	"database/sql"

	"github.com/quokkaworks/identity/internal/identity/domain"
	"github.com/quokkaworks/identity/pkg/idx"
)

type rolesRepo struct {
	db *sql.DB
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, description, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		role.ID.String(), role.Name, role.Description,
	)
	return mapConflict(err)
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at
		FROM roles WHERE name = ?`, name,
	)
	return scanRole(row)
}

func (r *rolesRepo) RoleExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM roles WHERE name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *rolesRepo) ListAll(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM roles ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) DeleteRole(ctx context.Context, id idx.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

func (r *rolesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM roles`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (domain.Role, error) {
	var (
		role domain.Role
		id   string
	)
	if err := row.Scan(&id, &role.Name, &role.Description, &role.CreatedAt); err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	role.ID = idx.ID(id)
	return role, nil
}
