package sqlite

import (
	"context"
	"database/sql"

	"github.com/quokkaworks/identity/pkg/idx"
)

type subjectsRepo struct {
	db *sql.DB
}

func (r *subjectsRepo) AssignRole(ctx context.Context, subjectID string, roleID idx.ID) error {
	// ON CONFLICT makes re-granting idempotent.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO role_assignments (subject_id, role_id, granted_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (subject_id, role_id) DO NOTHING`,
		subjectID, roleID.String(),
	)
	return err
}

func (r *subjectsRepo) RemoveRole(ctx context.Context, subjectID string, roleID idx.ID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM role_assignments WHERE subject_id = ? AND role_id = ?`,
		subjectID, roleID.String(),
	)
	return err
}

func (r *subjectsRepo) ListRolesForSubject(ctx context.Context, subjectID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.name
		FROM role_assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.subject_id = ?
		ORDER BY r.name`,
		subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
