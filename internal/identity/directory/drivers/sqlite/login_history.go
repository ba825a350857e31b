package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quokkaworks/identity/internal/identity/domain"
	"github.com/quokkaworks/identity/pkg/idx"
)

type loginHistoryRepo struct {
	db *sql.DB
}

func (r *loginHistoryRepo) RecordLogin(ctx context.Context, ev domain.LoginEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_history (id, subject_id, token_id, remote_ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.SubjectID, ev.TokenID, ev.RemoteIP, ev.UserAgent, ev.CreatedAt,
	)
	return err
}

func (r *loginHistoryRepo) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.LoginEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject_id, token_id, remote_ip, user_agent, created_at
		FROM login_history
		WHERE subject_id = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		subjectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.LoginEvent
	for rows.Next() {
		var (
			ev domain.LoginEvent
			id string
		)
		if err := rows.Scan(&id, &ev.SubjectID, &ev.TokenID, &ev.RemoteIP, &ev.UserAgent, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ID = idx.ID(id)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *loginHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM login_history WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
