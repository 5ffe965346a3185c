package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okoth/userhub/internal/domain/user"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Append(ctx context.Context, e user.AuditEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_audit_log (id, user_id, changed_by, field_name, old_value, new_value, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.UserID, e.ChangedBy, e.Field, e.OldValue, e.NewValue, e.CreatedAt,
	)
	return err
}

func (r *AuditRepo) ListForUser(ctx context.Context, userID string) ([]user.AuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, changed_by, field_name, old_value, new_value, created_at
		 FROM user_audit_log
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]user.AuditEntry, 0)

	for rows.Next() {
		var e user.AuditEntry

		err := rows.Scan(&e.ID, &e.UserID, &e.ChangedBy, &e.Field, &e.OldValue, &e.NewValue, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
