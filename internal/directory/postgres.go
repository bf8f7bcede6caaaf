package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const defaultListLimit = 100

// PostgresDirectory is the Postgres implementation of Directory.
type PostgresDirectory struct {
	db  *db.DB
	now func() time.Time
}

func NewPostgresDirectory(db *db.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db, now: time.Now}
}

// Record upserts user by subject and returns its directory id.
func (d *PostgresDirectory) Record(ctx context.Context, user *auth.User) (string, error) {
	if user == nil {
		return "", ErrNilUser
	}

	var id uuid.UUID
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO admin_sign_ins (id, subject, email, username, roles, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (subject) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			roles = EXCLUDED.roles,
			seen_count = admin_sign_ins.seen_count + 1,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING id
	`,
		uuid.New(),
		user.ID,
		user.Email,
		user.Username,
		pq.Array(user.Roles),
		d.now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("record admin: %w", err)
	}

	return id.String(), nil
}

// List returns the most recently seen administrators first.
func (d *PostgresDirectory) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, subject, email, username, roles, seen_count, first_seen_at, last_seen_at
		FROM admin_sign_ins
		ORDER BY last_seen_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			id uuid.UUID
		)
		if err := rows.Scan(&id, &e.Subject, &e.Email, &e.Username, pq.Array(&e.Roles),
			&e.SeenCount, &e.FirstSeenAt, &e.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		e.ID = id.String()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return entries, nil
}
