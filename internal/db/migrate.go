package db

import (
	"context"
	"database/sql"
)

const adminMigration = `
CREATE TABLE IF NOT EXISTS admin_sign_ins (
    id uuid PRIMARY KEY,
    subject text NOT NULL,
    email text NOT NULL DEFAULT '',
    username text NOT NULL DEFAULT '',
    roles text[] NOT NULL DEFAULT '{}',
    seen_count integer NOT NULL DEFAULT 1,
    first_seen_at timestamptz NOT NULL DEFAULT NOW(),
    last_seen_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT admin_sign_ins_subject_unique UNIQUE (subject)
);

CREATE INDEX IF NOT EXISTS admin_sign_ins_last_seen_idx
ON admin_sign_ins (last_seen_at DESC);
`

func RunMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, adminMigration)
	return err
}
