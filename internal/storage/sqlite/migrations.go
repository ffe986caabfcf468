package sqlite

import "context"

func (s *Storage) RunMigrations(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS credentials (
		user_id VARCHAR NOT NULL PRIMARY KEY,
		access_token TEXT NULL DEFAULT NULL,
		refresh_token TEXT NOT NULL UNIQUE,
		updated_at VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mirrors (
		meeting_id VARCHAR NOT NULL PRIMARY KEY,
		user_id VARCHAR NOT NULL,
		external_id VARCHAR NOT NULL DEFAULT '',
		conference_id VARCHAR NOT NULL DEFAULT '',
		join_link VARCHAR NOT NULL DEFAULT '',
		state VARCHAR NOT NULL,
		meeting TEXT NOT NULL,
		last_reminded_at VARCHAR NULL DEFAULT NULL,
		updated_at VARCHAR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS mirrors_state ON mirrors (state)`,
}
