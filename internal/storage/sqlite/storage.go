// Package sqlite stores credential records and meeting mirrors in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/beekhof/studygroup-sync/internal/auth"
	"github.com/beekhof/studygroup-sync/internal/sync"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

const DriverName = "sqlite"

const busyTimeout = 5 * time.Second

type Storage struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and runs migrations.
// The path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA busy_timeout: %w", err)
	}

	s := NewStorage(db)
	if err := s.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

// NewStorage wraps an open database. Call RunMigrations before use.
func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:  sqlx.NewDb(db, DriverName),
		now: time.Now,
	}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) GetCredential(ctx context.Context, userID string) (*auth.CredentialRecord, error) {
	var record auth.CredentialRecord
	err := s.db.GetContext(ctx, &record, `
		SELECT user_id, COALESCE(access_token, '') AS access_token, refresh_token
		FROM credentials
		WHERE user_id = ?
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, syncerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateAccessToken stores accessToken on the record holding refreshToken.
// Concurrent writers for one record are last-writer-wins.
func (s *Storage) UpdateAccessToken(ctx context.Context, refreshToken, accessToken string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET access_token = ?, updated_at = ? WHERE refresh_token = ?
	`, accessToken, s.timestamp(), refreshToken)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("refresh token: %w", syncerr.ErrNotFound)
	}
	return nil
}

func (s *Storage) SaveCredential(ctx context.Context, record auth.CredentialRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owner string
	err = tx.GetContext(ctx, &owner, `
		SELECT user_id FROM credentials WHERE refresh_token = ? AND user_id <> ?
	`, record.RefreshToken, record.UserID)
	if err == nil {
		return fmt.Errorf("user %s: %w", record.UserID, auth.ErrRefreshTokenInUse)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var accessToken sql.NullString
	if record.AccessToken != "" {
		accessToken = sql.NullString{String: record.AccessToken, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (user_id, access_token, refresh_token, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE
			SET access_token = excluded.access_token,
				refresh_token = excluded.refresh_token,
				updated_at = excluded.updated_at;
	`, record.UserID, accessToken, record.RefreshToken, s.timestamp())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) DeleteCredential(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", userID, syncerr.ErrNotFound)
	}
	return nil
}

func (s *Storage) GetMirror(ctx context.Context, meetingID string) (*sync.Mirror, error) {
	var row Mirror
	err := s.db.GetContext(ctx, &row, `
		SELECT meeting_id, user_id, external_id, conference_id, join_link, state, meeting, last_reminded_at, updated_at
		FROM mirrors
		WHERE meeting_id = ?
	`, meetingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, syncerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.Convert()
}

func (s *Storage) SaveMirror(ctx context.Context, mirror *sync.Mirror) error {
	if !mirror.State.Valid() {
		return fmt.Errorf("meeting %s: unknown state %q", mirror.MeetingID, mirror.State)
	}
	row, err := newMirror(mirror)
	if err != nil {
		return err
	}
	if mirror.UpdatedAt.IsZero() {
		row.UpdatedAt = s.timestamp()
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO mirrors (meeting_id, user_id, external_id, conference_id, join_link, state, meeting, last_reminded_at, updated_at)
		VALUES (:meeting_id, :user_id, :external_id, :conference_id, :join_link, :state, :meeting, :last_reminded_at, :updated_at)
		ON CONFLICT(meeting_id) DO UPDATE
			SET user_id = excluded.user_id,
				external_id = excluded.external_id,
				conference_id = excluded.conference_id,
				join_link = excluded.join_link,
				state = excluded.state,
				meeting = excluded.meeting,
				last_reminded_at = excluded.last_reminded_at,
				updated_at = excluded.updated_at;
	`, row)
	return err
}

func (s *Storage) ListMirrors(ctx context.Context, state sync.State) ([]*sync.Mirror, error) {
	var rows []Mirror
	err := s.db.SelectContext(ctx, &rows, `
		SELECT meeting_id, user_id, external_id, conference_id, join_link, state, meeting, last_reminded_at, updated_at
		FROM mirrors
		WHERE state = ?
		ORDER BY meeting_id
	`, string(state))
	if err != nil {
		return nil, err
	}

	res := make([]*sync.Mirror, len(rows))
	for i, r := range rows {
		if res[i], err = r.Convert(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *Storage) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}
