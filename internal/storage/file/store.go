// Package file keeps credential records in a single JSON file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beekhof/studygroup-sync/internal/auth"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// CredentialStore is a file-based implementation of credential storage.
// Records are keyed by user id. The file is rewritten on every change.
type CredentialStore struct {
	Path string
	mu   sync.Mutex
}

// NewCredentialStore creates a new CredentialStore with the given path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{Path: path}
}

// load reads every record. A missing file holds no records.
func (store *CredentialStore) load() (map[string]auth.CredentialRecord, error) {
	records := make(map[string]auth.CredentialRecord)

	data, err := os.ReadFile(store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return records, nil
}

func (store *CredentialStore) save(records map[string]auth.CredentialRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(store.Path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	if err := os.WriteFile(store.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	return nil
}

// GetCredential returns the record for userID.
func (store *CredentialStore) GetCredential(ctx context.Context, userID string) (*auth.CredentialRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	records, err := store.load()
	if err != nil {
		return nil, err
	}
	record, ok := records[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, syncerr.ErrNotFound)
	}
	return &record, nil
}

// UpdateAccessToken stores accessToken on the record holding refreshToken.
func (store *CredentialStore) UpdateAccessToken(ctx context.Context, refreshToken, accessToken string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	records, err := store.load()
	if err != nil {
		return err
	}
	for userID, record := range records {
		if record.RefreshToken == refreshToken {
			record.AccessToken = accessToken
			records[userID] = record
			return store.save(records)
		}
	}
	return fmt.Errorf("refresh token: %w", syncerr.ErrNotFound)
}

// SaveCredential creates or replaces the record for record.UserID.
func (store *CredentialStore) SaveCredential(ctx context.Context, record auth.CredentialRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	records, err := store.load()
	if err != nil {
		return err
	}
	for userID, existing := range records {
		if userID != record.UserID && existing.RefreshToken == record.RefreshToken {
			return fmt.Errorf("user %s: %w", record.UserID, auth.ErrRefreshTokenInUse)
		}
	}
	records[record.UserID] = record
	return store.save(records)
}

// DeleteCredential removes the record for userID.
func (store *CredentialStore) DeleteCredential(ctx context.Context, userID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	records, err := store.load()
	if err != nil {
		return err
	}
	if _, ok := records[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, syncerr.ErrNotFound)
	}
	delete(records, userID)
	return store.save(records)
}
