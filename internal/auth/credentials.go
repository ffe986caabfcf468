package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/beekhof/studygroup-sync/internal/logging"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// ErrRefreshTokenInUse is returned by stores when a refresh token is already
// held by a different user.
var ErrRefreshTokenInUse = errors.New("refresh token already linked to another user")

// CredentialRecord is a user's link to the calendar provider. RefreshToken is
// unique across users; AccessToken is empty until the first refresh.
type CredentialRecord struct {
	UserID       string `json:"user_id" db:"user_id"`
	AccessToken  string `json:"access_token,omitempty" db:"access_token"`
	RefreshToken string `json:"refresh_token" db:"refresh_token"`
}

// CredentialStore is the durable per-user record store used by Manager.
// GetCredential wraps syncerr.ErrNotFound for an unknown user.
// UpdateAccessToken matches the record by refresh token value.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID string) (*CredentialRecord, error)
	UpdateAccessToken(ctx context.Context, refreshToken, accessToken string) error
}

// CredentialWriter creates and destroys records when users link or unlink.
type CredentialWriter interface {
	SaveCredential(ctx context.Context, record CredentialRecord) error
	DeleteCredential(ctx context.Context, userID string) error
}

// TokenProber performs a cheap read-only call with accessToken. It returns an
// error wrapping syncerr.ErrAuth when the provider rejects the token.
type TokenProber interface {
	Probe(ctx context.Context, accessToken string) error
}

// Manager owns the access/refresh token lifecycle.
//
// Cached tokens are validated with a probe before use. Reads and refresh
// writes are not serialized; concurrent refreshes for one user are both
// valid at the provider and the store keeps the last write.
type Manager struct {
	store  CredentialStore
	prober TokenProber
	oauth  *oauth2.Config
	logger *slog.Logger
}

// NewManager creates a Manager. oauthConfig must carry the provider's token endpoint.
func NewManager(store CredentialStore, prober TokenProber, oauthConfig *oauth2.Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		prober: prober,
		oauth:  oauthConfig,
		logger: logger,
	}
}

// GetValidAccessToken returns a token the provider currently accepts for userID.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	log := logging.Component(logging.FromContext(ctx, m.logger), "auth", "get_valid_access_token", "user_id", userID)

	record, err := m.store.GetCredential(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials for user %s: %w", userID, err)
	}
	if record.RefreshToken == "" {
		return "", fmt.Errorf("user %s: %w", userID, syncerr.ErrMissingCredential)
	}

	if record.AccessToken == "" {
		log.Debug("no cached access token, refreshing")
		return m.RefreshAccessToken(ctx, record.RefreshToken)
	}

	err = m.prober.Probe(ctx, record.AccessToken)
	switch {
	case err == nil:
		return record.AccessToken, nil
	case errors.Is(err, syncerr.ErrAuth):
		log.Info("cached access token rejected, refreshing")
		return m.RefreshAccessToken(ctx, record.RefreshToken)
	default:
		return "", err
	}
}

// RefreshAccessToken exchanges refreshToken for a new access token and stores
// it on the record holding that refresh token.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", syncerr.ErrMissingCredential
	}

	token, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", classifyRefreshError(err)
	}

	if err := m.store.UpdateAccessToken(ctx, refreshToken, token.AccessToken); err != nil {
		return "", fmt.Errorf("failed to save refreshed token: %w", err)
	}

	logging.FromContext(ctx, m.logger).Debug("access token refreshed", "component", "auth")
	return token.AccessToken, nil
}

// classifyRefreshError reports a rejected refresh token as syncerr.ErrAuth and
// anything else as a retryable SyncError.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return fmt.Errorf("%w: refresh token rejected: %s", syncerr.ErrAuth, retrieveErr.ErrorCode)
		}
		if resp := retrieveErr.Response; resp != nil &&
			(resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized) {
			return fmt.Errorf("%w: refresh token rejected: %s", syncerr.ErrAuth, resp.Status)
		}
	}
	return syncerr.NewSyncError("refresh access token", err)
}
