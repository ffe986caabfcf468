package auth

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

func TestLinkWithCode(t *testing.T) {
	server := newTokenServer(t, http.StatusOK,
		`{"access_token":"a1","refresh_token":"r1","token_type":"Bearer","expires_in":3600}`)
	store := newMockStore()

	linker := NewLinker(testOAuthConfig(server.URL), store, &bytes.Buffer{}, nil)
	require.NoError(t, linker.LinkWithCode(context.Background(), "u1", "auth-code"))

	assert.Equal(t, CredentialRecord{UserID: "u1", AccessToken: "a1", RefreshToken: "r1"}, store.records["u1"])
}

func TestLinkWithCode_NoRefreshToken(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, `{"access_token":"a1","token_type":"Bearer","expires_in":3600}`)
	store := newMockStore()

	linker := NewLinker(testOAuthConfig(server.URL), store, &bytes.Buffer{}, nil)
	err := linker.LinkWithCode(context.Background(), "u1", "auth-code")

	assert.ErrorIs(t, err, syncerr.ErrMissingCredential)
	assert.Empty(t, store.records)
}

func TestLinkWithCode_EmptyCode(t *testing.T) {
	linker := NewLinker(testOAuthConfig("http://127.0.0.1:0"), newMockStore(), &bytes.Buffer{}, nil)
	assert.Error(t, linker.LinkWithCode(context.Background(), "u1", ""))
}

func TestUnlink(t *testing.T) {
	store := newMockStore(CredentialRecord{UserID: "u1", RefreshToken: "r1"})
	linker := NewLinker(testOAuthConfig("http://127.0.0.1:0"), store, &bytes.Buffer{}, nil)

	require.NoError(t, linker.Unlink(context.Background(), "u1"))
	assert.NotContains(t, store.records, "u1")
}

func TestAuthCodeURL_RequestsOfflineAccess(t *testing.T) {
	linker := NewLinker(testOAuthConfig("https://accounts.example.com"), newMockStore(), &bytes.Buffer{}, nil)

	u, err := url.Parse(linker.AuthCodeURL())
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.NotEmpty(t, q.Get("state"))
}

func TestNewOAuthConfig(t *testing.T) {
	cfg := NewOAuthConfig("id", "secret")
	assert.Equal(t, "id", cfg.ClientID)
	assert.Contains(t, cfg.Scopes, "https://www.googleapis.com/auth/calendar.events")
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Endpoint.TokenURL)
}

// A cancelled link must release the loopback port it listened on.
func TestLink_CancelledReleasesCallbackPort(t *testing.T) {
	var out bytes.Buffer
	linker := NewLinker(testOAuthConfig("http://127.0.0.1:1/token"), newMockStore(), &out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, linker.Link(ctx, "u1"), context.Canceled)

	m := regexp.MustCompile(`callback on http://(127\.0\.0\.1:\d+)`).FindStringSubmatch(out.String())
	require.Len(t, m, 2, out.String())

	conn, err := net.Dial("tcp", m[1])
	if err == nil {
		conn.Close()
	}
	assert.Error(t, err, "callback server still listening on %s", m[1])
}
