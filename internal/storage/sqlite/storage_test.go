package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/studygroup-sync/internal/auth"
	"github.com/beekhof/studygroup-sync/internal/recurrence"
	"github.com/beekhof/studygroup-sync/internal/sync"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetCredential(ctx, "u1")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)

	require.NoError(t, s.SaveCredential(ctx, auth.CredentialRecord{UserID: "u1", RefreshToken: "r1"}))
	record, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &auth.CredentialRecord{UserID: "u1", RefreshToken: "r1"}, record)

	require.NoError(t, s.UpdateAccessToken(ctx, "r1", "a1"))
	record, err = s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a1", record.AccessToken)

	require.NoError(t, s.UpdateAccessToken(ctx, "r1", "a2"))
	record, err = s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a2", record.AccessToken, "last writer wins")

	err = s.UpdateAccessToken(ctx, "unknown", "a3")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)

	require.NoError(t, s.DeleteCredential(ctx, "u1"))
	_, err = s.GetCredential(ctx, "u1")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCredential(ctx, "u1"), syncerr.ErrNotFound)
}

func TestSaveCredential_Relink(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SaveCredential(ctx, auth.CredentialRecord{UserID: "u1", AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, s.SaveCredential(ctx, auth.CredentialRecord{UserID: "u1", AccessToken: "a2", RefreshToken: "r2"}))

	record, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a2", record.AccessToken)
	assert.Equal(t, "r2", record.RefreshToken)
}

func TestSaveCredential_RefreshTokenUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SaveCredential(ctx, auth.CredentialRecord{UserID: "u1", RefreshToken: "shared"}))
	err := s.SaveCredential(ctx, auth.CredentialRecord{UserID: "u2", RefreshToken: "shared"})

	assert.ErrorIs(t, err, auth.ErrRefreshTokenInUse)
	_, err = s.GetCredential(ctx, "u2")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
}

func testMirror() *sync.Mirror {
	end := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	return &sync.Mirror{
		MeetingID:    "m1",
		UserID:       "u1",
		ExternalID:   "evt-1",
		ConferenceID: "abc-defg-hij",
		JoinLink:     "https://meet.google.com/abc-defg-hij",
		State:        sync.Synced,
		Meeting: sync.Meeting{
			ID:        "m1",
			OwnerID:   "u1",
			Title:     "Romans study",
			Start:     time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC),
			Duration:  90 * time.Minute,
			TimeZone:  "UTC",
			Attendees: []string{"a@example.com"},
			Recurrence: &recurrence.Spec{
				Pattern:    recurrence.Weekly,
				Interval:   2,
				DaysOfWeek: []int{1, 3},
				EndDate:    &end,
			},
		},
		UpdatedAt: fixedNow,
	}
}

func TestMirrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetMirror(ctx, "m1")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)

	want := testMirror()
	require.NoError(t, s.SaveMirror(ctx, want))

	got, err := s.GetMirror(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	reminded := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	want.LastRemindedAt = &reminded
	want.State = sync.Deleted
	require.NoError(t, s.SaveMirror(ctx, want))

	got, err = s.GetMirror(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, sync.Deleted, got.State)
	require.NotNil(t, got.LastRemindedAt)
	assert.True(t, reminded.Equal(*got.LastRemindedAt))
}

func TestListMirrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for _, tc := range []struct {
		id    string
		state sync.State
	}{{"m3", sync.Synced}, {"m1", sync.Synced}, {"m2", sync.Deleted}} {
		m := testMirror()
		m.MeetingID = tc.id
		m.State = tc.state
		require.NoError(t, s.SaveMirror(ctx, m))
	}

	synced, err := s.ListMirrors(ctx, sync.Synced)
	require.NoError(t, err)
	require.Len(t, synced, 2)
	assert.Equal(t, "m1", synced[0].MeetingID)
	assert.Equal(t, "m3", synced[1].MeetingID)

	unsynced, err := s.ListMirrors(ctx, sync.Unsynced)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestSaveMirror_RejectsUnknownState(t *testing.T) {
	m := testMirror()
	m.State = "archived"

	err := newTestStorage(t).SaveMirror(context.Background(), m)
	assert.ErrorContains(t, err, "unknown state")
}

func TestOpen_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "groupsync.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCredential(ctx, auth.CredentialRecord{UserID: "u1", RefreshToken: "r1"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	record, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", record.RefreshToken)
}
