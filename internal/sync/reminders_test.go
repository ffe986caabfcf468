package sync

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/studygroup-sync/internal/logging"
	"github.com/beekhof/studygroup-sync/internal/recurrence"
)

type recordingNotifier struct {
	sent []Reminder
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, r Reminder) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, r)
	return nil
}

func syncedMirror(id string, m Meeting) Mirror {
	m.ID = id
	return Mirror{
		MeetingID:  id,
		UserID:     m.OwnerID,
		ExternalID: "evt-" + id,
		JoinLink:   "https://meet.google.com/" + id,
		State:      Synced,
		Meeting:    m,
	}
}

func reminderStore() *memStore {
	store := newMemStore()

	soon := weeklyMeeting()
	soon.Recurrence = nil
	soon.Start = fixedNow.Add(30 * time.Minute)
	store.mirrors["a-soon"] = syncedMirror("a-soon", soon)

	later := weeklyMeeting()
	later.Recurrence = nil
	later.Start = fixedNow.Add(3 * time.Hour)
	store.mirrors["b-later"] = syncedMirror("b-later", later)

	// Sundays at 12:30 since 1 February; the 1 March occurrence is due.
	weekly := weeklyMeeting()
	weekly.Start = time.Date(2026, time.February, 1, 12, 30, 0, 0, time.UTC)
	weekly.Recurrence = &recurrence.Spec{Pattern: recurrence.Weekly, Interval: 1}
	store.mirrors["c-weekly"] = syncedMirror("c-weekly", weekly)

	ended := weekly
	ended.Recurrence = &recurrence.Spec{
		Pattern:  recurrence.Weekly,
		Interval: 1,
		EndDate:  ptr(time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)),
	}
	store.mirrors["d-ended"] = syncedMirror("d-ended", ended)

	withdrawn := syncedMirror("e-withdrawn", soon)
	withdrawn.State = Deleted
	store.mirrors["e-withdrawn"] = withdrawn

	return store
}

func ptr[T any](v T) *T { return &v }

func TestSweepReminders(t *testing.T) {
	store := reminderStore()
	notifier := &recordingNotifier{}
	s := NewSyncer(newMockRemote(), store, WithClock(clock), WithNotifier(notifier), WithReminderLead(time.Hour))

	report, err := s.SweepReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 4, Sent: 2}, report)
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, "a-soon", notifier.sent[0].MeetingID)
	assert.Equal(t, fixedNow.Add(30*time.Minute), notifier.sent[0].Occurrence)
	assert.Equal(t, "https://meet.google.com/a-soon", notifier.sent[0].JoinLink)
	assert.Equal(t, "c-weekly", notifier.sent[1].MeetingID)
	assert.Equal(t, time.Date(2026, time.March, 1, 12, 30, 0, 0, time.UTC), notifier.sent[1].Occurrence)

	reminded := store.mirrors["c-weekly"].LastRemindedAt
	require.NotNil(t, reminded)
	assert.Equal(t, notifier.sent[1].Occurrence, *reminded)
}

func TestSweepReminders_SendsOncePerOccurrence(t *testing.T) {
	store := reminderStore()
	notifier := &recordingNotifier{}
	s := NewSyncer(newMockRemote(), store, WithClock(clock), WithNotifier(notifier))

	_, err := s.SweepReminders(context.Background())
	require.NoError(t, err)
	report, err := s.SweepReminders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Sent)
	assert.Len(t, notifier.sent, 2)
}

func TestSweepReminders_NotifierFailure(t *testing.T) {
	store := reminderStore()
	notifier := &recordingNotifier{err: errors.New("smtp unavailable")}
	s := NewSyncer(newMockRemote(), store, WithClock(clock), WithNotifier(notifier))

	report, err := s.SweepReminders(context.Background())

	assert.ErrorContains(t, err, "smtp unavailable")
	assert.ErrorContains(t, err, "meeting a-soon")
	assert.Equal(t, 2, report.Failed)
	assert.Nil(t, store.mirrors["a-soon"].LastRemindedAt)
}

func TestSweepReminders_RequiresNotifier(t *testing.T) {
	s := NewSyncer(newMockRemote(), newMemStore(), WithClock(clock))

	_, err := s.SweepReminders(context.Background())
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: logging.New(&buf, false)}

	err := n.Notify(context.Background(), Reminder{MeetingID: "m1", Title: "Romans study", Occurrence: fixedNow})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "meeting reminder")
	assert.Contains(t, buf.String(), "meeting_id=m1")
	assert.Contains(t, buf.String(), "occurrence=2026-03-01T12:00:00Z")
}
