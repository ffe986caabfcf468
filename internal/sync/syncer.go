// Package sync keeps study group meetings mirrored on the owner's remote
// calendar and sends reminders for upcoming occurrences.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	calclient "github.com/beekhof/studygroup-sync/internal/calendar"
	"github.com/beekhof/studygroup-sync/internal/logging"
	"github.com/beekhof/studygroup-sync/internal/recurrence"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// previewHorizon bounds the occurrence series of a meeting without an end date.
const previewHorizon = 365 * 24 * time.Hour

// RemoteCalendar performs mutations against the user's remote calendar.
type RemoteCalendar interface {
	CreateEvent(ctx context.Context, userID string, spec calclient.EventSpec) (*calclient.RemoteEventRef, error)
	UpdateEvent(ctx context.Context, userID, externalID string, spec calclient.EventSpec) (*calclient.RemoteEventRef, error)
	DeleteEvent(ctx context.Context, userID, externalID string) (calclient.DeleteResult, error)
}

// Syncer handles publishing meetings to the remote calendar and withdrawing them.
type Syncer struct {
	remote         RemoteCalendar
	store          MirrorStore
	engine         *recurrence.Engine
	notifier       Notifier
	now            func() time.Time
	reminderLead   time.Duration
	maxOccurrences int
	logger         *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithClock sets the time source for validation, previews and reminders.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithNotifier sets where reminders are delivered.
func WithNotifier(n Notifier) Option {
	return func(s *Syncer) { s.notifier = n }
}

// WithReminderLead sets how far ahead of an occurrence a reminder is sent.
func WithReminderLead(lead time.Duration) Option {
	return func(s *Syncer) { s.reminderLead = lead }
}

// WithMaxOccurrences caps the occurrence series computed for a meeting.
func WithMaxOccurrences(n int) Option {
	return func(s *Syncer) { s.maxOccurrences = n }
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) { s.logger = logger }
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(remote RemoteCalendar, store MirrorStore, opts ...Option) *Syncer {
	s := &Syncer{
		remote:         remote,
		store:          store,
		now:            time.Now,
		reminderLead:   time.Hour,
		maxOccurrences: recurrence.DefaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = recurrence.NewEngine(recurrence.WithClock(s.now))
	return s
}

// Preview is the computed schedule of a meeting.
type Preview struct {
	Rule        string
	Description string
	Occurrences []time.Time
	Next        time.Time
	HasNext     bool
}

// Preview validates m and computes its schedule without contacting the
// remote calendar.
func (s *Syncer) Preview(m Meeting) (*Preview, error) {
	if err := m.Check(s.engine); err != nil {
		return nil, err
	}

	if !m.Recurring() {
		p := &Preview{Description: "Does not repeat", Occurrences: []time.Time{m.Start}}
		if m.Start.After(s.now()) {
			p.Next, p.HasNext = m.Start, true
		}
		return p, nil
	}

	spec := *m.Recurrence
	rule, err := recurrence.GenerateRule(spec)
	if err != nil {
		return nil, err
	}
	if _, err := recurrence.ParseRule(rule, m.Start); err != nil {
		return nil, err
	}

	p := &Preview{
		Rule:        rule,
		Description: recurrence.Describe(spec),
		Occurrences: recurrence.Occurrences(m.Start, m.Start.Add(previewHorizon), spec, s.maxOccurrences),
	}
	p.Next, p.HasNext = s.nextOccurrence(m)
	return p, nil
}

// PublishResult describes a successful publish.
type PublishResult struct {
	Mirror  *Mirror
	Preview *Preview
	Created bool
}

// Publish creates the remote copy of m, or replaces it when m was published
// before. A meeting that fails validation is rejected before any remote call.
// Publishing a withdrawn meeting is an ErrInvalidTransition.
func (s *Syncer) Publish(ctx context.Context, m Meeting) (*PublishResult, error) {
	log := s.log(ctx, "publish", "meeting_id", m.ID)

	preview, err := s.Preview(m)
	if err != nil {
		return nil, err
	}

	mirror, err := s.store.GetMirror(ctx, m.ID)
	if errors.Is(err, syncerr.ErrNotFound) {
		mirror = &Mirror{MeetingID: m.ID, UserID: m.OwnerID, State: Unsynced}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load mirror: %w", err)
	}

	transition := Updated
	if mirror.State == Unsynced {
		transition = Created
	}
	next, err := mirror.State.Apply(transition)
	if err != nil {
		return nil, err
	}

	var ref *calclient.RemoteEventRef
	spec := m.eventSpec(preview.Rule)
	if transition == Created {
		ref, err = s.remote.CreateEvent(ctx, mirror.UserID, spec)
	} else {
		ref, err = s.remote.UpdateEvent(ctx, mirror.UserID, mirror.ExternalID, spec)
	}
	if err != nil {
		log.Warn("remote publish failed", "transition", transition, "kind", syncerr.Kind(err), "error", err)
		return nil, err
	}

	mirror.ExternalID = ref.ExternalID
	mirror.ConferenceID = ref.ConferenceID
	mirror.JoinLink = ref.JoinLink
	mirror.State = next
	mirror.Meeting = m
	mirror.UpdatedAt = s.now()

	if err := s.store.SaveMirror(ctx, mirror); err != nil {
		// The remote event exists now; keep its id in the log for reconciliation.
		log.Error("failed to save mirror", "external_id", ref.ExternalID, "error", err)
		return nil, fmt.Errorf("failed to save mirror: %w", err)
	}

	log.Info("meeting published", "transition", transition, "external_id", ref.ExternalID, "occurrences", len(preview.Occurrences))
	return &PublishResult{Mirror: mirror, Preview: preview, Created: transition == Created}, nil
}

// Withdraw removes the remote copy of the meeting. Withdrawing an already
// withdrawn meeting reports AlreadyDeleted without a remote call.
func (s *Syncer) Withdraw(ctx context.Context, meetingID string) (calclient.DeleteResult, error) {
	log := s.log(ctx, "withdraw", "meeting_id", meetingID)

	mirror, err := s.store.GetMirror(ctx, meetingID)
	if err != nil {
		return 0, fmt.Errorf("failed to load mirror: %w", err)
	}
	if mirror.State == Deleted {
		log.Info("meeting already withdrawn")
		return calclient.AlreadyDeleted, nil
	}

	next, err := mirror.State.Apply(Removed)
	if err != nil {
		return 0, err
	}

	result, err := s.remote.DeleteEvent(ctx, mirror.UserID, mirror.ExternalID)
	if err != nil {
		log.Warn("remote delete failed", "kind", syncerr.Kind(err), "error", err)
		return 0, err
	}

	mirror.State = next
	mirror.UpdatedAt = s.now()
	if err := s.store.SaveMirror(ctx, mirror); err != nil {
		return 0, fmt.Errorf("failed to save mirror: %w", err)
	}

	log.Info("meeting withdrawn", "result", result.String(), "external_id", mirror.ExternalID)
	return result, nil
}

// nextOccurrence returns the next occurrence of m after now, honoring the
// series end date.
func (s *Syncer) nextOccurrence(m Meeting) (time.Time, bool) {
	if !m.Recurring() {
		if m.Start.After(s.now()) {
			return m.Start, true
		}
		return time.Time{}, false
	}

	next, ok := s.engine.NextOccurrence(m.Start, *m.Recurrence)
	if !ok {
		return time.Time{}, false
	}
	if end := m.Recurrence.EndDate; end != nil && next.After(*end) {
		return time.Time{}, false
	}
	return next, true
}

func (s *Syncer) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.Component(logging.FromContext(ctx, s.logger), "sync", operation, attrs...)
}
