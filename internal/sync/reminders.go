package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beekhof/studygroup-sync/internal/logging"
)

// Reminder announces an upcoming occurrence of a meeting.
type Reminder struct {
	MeetingID  string
	UserID     string
	Title      string
	Occurrence time.Time
	JoinLink   string
	Attendees  []string
}

// Notifier delivers reminders. Delivery channels live outside this package.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, r Reminder) error {
	logging.FromContext(ctx, n.Logger).Info("meeting reminder",
		"meeting_id", r.MeetingID,
		"user_id", r.UserID,
		"title", r.Title,
		"occurrence", r.Occurrence.Format(time.RFC3339),
		"join_link", r.JoinLink,
		"attendees", len(r.Attendees),
	)
	return nil
}

// SweepReport summarizes one reminder sweep.
type SweepReport struct {
	Checked int
	Sent    int
	Failed  int
}

// SweepReminders sends one reminder for every synced meeting whose next
// occurrence starts within the reminder lead. An occurrence is reminded at
// most once. Failures for one meeting do not stop the sweep; they are joined
// into the returned error.
func (s *Syncer) SweepReminders(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	log := s.log(ctx, "sweep")

	if s.notifier == nil {
		return report, errors.New("no notifier configured")
	}

	mirrors, err := s.store.ListMirrors(ctx, Synced)
	if err != nil {
		return report, fmt.Errorf("failed to list mirrors: %w", err)
	}

	now := s.now()
	var errs []error
	for _, mirror := range mirrors {
		report.Checked++

		next, ok := s.nextOccurrence(mirror.Meeting)
		if !ok || next.Sub(now) > s.reminderLead {
			continue
		}
		if mirror.LastRemindedAt != nil && mirror.LastRemindedAt.Equal(next) {
			log.Debug("reminder already sent", "meeting_id", mirror.MeetingID, "occurrence", next)
			continue
		}

		reminder := Reminder{
			MeetingID:  mirror.MeetingID,
			UserID:     mirror.UserID,
			Title:      mirror.Meeting.Title,
			Occurrence: next,
			JoinLink:   mirror.JoinLink,
			Attendees:  mirror.Meeting.Attendees,
		}
		if err := s.notifier.Notify(ctx, reminder); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("meeting %s: %w", mirror.MeetingID, err))
			continue
		}

		mirror.LastRemindedAt = &next
		if err := s.store.SaveMirror(ctx, mirror); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("meeting %s: failed to save mirror: %w", mirror.MeetingID, err))
			continue
		}
		report.Sent++
	}

	log.Info("reminder sweep finished", "checked", report.Checked, "sent", report.Sent, "failed", report.Failed)
	return report, errors.Join(errs...)
}
