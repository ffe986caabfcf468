package sync

import (
	"strings"
	"time"

	calclient "github.com/beekhof/studygroup-sync/internal/calendar"
	"github.com/beekhof/studygroup-sync/internal/recurrence"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// Meeting is a study group meeting as scheduled by its owner.
type Meeting struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"ownerId"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Start       time.Time        `json:"start"`
	Duration    time.Duration    `json:"duration"`
	TimeZone    string           `json:"timeZone,omitempty"`
	Attendees   []string         `json:"attendees,omitempty"`
	Recurrence  *recurrence.Spec `json:"recurrence,omitempty"`
}

// Recurring reports whether the meeting repeats.
func (m Meeting) Recurring() bool {
	return m.Recurrence != nil
}

// End returns the end of the first occurrence.
func (m Meeting) End() time.Time {
	return m.Start.Add(m.Duration)
}

// Check validates the meeting fields and its recurrence spec. It returns a
// *syncerr.ValidationError listing every problem, or nil.
func (m Meeting) Check(engine *recurrence.Engine) error {
	var msgs []string
	if strings.TrimSpace(m.ID) == "" {
		msgs = append(msgs, "id is required")
	}
	if strings.TrimSpace(m.OwnerID) == "" {
		msgs = append(msgs, "ownerId is required")
	}
	if strings.TrimSpace(m.Title) == "" {
		msgs = append(msgs, "title is required")
	}
	if m.Start.IsZero() {
		msgs = append(msgs, "start is required")
	}
	if m.Duration <= 0 {
		msgs = append(msgs, "duration must be positive")
	}
	if m.TimeZone != "" {
		if _, err := time.LoadLocation(m.TimeZone); err != nil {
			msgs = append(msgs, "timeZone must be an IANA identifier")
		}
	}
	if m.Recurrence != nil {
		msgs = append(msgs, engine.Validate(*m.Recurrence)...)
	}

	if len(msgs) > 0 {
		return &syncerr.ValidationError{Messages: msgs}
	}
	return nil
}

// eventSpec builds the remote payload request. rule is empty for a one-off meeting.
func (m Meeting) eventSpec(rule string) calclient.EventSpec {
	return calclient.EventSpec{
		Title:       m.Title,
		Description: m.Description,
		Start:       m.Start,
		End:         m.End(),
		TimeZone:    m.TimeZone,
		Attendees:   m.Attendees,
		Recurrence:  rule,
	}
}
