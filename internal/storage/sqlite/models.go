package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beekhof/studygroup-sync/internal/sync"
)

const timeLayout = time.RFC3339Nano

type Mirror struct {
	MeetingID      string         `db:"meeting_id"`
	UserID         string         `db:"user_id"`
	ExternalID     string         `db:"external_id"`
	ConferenceID   string         `db:"conference_id"`
	JoinLink       string         `db:"join_link"`
	State          string         `db:"state"`
	Meeting        string         `db:"meeting"`
	LastRemindedAt sql.NullString `db:"last_reminded_at"`
	UpdatedAt      string         `db:"updated_at"`
}

func newMirror(m *sync.Mirror) (*Mirror, error) {
	meeting, err := json.Marshal(m.Meeting)
	if err != nil {
		return nil, fmt.Errorf("failed to encode meeting: %w", err)
	}
	row := &Mirror{
		MeetingID:    m.MeetingID,
		UserID:       m.UserID,
		ExternalID:   m.ExternalID,
		ConferenceID: m.ConferenceID,
		JoinLink:     m.JoinLink,
		State:        string(m.State),
		Meeting:      string(meeting),
		UpdatedAt:    m.UpdatedAt.UTC().Format(timeLayout),
	}
	if m.LastRemindedAt != nil {
		row.LastRemindedAt = sql.NullString{String: m.LastRemindedAt.UTC().Format(timeLayout), Valid: true}
	}
	return row, nil
}

func (r Mirror) Convert() (*sync.Mirror, error) {
	m := &sync.Mirror{
		MeetingID:    r.MeetingID,
		UserID:       r.UserID,
		ExternalID:   r.ExternalID,
		ConferenceID: r.ConferenceID,
		JoinLink:     r.JoinLink,
		State:        sync.State(r.State),
	}
	if err := json.Unmarshal([]byte(r.Meeting), &m.Meeting); err != nil {
		return nil, fmt.Errorf("meeting %s: failed to decode meeting: %w", r.MeetingID, err)
	}

	var err error
	if m.UpdatedAt, err = time.Parse(timeLayout, r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("meeting %s: invalid updated_at: %w", r.MeetingID, err)
	}
	if r.LastRemindedAt.Valid {
		at, err := time.Parse(timeLayout, r.LastRemindedAt.String)
		if err != nil {
			return nil, fmt.Errorf("meeting %s: invalid last_reminded_at: %w", r.MeetingID, err)
		}
		m.LastRemindedAt = &at
	}
	return m, nil
}
