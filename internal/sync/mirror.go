package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// State is the sync state of a meeting's remote mirror.
type State string

const (
	Unsynced State = "unsynced"
	Synced   State = "synced"
	Deleted  State = "deleted"
)

// Transition is a successful remote operation applied to a mirror.
type Transition string

const (
	Created Transition = "create"
	Updated Transition = "update"
	Removed Transition = "delete"
)

// Apply returns the state reached from s after t. The machine is
//
//	unsynced --create--> synced --update--> synced --delete--> deleted
//
// and every other combination is an ErrInvalidTransition.
func (s State) Apply(t Transition) (State, error) {
	switch {
	case s == Unsynced && t == Created:
		return Synced, nil
	case s == Synced && t == Updated:
		return Synced, nil
	case s == Synced && t == Removed:
		return Deleted, nil
	}
	return s, fmt.Errorf("%w: %s on %s mirror", syncerr.ErrInvalidTransition, t, s)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Unsynced, Synced, Deleted:
		return true
	}
	return false
}

// Mirror maps a meeting to its copy on the remote calendar.
type Mirror struct {
	MeetingID    string
	UserID       string
	ExternalID   string
	ConferenceID string
	JoinLink     string
	State        State
	Meeting      Meeting
	// LastRemindedAt is the occurrence a reminder was last sent for.
	LastRemindedAt *time.Time
	UpdatedAt      time.Time
}

// MirrorStore persists mirrors. GetMirror returns syncerr.ErrNotFound for an
// unknown meeting.
type MirrorStore interface {
	GetMirror(ctx context.Context, meetingID string) (*Mirror, error)
	SaveMirror(ctx context.Context, mirror *Mirror) error
	ListMirrors(ctx context.Context, state State) ([]*Mirror, error)
}
