package calendar

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"google.golang.org/api/calendar/v3"

	"github.com/beekhof/studygroup-sync/internal/logging"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// TokenProvider hands out access tokens the provider currently accepts.
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
}

// EventsAPI is the subset of the provider API used by SyncClient.
type EventsAPI interface {
	GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*calendar.Event, error)
	InsertEvent(ctx context.Context, accessToken, calendarID string, event *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
}

// DeleteResult reports how a delete completed.
type DeleteResult int

const (
	// Deleted means the remote event existed and was removed by this call.
	Deleted DeleteResult = iota + 1
	// AlreadyDeleted means the remote event was gone before the call.
	AlreadyDeleted
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case AlreadyDeleted:
		return "already deleted"
	default:
		return "unknown"
	}
}

// SyncClient mirrors meetings onto a user's remote calendar.
//
// A token is obtained before every operation; a failure there aborts the
// operation before any payload is sent. Calls are not retried: an
// authorization failure after a successful probe is surfaced as-is.
type SyncClient struct {
	tokens       TokenProvider
	api          EventsAPI
	calendarID   string
	newRequestID func() string
	logger       *slog.Logger
}

// SyncClientOption configures a SyncClient.
type SyncClientOption func(*SyncClient)

// WithRequestIDs overrides the conference request identifier generator.
func WithRequestIDs(next func() string) SyncClientOption {
	return func(c *SyncClient) { c.newRequestID = next }
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger *slog.Logger) SyncClientOption {
	return func(c *SyncClient) { c.logger = logger }
}

// NewSyncClient creates a SyncClient writing to calendarID.
func NewSyncClient(tokens TokenProvider, api EventsAPI, calendarID string, opts ...SyncClientOption) *SyncClient {
	if calendarID == "" {
		calendarID = PrimaryCalendarID
	}
	c := &SyncClient{
		tokens:     tokens,
		api:        api,
		calendarID: calendarID,
		// ULIDs combine a millisecond timestamp with 80 random bits.
		newRequestID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateEvent creates a remote event for spec. Repeating the call creates a
// second remote event.
func (c *SyncClient) CreateEvent(ctx context.Context, userID string, spec EventSpec) (*RemoteEventRef, error) {
	token, err := c.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	created, err := c.api.InsertEvent(ctx, token, c.calendarID, BuildEvent(spec, c.newRequestID()))
	if err != nil {
		return nil, err
	}

	ref := refFromEvent(created)
	c.log(ctx, "create", userID).Info("remote event created", "external_id", ref.ExternalID)
	return ref, nil
}

// UpdateEvent replaces the remote event at externalID with spec.
func (c *SyncClient) UpdateEvent(ctx context.Context, userID, externalID string, spec EventSpec) (*RemoteEventRef, error) {
	token, err := c.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated, err := c.api.UpdateEvent(ctx, token, c.calendarID, externalID, BuildEvent(spec, c.newRequestID()))
	if err != nil {
		return nil, err
	}

	c.log(ctx, "update", userID).Info("remote event updated", "external_id", externalID)
	return refFromEvent(updated), nil
}

// DeleteEvent removes the remote event at externalID. An event that is
// already gone counts as success and no delete call is issued for it.
func (c *SyncClient) DeleteEvent(ctx context.Context, userID, externalID string) (DeleteResult, error) {
	token, err := c.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return 0, err
	}
	log := c.log(ctx, "delete", userID, "external_id", externalID)

	existing, err := c.api.GetEvent(ctx, token, c.calendarID, externalID)
	if errors.Is(err, syncerr.ErrNotFound) {
		log.Info("remote event already deleted")
		return AlreadyDeleted, nil
	}
	if err != nil {
		return 0, err
	}
	if existing.Status == "cancelled" {
		log.Info("remote event already cancelled")
		return AlreadyDeleted, nil
	}

	err = c.api.DeleteEvent(ctx, token, c.calendarID, externalID)
	if errors.Is(err, syncerr.ErrNotFound) {
		log.Info("remote event disappeared before delete")
		return AlreadyDeleted, nil
	}
	if err != nil {
		return 0, err
	}

	log.Info("remote event deleted")
	return Deleted, nil
}

func (c *SyncClient) log(ctx context.Context, operation, userID string, attrs ...any) *slog.Logger {
	return logging.Component(logging.FromContext(ctx, c.logger), "calendar", operation, append([]any{"user_id", userID}, attrs...)...)
}
