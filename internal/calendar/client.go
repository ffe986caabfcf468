package calendar

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// PrimaryCalendarID addresses the user's own calendar.
const PrimaryCalendarID = "primary"

// Client is a wrapper around the Google Calendar API. Every call carries the
// caller's access token; the client itself holds no credentials.
type Client struct {
	endpoint    string
	sendUpdates string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoint points the client at a different API base URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithSendUpdates sets who is notified of changes: "all", "externalOnly" or "none".
func WithSendUpdates(mode string) ClientOption {
	return func(c *Client) {
		if mode != "" {
			c.sendUpdates = mode
		}
	}
}

// NewClient creates a Google Calendar API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{sendUpdates: "all"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

// Probe performs a read-only call to check that accessToken is accepted.
func (c *Client) Probe(ctx context.Context, accessToken string) error {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}
	if _, err := service.CalendarList.Get(PrimaryCalendarID).Context(ctx).Do(); err != nil {
		return classify("probe", err)
	}
	return nil
}

// GetEvent retrieves a single event by ID.
func (c *Client) GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*calendar.Event, error) {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	event, err := service.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, classify("get event", err)
	}
	return event, nil
}

// InsertEvent creates event. Conference data version 1 is required for the
// provider to honor a conference create request.
func (c *Client) InsertEvent(ctx context.Context, accessToken, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	created, err := service.Events.Insert(calendarID, event).
		ConferenceDataVersion(1).
		SendUpdates(c.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("insert event", err)
	}
	return created, nil
}

// UpdateEvent replaces the event stored at eventID with event.
func (c *Client) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	updated, err := service.Events.Update(calendarID, eventID, event).
		ConferenceDataVersion(1).
		SendUpdates(c.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("update event", err)
	}
	return updated, nil
}

// DeleteEvent deletes an event from a calendar.
func (c *Client) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}
	err = service.Events.Delete(calendarID, eventID).
		SendUpdates(c.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return classify("delete event", err)
	}
	return nil
}
