package calendar

import (
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const conferenceSolutionMeet = "hangoutsMeet"

// EventSpec is a scheduling request for a single or recurring meeting.
type EventSpec struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string   // IANA identifier, passed through to the provider
	Attendees   []string // email addresses
	Recurrence  string   // provider rule text; empty for a one-off meeting
}

// RemoteEventRef identifies the provider's copy of a meeting.
type RemoteEventRef struct {
	ExternalID   string
	ConferenceID string
	JoinLink     string
	Attendees    []string
}

// BuildEvent creates the provider payload for spec. requestID tags the
// conference create request; it is not an idempotency key.
func BuildEvent(spec EventSpec, requestID string) *calendar.Event {
	tz := spec.TimeZone
	if tz == "" || tz == "Local" {
		tz = "UTC"
	}

	event := &calendar.Event{
		Summary:     spec.Title,
		Description: spec.Description,
		Start: &calendar.EventDateTime{
			DateTime: spec.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: spec.End.Format(time.RFC3339),
			TimeZone: tz,
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: requestID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: conferenceSolutionMeet,
				},
			},
		},
		GuestsCanModify:         false,
		GuestsCanInviteOthers:   googleapi.Bool(false),
		GuestsCanSeeOtherGuests: googleapi.Bool(true),
		// GuestsCanModify is a plain bool and would be dropped as a zero value.
		ForceSendFields: []string{"GuestsCanModify"},
	}

	for _, email := range spec.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	if spec.Recurrence != "" {
		event.Recurrence = []string{spec.Recurrence}
	}

	return event
}

func refFromEvent(event *calendar.Event) *RemoteEventRef {
	ref := &RemoteEventRef{
		ExternalID: event.Id,
		JoinLink:   event.HangoutLink,
	}
	if event.ConferenceData != nil {
		ref.ConferenceID = event.ConferenceData.ConferenceId
	}
	for _, attendee := range event.Attendees {
		ref.Attendees = append(ref.Attendees, attendee.Email)
	}
	return ref
}
