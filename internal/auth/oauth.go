package auth

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// DefaultRedirectURL is replaced by the loopback server's address during Link.
const DefaultRedirectURL = "http://127.0.0.1:8080"

// NewOAuthConfig returns the Google OAuth configuration for calendar access.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  DefaultRedirectURL,
		Scopes: []string{
			calendar.CalendarScope,
			calendar.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}
}
