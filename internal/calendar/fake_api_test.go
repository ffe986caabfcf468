package calendar

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/calendar/v3"
)

const (
	fakeMeetLink     = "https://meet.google.com/abc-defg-hij"
	fakeConferenceID = "abc-defg-hij"
	revokedToken     = "revoked"
)

type apiFailure struct {
	status int
	reason string
}

// fakeCalendarAPI serves the slice of the Google Calendar v3 REST API that the
// client uses. Requests are counted per method; "PROBE" counts calendar list reads.
type fakeCalendarAPI struct {
	t         *testing.T
	mu        sync.Mutex
	events    map[string]*calendar.Event
	requests  map[string]int
	fail      map[string]apiFailure
	lastBody  map[string]any
	lastQuery url.Values
	lastAuth  string
	nextID    int
}

func newFakeCalendarAPI(t *testing.T) (*fakeCalendarAPI, *Client) {
	f := &fakeCalendarAPI{
		t:        t,
		events:   make(map[string]*calendar.Event),
		requests: make(map[string]int),
		fail:     make(map[string]apiFailure),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, NewClient(WithEndpoint(srv.URL + "/calendar/v3/"))
}

func (f *fakeCalendarAPI) failNext(key string, status int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[key] = apiFailure{status: status, reason: reason}
}

func (f *fakeCalendarAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

func (f *fakeCalendarAPI) put(event *calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[event.Id] = event
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/calendar/v3/")
	key := r.Method
	if strings.HasPrefix(path, "users/me/calendarList/") {
		key = "PROBE"
	}
	f.requests[key]++
	f.lastQuery = r.URL.Query()
	f.lastAuth = r.Header.Get("Authorization")

	if f.lastAuth == "Bearer "+revokedToken {
		writeAPIError(w, http.StatusUnauthorized, "authError")
		return
	}
	if failure, ok := f.fail[key]; ok {
		delete(f.fail, key)
		writeAPIError(w, failure.status, failure.reason)
		return
	}

	switch {
	case key == "PROBE":
		writeJSON(w, &calendar.CalendarListEntry{Id: PrimaryCalendarID})

	case r.Method == http.MethodPost && path == "calendars/primary/events":
		event := f.decode(r)
		f.nextID++
		event.Id = fmt.Sprintf("evt-%d", f.nextID)
		event.HangoutLink = fakeMeetLink
		event.ConferenceData = &calendar.ConferenceData{ConferenceId: fakeConferenceID}
		f.events[event.Id] = event
		writeJSON(w, event)

	case strings.HasPrefix(path, "calendars/primary/events/"):
		id := strings.TrimPrefix(path, "calendars/primary/events/")
		existing, ok := f.events[id]
		if !ok {
			writeAPIError(w, http.StatusNotFound, "notFound")
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, existing)
		case http.MethodPut:
			event := f.decode(r)
			event.Id = id
			event.HangoutLink = existing.HangoutLink
			event.ConferenceData = existing.ConferenceData
			f.events[id] = event
			writeJSON(w, event)
		case http.MethodDelete:
			delete(f.events, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCalendarAPI) decode(r *http.Request) *calendar.Event {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.t.Errorf("failed to read request body: %v", err)
	}
	f.lastBody = map[string]any{}
	if err := json.Unmarshal(body, &f.lastBody); err != nil {
		f.t.Errorf("failed to decode request body: %v", err)
	}
	var event calendar.Event
	if err := json.Unmarshal(body, &event); err != nil {
		f.t.Errorf("failed to decode event: %v", err)
	}
	return &event
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s","errors":[{"domain":"global","reason":"%s","message":"%s"}]}}`,
		status, http.StatusText(status), reason, http.StatusText(status))
}
