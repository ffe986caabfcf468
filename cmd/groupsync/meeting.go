package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/beekhof/studygroup-sync/internal/recurrence"
	"github.com/beekhof/studygroup-sync/internal/sync"
)

// Accepted --start layouts besides RFC 3339. They are read in the configured time zone.
var localLayouts = []string{"2006-01-02 15:04", "2006-01-02T15:04"}

const defaultDuration = time.Hour

var dayNames = map[string]int{"SU": 0, "MO": 1, "TU": 2, "WE": 3, "TH": 4, "FR": 5, "SA": 6}

// meetingFlags collects the flags that describe a meeting.
type meetingFlags struct {
	file        *string
	id          *string
	user        *string
	title       *string
	description *string
	start       *string
	duration    *time.Duration
	attendees   *string
	pattern     *string
	interval    *int
	days        *string
	until       *string
}

func addMeetingFlags(fs *flag.FlagSet) *meetingFlags {
	return &meetingFlags{
		file:        fs.String("meeting", "", "Path to a JSON meeting file (other meeting flags override its fields)"),
		id:          fs.String("id", "", "Meeting id"),
		user:        fs.String("user", "", "Owner user id"),
		title:       fs.String("title", "", "Meeting title"),
		description: fs.String("description", "", "Meeting description"),
		start:       fs.String("start", "", "Start time (RFC 3339, or 'YYYY-MM-DD HH:MM' in the configured time zone)"),
		duration:    fs.Duration("duration", 0, "Meeting length (default 1h)"),
		attendees:   fs.String("attendees", "", "Comma-separated attendee emails"),
		pattern:     fs.String("repeat", "", "Recurrence pattern: daily, weekly or monthly (empty for a one-off meeting)"),
		interval:    fs.Int("interval", 1, "Repeat every N days/weeks/months (1-99)"),
		days:        fs.String("days", "", "Weekdays for weekly meetings, e.g. 'MO,WE' or '1,3'"),
		until:       fs.String("until", "", "Last date of the series (YYYY-MM-DD or RFC 3339)"),
	}
}

// meeting builds a Meeting from the parsed flags. Times without an offset are
// read in loc.
func (f *meetingFlags) meeting(loc *time.Location) (sync.Meeting, error) {
	var m sync.Meeting
	if *f.file != "" {
		data, err := os.ReadFile(*f.file)
		if err != nil {
			return m, fmt.Errorf("failed to read meeting file: %w", err)
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("failed to parse meeting file: %w", err)
		}
	}

	if *f.id != "" {
		m.ID = *f.id
	}
	if *f.user != "" {
		m.OwnerID = *f.user
	}
	if *f.title != "" {
		m.Title = *f.title
	}
	if *f.description != "" {
		m.Description = *f.description
	}
	if *f.start != "" {
		start, err := parseTime(*f.start, loc)
		if err != nil {
			return m, fmt.Errorf("invalid --start: %w", err)
		}
		m.Start = start
	}
	if *f.duration != 0 {
		m.Duration = *f.duration
	}
	if m.Duration == 0 {
		m.Duration = defaultDuration
	}
	if *f.attendees != "" {
		m.Attendees = splitList(*f.attendees)
	}
	if m.TimeZone == "" {
		m.TimeZone = loc.String()
	}

	if *f.pattern != "" {
		pattern, err := recurrence.ParsePattern(*f.pattern)
		if err != nil {
			return m, err
		}
		spec := &recurrence.Spec{Pattern: pattern, Interval: *f.interval}
		if *f.days != "" {
			if spec.DaysOfWeek, err = parseDays(*f.days); err != nil {
				return m, err
			}
		}
		if *f.until != "" {
			until, err := parseUntil(*f.until, loc)
			if err != nil {
				return m, fmt.Errorf("invalid --until: %w", err)
			}
			spec.EndDate = &until
		}
		m.Recurrence = spec
	}

	return m, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// parseUntil reads a bare date as the end of that day in loc.
func parseUntil(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t.AddDate(0, 0, 1).Add(-time.Second), nil
	}
	return parseTime(s, loc)
}

// parseDays accepts two-letter day codes or numbers 0 (Sunday) to 6, keeping
// the order given.
func parseDays(s string) ([]int, error) {
	days := []int{}
	for _, part := range splitList(s) {
		if d, ok := dayNames[strings.ToUpper(part)]; ok {
			days = append(days, d)
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", recurrence.ErrInvalidDay, part)
		}
		days = append(days, d)
	}
	return days, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
