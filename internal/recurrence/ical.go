package recurrence

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const productID = "-//Study Group Sync//EN"

// SeriesEvent is a recurring meeting ready for iCalendar export.
type SeriesEvent struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Rule        string // provider rule text, with or without the "RRULE:" prefix
	Stamp       time.Time
}

// SeriesCalendar builds a VCALENDAR holding a single VEVENT for ev.
func SeriesCalendar(ev SeriesEvent) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewComponent(ical.CompEvent)
	vevent.Props.SetText(ical.PropUID, ev.UID)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, ev.Stamp.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)

	if ev.Summary != "" {
		vevent.Props.SetText(ical.PropSummary, ev.Summary)
	}
	if ev.Description != "" {
		vevent.Props.SetText(ical.PropDescription, ev.Description)
	}

	// RRULE is a RECUR value; SetText would escape the BYDAY commas.
	if ev.Rule != "" {
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = strings.TrimPrefix(ev.Rule, "RRULE:")
		vevent.Props.Set(prop)
	}

	cal.Children = append(cal.Children, vevent)
	return cal
}

// WriteICS encodes cal to w.
func WriteICS(w io.Writer, cal *ical.Calendar) error {
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}
