// Package recurrence computes recurrence rule text, next occurrences and bounded
// occurrence series for repeating meetings.
//
// Everything in this package is pure. The only time-dependent operations
// (Validate and NextOccurrence) read "now" from the Engine's clock.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// Pattern is the frequency of a recurring meeting.
type Pattern string

const (
	Daily   Pattern = "daily"
	Weekly  Pattern = "weekly"
	Monthly Pattern = "monthly"
)

const (
	MinInterval = 1
	MaxInterval = 99

	// DefaultMaxOccurrences caps a generated series when the caller passes no limit.
	DefaultMaxOccurrences = 52

	// weeklyHorizonPeriods bounds the day-by-day weekday search in NextOccurrence,
	// measured in periods of the series (interval weeks).
	weeklyHorizonPeriods = 8

	untilLayout = "20060102T150405Z"
)

var (
	// ErrInvalidPattern indicates the pattern is not daily, weekly or monthly.
	ErrInvalidPattern = errors.New("recurrence: invalid pattern")
	// ErrInvalidDay indicates a day-of-week value outside 0 (Sunday) to 6 (Saturday).
	ErrInvalidDay = errors.New("recurrence: day of week out of range")
	// ErrDaysNotWeekly indicates days of week on a daily or monthly pattern.
	ErrDaysNotWeekly = errors.New("recurrence: days of week require a weekly pattern")
)

var dayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// ParsePattern converts s to a Pattern, ignoring case.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPattern, s)
	}
	return p, nil
}

// Valid reports whether p is one of the recognized patterns.
func (p Pattern) Valid() bool {
	switch p.normalize() {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

func (p Pattern) normalize() Pattern {
	return Pattern(strings.ToLower(string(p)))
}

// Spec describes how a meeting repeats.
//
// A nil DaysOfWeek means the caller did not restrict the days, so a weekly
// series repeats on the start's weekday. A non-nil empty slice is an explicit
// empty set and fails validation for weekly patterns.
type Spec struct {
	Pattern    Pattern    `json:"pattern"`
	Interval   int        `json:"interval"`
	DaysOfWeek []int      `json:"daysOfWeek,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
}

// interval never returns less than one so stepping always makes progress.
func (s Spec) interval() int {
	if s.Interval < MinInterval {
		return MinInterval
	}
	return s.Interval
}

func (s Spec) weekdaySet() map[time.Weekday]struct{} {
	set := make(map[time.Weekday]struct{}, len(s.DaysOfWeek))
	for _, d := range s.DaysOfWeek {
		if d >= 0 && d <= 6 {
			set[time.Weekday(d)] = struct{}{}
		}
	}
	return set
}

// Engine evaluates recurrence specs against a clock.
type Engine struct {
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's source of the current time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an Engine using time.Now unless a clock is supplied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate returns one message per problem with spec. The result is empty
// if and only if spec is legal.
func (e *Engine) Validate(spec Spec) []string {
	var msgs []string

	if !spec.Pattern.Valid() {
		msgs = append(msgs, fmt.Sprintf("pattern must be one of daily, weekly or monthly, got %q", spec.Pattern))
	}
	if spec.Interval < MinInterval || spec.Interval > MaxInterval {
		msgs = append(msgs, fmt.Sprintf("interval must be between %d and %d, got %d", MinInterval, MaxInterval, spec.Interval))
	}
	if spec.Pattern.normalize() == Weekly && spec.DaysOfWeek != nil && len(spec.DaysOfWeek) == 0 {
		msgs = append(msgs, "daysOfWeek must not be empty for a weekly pattern")
	}
	if spec.Pattern.Valid() && spec.Pattern.normalize() != Weekly && len(spec.DaysOfWeek) > 0 {
		msgs = append(msgs, fmt.Sprintf("daysOfWeek is only allowed for a weekly pattern, got %s", spec.Pattern.normalize()))
	}
	for _, d := range spec.DaysOfWeek {
		if d < 0 || d > 6 {
			msgs = append(msgs, fmt.Sprintf("daysOfWeek value %d must be between 0 (Sunday) and 6 (Saturday)", d))
		}
	}
	if spec.EndDate != nil && !spec.EndDate.After(e.now()) {
		msgs = append(msgs, "endDate must be in the future")
	}

	return msgs
}

// Check is Validate folded into an error. It returns nil for a legal spec.
func (e *Engine) Check(spec Spec) error {
	if msgs := e.Validate(spec); len(msgs) > 0 {
		return &syncerr.ValidationError{Messages: msgs}
	}
	return nil
}

// GenerateRule renders spec as provider rule text, for example
// "RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;UNTIL=20260401T000000Z".
// Days are emitted in the order supplied and only for weekly patterns.
func GenerateRule(spec Spec) (string, error) {
	p := spec.Pattern.normalize()
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPattern, spec.Pattern)
	}

	var b strings.Builder
	b.WriteString("RRULE:FREQ=")
	b.WriteString(strings.ToUpper(string(p)))

	if spec.Interval > 1 {
		fmt.Fprintf(&b, ";INTERVAL=%d", spec.Interval)
	}

	if len(spec.DaysOfWeek) > 0 {
		if p != Weekly {
			return "", fmt.Errorf("%w: daysOfWeek given for %s pattern", ErrDaysNotWeekly, p)
		}
		codes := make([]string, 0, len(spec.DaysOfWeek))
		for _, d := range spec.DaysOfWeek {
			if d < 0 || d > 6 {
				return "", fmt.Errorf("%w: %d", ErrInvalidDay, d)
			}
			codes = append(codes, dayCodes[d])
		}
		b.WriteString(";BYDAY=")
		b.WriteString(strings.Join(codes, ","))
	}

	if spec.EndDate != nil {
		b.WriteString(";UNTIL=")
		b.WriteString(spec.EndDate.UTC().Format(untilLayout))
	}

	return b.String(), nil
}

// NextOccurrence returns the first occurrence of the series strictly after now.
// A start in the future is itself the next occurrence. The boolean is false
// for an unrecognized pattern or when a weekday search finds no match within
// its horizon.
func (e *Engine) NextOccurrence(start time.Time, spec Spec) (time.Time, bool) {
	now := e.now()
	if start.After(now) {
		return start, true
	}

	p := spec.Pattern.normalize()
	if !p.Valid() {
		return time.Time{}, false
	}

	interval := spec.interval()
	if p == Weekly && len(spec.DaysOfWeek) > 0 {
		return nextWeekday(start, now, interval, spec.weekdaySet())
	}

	// Jump close to now, then walk forward. The jump lands at most a few steps
	// short because of DST shifts and month clamping.
	k := stepsBefore(start, now, p, interval)
	for i := 0; i < 8; i++ {
		candidate := nth(start, p, interval, k+i)
		if candidate.After(now) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// Occurrences materializes the series beginning at start. It stops once an
// occurrence would exceed end (or spec.EndDate, whichever is earlier),
// or after maxOccurrences entries. A non-positive maxOccurrences means
// DefaultMaxOccurrences. An unrecognized pattern cannot advance, so its series
// is just start (when start is within end).
func Occurrences(start, end time.Time, spec Spec, maxOccurrences int) []time.Time {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	if spec.EndDate != nil && spec.EndDate.Before(end) {
		end = *spec.EndDate
	}

	out := make([]time.Time, 0)
	p := spec.Pattern.normalize()
	if !p.Valid() {
		if !start.After(end) {
			out = append(out, start)
		}
		return out
	}

	interval := spec.interval()
	if p == Weekly && len(spec.DaysOfWeek) > 0 {
		return weekdayOccurrences(out, start, end, interval, spec.weekdaySet(), maxOccurrences)
	}

	for k := 0; len(out) < maxOccurrences; k++ {
		current := nth(start, p, interval, k)
		if current.After(end) {
			break
		}
		out = append(out, current)
	}
	return out
}

// nth returns the k-th occurrence of a fixed-step series anchored at start.
// Computing from the anchor keeps monthly clamping from drifting.
func nth(start time.Time, p Pattern, interval, k int) time.Time {
	switch p {
	case Daily:
		return start.AddDate(0, 0, k*interval)
	case Weekly:
		return start.AddDate(0, 0, 7*k*interval)
	default:
		return addMonths(start, k*interval)
	}
}

// stepsBefore returns a step index whose occurrence is not after now.
func stepsBefore(start, now time.Time, p Pattern, interval int) int {
	var k int
	switch p {
	case Daily:
		k = civilDay(now.In(start.Location())) - civilDay(start)
		k = k/interval - 1
	case Weekly:
		k = civilDay(now.In(start.Location())) - civilDay(start)
		k = k/(7*interval) - 1
	default:
		local := now.In(start.Location())
		months := (local.Year()-start.Year())*12 + int(local.Month()-start.Month())
		k = months/interval - 1
	}
	if k < 0 {
		return 0
	}
	return k
}

// addMonths moves t forward by months, clamping the day to the last day of
// the target month (Jan 31 + 1 month = Feb 28 or 29).
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// civilDay numbers calendar dates so that consecutive dates differ by one,
// independent of DST.
func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// weekAnchor is the civil day of the Monday that opens the week containing t.
func weekAnchor(t time.Time) int {
	return civilDay(t) - (int(t.Weekday())+6)%7
}

func activeWeek(anchor int, t time.Time, interval int) bool {
	return ((civilDay(t)-anchor)/7)%interval == 0
}

func nextWeekday(start, now time.Time, interval int, days map[time.Weekday]struct{}) (time.Time, bool) {
	if len(days) == 0 {
		return time.Time{}, false
	}

	anchor := weekAnchor(start)
	local := now.In(start.Location())
	day := time.Date(local.Year(), local.Month(), local.Day(),
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())

	horizon := weeklyHorizonPeriods * 7 * interval
	for i := 0; i <= horizon; i++ {
		candidate := day.AddDate(0, 0, i)
		if !candidate.After(now) || candidate.Before(start) {
			continue
		}
		if _, ok := days[candidate.Weekday()]; !ok {
			continue
		}
		if activeWeek(anchor, candidate, interval) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func weekdayOccurrences(out []time.Time, start, end time.Time, interval int, days map[time.Weekday]struct{}, maxOccurrences int) []time.Time {
	if len(days) == 0 {
		return out
	}

	anchor := weekAnchor(start)
	// Every active week holds len(days) matches, so this many days always
	// covers maxOccurrences entries.
	limit := (maxOccurrences/len(days) + 2) * 7 * interval

	for i := 0; i <= limit && len(out) < maxOccurrences; i++ {
		current := start.AddDate(0, 0, i)
		if current.After(end) {
			break
		}
		if _, ok := days[current.Weekday()]; !ok {
			continue
		}
		if activeWeek(anchor, current, interval) {
			out = append(out, current)
		}
	}
	return out
}

// Describe renders spec for people, e.g. "Every 2 weeks on Monday, Wednesday
// until April 1, 2026".
func Describe(spec Spec) string {
	p := spec.Pattern.normalize()
	if !p.Valid() {
		return "Does not repeat"
	}

	var unit, single string
	switch p {
	case Daily:
		unit, single = "day", "Daily"
	case Weekly:
		unit, single = "week", "Weekly"
	default:
		unit, single = "month", "Monthly"
	}

	var b strings.Builder
	if interval := spec.interval(); interval == 1 {
		b.WriteString(single)
	} else {
		fmt.Fprintf(&b, "Every %d %ss", interval, unit)
	}

	if len(spec.DaysOfWeek) > 0 {
		names := make([]string, 0, len(spec.DaysOfWeek))
		for _, d := range spec.DaysOfWeek {
			if d >= 0 && d <= 6 {
				names = append(names, time.Weekday(d).String())
			}
		}
		if len(names) > 0 {
			b.WriteString(" on ")
			b.WriteString(strings.Join(names, ", "))
		}
	}

	if spec.EndDate != nil {
		b.WriteString(" until ")
		b.WriteString(spec.EndDate.Format("January 2, 2006"))
	}

	return b.String()
}
