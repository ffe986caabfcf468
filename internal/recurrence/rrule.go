package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ParseRule parses provider rule text with an RFC 5545 parser and anchors it
// at dtstart. It rejects text the provider would not accept.
func ParseRule(text string, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(text, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse recurrence rule %q: %w", text, err)
	}
	opt.Dtstart = dtstart

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build recurrence rule %q: %w", text, err)
	}
	return r, nil
}
