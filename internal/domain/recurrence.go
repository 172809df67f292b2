package domain

import (
	"strings"

	"github.com/teambition/rrule-go"
)

// Legacy shorthand patterns accepted alongside full RFC 5545 RRULE strings.
var legacyPatterns = map[string]rrule.Frequency{
	"daily":   rrule.DAILY,
	"weekly":  rrule.WEEKLY,
	"monthly": rrule.MONTHLY,
}

// ValidateRecurrencePattern checks that a recurrence pattern is either one
// of the legacy shorthands (daily, weekly, monthly) or a parseable RRULE.
func ValidateRecurrencePattern(pattern string) error {
	normalized := strings.ToLower(strings.TrimSpace(pattern))
	if _, ok := legacyPatterns[normalized]; ok {
		return nil
	}

	if _, err := rrule.StrToRRule(strings.TrimSpace(pattern)); err != nil {
		return ValidationError("invalid recurrence pattern %q: %v", pattern, err)
	}
	return nil
}

// RecurrenceRule builds the expansion rule for an event's pattern anchored
// at the given start time. Returns nil when the event has no usable pattern.
func (e Event) RecurrenceRule() (*rrule.RRule, error) {
	if !e.IsRecurring || e.RecurrencePattern == nil {
		return nil, nil
	}

	pattern := strings.TrimSpace(*e.RecurrencePattern)
	if pattern == "" {
		return nil, nil
	}

	if freq, ok := legacyPatterns[strings.ToLower(pattern)]; ok {
		return rrule.NewRRule(rrule.ROption{
			Freq:    freq,
			Dtstart: e.StartTime,
		})
	}

	rule, err := rrule.StrToRRule(pattern)
	if err != nil {
		return nil, ValidationError("invalid recurrence pattern %q: %v", pattern, err)
	}

	opts := rule.OrigOptions
	opts.Dtstart = e.StartTime
	return rrule.NewRRule(opts)
}
