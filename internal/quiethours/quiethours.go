// Package quiethours decides whether outbound callbacks are suppressed
// at a given instant for a user's local quiet-hours window.
package quiethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/conductor/internal/model"
)

const minutesPerDay = 24 * 60

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("quiethours: invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("quiethours: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("quiethours: invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Validate checks that an enabled window has parseable bounds.
func Validate(q model.QuietHours) error {
	if !q.Enabled {
		return nil
	}
	if _, err := ParseClock(q.Start); err != nil {
		return err
	}
	if _, err := ParseClock(q.End); err != nil {
		return err
	}
	if q.TimezoneOffsetMinutes < -14*60 || q.TimezoneOffsetMinutes > 14*60 {
		return fmt.Errorf("quiethours: timezone offset %d out of range", q.TimezoneOffsetMinutes)
	}
	return nil
}

// Suppressed reports whether now falls inside the [start, end) window in
// the user's local time. A window whose start is after its end wraps
// through midnight. Disabled or unparseable windows never suppress.
func Suppressed(q model.QuietHours, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := ParseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(q.End)
	if err != nil {
		return false
	}

	local := now.UTC().Add(time.Duration(q.TimezoneOffsetMinutes) * time.Minute)
	cur := local.Hour()*60 + local.Minute()

	switch {
	case start == end:
		return false
	case start < end:
		return cur >= start && cur < end
	default:
		return cur >= start || cur < end
	}
}

// Default returns an enabled window from configured "HH:MM" bounds, used
// when a user has not set quiet hours.
func Default(start, end string) model.QuietHours {
	return model.QuietHours{Enabled: true, Start: start, End: end}
}

// MinutesUntilEnd returns how long suppression lasts from now, or 0 when
// now is outside the window.
func MinutesUntilEnd(q model.QuietHours, now time.Time) int {
	if !Suppressed(q, now) {
		return 0
	}
	end, _ := ParseClock(q.End)
	local := now.UTC().Add(time.Duration(q.TimezoneOffsetMinutes) * time.Minute)
	cur := local.Hour()*60 + local.Minute()
	return ((end - cur) + minutesPerDay) % minutesPerDay
}
