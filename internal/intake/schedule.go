package intake

import (
	"strconv"
	"strings"
	"time"

	"github.com/wasilibs/go-re2"
)

const (
	scheduleDisplayLayout = "3:04 PM, Mon 2 Jan 2006"
	dateDisplayLayout     = "Mon 2 Jan 2006"
)

// Schedule is a resolved schedule phrase.
type Schedule struct {
	Display string
	ISO     string
	At      time.Time
	HasTime bool
}

var (
	meridiemGap  = re2.MustCompile(`(?i)(\d)\s+(am|pm)\b`)
	clock12Token = re2.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)$`)
	clock24Token = re2.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ResolveSchedule turns a phrase like "tomorrow 2pm" into an absolute time
// relative to now, in now's location. A phrase without a day means today; a
// weekday always resolves strictly into the future. ok is false when the
// phrase carries neither a day nor a time.
func ResolveSchedule(raw string, now time.Time) (Schedule, bool) {
	phrase := meridiemGap.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "$1$2")
	if phrase == "" {
		return Schedule{}, false
	}

	var (
		hour, minute int
		hasTime      bool
		offset       int
		hasDay       bool
	)
	for _, tok := range strings.Fields(phrase) {
		tok = strings.Trim(tok, ".,;!?")
		if !hasTime {
			if h, m, ok := parseClock(tok); ok {
				hour, minute, hasTime = h, m, true
				continue
			}
		}
		if !hasDay {
			if off, ok := dayOffset(tok, now.Weekday()); ok {
				offset, hasDay = off, true
			}
		}
	}
	if !hasTime && !hasDay {
		return Schedule{}, false
	}

	y, m, d := now.Date()
	at := time.Date(y, m, d+offset, hour, minute, 0, 0, now.Location())

	layout := dateDisplayLayout
	if hasTime {
		layout = scheduleDisplayLayout
	}
	return Schedule{
		Display: at.Format(layout),
		ISO:     at.Format(time.RFC3339),
		At:      at,
		HasTime: hasTime,
	}, true
}

func parseClock(tok string) (int, int, bool) {
	if m := clock12Token.FindStringSubmatch(tok); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || minute > 59 {
			return 0, 0, false
		}
		if h == 12 {
			h = 0
		}
		if m[3] == "pm" {
			h += 12
		}
		return h, minute, true
	}
	if m := clock24Token.FindStringSubmatch(tok); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if h > 23 || minute > 59 {
			return 0, 0, false
		}
		return h, minute, true
	}
	return 0, 0, false
}

func dayOffset(tok string, today time.Weekday) (int, bool) {
	switch tok {
	case "today":
		return 0, true
	case "tomorrow", "tmrw", "ymrw":
		return 1, true
	}
	wd, ok := weekdays[tok]
	if !ok {
		return 0, false
	}
	off := int(wd) - int(today)
	if off <= 0 {
		off += 7
	}
	return off, true
}
