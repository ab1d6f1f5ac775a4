package intake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Saturday 14 Feb 2026, 09:30 AEDT.
var fixedNow = time.Date(2026, 2, 14, 9, 30, 0, 0, time.FixedZone("AEDT", 11*60*60))

func TestResolveSchedule_TomorrowAfternoon(t *testing.T) {
	s, ok := ResolveSchedule("2pm tomorrow", fixedNow)
	require.True(t, ok)

	assert.Equal(t, "2026-02-15T14:00:00+11:00", s.ISO)
	assert.Contains(t, s.Display, "2:00 PM")
	assert.Equal(t, "2:00 PM, Sun 15 Feb 2026", s.Display)
	assert.True(t, s.HasTime)
}

func TestResolveSchedule(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Time
		hasTime bool
	}{
		{"today 9am", time.Date(2026, 2, 14, 9, 0, 0, 0, fixedNow.Location()), true},
		{"tmrw 10:30am", time.Date(2026, 2, 15, 10, 30, 0, 0, fixedNow.Location()), true},
		{"mon 8 am", time.Date(2026, 2, 16, 8, 0, 0, 0, fixedNow.Location()), true},
		{"14:30 tue", time.Date(2026, 2, 17, 14, 30, 0, 0, fixedNow.Location()), true},
		{"sat 12pm", time.Date(2026, 2, 21, 12, 0, 0, 0, fixedNow.Location()), true},
		{"12am today", time.Date(2026, 2, 14, 0, 0, 0, 0, fixedNow.Location()), true},
		{"3pm", time.Date(2026, 2, 14, 15, 0, 0, 0, fixedNow.Location()), true},
		{"friday", time.Date(2026, 2, 20, 0, 0, 0, 0, fixedNow.Location()), false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, ok := ResolveSchedule(tt.raw, fixedNow)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(s.At), "got %s", s.At)
			assert.Equal(t, tt.hasTime, s.HasTime)
		})
	}
}

func TestResolveSchedule_DateOnlyDisplay(t *testing.T) {
	s, ok := ResolveSchedule("friday", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "Fri 20 Feb 2026", s.Display)
}

func TestResolveSchedule_WeekdayAlwaysInFuture(t *testing.T) {
	for _, day := range []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"} {
		s, ok := ResolveSchedule(day, fixedNow)
		require.True(t, ok, day)
		assert.True(t, s.At.After(fixedNow), "%s resolved to %s", day, s.At)
		assert.True(t, s.At.Before(fixedNow.AddDate(0, 0, 8)), "%s resolved to %s", day, s.At)
	}
}

func TestResolveSchedule_Unresolvable(t *testing.T) {
	for _, raw := range []string{"", "whenever suits", "13pm", "25:00"} {
		_, ok := ResolveSchedule(raw, fixedNow)
		assert.False(t, ok, "%q should not resolve", raw)
	}
}
