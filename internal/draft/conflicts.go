package draft

import (
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/intake"
)

// DefaultConflictWindow is how close two bookings may be before it is a clash.
const DefaultConflictWindow = 60 * time.Minute

// DuplicateWarning is emitted when an existing job looks like the same work for the same client.
const DuplicateWarning = "A similar job may already exist for this client"

const stemLength = 5

// Detector finds time clashes and likely duplicates.
type Detector struct {
	window time.Duration
}

// NewDetector returns a Detector. A non-positive window uses DefaultConflictWindow.
func NewDetector(window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultConflictWindow
	}
	return &Detector{window: window}
}

// Window returns the clash window.
func (d *Detector) Window() time.Duration {
	return d.window
}

// Detect returns the warnings for dr against existing jobs. It never mutates dr.
func (d *Detector) Detect(dr Draft, existing []crm.ScheduledJob) []string {
	var warnings []string
	if w := d.timeClash(dr, existing); w != "" {
		warnings = append(warnings, w)
	}
	if d.looksDuplicate(dr, existing) {
		warnings = append(warnings, DuplicateWarning)
	}
	return warnings
}

func (d *Detector) timeClash(dr Draft, existing []crm.ScheduledJob) string {
	if dr.ScheduledAt == nil || !dr.ScheduleHasTime {
		return ""
	}
	at := *dr.ScheduledAt

	var before, after *crm.ScheduledJob
	for i := range existing {
		job := &existing[i]
		delta := job.ScheduledAt.Sub(at)
		if delta.Abs() >= d.window {
			continue
		}
		if delta < 0 {
			if before == nil || job.ScheduledAt.After(before.ScheduledAt) {
				before = job
			}
			continue
		}
		if after == nil || job.ScheduledAt.Before(after.ScheduledAt) {
			after = job
		}
	}

	switch {
	case before != nil && after != nil:
		return fmt.Sprintf("You have %s beforehand and %s after. Check if that's too tight.",
			describeJob(before, at.Location()), describeJob(after, at.Location()))
	case before != nil:
		return fmt.Sprintf("You have %s beforehand. Check if that's too tight.", describeJob(before, at.Location()))
	case after != nil:
		return fmt.Sprintf("You have %s after. Check if that's too tight.", describeJob(after, at.Location()))
	}
	return ""
}

func describeJob(job *crm.ScheduledJob, loc *time.Location) string {
	when := job.ScheduledAt.In(loc).Format("3:04 PM")
	if job.ContactName == "" {
		return fmt.Sprintf("%q at %s", job.Title, when)
	}
	return fmt.Sprintf("%q for %s at %s", job.Title, job.ContactName, when)
}

// looksDuplicate is deliberately coarse: first name contained in the contact
// name, plus any topical overlap between the titles.
func (d *Detector) looksDuplicate(dr Draft, existing []crm.ScheduledJob) bool {
	first := strings.ToLower(strings.TrimSpace(dr.FirstName))
	if first == "" || first == "unknown" {
		return false
	}
	for _, job := range existing {
		if !strings.Contains(strings.ToLower(job.ContactName), first) {
			continue
		}
		if topicalOverlap(dr.WorkDescription, job.Title) {
			return true
		}
	}
	return false
}

func topicalOverlap(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, kw := range intake.CategoryKeywords() {
		if strings.Contains(la, kw) && strings.Contains(lb, kw) {
			return true
		}
	}
	stems := make(map[string]bool)
	for _, w := range strings.Fields(la) {
		if len(w) >= stemLength {
			stems[w[:stemLength]] = true
		}
	}
	for _, w := range strings.Fields(lb) {
		if len(w) >= stemLength && stems[w[:stemLength]] {
			return true
		}
	}
	return false
}
