package crmtools

import (
	"context"
	"fmt"
	"strings"
	"time"

	agentcontext "github.com/aatumaykin/tradiecrm/internal/agent/context"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

const (
	defaultScheduleDays  = 7
	defaultHistoryLimit  = 5
	maxHistoryLimit      = 25
	defaultWorkingHours  = "08:00"
	defaultWorkingFinish = "17:00"
)

type scheduledJob struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ClientName  string `json:"clientName"`
	ScheduledAt string `json:"scheduledAt"`
}

type scheduleArgs struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func (ts *toolset) getSchedule() tools.Tool {
	return tools.New("get_schedule",
		"Fetch jobs for a date range. Use for schedule questions and to check conflicts before new jobs. "+
			"Defaults to the next 7 days.",
		tools.Object(map[string]any{
			"startDate": tools.String("Range start (YYYY-MM-DD or ISO string)"),
			"endDate":   tools.String("Range end, inclusive (YYYY-MM-DD or ISO string)"),
		}),
		func(ctx context.Context, a scheduleArgs) (string, error) {
			now := ts.now()
			from, err := dayOrDefault(a.StartDate, now, now)
			if err != nil {
				return "", err
			}
			to := from.AddDate(0, 0, defaultScheduleDays)
			if strings.TrimSpace(a.EndDate) != "" {
				end, err := parseDay(a.EndDate, now)
				if err != nil {
					return "", err
				}
				to = end.AddDate(0, 0, 1)
			}
			if !to.After(from) {
				return "", tools.NewValidationError("invalid_range", "endDate must not be before startDate", nil)
			}

			jobs, err := ts.deps.Backend.ScheduledJobs(ctx, ts.b.WorkspaceID, from, to)
			if err != nil {
				return "", fmt.Errorf("scheduled jobs: %w", err)
			}
			out := make([]scheduledJob, 0, len(jobs))
			for _, j := range jobs {
				out = append(out, scheduledJob{
					ID:          j.ID,
					Title:       j.Title,
					ClientName:  orUnknown(j.ContactName),
					ScheduledAt: formatWhen(j.ScheduledAt, ts.loc()),
				})
			}
			return toJSON(map[string]any{
				"from":  from.Format(time.DateOnly),
				"to":    to.AddDate(0, 0, -1).Format(time.DateOnly),
				"jobs":  out,
				"count": len(out),
			})
		})
}

type availabilityArgs struct {
	Date string `json:"date"`
}

type availability struct {
	Date           string         `json:"date"`
	WorkingHours   string         `json:"workingHours"`
	ScheduledJobs  []scheduledJob `json:"scheduledJobs"`
	AvailableSlots []string       `json:"availableSlots"`
}

func (ts *toolset) getAvailability() tools.Tool {
	return tools.New("get_availability",
		"Check available one-hour time slots on a specific date within working hours.",
		tools.Object(map[string]any{
			"date": tools.String("Target date (YYYY-MM-DD, ISO string or e.g. tomorrow)"),
		}, "date"),
		func(ctx context.Context, a availabilityArgs) (string, error) {
			now := ts.now()
			day, err := parseDay(a.Date, now)
			if err != nil {
				return "", err
			}
			hours := ts.b.WorkingHours
			if hours.Start == "" || hours.End == "" {
				hours = agentcontext.Window{Start: defaultWorkingHours, End: defaultWorkingFinish}
			}
			start, end, err := hours.On(day)
			if err != nil {
				return "", fmt.Errorf("working hours: %w", err)
			}

			jobs, err := ts.deps.Backend.ScheduledJobs(ctx, ts.b.WorkspaceID, day, day.AddDate(0, 0, 1))
			if err != nil {
				return "", fmt.Errorf("scheduled jobs: %w", err)
			}

			res := availability{
				Date:           day.Format("Mon 2 Jan 2006"),
				WorkingHours:   hours.Start + "-" + hours.End,
				ScheduledJobs:  make([]scheduledJob, 0, len(jobs)),
				AvailableSlots: []string{},
			}
			booked := make(map[int]bool, len(jobs))
			for _, j := range jobs {
				local := j.ScheduledAt.In(day.Location())
				booked[local.Hour()] = true
				res.ScheduledJobs = append(res.ScheduledJobs, scheduledJob{
					ID:          j.ID,
					Title:       j.Title,
					ClientName:  orUnknown(j.ContactName),
					ScheduledAt: local.Format("3:04 PM"),
				})
			}
			for slot := start; !slot.Add(time.Hour).After(end); slot = slot.Add(time.Hour) {
				if booked[slot.Hour()] {
					continue
				}
				res.AvailableSlots = append(res.AvailableSlots, slot.Format("15:04")+" - "+slot.Add(time.Hour).Format("15:04"))
			}
			return toJSON(res)
		})
}

type historyArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (ts *toolset) searchJobHistory() tools.Tool {
	return tools.New("search_job_history",
		"Search past and current jobs by keyword (client name, address, description).",
		tools.Object(map[string]any{
			"query": tools.String("Search keywords"),
			"limit": tools.Integer("Max results (default 5)"),
		}, "query"),
		func(ctx context.Context, a historyArgs) (string, error) {
			if err := required("query", a.Query); err != nil {
				return "", err
			}
			limit := a.Limit
			if limit <= 0 {
				limit = defaultHistoryLimit
			}
			limit = min(limit, maxHistoryLimit)

			deals, err := ts.deps.Backend.SearchJobs(ctx, ts.b.WorkspaceID, strings.TrimSpace(a.Query), limit)
			if err != nil {
				return "", fmt.Errorf("search jobs: %w", err)
			}
			out := make([]dealSummary, 0, len(deals))
			for _, d := range deals {
				out = append(out, ts.summarise(d))
			}
			return toJSON(map[string]any{"jobs": out, "count": len(out)})
		})
}

func dayOrDefault(raw string, now, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		y, m, d := fallback.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}
	return parseDay(raw, now)
}

func orUnknown(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
