package crmtools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

// defaultTaskHour is when a task without a due date falls due tomorrow.
const defaultTaskHour = 9

type logActivityArgs struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	DealTitle   string `json:"dealTitle"`
	ContactName string `json:"contactName"`
}

func (ts *toolset) logActivity() tools.Tool {
	return tools.New("log_activity",
		"Record a call, meeting, note, or email. Optionally link it to a job or contact.",
		tools.Object(map[string]any{
			"type":        tools.Enum("Activity type", "CALL", "EMAIL", "NOTE", "MEETING", "TASK"),
			"content":     tools.String("What happened"),
			"dealTitle":   tools.String("Related job title"),
			"contactName": tools.String("Related contact name"),
		}, "type", "content"),
		func(ctx context.Context, a logActivityArgs) (string, error) {
			typ := crm.ActivityType(strings.ToUpper(strings.TrimSpace(a.Type)))
			if !crm.ValidActivityType(typ) {
				return "", tools.NewValidationError("invalid_activity_type",
					fmt.Sprintf("unknown activity type %q", a.Type),
					map[string]any{"types": "CALL, EMAIL, NOTE, MEETING, TASK"})
			}
			if err := required("content", a.Content); err != nil {
				return "", err
			}

			act := crm.Activity{WorkspaceID: ts.b.WorkspaceID, Type: typ, Content: strings.TrimSpace(a.Content)}
			if a.DealTitle != "" {
				d, err := ts.findDeal(ctx, a.DealTitle)
				if err != nil {
					return "", err
				}
				act.DealID, act.ContactID = d.ID, d.ContactID
			}
			if a.ContactName != "" {
				c, err := ts.findContact(ctx, a.ContactName)
				if err != nil {
					return "", err
				}
				act.ContactID = c.ID
			}

			logged, err := ts.deps.Backend.LogActivity(ctx, act)
			if err != nil {
				return "", fmt.Errorf("log activity: %w", err)
			}
			return fmt.Sprintf("Logged %s (id %s).", strings.ToLower(string(logged.Type)), logged.ID), nil
		})
}

type createTaskArgs struct {
	Title       string `json:"title"`
	DueAtISO    string `json:"dueAtISO"`
	Description string `json:"description"`
}

func (ts *toolset) createTask() tools.Tool {
	return tools.New("create_task",
		"Create a reminder or to-do task.",
		tools.Object(map[string]any{
			"title":       tools.String("Task title"),
			"dueAtISO":    tools.String("Due date (ISO string or e.g. friday 3pm). Default: tomorrow 9am."),
			"description": tools.String("Extra details"),
		}, "title"),
		func(ctx context.Context, a createTaskArgs) (string, error) {
			if err := required("title", a.Title); err != nil {
				return "", err
			}
			now := ts.now()
			y, m, d := now.Date()
			due := time.Date(y, m, d+1, defaultTaskHour, 0, 0, 0, now.Location())
			if strings.TrimSpace(a.DueAtISO) != "" {
				t, err := parseWhen(a.DueAtISO, now)
				if err != nil {
					return "", err
				}
				due = t
			}

			task, err := ts.deps.Backend.CreateTask(ctx, crm.Task{
				WorkspaceID: ts.b.WorkspaceID,
				Title:       strings.TrimSpace(a.Title),
				Description: strings.TrimSpace(a.Description),
				DueAt:       due,
			})
			if err != nil {
				return "", fmt.Errorf("create task: %w", err)
			}
			return fmt.Sprintf("Task %q created, due %s.", task.Title, formatWhen(task.DueAt, ts.loc())), nil
		})
}

type supportArgs struct {
	Message string `json:"message"`
}

func (ts *toolset) contactSupport() tools.Tool {
	return tools.New("contact_support",
		"Create a support ticket for user issues or help requests.",
		tools.Object(map[string]any{
			"message": tools.String("Support request description"),
		}, "message"),
		func(ctx context.Context, a supportArgs) (string, error) {
			if err := required("message", a.Message); err != nil {
				return "", err
			}
			if ts.b.UserID == "" {
				return "", tools.NewPermissionError("unknown_user",
					"Unable to identify user for support request.", nil)
			}
			t, err := ts.deps.Backend.CreateTicket(ctx, crm.Ticket{
				WorkspaceID: ts.b.WorkspaceID,
				UserID:      ts.b.UserID,
				Message:     strings.TrimSpace(a.Message),
			})
			if err != nil {
				return "", fmt.Errorf("create ticket: %w", err)
			}
			return fmt.Sprintf("Support ticket %s created. The team will follow up.", t.ID), nil
		})
}

type ticketNoteArgs struct {
	TicketID    string `json:"ticketId"`
	NoteContent string `json:"noteContent"`
}

func (ts *toolset) appendTicketNote() tools.Tool {
	return tools.New("append_ticket_note",
		"Append details to an existing support ticket.",
		tools.Object(map[string]any{
			"ticketId":    tools.String("Support ticket ID"),
			"noteContent": tools.String("Details to append"),
		}, "ticketId", "noteContent"),
		func(ctx context.Context, a ticketNoteArgs) (string, error) {
			if err := required("ticketId", a.TicketID); err != nil {
				return "", err
			}
			if err := required("noteContent", a.NoteContent); err != nil {
				return "", err
			}
			if err := ts.deps.Backend.AppendTicketNote(ctx, strings.TrimSpace(a.TicketID), a.NoteContent); err != nil {
				return "", fmt.Errorf("append ticket note: %w", err)
			}
			return fmt.Sprintf("Note added to ticket %s.", a.TicketID), nil
		})
}

type preferenceArgs struct {
	Rule string `json:"rule"`
}

func (ts *toolset) updateAIPreferences() tools.Tool {
	return tools.New("update_ai_preferences",
		"Save a permanent behavioral rule. Prefix [HARD_CONSTRAINT] to strictly decline or [FLAG_ONLY] to just flag.",
		tools.Object(map[string]any{
			"rule": tools.String("The rule to save. Prefix with [HARD_CONSTRAINT] or [FLAG_ONLY]."),
		}, "rule"),
		func(ctx context.Context, a preferenceArgs) (string, error) {
			if err := required("rule", a.Rule); err != nil {
				return "", err
			}
			if !ts.b.IsManager {
				return "", tools.NewPermissionError("manager_only",
					"only owners and managers can change agent preferences", nil)
			}
			rule := strings.TrimSpace(a.Rule)
			if err := ts.deps.Backend.AppendAIPreference(ctx, ts.b.WorkspaceID, rule); err != nil {
				return "", fmt.Errorf("append preference: %w", err)
			}
			return fmt.Sprintf("Saved rule: %s", rule), nil
		})
}
