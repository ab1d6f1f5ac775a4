package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

// LogActivity appends an entry to the activity feed.
func (s *Store) LogActivity(ctx context.Context, activity crm.Activity) (*crm.Activity, error) {
	if !crm.ValidActivityType(activity.Type) {
		return nil, fmt.Errorf("invalid activity type %q", activity.Type)
	}
	if strings.TrimSpace(activity.Content) == "" {
		return nil, fmt.Errorf("activity content is required")
	}
	if activity.ID == "" {
		activity.ID = newID()
	}
	activity.CreatedAt = time.Unix(s.nowUnix(), 0).UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, workspace_id, type, content, contact_id, deal_id, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		activity.ID, activity.WorkspaceID, string(activity.Type), activity.Content,
		nullIfEmpty(activity.ContactID), nullIfEmpty(activity.DealID), activity.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return &activity, nil
}

// Activities returns the newest activity entries of a workspace.
func (s *Store) Activities(ctx context.Context, workspaceID string, limit int) ([]crm.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, type, content, COALESCE(contact_id, ''), COALESCE(deal_id, ''), created_at_unix
		FROM activities WHERE workspace_id = ?
		ORDER BY created_at_unix DESC, rowid DESC
		LIMIT ?`,
		workspaceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	activities := []crm.Activity{}
	for rows.Next() {
		var (
			a         crm.Activity
			typ       string
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &typ, &a.Content, &a.ContactID, &a.DealID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = crm.ActivityType(typ)
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// CreateTask inserts a reminder.
func (s *Store) CreateTask(ctx context.Context, task crm.Task) (*crm.Task, error) {
	if strings.TrimSpace(task.Title) == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if task.DueAt.IsZero() {
		return nil, fmt.Errorf("task due date is required")
	}
	if task.ID == "" {
		task.ID = newID()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, workspace_id, title, description, due_at_unix, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID, task.WorkspaceID, task.Title, task.Description, task.DueAt.UTC().Unix(), s.nowUnix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &task, nil
}

// CreateTicket opens a support ticket.
func (s *Store) CreateTicket(ctx context.Context, ticket crm.Ticket) (*crm.Ticket, error) {
	if strings.TrimSpace(ticket.Message) == "" {
		return nil, fmt.Errorf("ticket message is required")
	}
	if ticket.ID == "" {
		ticket.ID = newID()
	}
	if ticket.Notes == nil {
		ticket.Notes = []string{}
	}
	notesJSON, err := json.Marshal(ticket.Notes)
	if err != nil {
		return nil, fmt.Errorf("encode notes: %w", err)
	}
	ticket.CreatedAt = time.Unix(s.nowUnix(), 0).UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, workspace_id, user_id, message, notes_json, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ticket.ID, ticket.WorkspaceID, ticket.UserID, ticket.Message, string(notesJSON), ticket.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	return &ticket, nil
}

// AppendTicketNote adds a follow-up note to an existing ticket.
func (s *Store) AppendTicketNote(ctx context.Context, ticketID, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return fmt.Errorf("note is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT notes_json FROM tickets WHERE id = ?`, ticketID).Scan(&raw); err != nil {
		return notFound(err, "ticket")
	}
	var notes []string
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return fmt.Errorf("decode notes: %w", err)
	}
	notes = append(notes, note)

	encoded, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET notes_json = ? WHERE id = ?`, string(encoded), ticketID); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return tx.Commit()
}

// Ticket returns a support ticket with its notes.
func (s *Store) Ticket(ctx context.Context, ticketID string) (*crm.Ticket, error) {
	var (
		t         crm.Ticket
		notesJSON string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, user_id, message, notes_json, created_at_unix FROM tickets WHERE id = ?`,
		ticketID,
	).Scan(&t.ID, &t.WorkspaceID, &t.UserID, &t.Message, &notesJSON, &createdAt)
	if err != nil {
		return nil, notFound(err, "ticket")
	}
	if err := json.Unmarshal([]byte(notesJSON), &t.Notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}
