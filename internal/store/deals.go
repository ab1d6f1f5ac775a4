package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

const dealColumns = `d.id, d.workspace_id, COALESCE(d.contact_id, ''), COALESCE(c.name, ''), d.title, d.stage,
	d.value, d.address, d.category, d.scheduled_at_unix, d.flags_json, d.invoiced, d.updated_at_unix`

const dealFrom = ` FROM deals d LEFT JOIN contacts c ON c.id = d.contact_id `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (crm.Deal, error) {
	var (
		d           crm.Deal
		stage       string
		scheduledAt sql.NullInt64
		flagsJSON   string
		updatedAt   int64
	)
	if err := row.Scan(&d.ID, &d.WorkspaceID, &d.ContactID, &d.ContactName, &d.Title, &stage,
		&d.Value, &d.Address, &d.Category, &scheduledAt, &flagsJSON, &d.Invoiced, &updatedAt); err != nil {
		return crm.Deal{}, err
	}
	d.Stage = crm.Stage(stage)
	d.ScheduledAt = timeFromNull(scheduledAt)
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if err := json.Unmarshal([]byte(flagsJSON), &d.Flags); err != nil {
		return crm.Deal{}, fmt.Errorf("decode flags: %w", err)
	}
	if len(d.Flags) == 0 {
		d.Flags = nil
	}
	return d, nil
}

func (s *Store) queryDeals(ctx context.Context, query string, args ...any) ([]crm.Deal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deals: %w", err)
	}
	defer rows.Close()

	deals := []crm.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// ListDeals returns every non-deleted deal, most recently updated first.
func (s *Store) ListDeals(ctx context.Context, workspaceID string) ([]crm.Deal, error) {
	return s.queryDeals(ctx,
		`SELECT `+dealColumns+dealFrom+`WHERE d.workspace_id = ? AND d.stage != ?
		ORDER BY d.updated_at_unix DESC, d.title`,
		workspaceID, string(crm.StageDeleted),
	)
}

// DealByID returns a single deal.
func (s *Store) DealByID(ctx context.Context, workspaceID, dealID string) (*crm.Deal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+dealFrom+`WHERE d.workspace_id = ? AND d.id = ?`,
		workspaceID, dealID,
	)
	d, err := scanDeal(row)
	if err != nil {
		return nil, notFound(err, "deal")
	}
	return &d, nil
}

// FindDeal matches a non-deleted deal by id, title or contact name.
// A single match wins. Among several matches an exact title or contact name
// match wins when it is unique; otherwise crm.ErrAmbiguous is returned.
func (s *Store) FindDeal(ctx context.Context, workspaceID, query string) (*crm.Deal, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("deal query is empty: %w", crm.ErrNotFound)
	}

	if d, err := s.DealByID(ctx, workspaceID, query); err == nil && d.Stage != crm.StageDeleted {
		return d, nil
	}

	pattern := likePattern(query)
	matches, err := s.queryDeals(ctx,
		`SELECT `+dealColumns+dealFrom+`WHERE d.workspace_id = ? AND d.stage != ?
			AND (lower(d.title) LIKE ? ESCAPE '\' OR lower(COALESCE(c.name, '')) LIKE ? ESCAPE '\')
		ORDER BY d.updated_at_unix DESC`,
		workspaceID, string(crm.StageDeleted), pattern, pattern,
	)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("deal %q: %w", query, crm.ErrNotFound)
	case 1:
		return &matches[0], nil
	}

	var exact []crm.Deal
	for _, d := range matches {
		if strings.EqualFold(d.Title, query) || strings.EqualFold(d.ContactName, query) {
			exact = append(exact, d)
		}
	}
	if len(exact) == 1 {
		return &exact[0], nil
	}
	return nil, fmt.Errorf("deal %q matches %d deals: %w", query, len(matches), crm.ErrAmbiguous)
}

// CreateDeal inserts a deal. Missing id and stage are filled in.
func (s *Store) CreateDeal(ctx context.Context, deal crm.Deal) (*crm.Deal, error) {
	if strings.TrimSpace(deal.Title) == "" {
		return nil, fmt.Errorf("deal title is required")
	}
	if deal.ID == "" {
		deal.ID = newID()
	}
	if deal.Stage == "" {
		deal.Stage = crm.StageNew
	}
	flags := deal.Flags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("encode flags: %w", err)
	}

	now := s.nowUnix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deals (id, workspace_id, contact_id, title, stage, value, address, category,
			scheduled_at_unix, flags_json, invoiced, created_at_unix, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		deal.ID, deal.WorkspaceID, nullIfEmpty(deal.ContactID), deal.Title, string(deal.Stage), deal.Value,
		deal.Address, deal.Category, unixOrNil(deal.ScheduledAt), string(flagsJSON), deal.Invoiced, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert deal: %w", err)
	}
	return s.DealByID(ctx, deal.WorkspaceID, deal.ID)
}

// UpdateStage moves a deal to another pipeline stage.
func (s *Store) UpdateStage(ctx context.Context, workspaceID, dealID string, stage crm.Stage) error {
	return s.execDealUpdate(ctx, "update stage",
		`UPDATE deals SET stage = ?, updated_at_unix = ? WHERE workspace_id = ? AND id = ?`,
		string(stage), s.nowUnix(), workspaceID, dealID)
}

// UpdateInvoiceAmount records the final invoiced amount of a deal.
func (s *Store) UpdateInvoiceAmount(ctx context.Context, workspaceID, dealID string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("invoice amount cannot be negative")
	}
	return s.execDealUpdate(ctx, "update invoice amount",
		`UPDATE deals SET invoiced = ?, updated_at_unix = ? WHERE workspace_id = ? AND id = ?`,
		amount, s.nowUnix(), workspaceID, dealID)
}

func (s *Store) execDealUpdate(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, crm.ErrNotFound)
	}
	return nil
}

// AddFlag adds a triage flag to a deal. Duplicate flags are ignored.
func (s *Store) AddFlag(ctx context.Context, workspaceID, dealID, flag string) error {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return fmt.Errorf("flag is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT flags_json FROM deals WHERE workspace_id = ? AND id = ?`,
		workspaceID, dealID).Scan(&raw)
	if err != nil {
		return notFound(err, "deal flags")
	}
	var flags []string
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return fmt.Errorf("decode flags: %w", err)
	}
	if slices.Contains(flags, flag) {
		return nil
	}
	flags = append(flags, flag)

	encoded, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE deals SET flags_json = ?, updated_at_unix = ? WHERE workspace_id = ? AND id = ?`,
		string(encoded), s.nowUnix(), workspaceID, dealID); err != nil {
		return fmt.Errorf("update flags: %w", err)
	}
	return tx.Commit()
}

// ScheduledJobs returns active deals scheduled in [from, to), earliest first.
func (s *Store) ScheduledJobs(ctx context.Context, workspaceID string, from, to time.Time) ([]crm.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.title, COALESCE(c.name, ''), d.scheduled_at_unix`+dealFrom+`
		WHERE d.workspace_id = ? AND d.scheduled_at_unix IS NOT NULL
			AND d.scheduled_at_unix >= ? AND d.scheduled_at_unix < ?
			AND d.stage NOT IN (?, ?)
		ORDER BY d.scheduled_at_unix`,
		workspaceID, from.UTC().Unix(), to.UTC().Unix(), string(crm.StageDeleted), string(crm.StageLost),
	)
	if err != nil {
		return nil, fmt.Errorf("query scheduled jobs: %w", err)
	}
	defer rows.Close()

	jobs := []crm.ScheduledJob{}
	for rows.Next() {
		var (
			job crm.ScheduledJob
			at  int64
		)
		if err := rows.Scan(&job.ID, &job.Title, &job.ContactName, &at); err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		job.ScheduledAt = time.Unix(at, 0).UTC()
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SearchJobs matches deals by title, contact name or address, newest first.
func (s *Store) SearchJobs(ctx context.Context, workspaceID, query string, limit int) ([]crm.Deal, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := likePattern(query)
	return s.queryDeals(ctx,
		`SELECT `+dealColumns+dealFrom+`WHERE d.workspace_id = ? AND d.stage != ?
			AND (lower(d.title) LIKE ? ESCAPE '\'
				OR lower(COALESCE(c.name, '')) LIKE ? ESCAPE '\'
				OR lower(d.address) LIKE ? ESCAPE '\')
		ORDER BY d.updated_at_unix DESC
		LIMIT ?`,
		workspaceID, string(crm.StageDeleted), pattern, pattern, pattern, limit,
	)
}

// CreateJob persists a confirmed job draft. The contact is matched by name
// (case-insensitive) and created when absent; missing phone, email and
// address on an existing contact are filled in.
func (s *Store) CreateJob(ctx context.Context, job crm.NewJob) (*crm.Deal, error) {
	name := strings.TrimSpace(job.ClientName)
	if name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	if strings.TrimSpace(job.Title) == "" {
		return nil, fmt.Errorf("job title is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.nowUnix()

	var contactID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM contacts WHERE workspace_id = ? AND lower(name) = lower(?) ORDER BY created_at_unix LIMIT 1`,
		job.WorkspaceID, name,
	).Scan(&contactID)
	switch {
	case err == sql.ErrNoRows:
		contactID = newID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contacts (id, workspace_id, name, email, phone, address, created_at_unix)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			contactID, job.WorkspaceID, name, job.Email, job.Phone, job.Address, now); err != nil {
			return nil, fmt.Errorf("insert contact: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("find contact: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE contacts SET
				email = CASE WHEN email = '' THEN ? ELSE email END,
				phone = CASE WHEN phone = '' THEN ? ELSE phone END,
				address = CASE WHEN address = '' THEN ? ELSE address END
			WHERE id = ?`,
			job.Email, job.Phone, job.Address, contactID); err != nil {
			return nil, fmt.Errorf("update contact: %w", err)
		}
	}

	stage := crm.StageNew
	if job.ScheduledAt != nil {
		stage = crm.StageScheduled
	}
	dealID := newID()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO deals (id, workspace_id, contact_id, title, stage, value, address, category,
			scheduled_at_unix, flags_json, invoiced, created_at_unix, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', 0, ?, ?)`,
		dealID, job.WorkspaceID, contactID, job.Title, string(stage), job.Value, job.Address, job.Category,
		unixOrNil(job.ScheduledAt), now, now); err != nil {
		return nil, fmt.Errorf("insert deal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit job: %w", err)
	}
	return s.DealByID(ctx, job.WorkspaceID, dealID)
}
