package crmtools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/intake"
	"github.com/aatumaykin/tradiecrm/internal/logger"
)

const (
	// lookBehind and lookAhead bound the existing jobs a draft is checked against.
	lookBehind = 24 * time.Hour
	lookAhead  = 14 * 24 * time.Hour
)

// Drafter builds job drafts and annotates them with schedule warnings.
type Drafter struct {
	deals    crm.Deals
	builder  *draft.Builder
	detector *draft.Detector
	now      func() time.Time
	logger   *logger.Logger
}

// NewDrafter creates a Drafter. now supplies the workspace-local time used
// for relative schedules.
func NewDrafter(deals crm.Deals, detector *draft.Detector, now func() time.Time, log *logger.Logger) *Drafter {
	if now == nil {
		now = time.Now
	}
	if detector == nil {
		detector = draft.NewDetector(0)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Drafter{
		deals:    deals,
		builder:  draft.NewBuilder(now),
		detector: detector,
		now:      now,
		logger:   log,
	}
}

// Prepare builds the draft for in and attaches clash and duplicate warnings.
// A failed schedule lookup leaves the draft without warnings.
func (d *Drafter) Prepare(ctx context.Context, workspaceID string, in intake.Intent) draft.Draft {
	dr := d.builder.Build(in)

	ref := d.now()
	if dr.ScheduledAt != nil {
		ref = *dr.ScheduledAt
	}
	existing, err := d.deals.ScheduledJobs(ctx, workspaceID, ref.Add(-lookBehind), ref.Add(lookAhead))
	if err != nil {
		d.logger.WarnCtx(ctx, "schedule lookup for draft failed",
			logger.Field{Key: "workspace_id", Value: workspaceID},
			logger.Field{Key: "error", Value: err.Error()})
		return dr
	}
	if w := d.detector.Detect(dr, existing); len(w) > 0 {
		dr.Warnings = append(dr.Warnings, w...)
	}
	return dr
}

// NewDraftID returns a fresh draft identifier.
func NewDraftID() string {
	return "draft_" + uuid.NewString()
}

// JobFromDraft maps a confirmed draft to a persistable job.
func JobFromDraft(workspaceID string, d draft.Draft) crm.NewJob {
	return crm.NewJob{
		WorkspaceID: workspaceID,
		ClientName:  d.ClientName,
		Phone:       d.Phone,
		Email:       d.Email,
		Address:     d.Address,
		Title:       d.WorkDescription,
		Category:    string(d.WorkCategory),
		Value:       d.PriceValue(),
		ScheduledAt: d.ScheduledAt,
	}
}

// CommitDraft consumes the confirmed draft held by s and persists it. When
// persistence fails the draft is put back, still confirmed, so the user can
// retry.
func CommitDraft(ctx context.Context, jobs crm.Jobs, s *session.Session, draftID string) (*crm.Deal, session.Pending, error) {
	p, err := s.Consume(draftID)
	if err != nil {
		return nil, session.Pending{}, err
	}
	deal, err := jobs.CreateJob(ctx, JobFromDraft(p.WorkspaceID, p.Draft))
	if err != nil {
		s.Arm(p)
		if _, cerr := s.Confirm(p.DraftID); cerr != nil {
			return nil, p, errors.Join(err, cerr)
		}
		return nil, p, fmt.Errorf("create job: %w", err)
	}
	return deal, p, nil
}

func resolvePhrase(raw string, now time.Time) (time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	s, ok := intake.ResolveSchedule(raw, now)
	if !ok {
		return time.Time{}, false
	}
	return s.At, true
}
