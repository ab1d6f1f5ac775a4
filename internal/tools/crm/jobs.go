package crmtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/intake"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

// Tool names the orchestrator reacts to.
const (
	ShowJobDraftTool = "show_job_draft"
	CreateJobTool    = "create_job"
)

type jobDraftArgs struct {
	ClientName      string  `json:"clientName"`
	WorkDescription string  `json:"workDescription"`
	Price           float64 `json:"price"`
	Address         string  `json:"address"`
	Schedule        string  `json:"schedule"`
	Phone           string  `json:"phone"`
	Email           string  `json:"email"`
}

// DraftResult is what show_job_draft returns to the model.
type DraftResult struct {
	DraftID      string      `json:"draftId"`
	Draft        draft.Draft `json:"draft"`
	Status       string      `json:"status"`
	Instructions string      `json:"instructions"`
}

func (ts *toolset) showJobDraft() tools.Tool {
	return tools.New(ShowJobDraftTool,
		"Show a job draft card with Confirm/Cancel buttons. Nothing is saved. "+
			"Always use this before create_job and wait for the user to confirm.",
		tools.Object(map[string]any{
			"clientName":      tools.String("Client full name"),
			"workDescription": tools.String("What work is needed"),
			"price":           tools.Number("Price in dollars"),
			"address":         tools.String("Street address"),
			"schedule":        tools.String("When, e.g. tomorrow 2pm"),
			"phone":           tools.String("Client phone number"),
			"email":           tools.String("Client email"),
		}, "clientName", "workDescription"),
		func(ctx context.Context, a jobDraftArgs) (string, error) {
			if err := required("clientName", a.ClientName); err != nil {
				return "", err
			}
			if err := required("workDescription", a.WorkDescription); err != nil {
				return "", err
			}
			if ts.deps.Session == nil || ts.deps.Drafts == nil {
				return "", fmt.Errorf("job drafts are not available in this conversation")
			}

			dr := ts.deps.Drafts.Prepare(ctx, ts.b.WorkspaceID, intake.Intent{
				ClientName:      a.ClientName,
				WorkDescription: a.WorkDescription,
				Price:           a.Price,
				Address:         a.Address,
				Schedule:        a.Schedule,
				Phone:           a.Phone,
				Email:           a.Email,
			})
			id := NewDraftID()
			ts.deps.Session.Arm(session.Pending{
				DraftID:     id,
				WorkspaceID: ts.b.WorkspaceID,
				Draft:       dr,
				ToolCallID:  tools.CallID(ctx),
			})

			return toJSON(DraftResult{
				DraftID:      id,
				Draft:        dr,
				Status:       "awaiting_confirmation",
				Instructions: "Summarise the draft and any warnings, then wait. Call create_job only after the user confirms.",
			})
		})
}

type createJobArgs struct {
	DraftID string `json:"draftId"`
}

func (ts *toolset) createJob() tools.Tool {
	return tools.New(CreateJobTool,
		"Save the job draft the user has just confirmed. Fails unless a draft was shown with show_job_draft and confirmed.",
		tools.Object(map[string]any{
			"draftId": tools.String("draftId returned by show_job_draft"),
		}),
		func(ctx context.Context, a createJobArgs) (string, error) {
			if ts.deps.Session == nil {
				return "", fmt.Errorf("job drafts are not available in this conversation")
			}
			deal, p, err := CommitDraft(ctx, ts.deps.Backend, ts.deps.Session, a.DraftID)
			switch {
			case errors.Is(err, session.ErrNotAwaitingConfirmation):
				return "", tools.NewConflictError("no_pending_draft",
					"there is no job draft awaiting confirmation",
					"Call show_job_draft first and wait for the user to confirm")
			case errors.Is(err, session.ErrNotConfirmed):
				return "", tools.NewConflictError("confirmation_required",
					"the user has not confirmed the job draft yet",
					"Ask the user to confirm the draft and do not call create_job until they reply")
			case errors.Is(err, session.ErrDraftMismatch):
				return "", tools.NewValidationError("draft_mismatch",
					fmt.Sprintf("draft %q is not the draft awaiting confirmation", a.DraftID), nil)
			case err != nil:
				return "", err
			}

			msg := fmt.Sprintf("Created job %q for %s (id %s, stage %s", deal.Title, p.Draft.ClientName, deal.ID, deal.Stage)
			if deal.ScheduledAt != nil {
				msg += ", " + formatWhen(*deal.ScheduledAt, ts.loc())
			}
			return msg + ").", nil
		})
}
