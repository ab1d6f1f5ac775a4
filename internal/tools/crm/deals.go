package crmtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

type dealSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ClientName  string    `json:"clientName"`
	Stage       crm.Stage `json:"stage"`
	Value       float64   `json:"value"`
	Address     string    `json:"address,omitempty"`
	ScheduledAt string    `json:"scheduledAt,omitempty"`
}

func (ts *toolset) summarise(d crm.Deal) dealSummary {
	s := dealSummary{
		ID:         d.ID,
		Title:      d.Title,
		ClientName: orUnknown(d.ContactName),
		Stage:      d.Stage,
		Value:      d.Value,
		Address:    d.Address,
	}
	if d.ScheduledAt != nil {
		s.ScheduledAt = formatWhen(*d.ScheduledAt, ts.loc())
	}
	return s
}

type listDealsArgs struct {
	Stage string `json:"stage"`
}

func (ts *toolset) listDeals() tools.Tool {
	return tools.New("list_deals",
		"List all jobs in the pipeline (id, title, stage, value). Optionally filter by stage.",
		tools.Object(map[string]any{
			"stage": tools.String("Only list jobs in this stage"),
		}),
		func(ctx context.Context, a listDealsArgs) (string, error) {
			var filter crm.Stage
			if strings.TrimSpace(a.Stage) != "" {
				st, ok := crm.ParseStage(a.Stage)
				if !ok {
					return "", unknownStage(a.Stage)
				}
				filter = st
			}

			deals, err := ts.deps.Backend.ListDeals(ctx, ts.b.WorkspaceID)
			if err != nil {
				return "", fmt.Errorf("list deals: %w", err)
			}
			out := make([]dealSummary, 0, len(deals))
			for _, d := range deals {
				if filter != "" && d.Stage != filter {
					continue
				}
				out = append(out, ts.summarise(d))
			}
			return toJSON(map[string]any{"deals": out, "count": len(out)})
		})
}

type moveDealArgs struct {
	DealTitle string `json:"dealTitle"`
	NewStage  string `json:"newStage"`
}

func (ts *toolset) moveDeal() tools.Tool {
	return tools.New("move_deal",
		"Move a job to a different stage (completed, quoted, scheduled, in progress, new request, pipeline, ready to invoice, deleted).",
		tools.Object(map[string]any{
			"dealTitle": tools.String("Name/title of the deal or job to move"),
			"newStage":  tools.String("Target stage name"),
		}, "dealTitle", "newStage"),
		func(ctx context.Context, a moveDealArgs) (string, error) {
			stage, ok := crm.ParseStage(a.NewStage)
			if !ok {
				return "", unknownStage(a.NewStage)
			}
			d, err := ts.findDeal(ctx, a.DealTitle)
			if err != nil {
				return "", err
			}
			if d.Stage == stage {
				return fmt.Sprintf("%q is already in %s.", d.Title, stage), nil
			}
			if err := ts.deps.Backend.UpdateStage(ctx, ts.b.WorkspaceID, d.ID, stage); err != nil {
				return "", fmt.Errorf("move deal: %w", err)
			}
			return fmt.Sprintf("Moved %q from %s to %s.", d.Title, d.Stage, stage), nil
		})
}

func unknownStage(s string) error {
	return tools.NewValidationError("unknown_stage",
		fmt.Sprintf("unknown stage %q", s),
		map[string]any{"stages": "new request, quoted, scheduled, in progress, pipeline, ready to invoice, completed, lost, deleted"})
}

type createDealArgs struct {
	Title   string  `json:"title"`
	Company string  `json:"company"`
	Value   float64 `json:"value"`
	Stage   string  `json:"stage"`
}

func (ts *toolset) createDeal() tools.Tool {
	return tools.New("create_deal",
		"Create a new deal/job in the pipeline without a schedule. For bookings use show_job_draft.",
		tools.Object(map[string]any{
			"title":   tools.String("Deal or job title"),
			"company": tools.String("Client or company name"),
			"value":   tools.Number("Deal value in dollars"),
			"stage":   tools.String("Initial stage, defaults to new request"),
		}, "title"),
		func(ctx context.Context, a createDealArgs) (string, error) {
			if err := required("title", a.Title); err != nil {
				return "", err
			}
			if a.Value < 0 {
				return "", tools.NewValidationError("invalid_value", "value cannot be negative", nil)
			}
			deal := crm.Deal{WorkspaceID: ts.b.WorkspaceID, Title: strings.TrimSpace(a.Title), Value: a.Value}
			if a.Stage != "" {
				st, ok := crm.ParseStage(a.Stage)
				if !ok {
					return "", unknownStage(a.Stage)
				}
				deal.Stage = st
			}
			if strings.TrimSpace(a.Company) != "" {
				c, err := ts.contactFor(ctx, a.Company)
				if err != nil {
					return "", err
				}
				deal.ContactID = c.ID
			}

			created, err := ts.deps.Backend.CreateDeal(ctx, deal)
			if err != nil {
				return "", fmt.Errorf("create deal: %w", err)
			}
			return toJSON(map[string]any{"created": ts.summarise(*created)})
		})
}

// contactFor finds the named contact or creates it.
func (ts *toolset) contactFor(ctx context.Context, name string) (*crm.Contact, error) {
	c, err := ts.findContact(ctx, name)
	if err == nil {
		return c, nil
	}
	if tools.KindOf(err) != tools.KindNotFound {
		return nil, err
	}
	c, err = ts.deps.Backend.CreateContact(ctx, crm.Contact{WorkspaceID: ts.b.WorkspaceID, Name: name})
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

type invoiceArgs struct {
	DealTitle string  `json:"dealTitle"`
	Amount    float64 `json:"amount"`
}

func (ts *toolset) updateInvoiceAmount() tools.Tool {
	return tools.New("update_invoice_amount",
		"Update the final invoiced amount for a job.",
		tools.Object(map[string]any{
			"dealTitle": tools.String("Job/deal title to invoice"),
			"amount":    tools.Number("Final invoiced amount"),
		}, "dealTitle", "amount"),
		func(ctx context.Context, a invoiceArgs) (string, error) {
			if a.Amount <= 0 {
				return "", tools.NewValidationError("invalid_amount", "amount must be greater than zero", nil)
			}
			d, err := ts.findDeal(ctx, a.DealTitle)
			if err != nil {
				return "", err
			}
			if err := ts.deps.Backend.UpdateInvoiceAmount(ctx, ts.b.WorkspaceID, d.ID, a.Amount); err != nil {
				return "", fmt.Errorf("update invoice amount: %w", err)
			}
			return fmt.Sprintf("Invoice for %q set to $%.2f.", d.Title, a.Amount), nil
		})
}

type flagArgs struct {
	DealTitle string `json:"dealTitle"`
	Flag      string `json:"flag"`
}

func (ts *toolset) addAgentFlag() tools.Tool {
	return tools.New("add_agent_flag",
		"Add a private triage flag to a deal for owner review. Use for concerns that don't match No-Go rules.",
		tools.Object(map[string]any{
			"dealTitle": tools.String("Deal title to flag"),
			"flag":      tools.String("Short warning note"),
		}, "dealTitle", "flag"),
		func(ctx context.Context, a flagArgs) (string, error) {
			if err := required("flag", a.Flag); err != nil {
				return "", err
			}
			d, err := ts.findDeal(ctx, a.DealTitle)
			if err != nil {
				return "", err
			}
			if err := ts.deps.Backend.AddFlag(ctx, ts.b.WorkspaceID, d.ID, a.Flag); err != nil {
				return "", fmt.Errorf("add flag: %w", err)
			}
			return fmt.Sprintf("Flagged %q for review: %s", d.Title, strings.TrimSpace(a.Flag)), nil
		})
}
