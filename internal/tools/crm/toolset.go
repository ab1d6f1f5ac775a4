// Package crmtools binds the CRM operations the agent may perform to one
// workspace and one conversation. A toolset is built per request.
package crmtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	agentcontext "github.com/aatumaykin/tradiecrm/internal/agent/context"
	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

// Backend is every collaborator the tools call.
type Backend interface {
	crm.Deals
	crm.Jobs
	crm.Contacts
	crm.Activities
	crm.Support
	crm.Preferences
	crm.Messenger
}

// Binding is the request scope every tool runs in.
type Binding struct {
	WorkspaceID    string
	UserID         string
	ConversationID string
	Settings       crm.Settings
	IsManager      bool
	WorkingHours   agentcontext.Window
	TextWindow     agentcontext.Window
}

// BindingFor derives a binding from an assembled agent context.
func BindingFor(ac *agentcontext.AgentContext, conversationID string) Binding {
	return Binding{
		WorkspaceID:    ac.WorkspaceID,
		UserID:         ac.UserID,
		ConversationID: conversationID,
		Settings:       ac.Settings,
		IsManager:      ac.IsManager,
		WorkingHours:   ac.WorkingHours,
		TextWindow:     ac.TextWindow,
	}
}

// Deps are the shared services behind a toolset.
type Deps struct {
	Backend Backend
	Session *session.Session
	Drafts  *Drafter
	// Now returns the current time in the workspace's location.
	Now    func() time.Time
	Logger *logger.Logger
}

type toolset struct {
	b    Binding
	deps Deps
}

// NewToolset returns a registry holding every CRM tool bound to b.
func NewToolset(b Binding, deps Deps) *tools.Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	ts := &toolset{b: b, deps: deps}

	r := tools.NewRegistry()
	r.MustRegister(
		ts.listDeals(),
		ts.moveDeal(),
		ts.createDeal(),
		ts.showJobDraft(),
		ts.createJob(),
		ts.getSchedule(),
		ts.getAvailability(),
		ts.searchJobHistory(),
		ts.searchContacts(),
		ts.createContact(),
		ts.sendSMS(),
		ts.sendEmail(),
		ts.logActivity(),
		ts.createTask(),
		ts.contactSupport(),
		ts.appendTicketNote(),
		ts.addAgentFlag(),
		ts.updateAIPreferences(),
		ts.updateInvoiceAmount(),
	)
	return r
}

func (ts *toolset) now() time.Time {
	return ts.deps.Now()
}

func (ts *toolset) loc() *time.Location {
	return ts.now().Location()
}

// findDeal resolves a deal reference and turns lookup failures into
// errors the model can act on.
func (ts *toolset) findDeal(ctx context.Context, query string) (*crm.Deal, error) {
	d, err := ts.deps.Backend.FindDeal(ctx, ts.b.WorkspaceID, query)
	switch {
	case errors.Is(err, crm.ErrNotFound):
		return nil, tools.NewNotFoundError("deal_not_found",
			fmt.Sprintf("no job matches %q", query),
			"Call list_deals or search_job_history to find the exact title")
	case errors.Is(err, crm.ErrAmbiguous):
		return nil, tools.NewValidationError("deal_ambiguous",
			fmt.Sprintf("more than one job matches %q", query),
			map[string]any{"hint": "ask the user which job they mean or use the job id"})
	case err != nil:
		return nil, fmt.Errorf("find deal: %w", err)
	}
	return d, nil
}

func (ts *toolset) findContact(ctx context.Context, name string) (*crm.Contact, error) {
	c, err := ts.deps.Backend.FindContact(ctx, ts.b.WorkspaceID, name)
	switch {
	case errors.Is(err, crm.ErrNotFound):
		return nil, tools.NewNotFoundError("contact_not_found",
			fmt.Sprintf("no contact matches %q", name),
			"Call search_contacts or create_contact first")
	case errors.Is(err, crm.ErrAmbiguous):
		return nil, tools.NewValidationError("contact_ambiguous",
			fmt.Sprintf("more than one contact matches %q", name),
			map[string]any{"hint": "ask the user for the full name"})
	case err != nil:
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return c, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return tools.NewValidationError("missing_argument", field+" is required", nil)
	}
	return nil
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

// parseDay accepts YYYY-MM-DD, RFC 3339 or a day phrase such as "tomorrow".
func parseDay(raw string, now time.Time) (time.Time, error) {
	t, err := parseWhen(raw, now)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
}

// parseWhen accepts RFC 3339, YYYY-MM-DD or a schedule phrase such as
// "friday 3pm", resolved in now's location.
func parseWhen(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(now.Location()), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", raw, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, now.Location()); err == nil {
		return t, nil
	}
	if s, ok := resolvePhrase(raw, now); ok {
		return s, nil
	}
	return time.Time{}, tools.NewValidationError("invalid_date",
		fmt.Sprintf("cannot understand the date %q", raw),
		map[string]any{"accepted": "YYYY-MM-DD, RFC 3339 or phrases like \"tomorrow 2pm\""})
}

func formatWhen(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon 2 Jan 2006 3:04 PM")
}
