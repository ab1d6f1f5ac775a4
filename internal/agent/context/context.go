// Package agentcontext assembles the per-workspace world state the agent
// reasons over: business identity, autonomy mode, working and contact
// hours, pricing glossary reconciled with invoice history, and lead
// qualification rules. The result is cached briefly and rendered into the
// system prompt section by section.
package agentcontext

import (
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

// AgentContext is an immutable snapshot built by the Assembler.
// Consumers must not modify it; cached instances are shared.
type AgentContext struct {
	WorkspaceID string
	UserID      string
	Role        crm.Role
	IsManager   bool
	Mode        crm.AgentMode
	Settings    crm.Settings
	Workspace   crm.Workspace

	WorkingHours Window
	TextWindow   Window
	CallWindow   Window

	NegativeScope    []string
	Glossary         []crm.RepairItem
	Historical       []HistoricalPrice
	PricingConflicts []string

	// Prompt sections. The field order is the system prompt order.
	KnowledgeBase string
	AgentMode     string
	WorkingHrs    string
	AgentScript   string
	AllowedTimes  string
	Preferences   string
	PricingRules  string
	Bouncer       string
}

// Window is a local-time HH:MM range.
type Window struct {
	Start string
	End   string
}

// On returns the window's bounds on the calendar day of day, in day's location.
func (w Window) On(day time.Time) (start, end time.Time, err error) {
	sh, sm, err := parseClock(w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := parseClock(w.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	start = time.Date(y, m, d, sh, sm, 0, 0, day.Location())
	end = time.Date(y, m, d, eh, em, 0, 0, day.Location())
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window %s-%s is empty", w.Start, w.End)
	}
	return start, end, nil
}

// Contains reports whether t falls inside the window on t's day. A window
// that cannot be parsed contains every time.
func (w Window) Contains(t time.Time) bool {
	start, end, err := w.On(t)
	if err != nil {
		return true
	}
	return !t.Before(start) && t.Before(end)
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Sections returns the prompt sections in their stable order.
func (c *AgentContext) Sections() []string {
	return []string{
		c.KnowledgeBase,
		c.AgentMode,
		c.WorkingHrs,
		c.AgentScript,
		c.AllowedTimes,
		c.Preferences,
		c.PricingRules,
		c.Bouncer,
	}
}

// SystemPrompt renders the full system prompt: the fixed preamble, every
// context section, the memory block and the operating rules.
func (c *AgentContext) SystemPrompt(memory string) string {
	var b strings.Builder
	b.WriteString(preamble(c))
	for _, s := range c.Sections() {
		b.WriteString(s)
	}
	b.WriteString(memory)
	b.WriteString(operatingRules)
	return b.String()
}

func preamble(c *AgentContext) string {
	p := `You are Travis, a concise CRM assistant for tradies. Keep responses SHORT and punchy, tradies are busy. No essays. Use "jobs" not "meetings".`
	if !c.IsManager {
		p += "\nYou are talking to a team member. Do not reveal financial totals or change pricing preferences on their behalf."
	}
	return p
}

const operatingRules = `

MESSAGING RULES (CRITICAL):
1. When the user says "message X", "text X", "tell X" or "send X a message", call send_sms straight away. Do not ask for confirmation.
2. After sending, confirm briefly with the recipient and the message in quotes.
3. Keep conversation context. "Message her" or "text him" refers to the most recently discussed person.

TOOLS: You have tools for the schedule, job history, contacts and the pipeline. If the answer is not in your immediate context, USE THE TOOLS. Do not guess.

JOB CREATION: Always call show_job_draft first with every detail you have. Only call create_job after the user confirms that exact draft.

UNCERTAINTY AND ERRORS (CRITICAL):
1. NEVER guess or make up a command.
2. Tell the user clearly what went wrong, e.g. "I can't find a job with that name".
3. Suggest a corrective action, e.g. "Did you mean the plumbing job?".`
