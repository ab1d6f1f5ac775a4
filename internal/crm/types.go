// Package crm holds the domain records the agent core reads and writes, and
// the collaborator interfaces through which it reaches persistence and
// outbound messaging.
package crm

import (
	"strings"
	"time"
)

// Role is a workspace member's role.
type Role string

const (
	RoleOwner      Role = "OWNER"
	RoleManager    Role = "MANAGER"
	RoleTeamMember Role = "TEAM_MEMBER"
)

// IsManager reports whether the role may manage the workspace.
func (r Role) IsManager() bool {
	return r == RoleOwner || r == RoleManager
}

// AgentMode is the agent's autonomy level.
type AgentMode string

const (
	ModeExecute  AgentMode = "EXECUTE"
	ModeOrganize AgentMode = "ORGANIZE"
	ModeFilter   AgentMode = "FILTER"
)

// Settings are the per-workspace agent settings. Empty strings mean "use the default".
type Settings struct {
	AgentMode           AgentMode `json:"agent_mode" yaml:"agent_mode"`
	WorkingHoursStart   string    `json:"working_hours_start" yaml:"working_hours_start"`
	WorkingHoursEnd     string    `json:"working_hours_end" yaml:"working_hours_end"`
	AgentBusinessName   string    `json:"agent_business_name" yaml:"agent_business_name"`
	AgentOpeningMessage string    `json:"agent_opening_message" yaml:"agent_opening_message"`
	AgentClosingMessage string    `json:"agent_closing_message" yaml:"agent_closing_message"`
	TextAllowedStart    string    `json:"text_allowed_start" yaml:"text_allowed_start"`
	TextAllowedEnd      string    `json:"text_allowed_end" yaml:"text_allowed_end"`
	CallAllowedStart    string    `json:"call_allowed_start" yaml:"call_allowed_start"`
	CallAllowedEnd      string    `json:"call_allowed_end" yaml:"call_allowed_end"`
	AIPreferences       string    `json:"ai_preferences" yaml:"ai_preferences"`
	CallOutFee          float64   `json:"call_out_fee" yaml:"call_out_fee"`
}

// Workspace is the identity of a business.
type Workspace struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	Location          string `json:"location" yaml:"location"`
	PhoneNumber       string `json:"phone_number" yaml:"phone_number"`
	ExclusionCriteria string `json:"exclusion_criteria" yaml:"exclusion_criteria"`
}

// BusinessProfile is the trade profile filled in during onboarding.
type BusinessProfile struct {
	TradeType          string  `json:"trade_type" yaml:"trade_type"`
	Website            string  `json:"website" yaml:"website"`
	BaseSuburb         string  `json:"base_suburb" yaml:"base_suburb"`
	ServiceRadiusKM    int     `json:"service_radius_km" yaml:"service_radius_km"`
	StandardWorkHours  string  `json:"standard_work_hours" yaml:"standard_work_hours"`
	EmergencyService   bool    `json:"emergency_service" yaml:"emergency_service"`
	EmergencySurcharge float64 `json:"emergency_surcharge" yaml:"emergency_surcharge"`
}

// RepairItem is an approved glossary price. Description is free text such as "$100-150".
type RepairItem struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// CompletedDeal is a won deal with the total of its first invoice (0 when none).
type CompletedDeal struct {
	Title        string
	InvoiceTotal float64
}

// KnowledgeCategory groups business knowledge rules.
type KnowledgeCategory string

const (
	KnowledgeNegativeScope KnowledgeCategory = "NEGATIVE_SCOPE"
	KnowledgeService       KnowledgeCategory = "SERVICE"
)

// KnowledgeRule is a free-text business rule with optional metadata
// (priceRange, duration for services).
type KnowledgeRule struct {
	Category    KnowledgeCategory `json:"category" yaml:"category"`
	RuleContent string            `json:"rule_content" yaml:"rule_content"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Stage is a deal's pipeline stage.
type Stage string

const (
	StageNew            Stage = "NEW"
	StageQuoted         Stage = "QUOTED"
	StageScheduled      Stage = "SCHEDULED"
	StageInProgress     Stage = "IN_PROGRESS"
	StagePipeline       Stage = "PIPELINE"
	StageReadyToInvoice Stage = "READY_TO_INVOICE"
	StageWon            Stage = "WON"
	StageLost           Stage = "LOST"
	StageDeleted        Stage = "DELETED"
)

var stageAliases = map[string]Stage{
	"new": StageNew, "new request": StageNew, "lead": StageNew,
	"quoted": StageQuoted, "quote": StageQuoted,
	"scheduled": StageScheduled, "booked": StageScheduled,
	"in progress": StageInProgress, "in_progress": StageInProgress, "started": StageInProgress,
	"pipeline": StagePipeline,
	"ready to invoice": StageReadyToInvoice, "ready_to_invoice": StageReadyToInvoice, "invoice": StageReadyToInvoice,
	"completed": StageWon, "complete": StageWon, "done": StageWon, "won": StageWon,
	"lost": StageLost,
	"deleted": StageDeleted, "delete": StageDeleted, "archived": StageDeleted,
}

// ParseStage resolves a user-facing stage name.
func ParseStage(s string) (Stage, bool) {
	st, ok := stageAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// Deal is a job in the pipeline.
type Deal struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	ContactID   string     `json:"contact_id,omitempty"`
	ContactName string     `json:"contact_name,omitempty"`
	Title       string     `json:"title"`
	Stage       Stage      `json:"stage"`
	Value       float64    `json:"value"`
	Address     string     `json:"address,omitempty"`
	Category    string     `json:"category,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Flags       []string   `json:"flags,omitempty"`
	Invoiced    float64    `json:"invoiced,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ScheduledJob is the projection of a deal the conflict detector needs.
type ScheduledJob struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ContactName string    `json:"contact_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Contact is a customer.
type Contact struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewJob is everything needed to persist a confirmed job draft.
type NewJob struct {
	WorkspaceID string
	ClientName  string
	Phone       string
	Email       string
	Address     string
	Title       string
	Category    string
	Value       float64
	ScheduledAt *time.Time
}

// ActivityType classifies a logged activity.
type ActivityType string

const (
	ActivityCall    ActivityType = "CALL"
	ActivityEmail   ActivityType = "EMAIL"
	ActivityNote    ActivityType = "NOTE"
	ActivityMeeting ActivityType = "MEETING"
	ActivityTask    ActivityType = "TASK"
)

// ValidActivityType reports whether t is a known activity type.
func ValidActivityType(t ActivityType) bool {
	switch t {
	case ActivityCall, ActivityEmail, ActivityNote, ActivityMeeting, ActivityTask:
		return true
	}
	return false
}

// Activity is an entry in a workspace's activity feed.
type Activity struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	Type        ActivityType `json:"type"`
	Content     string       `json:"content"`
	ContactID   string       `json:"contact_id,omitempty"`
	DealID      string       `json:"deal_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Task is a reminder.
type Task struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueAt       time.Time `json:"due_at"`
}

// Ticket is a support request raised by a user.
type Ticket struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	UserID      string    `json:"user_id"`
	Message     string    `json:"message"`
	Notes       []string  `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Channel is an outbound message channel.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// OutboundMessage is a message handed to a sender.
type OutboundMessage struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ContactID   string    `json:"contact_id"`
	Channel     Channel   `json:"channel"`
	To          string    `json:"to"`
	Subject     string    `json:"subject,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}
