package crm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous is returned when a fuzzy lookup matches more than one record.
	ErrAmbiguous = errors.New("ambiguous match")
)

// ContextSource is everything the agent context assembler reads.
type ContextSource interface {
	WorkspaceSettings(ctx context.Context, workspaceID string) (*Settings, error)
	Workspace(ctx context.Context, workspaceID string) (*Workspace, error)
	BusinessProfile(ctx context.Context, workspaceID string) (*BusinessProfile, error)
	RepairItems(ctx context.Context, workspaceID string) ([]RepairItem, error)
	// CompletedDeals returns the most recently updated won deals, newest first.
	CompletedDeals(ctx context.Context, workspaceID string, limit int) ([]CompletedDeal, error)
	KnowledgeRules(ctx context.Context, workspaceID string, category KnowledgeCategory) ([]KnowledgeRule, error)
	RoleByEmail(ctx context.Context, workspaceID, email string) (Role, error)
	RoleByUserID(ctx context.Context, userID string) (Role, error)
}

// Deals reads and mutates the pipeline.
type Deals interface {
	ListDeals(ctx context.Context, workspaceID string) ([]Deal, error)
	// FindDeal fuzzy-matches a deal by title or contact name.
	FindDeal(ctx context.Context, workspaceID, query string) (*Deal, error)
	CreateDeal(ctx context.Context, deal Deal) (*Deal, error)
	UpdateStage(ctx context.Context, workspaceID, dealID string, stage Stage) error
	UpdateInvoiceAmount(ctx context.Context, workspaceID, dealID string, amount float64) error
	AddFlag(ctx context.Context, workspaceID, dealID, flag string) error
	ScheduledJobs(ctx context.Context, workspaceID string, from, to time.Time) ([]ScheduledJob, error)
	SearchJobs(ctx context.Context, workspaceID, query string, limit int) ([]Deal, error)
}

// Jobs persists confirmed job drafts.
type Jobs interface {
	// CreateJob finds or creates the contact and creates the deal.
	CreateJob(ctx context.Context, job NewJob) (*Deal, error)
}

// Contacts manages customers.
type Contacts interface {
	SearchContacts(ctx context.Context, workspaceID, query string) ([]Contact, error)
	// FindContact fuzzy-matches a single contact by name.
	FindContact(ctx context.Context, workspaceID, name string) (*Contact, error)
	CreateContact(ctx context.Context, contact Contact) (*Contact, error)
}

// Activities records the activity feed and tasks.
type Activities interface {
	LogActivity(ctx context.Context, activity Activity) (*Activity, error)
	CreateTask(ctx context.Context, task Task) (*Task, error)
}

// Support manages support tickets.
type Support interface {
	CreateTicket(ctx context.Context, ticket Ticket) (*Ticket, error)
	AppendTicketNote(ctx context.Context, ticketID, note string) error
}

// Preferences stores learned agent rules.
type Preferences interface {
	AppendAIPreference(ctx context.Context, workspaceID, rule string) error
}

// Messenger hands messages to an outbound channel.
type Messenger interface {
	Send(ctx context.Context, msg OutboundMessage) (*OutboundMessage, error)
}
