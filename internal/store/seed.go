package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

// Fixture is a YAML description of one workspace and its records.
type Fixture struct {
	Workspace       crm.Workspace        `yaml:"workspace"`
	Settings        crm.Settings         `yaml:"settings"`
	BusinessProfile *crm.BusinessProfile `yaml:"business_profile"`
	Members         []FixtureMember      `yaml:"members"`
	RepairItems     []crm.RepairItem     `yaml:"repair_items"`
	KnowledgeRules  []crm.KnowledgeRule  `yaml:"knowledge_rules"`
	Contacts        []FixtureContact     `yaml:"contacts"`
	Deals           []FixtureDeal        `yaml:"deals"`
}

// FixtureMember is a workspace member.
type FixtureMember struct {
	UserID string   `yaml:"user_id"`
	Email  string   `yaml:"email"`
	Role   crm.Role `yaml:"role"`
}

// FixtureContact is a customer.
type FixtureContact struct {
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Address string `yaml:"address"`
}

// FixtureDeal is a deal. Contact refers to a fixture contact by name and
// ScheduledAt is RFC 3339.
type FixtureDeal struct {
	Title       string  `yaml:"title"`
	Contact     string  `yaml:"contact"`
	Stage       string  `yaml:"stage"`
	Value       float64 `yaml:"value"`
	Address     string  `yaml:"address"`
	Category    string  `yaml:"category"`
	ScheduledAt string  `yaml:"scheduled_at"`
	Invoiced    float64 `yaml:"invoiced"`
}

// SeedReport counts what Seed inserted.
type SeedReport struct {
	WorkspaceID    string
	Members        int
	RepairItems    int
	KnowledgeRules int
	Contacts       int
	Deals          int
}

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture and checks references.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if strings.TrimSpace(f.Workspace.ID) == "" {
		return nil, fmt.Errorf("fixture workspace.id is required")
	}
	if strings.TrimSpace(f.Workspace.Name) == "" {
		return nil, fmt.Errorf("fixture workspace.name is required")
	}

	contacts := make(map[string]bool, len(f.Contacts))
	for _, c := range f.Contacts {
		contacts[strings.ToLower(c.Name)] = true
	}
	for i, d := range f.Deals {
		if d.Contact != "" && !contacts[strings.ToLower(d.Contact)] {
			return nil, fmt.Errorf("fixture deals[%d]: unknown contact %q", i, d.Contact)
		}
		if d.Stage != "" {
			if _, ok := parseFixtureStage(d.Stage); !ok {
				return nil, fmt.Errorf("fixture deals[%d]: unknown stage %q", i, d.Stage)
			}
		}
		if d.ScheduledAt != "" {
			if _, err := time.Parse(time.RFC3339, d.ScheduledAt); err != nil {
				return nil, fmt.Errorf("fixture deals[%d]: invalid scheduled_at: %w", i, err)
			}
		}
	}
	for i, m := range f.Members {
		switch m.Role {
		case crm.RoleOwner, crm.RoleManager, crm.RoleTeamMember:
		default:
			return nil, fmt.Errorf("fixture members[%d]: unknown role %q", i, m.Role)
		}
	}
	return &f, nil
}

func parseFixtureStage(s string) (crm.Stage, bool) {
	switch st := crm.Stage(strings.ToUpper(strings.TrimSpace(s))); st {
	case crm.StageNew, crm.StageQuoted, crm.StageScheduled, crm.StageInProgress, crm.StagePipeline,
		crm.StageReadyToInvoice, crm.StageWon, crm.StageLost, crm.StageDeleted:
		return st, true
	}
	return crm.ParseStage(s)
}

// Seed writes a fixture into the store.
func (s *Store) Seed(ctx context.Context, f *Fixture) (SeedReport, error) {
	report := SeedReport{WorkspaceID: f.Workspace.ID}
	wsID := f.Workspace.ID

	if err := s.UpsertWorkspace(ctx, f.Workspace, f.Settings); err != nil {
		return report, err
	}
	if f.BusinessProfile != nil {
		if err := s.UpsertBusinessProfile(ctx, wsID, *f.BusinessProfile); err != nil {
			return report, err
		}
	}
	for _, m := range f.Members {
		if err := s.AddMember(ctx, wsID, m.UserID, m.Email, m.Role); err != nil {
			return report, err
		}
		report.Members++
	}
	for _, item := range f.RepairItems {
		if err := s.AddRepairItem(ctx, wsID, item); err != nil {
			return report, err
		}
		report.RepairItems++
	}
	for _, rule := range f.KnowledgeRules {
		if err := s.AddKnowledgeRule(ctx, wsID, rule); err != nil {
			return report, err
		}
		report.KnowledgeRules++
	}

	contactIDs := make(map[string]string, len(f.Contacts))
	for _, c := range f.Contacts {
		created, err := s.CreateContact(ctx, crm.Contact{
			WorkspaceID: wsID,
			Name:        c.Name,
			Email:       c.Email,
			Phone:       c.Phone,
			Address:     c.Address,
		})
		if err != nil {
			return report, err
		}
		contactIDs[strings.ToLower(c.Name)] = created.ID
		report.Contacts++
	}

	for _, d := range f.Deals {
		deal := crm.Deal{
			WorkspaceID: wsID,
			ContactID:   contactIDs[strings.ToLower(d.Contact)],
			Title:       d.Title,
			Value:       d.Value,
			Address:     d.Address,
			Category:    d.Category,
			Invoiced:    d.Invoiced,
		}
		if d.Stage != "" {
			deal.Stage, _ = parseFixtureStage(d.Stage)
		}
		if d.ScheduledAt != "" {
			at, _ := time.Parse(time.RFC3339, d.ScheduledAt)
			deal.ScheduledAt = &at
		}
		if _, err := s.CreateDeal(ctx, deal); err != nil {
			return report, err
		}
		report.Deals++
	}

	return report, nil
}
