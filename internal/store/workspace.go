package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

// UpsertWorkspace creates or replaces a workspace and its settings.
func (s *Store) UpsertWorkspace(ctx context.Context, ws crm.Workspace, settings crm.Settings) error {
	if strings.TrimSpace(ws.ID) == "" {
		return fmt.Errorf("workspace id is required")
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, location, phone_number, exclusion_criteria, settings_json, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			phone_number = excluded.phone_number,
			exclusion_criteria = excluded.exclusion_criteria,
			settings_json = excluded.settings_json`,
		ws.ID, ws.Name, ws.Location, ws.PhoneNumber, ws.ExclusionCriteria, string(settingsJSON), s.nowUnix(),
	)
	if err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

// UpsertBusinessProfile creates or replaces a workspace's trade profile.
func (s *Store) UpsertBusinessProfile(ctx context.Context, workspaceID string, p crm.BusinessProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO business_profiles (workspace_id, trade_type, website, base_suburb, service_radius_km,
			standard_work_hours, emergency_service, emergency_surcharge)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			trade_type = excluded.trade_type,
			website = excluded.website,
			base_suburb = excluded.base_suburb,
			service_radius_km = excluded.service_radius_km,
			standard_work_hours = excluded.standard_work_hours,
			emergency_service = excluded.emergency_service,
			emergency_surcharge = excluded.emergency_surcharge`,
		workspaceID, p.TradeType, p.Website, p.BaseSuburb, p.ServiceRadiusKM,
		p.StandardWorkHours, boolToInt(p.EmergencyService), p.EmergencySurcharge,
	)
	if err != nil {
		return fmt.Errorf("upsert business profile: %w", err)
	}
	return nil
}

// AddMember adds or updates a workspace member.
func (s *Store) AddMember(ctx context.Context, workspaceID, userID, email string, role crm.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (workspace_id, user_id, email, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, user_id) DO UPDATE SET email = excluded.email, role = excluded.role`,
		workspaceID, userID, strings.ToLower(strings.TrimSpace(email)), string(role),
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// AddRepairItem adds a glossary price.
func (s *Store) AddRepairItem(ctx context.Context, workspaceID string, item crm.RepairItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repair_items (id, workspace_id, title, description) VALUES (?, ?, ?, ?)`,
		newID(), workspaceID, item.Title, item.Description,
	)
	if err != nil {
		return fmt.Errorf("add repair item: %w", err)
	}
	return nil
}

// AddKnowledgeRule adds a business knowledge rule.
func (s *Store) AddKnowledgeRule(ctx context.Context, workspaceID string, rule crm.KnowledgeRule) error {
	meta := rule.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode rule metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge_rules (id, workspace_id, category, rule_content, metadata_json, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?)`,
		newID(), workspaceID, string(rule.Category), rule.RuleContent, string(metaJSON), s.nowUnix(),
	)
	if err != nil {
		return fmt.Errorf("add knowledge rule: %w", err)
	}
	return nil
}

// WorkspaceSettings returns the agent settings of a workspace.
func (s *Store) WorkspaceSettings(ctx context.Context, workspaceID string) (*crm.Settings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT settings_json FROM workspaces WHERE id = ?`, workspaceID).Scan(&raw)
	if err != nil {
		return nil, notFound(err, "workspace settings")
	}
	var settings crm.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &settings, nil
}

// Workspace returns a workspace's identity.
func (s *Store) Workspace(ctx context.Context, workspaceID string) (*crm.Workspace, error) {
	var ws crm.Workspace
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, location, phone_number, exclusion_criteria FROM workspaces WHERE id = ?`,
		workspaceID,
	).Scan(&ws.ID, &ws.Name, &ws.Location, &ws.PhoneNumber, &ws.ExclusionCriteria)
	if err != nil {
		return nil, notFound(err, "workspace")
	}
	return &ws, nil
}

// BusinessProfile returns the trade profile of a workspace.
func (s *Store) BusinessProfile(ctx context.Context, workspaceID string) (*crm.BusinessProfile, error) {
	var (
		p         crm.BusinessProfile
		emergency int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT trade_type, website, base_suburb, service_radius_km, standard_work_hours,
			emergency_service, emergency_surcharge
		FROM business_profiles WHERE workspace_id = ?`,
		workspaceID,
	).Scan(&p.TradeType, &p.Website, &p.BaseSuburb, &p.ServiceRadiusKM, &p.StandardWorkHours,
		&emergency, &p.EmergencySurcharge)
	if err != nil {
		return nil, notFound(err, "business profile")
	}
	p.EmergencyService = emergency != 0
	return &p, nil
}

// RepairItems returns the workspace glossary in title order.
func (s *Store) RepairItems(ctx context.Context, workspaceID string) ([]crm.RepairItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, description FROM repair_items WHERE workspace_id = ? ORDER BY title`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query repair items: %w", err)
	}
	defer rows.Close()

	items := []crm.RepairItem{}
	for rows.Next() {
		var item crm.RepairItem
		if err := rows.Scan(&item.Title, &item.Description); err != nil {
			return nil, fmt.Errorf("scan repair item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CompletedDeals returns the most recently updated won deals with their invoiced totals.
func (s *Store) CompletedDeals(ctx context.Context, workspaceID string, limit int) ([]crm.CompletedDeal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, invoiced FROM deals
		WHERE workspace_id = ? AND stage = ?
		ORDER BY updated_at_unix DESC, id
		LIMIT ?`,
		workspaceID, string(crm.StageWon), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed deals: %w", err)
	}
	defer rows.Close()

	deals := []crm.CompletedDeal{}
	for rows.Next() {
		var d crm.CompletedDeal
		if err := rows.Scan(&d.Title, &d.InvoiceTotal); err != nil {
			return nil, fmt.Errorf("scan completed deal: %w", err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// KnowledgeRules returns the rules of one category in insertion order.
func (s *Store) KnowledgeRules(ctx context.Context, workspaceID string, category crm.KnowledgeCategory) ([]crm.KnowledgeRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, rule_content, metadata_json FROM knowledge_rules
		WHERE workspace_id = ? AND category = ?
		ORDER BY created_at_unix, rowid`,
		workspaceID, string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("query knowledge rules: %w", err)
	}
	defer rows.Close()

	rules := []crm.KnowledgeRule{}
	for rows.Next() {
		var (
			rule     crm.KnowledgeRule
			cat      string
			metaJSON string
		)
		if err := rows.Scan(&cat, &rule.RuleContent, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan knowledge rule: %w", err)
		}
		rule.Category = crm.KnowledgeCategory(cat)
		if err := json.Unmarshal([]byte(metaJSON), &rule.Metadata); err != nil {
			return nil, fmt.Errorf("decode rule metadata: %w", err)
		}
		if len(rule.Metadata) == 0 {
			rule.Metadata = nil
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// RoleByEmail resolves the role of the member with the given email.
func (s *Store) RoleByEmail(ctx context.Context, workspaceID, email string) (crm.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM members WHERE workspace_id = ? AND email = ? LIMIT 1`,
		workspaceID, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&role)
	if err != nil {
		return "", notFound(err, "member by email")
	}
	return crm.Role(role), nil
}

// RoleByUserID resolves the role of a user.
func (s *Store) RoleByUserID(ctx context.Context, userID string) (crm.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM members WHERE user_id = ? LIMIT 1`, userID,
	).Scan(&role)
	if err != nil {
		return "", notFound(err, "member by user id")
	}
	return crm.Role(role), nil
}

// AppendAIPreference appends a learned rule as a new "- " bullet.
func (s *Store) AppendAIPreference(ctx context.Context, workspaceID, rule string) error {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return fmt.Errorf("preference rule is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT settings_json FROM workspaces WHERE id = ?`, workspaceID).Scan(&raw); err != nil {
		return notFound(err, "workspace settings")
	}
	var settings crm.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	if settings.AIPreferences != "" {
		settings.AIPreferences += "\n- " + rule
	} else {
		settings.AIPreferences = "- " + rule
	}

	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE workspaces SET settings_json = ? WHERE id = ?`, string(encoded), workspaceID); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return tx.Commit()
}
