package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

func (s *Store) queryContacts(ctx context.Context, query string, args ...any) ([]crm.Contact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []crm.Contact{}
	for rows.Next() {
		var (
			c         crm.Contact
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Email, &c.Phone, &c.Address, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// SearchContacts matches contacts by name, email, phone or address.
func (s *Store) SearchContacts(ctx context.Context, workspaceID, query string) ([]crm.Contact, error) {
	pattern := likePattern(query)
	return s.queryContacts(ctx,
		`SELECT id, workspace_id, name, email, phone, address, created_at_unix FROM contacts
		WHERE workspace_id = ? AND (
			lower(name) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\'
			OR phone LIKE ? ESCAPE '\' OR lower(address) LIKE ? ESCAPE '\')
		ORDER BY name
		LIMIT 20`,
		workspaceID, pattern, pattern, pattern, pattern,
	)
}

// FindContact matches a single contact by name. An exact name match wins
// over partial matches.
func (s *Store) FindContact(ctx context.Context, workspaceID, name string) (*crm.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("contact name is empty: %w", crm.ErrNotFound)
	}
	matches, err := s.queryContacts(ctx,
		`SELECT id, workspace_id, name, email, phone, address, created_at_unix FROM contacts
		WHERE workspace_id = ? AND lower(name) LIKE ? ESCAPE '\'
		ORDER BY created_at_unix`,
		workspaceID, likePattern(name),
	)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("contact %q: %w", name, crm.ErrNotFound)
	case 1:
		return &matches[0], nil
	}
	for i := range matches {
		if strings.EqualFold(matches[i].Name, name) {
			return &matches[i], nil
		}
	}
	return nil, fmt.Errorf("contact %q matches %d contacts: %w", name, len(matches), crm.ErrAmbiguous)
}

// CreateContact inserts a contact.
func (s *Store) CreateContact(ctx context.Context, contact crm.Contact) (*crm.Contact, error) {
	contact.Name = strings.TrimSpace(contact.Name)
	if contact.Name == "" {
		return nil, fmt.Errorf("contact name is required")
	}
	if contact.ID == "" {
		contact.ID = newID()
	}
	contact.CreatedAt = time.Unix(s.nowUnix(), 0).UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, workspace_id, name, email, phone, address, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		contact.ID, contact.WorkspaceID, contact.Name, contact.Email, contact.Phone, contact.Address,
		contact.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	return &contact, nil
}

// ContactByID returns a single contact.
func (s *Store) ContactByID(ctx context.Context, workspaceID, id string) (*crm.Contact, error) {
	matches, err := s.queryContacts(ctx,
		`SELECT id, workspace_id, name, email, phone, address, created_at_unix FROM contacts
		WHERE workspace_id = ? AND id = ?`,
		workspaceID, id,
	)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("contact %q: %w", id, crm.ErrNotFound)
	}
	return &matches[0], nil
}
