package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

// Send records an outbound message in the outbox table. Delivery through
// an SMS or email gateway happens outside this process.
func (s *Store) Send(ctx context.Context, msg crm.OutboundMessage) (*crm.OutboundMessage, error) {
	switch msg.Channel {
	case crm.ChannelSMS, crm.ChannelEmail:
	default:
		return nil, fmt.Errorf("unsupported channel %q", msg.Channel)
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return nil, fmt.Errorf("message body is required")
	}
	if msg.ID == "" {
		msg.ID = newID()
	}
	msg.CreatedAt = time.Unix(s.nowUnix(), 0).UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (id, workspace_id, contact_id, channel, recipient, subject, body, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.WorkspaceID, msg.ContactID, string(msg.Channel), msg.To, msg.Subject, msg.Body,
		msg.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert outbox message: %w", err)
	}
	return &msg, nil
}

// Outbox returns the queued messages of a workspace, oldest first.
func (s *Store) Outbox(ctx context.Context, workspaceID string) ([]crm.OutboundMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, contact_id, channel, recipient, subject, body, created_at_unix
		FROM outbox WHERE workspace_id = ? ORDER BY created_at_unix, rowid`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	msgs := []crm.OutboundMessage{}
	for rows.Next() {
		var (
			m         crm.OutboundMessage
			channel   string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.ContactID, &channel, &m.To, &m.Subject, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		m.Channel = crm.Channel(channel)
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
