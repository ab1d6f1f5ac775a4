package crmtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/tools"
)

type contactSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func summariseContact(c crm.Contact) contactSummary {
	return contactSummary{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address}
}

type searchContactsArgs struct {
	Query string `json:"query"`
}

func (ts *toolset) searchContacts() tools.Tool {
	return tools.New("search_contacts",
		"Look up contacts by name or keyword in the CRM.",
		tools.Object(map[string]any{
			"query": tools.String("Name or keyword to search"),
		}, "query"),
		func(ctx context.Context, a searchContactsArgs) (string, error) {
			if err := required("query", a.Query); err != nil {
				return "", err
			}
			contacts, err := ts.deps.Backend.SearchContacts(ctx, ts.b.WorkspaceID, strings.TrimSpace(a.Query))
			if err != nil {
				return "", fmt.Errorf("search contacts: %w", err)
			}
			out := make([]contactSummary, 0, len(contacts))
			for _, c := range contacts {
				out = append(out, summariseContact(c))
			}
			return toJSON(map[string]any{"contacts": out, "count": len(out)})
		})
}

type createContactArgs struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (ts *toolset) createContact() tools.Tool {
	return tools.New("create_contact",
		"Add a new contact to the CRM.",
		tools.Object(map[string]any{
			"name":    tools.String("Full name or company name"),
			"email":   tools.String("Email address"),
			"phone":   tools.String("Phone number"),
			"address": tools.String("Street address"),
		}, "name"),
		func(ctx context.Context, a createContactArgs) (string, error) {
			if err := required("name", a.Name); err != nil {
				return "", err
			}
			c, err := ts.deps.Backend.CreateContact(ctx, crm.Contact{
				WorkspaceID: ts.b.WorkspaceID,
				Name:        strings.TrimSpace(a.Name),
				Email:       strings.TrimSpace(a.Email),
				Phone:       strings.TrimSpace(a.Phone),
				Address:     strings.TrimSpace(a.Address),
			})
			if err != nil {
				return "", fmt.Errorf("create contact: %w", err)
			}
			return toJSON(map[string]any{"created": summariseContact(*c)})
		})
}

type smsArgs struct {
	ContactName string `json:"contactName"`
	Message     string `json:"message"`
}

func (ts *toolset) sendSMS() tools.Tool {
	return tools.New("send_sms",
		"Send an SMS to a contact by name. Finds the contact and sends via their phone. "+
			"Only allowed inside the workspace's texting hours.",
		tools.Object(map[string]any{
			"contactName": tools.String("Contact name"),
			"message":     tools.String("SMS message to send"),
		}, "contactName", "message"),
		func(ctx context.Context, a smsArgs) (string, error) {
			if err := required("message", a.Message); err != nil {
				return "", err
			}
			if now := ts.now(); !ts.b.TextWindow.Contains(now) {
				return "", tools.NewPermissionError("outside_contact_hours",
					fmt.Sprintf("texting is only allowed between %s and %s", ts.b.TextWindow.Start, ts.b.TextWindow.End),
					map[string]any{"now": now.Format("15:04")})
			}
			c, err := ts.findContact(ctx, a.ContactName)
			if err != nil {
				return "", err
			}
			if c.Phone == "" {
				return "", tools.NewValidationError("missing_phone",
					fmt.Sprintf("%s has no phone number", c.Name), nil)
			}
			return ts.send(ctx, crm.OutboundMessage{
				ContactID: c.ID,
				Channel:   crm.ChannelSMS,
				To:        c.Phone,
				Body:      strings.TrimSpace(a.Message),
			}, c.Name)
		})
}

type emailArgs struct {
	ContactName string `json:"contactName"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

func (ts *toolset) sendEmail() tools.Tool {
	return tools.New("send_email",
		"Send an email to a contact by name.",
		tools.Object(map[string]any{
			"contactName": tools.String("Contact name"),
			"subject":     tools.String("Email subject"),
			"body":        tools.String("Email body"),
		}, "contactName", "subject", "body"),
		func(ctx context.Context, a emailArgs) (string, error) {
			if err := required("subject", a.Subject); err != nil {
				return "", err
			}
			if err := required("body", a.Body); err != nil {
				return "", err
			}
			c, err := ts.findContact(ctx, a.ContactName)
			if err != nil {
				return "", err
			}
			if c.Email == "" {
				return "", tools.NewValidationError("missing_email",
					fmt.Sprintf("%s has no email address", c.Name), nil)
			}
			return ts.send(ctx, crm.OutboundMessage{
				ContactID: c.ID,
				Channel:   crm.ChannelEmail,
				To:        c.Email,
				Subject:   strings.TrimSpace(a.Subject),
				Body:      strings.TrimSpace(a.Body),
			}, c.Name)
		})
}

func (ts *toolset) send(ctx context.Context, msg crm.OutboundMessage, name string) (string, error) {
	msg.WorkspaceID = ts.b.WorkspaceID
	sent, err := ts.deps.Backend.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("send %s: %w", strings.ToLower(string(msg.Channel)), err)
	}
	ts.deps.Logger.InfoCtx(ctx, "outbound message queued",
		logger.Field{Key: "workspace_id", Value: ts.b.WorkspaceID},
		logger.Field{Key: "channel", Value: string(sent.Channel)},
		logger.Field{Key: "message_id", Value: sent.ID})

	if _, err := ts.deps.Backend.LogActivity(ctx, crm.Activity{
		WorkspaceID: ts.b.WorkspaceID,
		Type:        activityFor(msg.Channel),
		Content:     fmt.Sprintf("%s to %s: %s", msg.Channel, name, msg.Body),
		ContactID:   msg.ContactID,
	}); err != nil {
		ts.deps.Logger.WarnCtx(ctx, "activity log for outbound message failed",
			logger.Field{Key: "message_id", Value: sent.ID},
			logger.Field{Key: "error", Value: err.Error()})
	}
	return fmt.Sprintf("%s sent to %s (%s).", msg.Channel, name, msg.To), nil
}

func activityFor(ch crm.Channel) crm.ActivityType {
	if ch == crm.ChannelEmail {
		return crm.ActivityEmail
	}
	return crm.ActivityNote
}
