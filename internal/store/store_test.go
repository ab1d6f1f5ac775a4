package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	s, err := New(filepath.Join(t.TempDir(), "crm_test.db"), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	f, err := LoadFixture(filepath.Join("testdata", "workspace.yaml"))
	require.NoError(t, err)
	_, err = s.Seed(context.Background(), f)
	require.NoError(t, err)
	return s
}

func TestSeedReport(t *testing.T) {
	s := newTestStore(t)
	f, err := LoadFixture(filepath.Join("testdata", "workspace.yaml"))
	require.NoError(t, err)

	report, err := s.Seed(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{
		WorkspaceID:    "ws-sparky",
		Members:        2,
		RepairItems:    2,
		KnowledgeRules: 2,
		Contacts:       2,
		Deals:          3,
	}, report)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestContextSource(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	settings, err := s.WorkspaceSettings(ctx, "ws-sparky")
	require.NoError(t, err)
	assert.Equal(t, crm.ModeOrganize, settings.AgentMode)
	assert.Equal(t, "07:00", settings.WorkingHoursStart)
	assert.Equal(t, 89.0, settings.CallOutFee)

	ws, err := s.Workspace(ctx, "ws-sparky")
	require.NoError(t, err)
	assert.Equal(t, "Sparky Plumbing", ws.Name)
	assert.Contains(t, ws.ExclusionCriteria, "No gas fitting")

	profile, err := s.BusinessProfile(ctx, "ws-sparky")
	require.NoError(t, err)
	assert.True(t, profile.EmergencyService)
	assert.Equal(t, 25, profile.ServiceRadiusKM)

	items, err := s.RepairItems(ctx, "ws-sparky")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Blocked drain", items[0].Title)
	assert.Equal(t, "$120-180", items[1].Description)

	completed, err := s.CompletedDeals(ctx, "ws-sparky", 50)
	require.NoError(t, err)
	assert.Equal(t, []crm.CompletedDeal{
		{Title: "Tap Repair", InvoiceTotal: 175},
		{Title: "Tap Repair", InvoiceTotal: 160},
	}, completed)

	negative, err := s.KnowledgeRules(ctx, "ws-sparky", crm.KnowledgeNegativeScope)
	require.NoError(t, err)
	require.Len(t, negative, 1)
	assert.Equal(t, "No roof work above two storeys", negative[0].RuleContent)
	assert.Nil(t, negative[0].Metadata)

	services, err := s.KnowledgeRules(ctx, "ws-sparky", crm.KnowledgeService)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "$1800-2600", services[0].Metadata["priceRange"])
}

func TestContextSourceMissingWorkspace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WorkspaceSettings(ctx, "nope")
	assert.ErrorIs(t, err, crm.ErrNotFound)
	_, err = s.Workspace(ctx, "nope")
	assert.ErrorIs(t, err, crm.ErrNotFound)
	_, err = s.BusinessProfile(ctx, "nope")
	assert.ErrorIs(t, err, crm.ErrNotFound)

	items, err := s.RepairItems(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRoles(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	role, err := s.RoleByEmail(ctx, "ws-sparky", " travis@SPARKY.example.com ")
	require.NoError(t, err)
	assert.Equal(t, crm.RoleOwner, role)

	role, err = s.RoleByUserID(ctx, "user-apprentice")
	require.NoError(t, err)
	assert.Equal(t, crm.RoleTeamMember, role)

	_, err = s.RoleByEmail(ctx, "ws-sparky", "stranger@example.com")
	assert.ErrorIs(t, err, crm.ErrNotFound)
	_, err = s.RoleByUserID(ctx, "ghost")
	assert.ErrorIs(t, err, crm.ErrNotFound)
}

func TestFindDeal(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	deal, err := s.FindDeal(ctx, "ws-sparky", "toilet")
	require.NoError(t, err)
	assert.Equal(t, "Toilet Replacement", deal.Title)
	assert.Equal(t, "Bob Jones", deal.ContactName)
	assert.Equal(t, crm.StageScheduled, deal.Stage)

	deal, err = s.FindDeal(ctx, "ws-sparky", "sharon")
	require.NoError(t, err)
	assert.Equal(t, "Tap Repair", deal.Title)

	byID, err := s.FindDeal(ctx, "ws-sparky", deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.ID, byID.ID)

	_, err = s.FindDeal(ctx, "ws-sparky", "tap repair")
	assert.ErrorIs(t, err, crm.ErrAmbiguous)

	_, err = s.FindDeal(ctx, "ws-sparky", "bob")
	assert.ErrorIs(t, err, crm.ErrAmbiguous)

	_, err = s.FindDeal(ctx, "ws-sparky", "solar panels")
	assert.ErrorIs(t, err, crm.ErrNotFound)

	_, err = s.FindDeal(ctx, "ws-sparky", "100%")
	assert.ErrorIs(t, err, crm.ErrNotFound)
}

func TestDealMutations(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	deal, err := s.FindDeal(ctx, "ws-sparky", "toilet")
	require.NoError(t, err)

	require.NoError(t, s.UpdateStage(ctx, "ws-sparky", deal.ID, crm.StageInProgress))
	require.NoError(t, s.AddFlag(ctx, "ws-sparky", deal.ID, "needs parts"))
	require.NoError(t, s.AddFlag(ctx, "ws-sparky", deal.ID, "needs parts"))
	require.NoError(t, s.UpdateInvoiceAmount(ctx, "ws-sparky", deal.ID, 720))

	updated, err := s.DealByID(ctx, "ws-sparky", deal.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.StageInProgress, updated.Stage)
	assert.Equal(t, []string{"needs parts"}, updated.Flags)
	assert.Equal(t, 720.0, updated.Invoiced)
	assert.True(t, updated.UpdatedAt.After(deal.UpdatedAt))

	assert.ErrorIs(t, s.UpdateStage(ctx, "ws-sparky", "missing", crm.StageWon), crm.ErrNotFound)
	assert.ErrorIs(t, s.UpdateStage(ctx, "other-ws", deal.ID, crm.StageWon), crm.ErrNotFound)
	assert.ErrorIs(t, s.AddFlag(ctx, "ws-sparky", "missing", "x"), crm.ErrNotFound)
	assert.Error(t, s.UpdateInvoiceAmount(ctx, "ws-sparky", deal.ID, -1))

	require.NoError(t, s.UpdateStage(ctx, "ws-sparky", deal.ID, crm.StageDeleted))
	deals, err := s.ListDeals(ctx, "ws-sparky")
	require.NoError(t, err)
	assert.Len(t, deals, 2)
}

func TestCreateDealDefaults(t *testing.T) {
	s := seededStore(t)
	deal, err := s.CreateDeal(context.Background(), crm.Deal{WorkspaceID: "ws-sparky", Title: "Gutter Clean", Value: 300})
	require.NoError(t, err)
	assert.NotEmpty(t, deal.ID)
	assert.Equal(t, crm.StageNew, deal.Stage)
	assert.Empty(t, deal.ContactName)
	assert.Nil(t, deal.ScheduledAt)

	_, err = s.CreateDeal(context.Background(), crm.Deal{WorkspaceID: "ws-sparky"})
	assert.Error(t, err)
}

func TestScheduledJobs(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	day := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	jobs, err := s.ScheduledJobs(ctx, "ws-sparky", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Toilet Replacement", jobs[0].Title)
	assert.Equal(t, "Bob Jones", jobs[0].ContactName)
	assert.True(t, jobs[0].ScheduledAt.Equal(time.Date(2026, 2, 15, 3, 0, 0, 0, time.UTC)))

	jobs, err = s.ScheduledJobs(ctx, "ws-sparky", day.Add(24*time.Hour), day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCreateJobReusesContact(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 16, 4, 0, 0, 0, time.UTC)

	existing, err := s.FindContact(ctx, "ws-sparky", "Sharon Smith")
	require.NoError(t, err)

	deal, err := s.CreateJob(ctx, crm.NewJob{
		WorkspaceID: "ws-sparky",
		ClientName:  "sharon smith",
		Email:       "sharon@example.com",
		Phone:       "0499 999 999",
		Title:       "Sink Repair",
		Category:    "Plumbing",
		Value:       200,
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, deal.ContactID)
	assert.Equal(t, crm.StageScheduled, deal.Stage)
	require.NotNil(t, deal.ScheduledAt)
	assert.True(t, deal.ScheduledAt.Equal(at))

	contact, err := s.ContactByID(ctx, "ws-sparky", existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "sharon@example.com", contact.Email)
	assert.Equal(t, "0412 345 678", contact.Phone)
}

func TestCreateJobNewContact(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	deal, err := s.CreateJob(ctx, crm.NewJob{
		WorkspaceID: "ws-sparky",
		ClientName:  "Sally Nguyen",
		Address:     "12 King Street, Newtown",
		Title:       "Light Install",
		Value:       150,
	})
	require.NoError(t, err)
	assert.Equal(t, crm.StageNew, deal.Stage)
	assert.Equal(t, "Sally Nguyen", deal.ContactName)

	contacts, err := s.SearchContacts(ctx, "ws-sparky", "newtown")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Sally Nguyen", contacts[0].Name)

	_, err = s.CreateJob(ctx, crm.NewJob{WorkspaceID: "ws-sparky", Title: "x"})
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	jobs, err := s.SearchJobs(ctx, "ws-sparky", "tap", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = s.SearchJobs(ctx, "ws-sparky", "jones", 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	contacts, err := s.SearchContacts(ctx, "ws-sparky", "bob@")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Bob Jones", contacts[0].Name)

	_, err = s.FindContact(ctx, "ws-sparky", "nobody")
	assert.ErrorIs(t, err, crm.ErrNotFound)

	_, err = s.CreateContact(ctx, crm.Contact{WorkspaceID: "ws-sparky", Name: "Bob Jonesy"})
	require.NoError(t, err)
	c, err := s.FindContact(ctx, "ws-sparky", "bob jones")
	require.NoError(t, err)
	assert.Equal(t, "Bob Jones", c.Name)
	_, err = s.FindContact(ctx, "ws-sparky", "bob")
	assert.ErrorIs(t, err, crm.ErrAmbiguous)
}

func TestActivitiesAndTasks(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	_, err := s.LogActivity(ctx, crm.Activity{WorkspaceID: "ws-sparky", Type: crm.ActivityCall, Content: "Called Sharon"})
	require.NoError(t, err)
	_, err = s.LogActivity(ctx, crm.Activity{WorkspaceID: "ws-sparky", Type: "SMOKE", Content: "x"})
	assert.Error(t, err)

	feed, err := s.Activities(ctx, "ws-sparky", 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, crm.ActivityCall, feed[0].Type)

	task, err := s.CreateTask(ctx, crm.Task{
		WorkspaceID: "ws-sparky",
		Title:       "Order cistern",
		DueAt:       time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)

	_, err = s.CreateTask(ctx, crm.Task{WorkspaceID: "ws-sparky", Title: "No due date"})
	assert.Error(t, err)
}

func TestTickets(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	ticket, err := s.CreateTicket(ctx, crm.Ticket{WorkspaceID: "ws-sparky", UserID: "user-owner", Message: "Invoices not syncing"})
	require.NoError(t, err)

	require.NoError(t, s.AppendTicketNote(ctx, ticket.ID, "Happens since Monday"))
	require.NoError(t, s.AppendTicketNote(ctx, ticket.ID, "Only for Xero"))

	loaded, err := s.Ticket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Happens since Monday", "Only for Xero"}, loaded.Notes)

	assert.ErrorIs(t, s.AppendTicketNote(ctx, "missing", "note"), crm.ErrNotFound)
}

func TestOutbox(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	_, err := s.Send(ctx, crm.OutboundMessage{WorkspaceID: "ws-sparky", Channel: crm.ChannelSMS, To: "0412 345 678", Body: "On my way"})
	require.NoError(t, err)
	_, err = s.Send(ctx, crm.OutboundMessage{WorkspaceID: "ws-sparky", Channel: "FAX", To: "x", Body: "y"})
	assert.Error(t, err)
	_, err = s.Send(ctx, crm.OutboundMessage{WorkspaceID: "ws-sparky", Channel: crm.ChannelEmail, To: "bob@example.com"})
	assert.Error(t, err)

	msgs, err := s.Outbox(ctx, "ws-sparky")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "On my way", msgs[0].Body)
	assert.Equal(t, crm.ChannelSMS, msgs[0].Channel)
}

func TestAppendAIPreference(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAIPreference(ctx, "ws-sparky", "Never book Sundays"))
	settings, err := s.WorkspaceSettings(ctx, "ws-sparky")
	require.NoError(t, err)
	assert.Equal(t, "- Always quote in whole dollars\n- Never book Sundays", settings.AIPreferences)

	require.NoError(t, s.UpsertWorkspace(ctx, crm.Workspace{ID: "ws-empty", Name: "Empty"}, crm.Settings{}))
	require.NoError(t, s.AppendAIPreference(ctx, "ws-empty", "[FLAG_ONLY] pool work"))
	settings, err = s.WorkspaceSettings(ctx, "ws-empty")
	require.NoError(t, err)
	assert.Equal(t, "- [FLAG_ONLY] pool work", settings.AIPreferences)

	assert.ErrorIs(t, s.AppendAIPreference(ctx, "missing", "rule"), crm.ErrNotFound)
	assert.Error(t, s.AppendAIPreference(ctx, "ws-sparky", "  "))
}

func TestParseFixtureErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "workspace:\n  name: X\n"},
		{"unknown contact", "workspace: {id: w, name: X}\ndeals:\n  - title: T\n    contact: Ghost\n"},
		{"unknown stage", "workspace: {id: w, name: X}\ndeals:\n  - title: T\n    stage: vapourised\n"},
		{"bad time", "workspace: {id: w, name: X}\ndeals:\n  - title: T\n    scheduled_at: tomorrow\n"},
		{"bad role", "workspace: {id: w, name: X}\nmembers:\n  - user_id: u\n    role: BOSS\n"},
		{"bad yaml", "workspace: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
