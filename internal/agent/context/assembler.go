package agentcontext

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/aatumaykin/tradiecrm/internal/cache"
	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
)

// CompletedDealsLimit bounds the invoice history used for pricing.
const CompletedDealsLimit = 50

// CacheName labels the context cache in metrics.
const CacheName = "agent_context"

// Options are the per-call inputs that are not part of the workspace.
type Options struct {
	// AuthEmail is the authenticated user's email, used for role lookup.
	AuthEmail string
	// IncludeHistoricalPricing enables invoice-history reconciliation.
	IncludeHistoricalPricing bool
}

// Assembler builds and caches AgentContexts.
type Assembler struct {
	source crm.ContextSource
	cache  *cache.TTL[*AgentContext]
	log    *logger.Logger
}

// NewAssembler creates an assembler. The cache is shared by every request
// of the process; a nil logger discards.
func NewAssembler(source crm.ContextSource, c *cache.TTL[*AgentContext], log *logger.Logger) *Assembler {
	if log == nil {
		log = logger.Discard()
	}
	return &Assembler{source: source, cache: c, log: log}
}

// CacheKey is the cache key for a build request.
func CacheKey(workspaceID, userID string, includePricing bool) string {
	if userID == "" {
		userID = "anonymous"
	}
	return workspaceID + "|" + userID + "|" + strconv.FormatBool(includePricing)
}

// Build returns the cached context for the key or assembles a fresh one.
// Read failures are logged and replaced by defaults, so Build only fails
// when ctx is done.
func (a *Assembler) Build(ctx context.Context, workspaceID, userID string, opts Options) (*AgentContext, error) {
	key := CacheKey(workspaceID, userID, opts.IncludeHistoricalPricing)
	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok {
			return cached, nil
		}
	}

	ac := a.assemble(ctx, workspaceID, userID, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.cache != nil {
		a.cache.Set(key, ac)
	}
	return ac, nil
}

type batchOne struct {
	settings  *crm.Settings
	workspace *crm.Workspace
	profile   *crm.BusinessProfile
	glossary  []crm.RepairItem
	completed []crm.CompletedDeal
	negative  []crm.KnowledgeRule
	services  []crm.KnowledgeRule
}

func (a *Assembler) assemble(ctx context.Context, workspaceID, userID string, opts Options) *AgentContext {
	var b1 batchOne

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b1.settings = fetch(gctx, a, workspaceID, userID, "settings", func(ctx context.Context) (*crm.Settings, error) {
			return a.source.WorkspaceSettings(ctx, workspaceID)
		})
		return nil
	})
	g.Go(func() error {
		b1.workspace = fetch(gctx, a, workspaceID, userID, "workspace", func(ctx context.Context) (*crm.Workspace, error) {
			return a.source.Workspace(ctx, workspaceID)
		})
		return nil
	})
	g.Go(func() error {
		b1.profile = fetch(gctx, a, workspaceID, userID, "business_profile", func(ctx context.Context) (*crm.BusinessProfile, error) {
			return a.source.BusinessProfile(ctx, workspaceID)
		})
		return nil
	})
	g.Go(func() error {
		b1.glossary = fetch(gctx, a, workspaceID, userID, "repair_items", func(ctx context.Context) ([]crm.RepairItem, error) {
			return a.source.RepairItems(ctx, workspaceID)
		})
		return nil
	})
	if opts.IncludeHistoricalPricing {
		g.Go(func() error {
			b1.completed = fetch(gctx, a, workspaceID, userID, "completed_deals", func(ctx context.Context) ([]crm.CompletedDeal, error) {
				return a.source.CompletedDeals(ctx, workspaceID, CompletedDealsLimit)
			})
			return nil
		})
	}
	g.Go(func() error {
		b1.negative = fetch(gctx, a, workspaceID, userID, "negative_scope", func(ctx context.Context) ([]crm.KnowledgeRule, error) {
			return a.source.KnowledgeRules(ctx, workspaceID, crm.KnowledgeNegativeScope)
		})
		return nil
	})
	g.Go(func() error {
		b1.services = fetch(gctx, a, workspaceID, userID, "service_rules", func(ctx context.Context) ([]crm.KnowledgeRule, error) {
			return a.source.KnowledgeRules(ctx, workspaceID, crm.KnowledgeService)
		})
		return nil
	})
	_ = g.Wait()

	role := a.resolveRole(ctx, workspaceID, userID, opts.AuthEmail)

	return compose(workspaceID, userID, role, b1)
}

// resolveRole runs the email and user id lookups in parallel. The user id
// result is applied after the email result, so it wins when both resolve.
func (a *Assembler) resolveRole(ctx context.Context, workspaceID, userID, email string) crm.Role {
	var byEmail, byUser crm.Role

	g, gctx := errgroup.WithContext(ctx)
	if email != "" {
		g.Go(func() error {
			r, err := a.source.RoleByEmail(gctx, workspaceID, email)
			a.degraded(gctx, err, workspaceID, userID, "role_by_email")
			byEmail = r
			return nil
		})
	}
	if userID != "" {
		g.Go(func() error {
			r, err := a.source.RoleByUserID(gctx, userID)
			a.degraded(gctx, err, workspaceID, userID, "role_by_user_id")
			byUser = r
			return nil
		})
	}
	_ = g.Wait()

	role := crm.RoleTeamMember
	if byEmail != "" {
		role = byEmail
	}
	if byUser != "" {
		role = byUser
	}
	return role
}

func fetch[T any](ctx context.Context, a *Assembler, workspaceID, userID, source string, fn func(context.Context) (T, error)) T {
	v, err := fn(ctx)
	if err != nil {
		a.degraded(ctx, err, workspaceID, userID, source)
		var zero T
		return zero
	}
	return v
}

func (a *Assembler) degraded(ctx context.Context, err error, workspaceID, userID, source string) {
	if err == nil {
		return
	}
	fields := []logger.Field{
		{Key: "workspace_id", Value: workspaceID},
		{Key: "user_id", Value: userID},
		{Key: "source", Value: source},
		{Key: "error", Value: err.Error()},
	}
	if errors.Is(err, crm.ErrNotFound) {
		a.log.DebugCtx(ctx, "context source empty, using default", fields...)
		return
	}
	a.log.WarnCtx(ctx, "context source failed, using default", fields...)
}

func compose(workspaceID, userID string, role crm.Role, b1 batchOne) *AgentContext {
	var settings crm.Settings
	if b1.settings != nil {
		settings = *b1.settings
	}
	var ws crm.Workspace
	if b1.workspace != nil {
		ws = *b1.workspace
	}
	mode := settings.AgentMode
	switch mode {
	case crm.ModeExecute, crm.ModeOrganize, crm.ModeFilter:
	default:
		mode = crm.ModeFilter
	}

	working := Window{
		Start: orDefault(settings.WorkingHoursStart, defaultWorkStart),
		End:   orDefault(settings.WorkingHoursEnd, defaultWorkEnd),
	}
	text := Window{
		Start: orDefault(settings.TextAllowedStart, defaultContactStart),
		End:   orDefault(settings.TextAllowedEnd, defaultContactEnd),
	}
	call := Window{
		Start: orDefault(settings.CallAllowedStart, defaultContactStart),
		End:   orDefault(settings.CallAllowedEnd, defaultContactEnd),
	}

	glossary := b1.glossary
	if glossary == nil {
		glossary = []crm.RepairItem{}
	}
	report := ReconcilePricing(glossary, b1.completed)
	negative := mergeNegativeScope(ws.ExclusionCriteria, b1.negative)

	return &AgentContext{
		WorkspaceID:      workspaceID,
		UserID:           userID,
		Role:             role,
		IsManager:        role.IsManager(),
		Mode:             mode,
		Settings:         settings,
		Workspace:        ws,
		WorkingHours:     working,
		TextWindow:       text,
		CallWindow:       call,
		NegativeScope:    negative,
		Glossary:         glossary,
		Historical:       report.Historical,
		PricingConflicts: report.Conflicts,

		KnowledgeBase: knowledgeBaseSection(ws, b1.profile, b1.services),
		AgentMode:     agentModeSection(mode),
		WorkingHrs:    workingHoursSection(working),
		AgentScript:   agentScriptSection(settings, ws),
		AllowedTimes:  allowedTimesSection(text, call),
		Preferences:   preferencesSection(settings.AIPreferences),
		PricingRules:  pricingRulesSection(settings.CallOutFee, glossarySection(glossary, report)),
		Bouncer:       bouncerSection(negative),
	}
}
