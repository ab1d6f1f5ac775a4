package agentcontext

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

const (
	defaultWorkStart    = "08:00"
	defaultWorkEnd      = "17:00"
	defaultContactStart = "08:00"
	defaultContactEnd   = "20:00"
)

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func knowledgeBaseSection(ws crm.Workspace, profile *crm.BusinessProfile, services []crm.KnowledgeRule) string {
	var b strings.Builder
	b.WriteString("\nBUSINESS IDENTITY:")
	if ws.Name != "" {
		fmt.Fprintf(&b, "\n- Business Name: %s", ws.Name)
	}
	if ws.Location != "" {
		fmt.Fprintf(&b, "\n- Service Area: %s", ws.Location)
	}
	if ws.PhoneNumber != "" {
		fmt.Fprintf(&b, "\n- Business Phone: %s", ws.PhoneNumber)
	}
	if profile != nil {
		if profile.TradeType != "" {
			fmt.Fprintf(&b, "\n- Trade: %s", profile.TradeType)
		}
		if profile.Website != "" {
			fmt.Fprintf(&b, "\n- Website: %s", profile.Website)
		}
		if profile.BaseSuburb != "" {
			fmt.Fprintf(&b, "\n- Base Location: %s", profile.BaseSuburb)
		}
		if profile.ServiceRadiusKM > 0 {
			fmt.Fprintf(&b, "\n- Service Radius: %dkm", profile.ServiceRadiusKM)
		}
		if profile.StandardWorkHours != "" {
			fmt.Fprintf(&b, "\n- Standard Hours: %s", profile.StandardWorkHours)
		}
		if profile.EmergencyService {
			b.WriteString("\n- Emergency Service: Available")
			if profile.EmergencySurcharge > 0 {
				fmt.Fprintf(&b, " (+%s surcharge)", formatMoney(profile.EmergencySurcharge))
			}
		}
	}
	b.WriteString("\nUse this information when texting, calling, or emailing customers on behalf of the business. Always represent the business professionally.")
	b.WriteString("\nOn incoming voice calls, Travis (the voice agent) can transfer callers to the tradie's mobile if they ask to speak to the human; the tradie's number is stored in the app profile.")

	if len(services) > 0 {
		b.WriteString("\n\nSERVICES OFFERED (from Knowledge Base):")
		for _, s := range services {
			fmt.Fprintf(&b, "\n- %s", s.RuleContent)
			if pr := s.Metadata["priceRange"]; pr != "" {
				fmt.Fprintf(&b, " (%s)", pr)
			}
			if d := s.Metadata["duration"]; d != "" {
				fmt.Fprintf(&b, ", est. %s", d)
			}
		}
	}
	return b.String()
}

func agentModeSection(mode crm.AgentMode) string {
	switch mode {
	case crm.ModeExecute:
		return "\nAGENT OVERRIDE MODE: EXECUTE. You have full autonomy. Calculate the price based on standard glossary pricing below. If no exact match, make an educated estimate. You may execute creation, moving, scheduling, or proposing of jobs directly based on smart geolocation."
	case crm.ModeOrganize:
		return "\nAGENT OVERRIDE MODE: ORGANIZE. You are operating as a liaison. Always wait for user approvals or confirmations. You should propose times to the customer, but rely on the UX 'Draft' cards for final user confirmation."
	default:
		return "\nAGENT OVERRIDE MODE: FILTER. You are a screening receptionist ONLY. Extract information, but DO NOT schedule, propose times, or provide pricing. Tell the user you will pass their details on."
	}
}

func workingHoursSection(w Window) string {
	return fmt.Sprintf("\nWORKING HOURS: Your company working hours are strictly %s to %s. DO NOT SCHEDULE jobs outside of this window.", w.Start, w.End)
}

func agentScriptSection(settings crm.Settings, ws crm.Workspace) string {
	name := orDefault(settings.AgentBusinessName, orDefault(ws.Name, "this business"))

	var b strings.Builder
	if opening := strings.TrimSpace(settings.AgentOpeningMessage); opening != "" {
		fmt.Fprintf(&b, "\nAGENT INTRODUCTION (customers only): When YOU contact a CUSTOMER (SMS, email, or call to them, not in this dashboard chat), START with this exact opening (or very close): %q. Do NOT use this when replying in the dashboard chat to the business owner.", opening)
	} else {
		fmt.Fprintf(&b, "\nAGENT INTRODUCTION (customers only): When YOU contact a CUSTOMER (SMS, email, or call to them, not in this dashboard chat), START with: %q. Do NOT use this when replying in the dashboard chat to the business owner.", "Hi I'm Travis, the AI assistant for "+name)
	}
	if closing := strings.TrimSpace(settings.AgentClosingMessage); closing != "" {
		fmt.Fprintf(&b, "\nAGENT SIGN-OFF (customers only): When YOU contact a CUSTOMER, END messages with this exact sign-off (or very close): %q. Do NOT use this sign-off when replying in the dashboard chat to the business owner.", closing)
	} else {
		fmt.Fprintf(&b, "\nAGENT SIGN-OFF (customers only): When YOU contact a CUSTOMER, END with: %q. Do NOT use this sign-off when replying in the dashboard chat to the business owner.", "Kind regards, Travis (AI assistant for "+name+")")
	}
	return b.String()
}

func allowedTimesSection(text, call Window) string {
	return fmt.Sprintf("\nALLOWED TIMES: Only send texts between %s and %s (local time). Only place outbound calls between %s and %s. If the user asks to message or call outside these windows, say you're outside contact hours and will do it during the allowed window.",
		text.Start, text.End, call.Start, call.End)
}

func preferencesSection(prefs string) string {
	if strings.TrimSpace(prefs) == "" {
		return ""
	}
	return "\nUSER PREFERENCES (Follow these strictly):\n" + prefs
}

func glossarySection(items []crm.RepairItem, report PricingReport) string {
	var b strings.Builder
	b.WriteString("\n\nGLOSSARY OF APPROVED PRICES:\n")
	if len(items) == 0 {
		b.WriteString("(Empty - No approved standard prices exist. Do not quote specific prices for any task.)")
	} else {
		lines := make([]string, 0, len(items))
		for _, item := range items {
			desc := item.Description
			if desc == "" {
				desc = "No pricing specified"
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", item.Title, desc))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	if len(report.Historical) > 0 {
		b.WriteString("\n\nHISTORICAL PRICE RANGES (from past invoices, use as reference, not as quotes):")
		for _, h := range report.Historical {
			fmt.Fprintf(&b, "\n- %s: Typically %s–%s (avg %s, %d past jobs)",
				h.Title, formatMoney(h.Min), formatMoney(h.Max), formatMoney(h.Avg), h.Count)
		}
		b.WriteString("\nNOTE: Glossary approved prices are the PRIMARY source of truth. Historical ranges are secondary reference only.")
		b.WriteString("\nNever quote historical ranges as fixed prices. Say 'Similar jobs have typically been between $X and $Y' if asked.")
	}
	if len(report.Conflicts) > 0 {
		b.WriteString("\n\nPRICING CONFLICTS DETECTED (glossary vs actual invoices, verify before quoting):")
		for _, c := range report.Conflicts {
			b.WriteString("\n- " + c)
		}
	}
	return b.String()
}

func pricingRulesSection(callOutFee float64, glossary string) string {
	fee := formatMoney(callOutFee)
	return "\nSTRICT PRICING RULES (HARD BRAKE):" +
		"\n1. NEVER agree on a final price immediately UNLESS it is an EXACT match for a task explicitly listed in the GLOSSARY OF APPROVED PRICES below." +
		"\n2. If the user asks for a price for a task that is NOT in the Glossary, you MUST NOT invent, hallucinate, or estimate a specific cost. You MUST state that a firm quote requires an on-site assessment." +
		"\n3. Focus heavily on locking down the booking/assessment first." +
		"\n4. If asked for general pricing and the task is custom/not in the glossary, quote the standard Call-Out Fee of " + fee +
		". Say: \"Our standard call-out fee is " + fee + " which covers the assessment, then we can give you a firm quote.\"\n" +
		glossary
}

// mergeNegativeScope unions the free-text exclusion criteria (one rule per
// line) with the NEGATIVE_SCOPE knowledge rules, dropping blanks.
func mergeNegativeScope(exclusionCriteria string, rules []crm.KnowledgeRule) []string {
	var merged []string
	for _, line := range strings.Split(exclusionCriteria, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			merged = append(merged, line)
		}
	}
	for _, r := range rules {
		if c := strings.TrimSpace(r.RuleContent); c != "" {
			merged = append(merged, c)
		}
	}
	return merged
}

func bouncerSection(negative []string) string {
	if len(negative) == 0 {
		return "\nLEAD QUALIFICATION GUARDRAIL: You have no exclusion rules configured. NEVER decline any lead, for any reason. Always proceed with full triage. If you suspect a job is low-value or problematic, flag it for the owner with add_agent_flag. NEVER turn away business."
	}

	rules := make([]string, len(negative))
	for i, r := range negative {
		rules[i] = "- " + r
	}

	return `
LEAD QUALIFICATION (BOUNCER vs. ADVISOR, CRITICAL):

PHASE A, THE HARD FILTER (Bouncer):
The following are STRICT NO-GO rules. You are ONLY permitted to decline a lead if it matches one of these EXACTLY:
` + strings.Join(rules, "\n") + `
When a lead matches a No-Go rule: politely inform the caller, "I'm sorry, we don't currently handle [specific job type/location/condition].", then end the triage.

PHASE B, THE TRIAGE & FLAG (Advisor):
If the job does NOT violate any of the above No-Go rules, you MUST proceed with triage. Even if the job looks low-value, far away, or technically difficult, you are NOT allowed to decline it.
Continue triage normally: ask for address, issue, urgency. Fill the Job Draft Card. If you have concerns (e.g. "This lead is 45km away", "Potential tire-kicker"), record them with add_agent_flag as a private flag. The owner/manager will see these flags on their dashboard.

CRITICAL GUARDRAIL: You are a professional assistant, not the business owner. You have ZERO authority to turn away business unless it matches a pre-defined Hard Constraint above. If a job seems "bad" but isn't on the No-Go list, capture every detail and add a private flag explaining your concern. NEVER assume a No-Go.

REAL-TIME INSTRUCTION CAPTURE: If the business owner says "Next time, don't take jobs for X" or "Stop accepting Y", you MUST clarify: "Should I strictly decline these from now on, or just flag them for you?" If they say "Decline": call update_ai_preferences with the rule prefixed [HARD_CONSTRAINT]. If they say "Flag": call update_ai_preferences with the rule prefixed [FLAG_ONLY].`
}
