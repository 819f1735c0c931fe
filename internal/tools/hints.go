// ABOUTME: Static remediation hints per parameter and advisory tool prerequisites.
// ABOUTME: The dispatcher reads these when validation fails or a prerequisite is unmet.

package tools

import "fmt"

// paramHints maps a parameter name to remediation text. Tool-specific
// entries are keyed "tool.param" and take precedence.
var paramHints = map[string]string{
	"campaignId":     "use list-campaigns to obtain a valid campaign id",
	"leadId":         "use list-leads to obtain a valid lead id",
	"list_id":        "use list-lead-lists to obtain a valid lead list id",
	"reply_to_uuid":  "use list-emails to obtain the id of the email to reply to",
	"eaccount":       "use list-accounts to pick a connected sending account",
	"email_list":     "use list-accounts to find connected sending account emails",
	"emails":         "use list-accounts to find connected sending account emails",
	"leads":          "pass an array of lead objects, each with at least an email field (max 100 per call)",
	"limit":          "pass an integer between 1 and 100",
	"starting_after": "pass the next_starting_after value from the previous page",
	"status":         "pass one of draft, active, paused or completed",
	"email":          "pass a full email address such as jane@example.com",
	"name":           "pass a non-empty name",
	"subject":        "pass a non-empty subject line",
	"body":           "pass a non-empty plain-text body",
	"daily_limit":    "pass an integer between 1 and 10000",

	"get-campaign-analytics.campaignId": "use list-campaigns to obtain a valid campaign id, or omit it for all campaigns",
	"create-lead-list.name":             "pass a non-empty lead list name",
	"create-campaign.name":              "pass a non-empty campaign name",
}

// ParamHint returns remediation text for a parameter of a tool.
func ParamHint(tool, param string) string {
	if h, ok := paramHints[tool+"."+param]; ok {
		return h
	}
	if h, ok := paramHints[param]; ok {
		return h
	}
	return fmt.Sprintf("check the %s parameter against the schema from tools/list", param)
}

// Prerequisite names the tools that usually run before a tool.
type Prerequisite struct {
	Tools  []string
	Reason string
}

// prerequisites is advisory: callers are told about unmet entries, never
// blocked by them.
var prerequisites = map[string]Prerequisite{
	"get-campaign-details":   {[]string{"list-campaigns", "create-campaign"}, "a campaign id"},
	"update-campaign":        {[]string{"list-campaigns", "create-campaign"}, "a campaign id"},
	"activate-campaign":      {[]string{"list-campaigns", "create-campaign"}, "a campaign id"},
	"pause-campaign":         {[]string{"list-campaigns", "create-campaign"}, "a campaign id"},
	"add-leads":              {[]string{"list-campaigns", "create-campaign"}, "a valid campaign id"},
	"create-campaign":        {[]string{"list-accounts"}, "connected sending account emails"},
	"get-warmup-analytics":   {[]string{"list-accounts"}, "connected sending account emails"},
	"get-lead":               {[]string{"list-leads"}, "a lead id"},
	"delete-lead":            {[]string{"list-leads"}, "a lead id"},
	"reply-to-email":         {[]string{"list-emails"}, "the id of a received email"},
	"get-campaign-analytics": {[]string{"list-campaigns"}, "campaign ids"},
}

// PrerequisiteFor returns the advisory prerequisite for a tool, if any.
func PrerequisiteFor(tool string) (Prerequisite, bool) {
	p, ok := prerequisites[tool]
	return p, ok
}

// Note renders the advisory text shown when no prerequisite tool has run.
func (p Prerequisite) Note(tool string) string {
	return fmt.Sprintf("Prerequisite: %s usually needs %s from %s, which has not been called in this session.",
		tool, p.Reason, joinOr(p.Tools))
}

func joinOr(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := names[0]
	for _, n := range names[1 : len(names)-1] {
		out += ", " + n
	}
	return out + " or " + names[len(names)-1]
}
