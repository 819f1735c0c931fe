// ABOUTME: Static per-tool guidance: resource types for 404s and compound preconditions for 400s.
// ABOUTME: Keyed by tool name so every message points at a concrete remediation tool.

package classify

// resource describes what a tool operates on and how to discover valid ids.
type resource struct {
	noun      string
	discovery string
}

var (
	campaignResource = resource{"campaign", "list-campaigns"}
	leadResource     = resource{"lead", "list-leads"}
	accountResource  = resource{"sending account", "list-accounts"}
	emailResource    = resource{"email", "list-emails"}
	leadListResource = resource{"lead list", "list-lead-lists"}
	genericResource  = resource{"resource", "tools/list"}
)

var toolResources = map[string]resource{
	"list-campaigns":         campaignResource,
	"get-campaign-details":   campaignResource,
	"create-campaign":        campaignResource,
	"update-campaign":        campaignResource,
	"activate-campaign":      campaignResource,
	"pause-campaign":         campaignResource,
	"get-campaign-analytics": campaignResource,
	"add-leads":              campaignResource,
	"list-leads":             leadResource,
	"get-lead":               leadResource,
	"delete-lead":            leadResource,
	"list-accounts":          accountResource,
	"get-warmup-analytics":   accountResource,
	"list-emails":            emailResource,
	"reply-to-email":         emailResource,
	"list-lead-lists":        leadListResource,
	"create-lead-list":       leadListResource,
}

// compoundPreconditions lists what must hold before tools with multi-step
// setup requirements can succeed.
var compoundPreconditions = map[string][]string{
	"add-leads": {
		"the campaign exists (use list-campaigns to obtain a valid campaignId)",
		"the campaign is not completed (check its status with get-campaign-details; draft, active and paused campaigns accept leads)",
		"the campaign has at least one sending account assigned (use list-accounts, then update-campaign with email_list)",
		"every lead has a syntactically valid email address",
		"the leads are not already in the campaign or blocklisted",
	},
	"activate-campaign": {
		"the campaign has at least one sending account assigned (use list-accounts)",
		"the campaign has at least one sequence step with a subject and body",
		"the campaign schedule has at least one sending window",
		"the campaign contains leads (use add-leads)",
	},
	"create-campaign": {
		"name is non-empty",
		"email_list contains sending accounts that exist in the workspace (use list-accounts)",
		"the schedule timezone is a valid IANA name when provided",
	},
	"reply-to-email": {
		"reply_to_uuid is the id of a received email (use list-emails)",
		"eaccount is a sending account connected to the workspace (use list-accounts)",
		"subject and body are non-empty",
	},
}

// GuidedTools returns every tool name the guidance tables mention.
func GuidedTools() []string {
	seen := make(map[string]bool)
	var names []string
	for name := range toolResources {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range compoundPreconditions {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func resourceFor(toolName string) resource {
	if r, ok := toolResources[toolName]; ok {
		return r
	}
	return genericResource
}
