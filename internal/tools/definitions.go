// ABOUTME: The static Instantly tool table: names, descriptions, schemas, and handlers.
// ABOUTME: Adding a tool means adding one entry here plus its docs and hints.

package tools

import "github.com/google/jsonschema-go/jsonschema"

func definitions() []*Definition {
	return []*Definition{
		// Credential
		{
			Name:        "check-api-key",
			Description: "Verify that the configured Instantly API key is accepted",
			Schema:      object(nil, nil),
			Handler:     checkAPIKey,
		},

		// Campaigns
		{
			Name:        "list-campaigns",
			Description: "List campaigns in the workspace",
			Schema: object(nil, map[string]*jsonschema.Schema{
				"limit":          limitParam(),
				"starting_after": cursorParam(),
				"search":         str("Filter campaigns by name"),
				"status":         enum("Filter by campaign status", campaignStatuses()...),
			}),
			Handler: listCampaigns,
		},
		{
			Name:        "get-campaign-details",
			Description: "Get a campaign's settings, schedule, and sequences",
			Schema: object([]string{"campaignId"}, map[string]*jsonschema.Schema{
				"campaignId": id("Campaign id"),
			}),
			Handler: getCampaign,
		},
		{
			Name:        "create-campaign",
			Description: "Create a campaign with sending accounts, schedule, and an optional first email",
			Schema: object([]string{"name", "email_list"}, map[string]*jsonschema.Schema{
				"name":          nonEmpty("Campaign name"),
				"email_list":    array("Sending account email addresses", emailAddr("Sending account email"), 1, 0),
				"subject":       str("Subject of the first sequence step"),
				"body":          str("Body of the first sequence step"),
				"timezone":      str("IANA timezone for the sending schedule (default America/Chicago)"),
				"schedule_from": str("Daily sending window start, HH:MM (default 09:00)"),
				"schedule_to":   str("Daily sending window end, HH:MM (default 17:00)"),
				"daily_limit":   integer("Maximum emails sent per day", 1, 10000),
				"stop_on_reply": boolean("Stop the sequence for a lead once they reply"),
			}),
			Handler: createCampaign,
		},
		{
			Name:        "update-campaign",
			Description: "Update campaign settings",
			Schema: object([]string{"campaignId"}, map[string]*jsonschema.Schema{
				"campaignId":    id("Campaign id"),
				"name":          nonEmpty("New campaign name"),
				"email_list":    array("Sending account email addresses", emailAddr("Sending account email"), 1, 0),
				"daily_limit":   integer("Maximum emails sent per day", 1, 10000),
				"stop_on_reply": boolean("Stop the sequence for a lead once they reply"),
				"open_tracking": boolean("Track email opens"),
				"link_tracking": boolean("Track link clicks"),
			}),
			Handler: updateCampaign,
		},
		{
			Name:        "activate-campaign",
			Description: "Start sending a campaign",
			Schema: object([]string{"campaignId"}, map[string]*jsonschema.Schema{
				"campaignId": id("Campaign id"),
			}),
			Handler: campaignAction("activate"),
		},
		{
			Name:        "pause-campaign",
			Description: "Pause a running campaign",
			Schema: object([]string{"campaignId"}, map[string]*jsonschema.Schema{
				"campaignId": id("Campaign id"),
			}),
			Handler: campaignAction("pause"),
		},
		{
			Name:        "get-campaign-analytics",
			Description: "Get sent, open, reply, and bounce counts for one or all campaigns",
			Schema: object(nil, map[string]*jsonschema.Schema{
				"campaignId": id("Campaign id; omit for all campaigns"),
				"start_date": str("Start date, YYYY-MM-DD"),
				"end_date":   str("End date, YYYY-MM-DD"),
			}),
			Handler: campaignAnalytics,
		},

		// Accounts
		{
			Name:        "list-accounts",
			Description: "List sending accounts connected to the workspace",
			Schema: object(nil, map[string]*jsonschema.Schema{
				"limit":          limitParam(),
				"starting_after": cursorParam(),
				"search":         str("Filter accounts by email"),
			}),
			Handler: listAccounts,
		},
		{
			Name:        "get-warmup-analytics",
			Description: "Get warmup statistics for sending accounts",
			Schema: object([]string{"emails"}, map[string]*jsonschema.Schema{
				"emails": array("Sending account email addresses", emailAddr("Sending account email"), 1, 100),
			}),
			Handler: warmupAnalytics,
		},

		// Leads
		{
			Name:        "list-leads",
			Description: "List leads, optionally filtered by campaign or lead list",
			Schema: object(nil, map[string]*jsonschema.Schema{
				"campaignId":     id("Only leads in this campaign"),
				"list_id":        id("Only leads in this lead list"),
				"limit":          limitParam(),
				"starting_after": cursorParam(),
				"search":         str("Filter by name or email"),
			}),
			Handler: listLeads,
		},
		{
			Name:        "add-leads",
			Description: "Add leads to a campaign; reports per-lead outcomes",
			Schema: object([]string{"campaignId", "leads"}, map[string]*jsonschema.Schema{
				"campaignId":           id("Campaign to add the leads to"),
				"leads":                array("Leads to add", leadSchema(), 1, maxLeadsPerCall),
				"skip_if_in_workspace": boolean("Skip leads that already exist anywhere in the workspace"),
			}),
			Handler: addLeads,
		},
		{
			Name:        "get-lead",
			Description: "Get one lead",
			Schema: object([]string{"leadId"}, map[string]*jsonschema.Schema{
				"leadId": id("Lead id"),
			}),
			Handler: getLead,
		},
		{
			Name:        "delete-lead",
			Description: "Delete one lead",
			Schema: object([]string{"leadId"}, map[string]*jsonschema.Schema{
				"leadId": id("Lead id"),
			}),
			Handler: deleteLead,
		},

		// Lead lists
		{
			Name:        "list-lead-lists",
			Description: "List lead lists",
			Schema: object(nil, map[string]*jsonschema.Schema{
				"limit":          limitParam(),
				"starting_after": cursorParam(),
				"search":         str("Filter lead lists by name"),
			}),
			Handler: listLeadLists,
		},
		{
			Name:        "create-lead-list",
			Description: "Create a lead list",
			Schema: object([]string{"name"}, map[string]*jsonschema.Schema{
				"name":           nonEmpty("Lead list name"),
				"has_enrichment": boolean("Enable enrichment for leads added to this list"),
			}),
			Handler: createLeadList,
		},

		// Emails
		{
			Name:        "list-emails",
			Description: "List sent and received emails",
			Schema: object(nil, map[string]*jsonschema.Schema{
				"campaignId":     id("Only emails from this campaign"),
				"limit":          limitParam(),
				"starting_after": cursorParam(),
				"search":         str("Filter by subject, body, or address"),
			}),
			Handler: listEmails,
		},
		{
			Name:        "reply-to-email",
			Description: "Reply to a received email from a connected sending account",
			Schema: object([]string{"reply_to_uuid", "eaccount", "subject", "body"}, map[string]*jsonschema.Schema{
				"reply_to_uuid": id("Id of the email being replied to"),
				"eaccount":      emailAddr("Sending account that sends the reply"),
				"subject":       nonEmpty("Reply subject"),
				"body":          nonEmpty("Reply body, plain text"),
			}),
			Handler: replyToEmail,
		},

		// Verification
		{
			Name:        "verify-email",
			Description: "Check whether an email address is deliverable",
			Schema: object([]string{"email"}, map[string]*jsonschema.Schema{
				"email": emailAddr("Address to verify"),
			}),
			Handler: verifyEmail,
		},
	}
}

func leadSchema() *jsonschema.Schema {
	return object([]string{"email"}, map[string]*jsonschema.Schema{
		"email":            emailAddr("Lead email address"),
		"first_name":       str("First name"),
		"last_name":        str("Last name"),
		"company_name":     str("Company name"),
		"personalization":  str("Personalization line"),
		"website":          str("Website"),
		"phone":            str("Phone number"),
		"custom_variables": freeform("Custom template variables"),
	})
}
