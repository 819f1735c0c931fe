// ABOUTME: Tool handlers translating validated arguments into Instantly API calls.
// ABOUTME: Each handler decodes a typed input and returns the backend payload.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/2389/instantly-mcp/internal/classify"
)

// maxLeadsPerCall bounds add-leads so one call stays within the request budget.
const maxLeadsPerCall = 100

var campaignStatusCodes = map[string]int{
	"draft":     0,
	"active":    1,
	"paused":    2,
	"completed": 3,
}

func campaignStatuses() []string {
	names := make([]string, 0, len(campaignStatusCodes))
	for name := range campaignStatusCodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return campaignStatusCodes[names[i]] < campaignStatusCodes[names[j]] })
	return names
}

func decode(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return classify.New(classify.BadRequest, fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// payload returns the response body, or a small status object when empty.
func payload(data json.RawMessage, fallback string) any {
	if len(data) == 0 {
		return map[string]string{"status": fallback}
	}
	return data
}

type pageInput struct {
	Limit         int    `json:"limit"`
	StartingAfter string `json:"starting_after"`
	Search        string `json:"search"`
}

func (p pageInput) query() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.StartingAfter != "" {
		q.Set("starting_after", p.StartingAfter)
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	return q
}

func checkAPIKey(ctx context.Context, b Backend, _ json.RawMessage) (any, error) {
	resp, err := b.Call(ctx, http.MethodGet, "/campaigns", url.Values{"limit": {"1"}}, nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	payload := map[string]any{
		"valid":  true,
		"status": resp.Status,
	}
	// Validity rests on the status alone; the count is reported only when
	// the body is a recognizable page.
	if err := resp.Decode(&page); err == nil && page.Items != nil {
		payload["campaigns_returned"] = len(page.Items)
	}
	return Reply{
		Message: "API key is valid: Instantly accepted the credential.",
		Payload: payload,
	}, nil
}

type listCampaignsInput struct {
	pageInput
	Status string `json:"status"`
}

func listCampaigns(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in listCampaignsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	q := in.query()
	if code, ok := campaignStatusCodes[in.Status]; ok {
		q.Set("status", strconv.Itoa(code))
	}
	resp, err := b.Call(ctx, http.MethodGet, "/campaigns", q, nil)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

type campaignIDInput struct {
	CampaignID string `json:"campaignId"`
}

func getCampaign(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in campaignIDInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	resp, err := b.Call(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(in.CampaignID), nil, nil)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

type createCampaignInput struct {
	Name         string   `json:"name"`
	EmailList    []string `json:"email_list"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	Timezone     string   `json:"timezone"`
	ScheduleFrom string   `json:"schedule_from"`
	ScheduleTo   string   `json:"schedule_to"`
	DailyLimit   int      `json:"daily_limit"`
	StopOnReply  *bool    `json:"stop_on_reply"`
}

func createCampaign(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in createCampaignInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	tz := orDefault(in.Timezone, "America/Chicago")
	body := map[string]any{
		"name":       in.Name,
		"email_list": in.EmailList,
		"campaign_schedule": map[string]any{
			"schedules": []map[string]any{{
				"name":     "Default",
				"timezone": tz,
				"timing": map[string]string{
					"from": orDefault(in.ScheduleFrom, "09:00"),
					"to":   orDefault(in.ScheduleTo, "17:00"),
				},
				"days": map[string]bool{"1": true, "2": true, "3": true, "4": true, "5": true},
			}},
		},
	}
	if in.Subject != "" || in.Body != "" {
		body["sequences"] = []map[string]any{{
			"steps": []map[string]any{{
				"type":     "email",
				"delay":    0,
				"variants": []map[string]string{{"subject": in.Subject, "body": in.Body}},
			}},
		}}
	}
	if in.DailyLimit > 0 {
		body["daily_limit"] = in.DailyLimit
	}
	if in.StopOnReply != nil {
		body["stop_on_reply"] = *in.StopOnReply
	}

	resp, err := b.Call(ctx, http.MethodPost, "/campaigns", nil, body)
	if err != nil {
		return nil, err
	}
	return Reply{
		Message: fmt.Sprintf("Campaign %q created. It stays a draft until activate-campaign is called.", in.Name),
		Payload: payload(resp.Data, "created"),
	}, nil
}

type updateCampaignInput struct {
	CampaignID   string   `json:"campaignId"`
	Name         string   `json:"name"`
	EmailList    []string `json:"email_list"`
	DailyLimit   int      `json:"daily_limit"`
	StopOnReply  *bool    `json:"stop_on_reply"`
	OpenTracking *bool    `json:"open_tracking"`
	LinkTracking *bool    `json:"link_tracking"`
}

func updateCampaign(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in updateCampaignInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	body := map[string]any{}
	if in.Name != "" {
		body["name"] = in.Name
	}
	if len(in.EmailList) > 0 {
		body["email_list"] = in.EmailList
	}
	if in.DailyLimit > 0 {
		body["daily_limit"] = in.DailyLimit
	}
	if in.StopOnReply != nil {
		body["stop_on_reply"] = *in.StopOnReply
	}
	if in.OpenTracking != nil {
		body["open_tracking"] = *in.OpenTracking
	}
	if in.LinkTracking != nil {
		body["link_tracking"] = *in.LinkTracking
	}
	if len(body) == 0 {
		return nil, classify.New(classify.BadRequest,
			"update-campaign needs at least one field to change: name, email_list, daily_limit, stop_on_reply, open_tracking or link_tracking.")
	}

	resp, err := b.Call(ctx, http.MethodPatch, "/campaigns/"+url.PathEscape(in.CampaignID), nil, body)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "updated"), nil
}

func campaignAction(action string) Handler {
	return func(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
		var in campaignIDInput
		if err := decode(input, &in); err != nil {
			return nil, err
		}
		resp, err := b.Call(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(in.CampaignID)+"/"+action, nil, nil)
		if err != nil {
			return nil, err
		}
		return payload(resp.Data, action+"d"), nil
	}
}

type analyticsInput struct {
	CampaignID string `json:"campaignId"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

func campaignAnalytics(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in analyticsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	q := url.Values{}
	if in.CampaignID != "" {
		q.Set("id", in.CampaignID)
	}
	if in.StartDate != "" {
		q.Set("start_date", in.StartDate)
	}
	if in.EndDate != "" {
		q.Set("end_date", in.EndDate)
	}
	resp, err := b.Call(ctx, http.MethodGet, "/campaigns/analytics", q, nil)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

func listAccounts(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in pageInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	resp, err := b.Call(ctx, http.MethodGet, "/accounts", in.query(), nil)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

type warmupInput struct {
	Emails []string `json:"emails"`
}

func warmupAnalytics(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in warmupInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	resp, err := b.Call(ctx, http.MethodPost, "/accounts/warmup-analytics", nil, map[string]any{"emails": in.Emails})
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

type listLeadsInput struct {
	pageInput
	CampaignID string `json:"campaignId"`
	ListID     string `json:"list_id"`
}

func listLeads(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in listLeadsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	body := map[string]any{}
	if in.CampaignID != "" {
		body["campaign"] = in.CampaignID
	}
	if in.ListID != "" {
		body["list_id"] = in.ListID
	}
	if in.Limit > 0 {
		body["limit"] = in.Limit
	}
	if in.StartingAfter != "" {
		body["starting_after"] = in.StartingAfter
	}
	if in.Search != "" {
		body["search"] = in.Search
	}
	resp, err := b.Call(ctx, http.MethodPost, "/leads/list", nil, body)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

type leadInput struct {
	Email           string         `json:"email"`
	FirstName       string         `json:"first_name,omitempty"`
	LastName        string         `json:"last_name,omitempty"`
	CompanyName     string         `json:"company_name,omitempty"`
	Personalization string         `json:"personalization,omitempty"`
	Website         string         `json:"website,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	CustomVariables map[string]any `json:"custom_variables,omitempty"`
}

type addLeadsInput struct {
	CampaignID        string      `json:"campaignId"`
	Leads             []leadInput `json:"leads"`
	SkipIfInWorkspace bool        `json:"skip_if_in_workspace"`
}

// LeadOutcome is the result of adding one lead.
type LeadOutcome struct {
	Email string          `json:"email"`
	OK    bool            `json:"ok"`
	Lead  json.RawMessage `json:"lead,omitempty"`
	Kind  string          `json:"error_kind,omitempty"`
	Error string          `json:"error,omitempty"`
}

// addLeads posts one lead at a time. Partial failure is still a success
// with per-lead outcomes; if every lead fails the first failure is returned.
func addLeads(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in addLeadsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}

	outcomes := make([]LeadOutcome, 0, len(in.Leads))
	var firstErr error
	added := 0
	for _, lead := range in.Leads {
		body := struct {
			leadInput
			Campaign          string `json:"campaign"`
			SkipIfInWorkspace bool   `json:"skip_if_in_workspace,omitempty"`
		}{lead, in.CampaignID, in.SkipIfInWorkspace}

		resp, err := b.Call(ctx, http.MethodPost, "/leads", nil, body)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			f := classify.Classify(err, "add-leads")
			outcomes = append(outcomes, LeadOutcome{Email: lead.Email, Kind: f.Kind.String(), Error: f.Message})
			continue
		}
		added++
		outcomes = append(outcomes, LeadOutcome{Email: lead.Email, OK: true, Lead: resp.Data})
	}

	if added == 0 && firstErr != nil {
		return nil, fmt.Errorf("adding %d leads: %w", len(in.Leads), firstErr)
	}

	failed := len(in.Leads) - added
	msg := fmt.Sprintf("Added %d of %d leads to campaign %s.", added, len(in.Leads), in.CampaignID)
	if failed > 0 {
		msg += fmt.Sprintf(" %d failed; see the per-lead outcomes.", failed)
	}
	return Reply{
		Message: msg,
		Payload: map[string]any{
			"added":    added,
			"failed":   failed,
			"outcomes": outcomes,
		},
	}, nil
}

type leadIDInput struct {
	LeadID string `json:"leadId"`
}

func getLead(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in leadIDInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	resp, err := b.Call(ctx, http.MethodGet, "/leads/"+url.PathEscape(in.LeadID), nil, nil)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

func deleteLead(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in leadIDInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	resp, err := b.Call(ctx, http.MethodDelete, "/leads/"+url.PathEscape(in.LeadID), nil, nil)
	if err != nil {
		return nil, err
	}
	return Reply{
		Message: fmt.Sprintf("Lead %s deleted.", in.LeadID),
		Payload: payload(resp.Data, "deleted"),
	}, nil
}

func listLeadLists(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in pageInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	resp, err := b.Call(ctx, http.MethodGet, "/lead-lists", in.query(), nil)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

type createLeadListInput struct {
	Name          string `json:"name"`
	HasEnrichment bool   `json:"has_enrichment"`
}

func createLeadList(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in createLeadListInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	body := map[string]any{"name": in.Name}
	if in.HasEnrichment {
		body["has_enrichment_task"] = true
	}
	resp, err := b.Call(ctx, http.MethodPost, "/lead-lists", nil, body)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "created"), nil
}

type listEmailsInput struct {
	pageInput
	CampaignID string `json:"campaignId"`
}

func listEmails(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in listEmailsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	q := in.query()
	if in.CampaignID != "" {
		q.Set("campaign_id", in.CampaignID)
	}
	resp, err := b.Call(ctx, http.MethodGet, "/emails", q, nil)
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "ok"), nil
}

type replyInput struct {
	ReplyToUUID string `json:"reply_to_uuid"`
	EAccount    string `json:"eaccount"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

func replyToEmail(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in replyInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	body := map[string]any{
		"reply_to_uuid": in.ReplyToUUID,
		"eaccount":      in.EAccount,
		"subject":       in.Subject,
		"body":          map[string]string{"text": in.Body},
	}
	resp, err := b.Call(ctx, http.MethodPost, "/emails/reply", nil, body)
	if err != nil {
		return nil, err
	}
	return Reply{
		Message: fmt.Sprintf("Reply sent from %s.", in.EAccount),
		Payload: payload(resp.Data, "sent"),
	}, nil
}

type verifyInput struct {
	Email string `json:"email"`
}

func verifyEmail(ctx context.Context, b Backend, input json.RawMessage) (any, error) {
	var in verifyInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	resp, err := b.Call(ctx, http.MethodPost, "/email-verification", nil, map[string]string{"email": in.Email})
	if err != nil {
		return nil, err
	}
	return payload(resp.Data, "submitted"), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
