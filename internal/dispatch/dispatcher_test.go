// ABOUTME: Tests for tool dispatch: lookup, validation, prerequisites, and failure normalization.
// ABOUTME: Uses a recording backend so handler invocation can be asserted directly.

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/instantly-mcp/internal/classify"
	"github.com/2389/instantly-mcp/internal/instantly"
	"github.com/2389/instantly-mcp/internal/metrics"
	"github.com/2389/instantly-mcp/internal/tools"
)

type stubBackend struct {
	mu     sync.Mutex
	calls  []string
	status int
	data   string
	err    error
}

func (b *stubBackend) Call(_ context.Context, method, path string, _ url.Values, _ any) (*instantly.Response, error) {
	b.mu.Lock()
	b.calls = append(b.calls, method+" "+path)
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	data := b.data
	if data == "" {
		data = `{"ok":true}`
	}
	return &instantly.Response{Status: 200, Data: json.RawMessage(data)}, nil
}

func (b *stubBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type testScope struct {
	catalog *tools.Catalog
	backend tools.Backend
	mu      sync.Mutex
	called  map[string]bool
}

func newScope(t *testing.T, b tools.Backend) *testScope {
	t.Helper()
	c, err := tools.NewCatalog()
	require.NoError(t, err)
	return &testScope{catalog: c, backend: b, called: map[string]bool{}}
}

func (s *testScope) Catalog() *tools.Catalog { return s.catalog }
func (s *testScope) Backend() tools.Backend  { return s.backend }

func (s *testScope) Called(names ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if s.called[n] {
			return true
		}
	}
	return false
}

func (s *testScope) Record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called[name] = true
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []string
}

func (o *recordingObserver) ObserveToolCall(tool, kind string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, tool+":"+kind)
}

func TestDispatch_Success(t *testing.T) {
	b := &stubBackend{data: `{"items":[]}`}
	scope := newScope(t, b)
	obs := &recordingObserver{}
	d := New(Options{Observer: obs})

	res := d.Dispatch(context.Background(), scope, "list-campaigns", json.RawMessage(`{"limit":10}`))

	require.False(t, res.IsError())
	assert.JSONEq(t, `{"items":[]}`, res.Text)
	assert.Equal(t, []string{"GET /campaigns"}, b.calls)
	assert.True(t, scope.Called("list-campaigns"))
	assert.Equal(t, []string{"list-campaigns:ok"}, obs.kinds)

	env := res.Envelope()
	require.Len(t, env.Content, 1)
	assert.Equal(t, "text", env.Content[0].Type)
	assert.False(t, env.IsError)
}

func TestDispatch_CheckAPIKeyMessage(t *testing.T) {
	scope := newScope(t, &stubBackend{data: `{"items":[{"id":"c1"}]}`})
	res := New(Options{}).Dispatch(context.Background(), scope, "check-api-key", json.RawMessage(`{}`))

	require.False(t, res.IsError())
	assert.True(t, strings.HasPrefix(res.Text, "API key is valid"))
	assert.Contains(t, res.Text, `"valid": true`)
}

func TestDispatch_UnknownTool(t *testing.T) {
	res := New(Options{}).Dispatch(context.Background(), newScope(t, &stubBackend{}), "launch-rockets", nil)

	require.True(t, res.IsError())
	assert.Equal(t, classify.NotFound, res.Failure.Kind)
	assert.Contains(t, res.Text, "tools/list")
}

func TestDispatch_UnknownToolNamesShareOneMetricLabel(t *testing.T) {
	m := metrics.New()
	obs := &recordingObserver{}
	scope := newScope(t, &stubBackend{})
	d := New(Options{Observer: m})
	recorded := New(Options{Observer: obs})

	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("bogus-tool-%d", i)
		d.Dispatch(context.Background(), scope, name, nil)
		recorded.Dispatch(context.Background(), scope, name, nil)
	}
	d.Dispatch(context.Background(), scope, "list-campaigns", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	var series []string
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "instantly_mcp_tool_calls_total{") {
			series = append(series, line)
		}
	}
	assert.ElementsMatch(t, []string{
		`instantly_mcp_tool_calls_total{kind="not_found",tool="unknown"} 200`,
		`instantly_mcp_tool_calls_total{kind="ok",tool="list-campaigns"} 1`,
	}, series)
	assert.NotContains(t, string(body), "bogus-tool")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.kinds, 200)
	for _, k := range obs.kinds {
		assert.Equal(t, UnknownToolLabel+":not_found", k)
	}
}

func TestDispatch_MissingRequiredParam(t *testing.T) {
	b := &stubBackend{}
	res := New(Options{}).Dispatch(context.Background(), newScope(t, b), "get-campaign-details", json.RawMessage(`{}`))

	require.True(t, res.IsError())
	assert.Equal(t, classify.BadRequest, res.Failure.Kind)
	assert.Contains(t, res.Text, "campaignId")
	assert.Contains(t, res.Text, "list-campaigns")
	assert.Zero(t, b.count(), "handler must not run on invalid params")
	assert.True(t, res.Envelope().IsError)
}

func TestDispatch_InvalidParamsNeverInvokeHandler(t *testing.T) {
	tests := []struct {
		tool  string
		args  string
		param string
	}{
		{"list-campaigns", `{"limit":"ten"}`, "limit"},
		{"list-campaigns", `{"limit":0}`, "limit"},
		{"list-campaigns", `{"limit":101}`, "limit"},
		{"list-campaigns", `{"limit":2.5}`, "limit"},
		{"list-campaigns", `{"status":"archived"}`, "status"},
		{"get-lead", `{"leadId":""}`, "leadId"},
		{"create-campaign", `{"name":"x","email_list":[]}`, "email_list"},
		{"add-leads", `{"campaignId":"c1","leads":[{"first_name":"A"}]}`, "leads[0].email"},
		{"add-leads", `{"campaignId":"c1","leads":"a@example.com"}`, "leads"},
		{"reply-to-email", `{"reply_to_uuid":"e1","eaccount":"s@example.com","subject":"s"}`, "body"},
		{"get-lead", `[1,2]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.tool+" "+tt.args, func(t *testing.T) {
			b := &stubBackend{}
			res := New(Options{}).Dispatch(context.Background(), newScope(t, b), tt.tool, json.RawMessage(tt.args))

			require.True(t, res.IsError())
			assert.Equal(t, classify.BadRequest, res.Failure.Kind)
			if tt.param != "" {
				assert.Contains(t, res.Text, `"`+tt.param+`"`)
			}
			assert.Zero(t, b.count())
		})
	}
}

func TestDispatch_NullParameterNamesTypeAndHint(t *testing.T) {
	tests := []struct {
		tool    string
		args    string
		message string
	}{
		{"list-leads", `{"campaignId":null}`,
			`Invalid parameter "campaignId" for list-leads: expected string, got null. Hint: use list-campaigns to obtain a valid campaign id.`},
		{"list-campaigns", `{"limit":null}`,
			`Invalid parameter "limit" for list-campaigns: expected integer, got null. Hint: pass an integer between 1 and 100.`},
		{"add-leads", `{"campaignId":"c1","leads":[{"email":"a@example.com","first_name":null}]}`,
			`Invalid parameter "leads[0].first_name" for add-leads: expected string, got null.`},
		{"get-lead", `{"leadId":null}`,
			`Invalid parameter "leadId" for get-lead: missing required parameter. Hint: use list-leads to obtain a valid lead id.`},
	}
	for _, tt := range tests {
		t.Run(tt.tool+" "+tt.args, func(t *testing.T) {
			b := &stubBackend{}
			res := New(Options{}).Dispatch(context.Background(), newScope(t, b), tt.tool, json.RawMessage(tt.args))

			require.True(t, res.IsError())
			assert.Equal(t, classify.BadRequest, res.Failure.Kind)
			assert.Contains(t, res.Text, tt.message)
			assert.NotContains(t, res.Text, "reflect")
			assert.Zero(t, b.count())
		})
	}
}

func TestDispatch_ExtraArgumentsIgnored(t *testing.T) {
	b := &stubBackend{}
	res := New(Options{}).Dispatch(context.Background(), newScope(t, b), "get-lead",
		json.RawMessage(`{"leadId":"l1","verbose":true}`))
	assert.False(t, res.IsError())
	assert.Equal(t, 1, b.count())
}

func TestDispatch_NullArguments(t *testing.T) {
	res := New(Options{}).Dispatch(context.Background(), newScope(t, &stubBackend{}), "list-accounts", json.RawMessage(`null`))
	assert.False(t, res.IsError())
}

func TestDispatch_PrerequisiteNote(t *testing.T) {
	scope := newScope(t, &stubBackend{})
	d := New(Options{})

	res := d.Dispatch(context.Background(), scope, "get-campaign-details", json.RawMessage(`{"campaignId":"c1"}`))
	require.False(t, res.IsError())
	assert.True(t, strings.HasPrefix(res.Text, "Prerequisite: "))

	d.Dispatch(context.Background(), scope, "list-campaigns", nil)

	res = d.Dispatch(context.Background(), scope, "get-campaign-details", json.RawMessage(`{"campaignId":"c1"}`))
	require.False(t, res.IsError())
	assert.False(t, strings.HasPrefix(res.Text, "Prerequisite: "))
}

func TestDispatch_PrerequisiteNoteOnFailure(t *testing.T) {
	scope := newScope(t, &stubBackend{err: &instantly.APIError{Status: 404, Message: "nope"}})
	res := New(Options{}).Dispatch(context.Background(), scope, "get-lead", json.RawMessage(`{"leadId":"l1"}`))

	require.True(t, res.IsError())
	assert.True(t, strings.HasPrefix(res.Text, "Prerequisite: "))
	assert.Contains(t, res.Text, "list-leads")
	assert.False(t, scope.Called("get-lead"), "failed calls are not recorded")
}

func TestDispatch_BackendFailuresClassified(t *testing.T) {
	tests := []struct {
		err  error
		kind classify.Kind
		text string
	}{
		{&instantly.APIError{Status: 401, Message: "Unauthorized"}, classify.AuthInvalid, "check-api-key"},
		{&instantly.APIError{Status: 429, Message: "slow down"}, classify.RateLimited, "100 requests per 10 seconds"},
		{context.DeadlineExceeded, classify.NetworkTimeout, "not rejected"},
		{&instantly.APIError{Status: 502, Message: "bad gateway"}, classify.ServerError, "502"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			scope := newScope(t, &stubBackend{err: tt.err})
			res := New(Options{}).Dispatch(context.Background(), scope, "list-campaigns", nil)

			require.True(t, res.IsError())
			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.Contains(t, res.Text, tt.text)
		})
	}
}

func customScope(t *testing.T, defs ...*tools.Definition) *testScope {
	t.Helper()
	c, err := tools.NewCatalogWith(defs...)
	require.NoError(t, err)
	return &testScope{catalog: c, backend: &stubBackend{}, called: map[string]bool{}}
}

func TestDispatch_HandlerPanicRecovered(t *testing.T) {
	scope := customScope(t, &tools.Definition{
		Name:   "explode",
		Schema: &jsonschema.Schema{Type: "object"},
		Handler: func(context.Context, tools.Backend, json.RawMessage) (any, error) {
			panic("kaboom")
		},
	})

	res := New(Options{}).Dispatch(context.Background(), scope, "explode", nil)
	require.True(t, res.IsError())
	assert.Equal(t, classify.Unknown, res.Failure.Kind)
	assert.Contains(t, res.Text, "kaboom")
}

func TestDispatch_SerializationFailure(t *testing.T) {
	scope := customScope(t, &tools.Definition{
		Name:   "unserializable",
		Schema: &jsonschema.Schema{Type: "object"},
		Handler: func(context.Context, tools.Backend, json.RawMessage) (any, error) {
			return map[string]any{"ch": make(chan int)}, nil
		},
	})

	res := New(Options{}).Dispatch(context.Background(), scope, "unserializable", nil)
	require.True(t, res.IsError())
	assert.Equal(t, classify.Unknown, res.Failure.Kind)
	assert.Contains(t, res.Text, "serialize")
	assert.False(t, scope.Called("unserializable"))
}

func TestDispatch_HandlerIgnoresClientCancellation(t *testing.T) {
	var sawErr error
	scope := customScope(t, &tools.Definition{
		Name:   "slow",
		Schema: &jsonschema.Schema{Type: "object"},
		Handler: func(ctx context.Context, _ tools.Backend, _ json.RawMessage) (any, error) {
			sawErr = ctx.Err()
			return "done", nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(Options{}).Dispatch(ctx, scope, "slow", nil)
	require.False(t, res.IsError())
	assert.NoError(t, sawErr)
	assert.Equal(t, `"done"`, res.Text)
}

func TestDispatch_ConcurrentCalls(t *testing.T) {
	b := &stubBackend{}
	scope := newScope(t, b)
	d := New(Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := d.Dispatch(context.Background(), scope, "list-accounts", nil)
			assert.False(t, res.IsError())
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, b.count())
}
