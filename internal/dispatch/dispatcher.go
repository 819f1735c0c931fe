// ABOUTME: Dispatcher looks up, validates, runs, and normalizes tool calls.
// ABOUTME: Handler errors and panics are classified; results carry ready-to-send text.

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/2389/instantly-mcp/internal/classify"
	"github.com/2389/instantly-mcp/internal/tools"
)

// Scope is the per-session state a call runs against.
type Scope interface {
	Catalog() *tools.Catalog
	Backend() tools.Backend
	Called(names ...string) bool
	Record(name string)
}

// Observer receives one notification per completed call.
type Observer interface {
	ObserveToolCall(tool, kind string, duration time.Duration)
}

// UnknownToolLabel stands in for names outside the catalog when reporting
// to the Observer, keeping client-chosen strings out of metric labels.
const UnknownToolLabel = "unknown"

// Options configures a Dispatcher.
type Options struct {
	Logger   *slog.Logger
	Observer Observer
}

// Dispatcher routes tool calls. It is safe for concurrent use.
type Dispatcher struct {
	logger   *slog.Logger
	observer Observer
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger.With("component", "dispatch"),
		observer: opts.Observer,
	}
}

// Dispatch runs one tool call. It always returns a Result. The handler runs
// detached from ctx cancellation so a disconnecting client does not abort
// an in-flight backend call.
func (d *Dispatcher) Dispatch(ctx context.Context, scope Scope, name string, raw json.RawMessage) Result {
	start := time.Now()
	res := d.dispatch(ctx, scope, name, raw)

	duration := time.Since(start)
	if d.observer != nil {
		label := name
		if _, ok := scope.Catalog().Get(name); !ok {
			label = UnknownToolLabel
		}
		d.observer.ObserveToolCall(label, res.Kind(), duration)
	}
	if res.IsError() {
		d.logger.Warn("tool call failed",
			"tool", name,
			"kind", res.Kind(),
			"cause", res.Failure.Cause,
			"duration", duration,
		)
	} else {
		d.logger.Info("tool call", "tool", name, "duration", duration)
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, scope Scope, name string, raw json.RawMessage) Result {
	def, ok := scope.Catalog().Get(name)
	if !ok {
		return failed(name, "", classify.New(classify.NotFound,
			fmt.Sprintf("Unknown tool %q. Call tools/list to see the available tools.", name)))
	}

	args, err := decodeArgs(raw)
	if err != nil {
		return failed(name, "", classify.New(classify.BadRequest,
			fmt.Sprintf("Invalid arguments for %s: %v.", name, err)))
	}
	if f := validate(def, args); f != nil {
		return failed(name, "", *f)
	}

	var note string
	if pre, ok := tools.PrerequisiteFor(name); ok && !scope.Called(pre.Tools...) {
		note = pre.Note(name)
	}

	input, err := json.Marshal(args)
	if err != nil {
		return failed(name, note, classify.New(classify.Unknown,
			fmt.Sprintf("Could not encode arguments for %s: %v.", name, err)))
	}

	out, err := d.invoke(context.WithoutCancel(ctx), def, scope.Backend(), input)
	if err != nil {
		return failed(name, note, classify.Classify(err, name))
	}

	res, err := succeeded(name, note, out)
	if err != nil {
		return failed(name, note, classify.New(classify.Unknown,
			fmt.Sprintf("Could not serialize the result of %s: %v.", name, err)))
	}
	scope.Record(name)
	return res
}

// invoke runs the handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, def *tools.Definition, b tools.Backend, input json.RawMessage) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked", "tool", def.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error in %s: %v", def.Name, r)
		}
	}()
	return def.Handler(ctx, b, input)
}

func succeeded(name, note string, out any) (Result, error) {
	res := Result{Tool: name, Payload: out}
	if reply, ok := out.(tools.Reply); ok {
		res.Payload = reply.Payload
		res.Message = reply.Message
	}

	var body string
	if res.Payload != nil {
		data, err := json.MarshalIndent(res.Payload, "", "  ")
		if err != nil {
			return Result{}, err
		}
		body = string(data)
	}

	res.Text = joinText(note, res.Message, body)
	return res, nil
}

func failed(name, note string, f classify.Failure) Result {
	return Result{
		Tool:    name,
		Text:    joinText(note, f.Message),
		Failure: &f,
	}
}

func joinText(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
