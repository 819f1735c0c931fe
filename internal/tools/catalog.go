// ABOUTME: Catalog holds the immutable tool table with resolved schemas.
// ABOUTME: Provides List for tools/list introspection and Get for dispatch.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/instantly-mcp/internal/instantly"
)

// ErrDuplicateTool indicates two definitions share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Backend is the Instantly API surface handlers call through.
type Backend interface {
	Call(ctx context.Context, method, path string, query url.Values, body any) (*instantly.Response, error)
}

// Handler runs one tool. input is the validated arguments object.
type Handler func(ctx context.Context, b Backend, input json.RawMessage) (any, error)

// Reply lets a handler attach a human-readable message to its payload.
type Reply struct {
	Message string
	Payload any
}

// Definition describes one tool.
type Definition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     Handler

	resolved    *jsonschema.Resolved
	inputSchema json.RawMessage
}

// Validate checks args against the resolved schema.
func (d *Definition) Validate(args map[string]any) error {
	return d.resolved.Validate(args)
}

// InputSchema returns the published JSON Schema for the tool's arguments.
func (d *Definition) InputSchema() json.RawMessage { return d.inputSchema }

// Info is the tools/list view of a definition.
type Info struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Catalog is a fixed set of tools. It is safe for concurrent use because it
// never changes after construction.
type Catalog struct {
	defs  map[string]*Definition
	infos []Info
}

// NewCatalog builds the Instantly tool catalog.
func NewCatalog() (*Catalog, error) {
	return newCatalog(definitions())
}

// NewCatalogWith builds a catalog from caller-supplied definitions.
func NewCatalogWith(defs ...*Definition) (*Catalog, error) {
	return newCatalog(defs)
}

func newCatalog(defs []*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if _, exists := c.defs[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", d.Name)
		}
		resolved, err := d.Schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolving schema for %s: %w", d.Name, err)
		}
		raw, err := materialize(d.Schema)
		if err != nil {
			return nil, fmt.Errorf("publishing schema for %s: %w", d.Name, err)
		}
		d.resolved = resolved
		d.inputSchema = raw
		c.defs[d.Name] = d
	}

	for _, d := range c.defs {
		c.infos = append(c.infos, Info{Name: d.Name, Description: d.Description, InputSchema: d.inputSchema})
	}
	sort.Slice(c.infos, func(i, j int) bool { return c.infos[i].Name < c.infos[j].Name })
	return c, nil
}

// List returns every tool sorted by name.
func (c *Catalog) List() []Info {
	out := make([]Info, len(c.infos))
	copy(out, c.infos)
	return out
}

// Get returns the named definition.
func (c *Catalog) Get(name string) (*Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Names returns the sorted tool names.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.infos))
	for i, info := range c.infos {
		names[i] = info.Name
	}
	return names
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.defs) }

// materialize renders a schema as a plain JSON object. Object schemas
// always carry a properties map, and validator-only keywords are dropped.
func materialize(s *jsonschema.Schema) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	scrub(doc)
	return json.Marshal(doc)
}

func scrub(node map[string]any) {
	delete(node, "not")
	if ap, ok := node["additionalProperties"].(bool); ok && !ap {
		delete(node, "additionalProperties")
	}
	if node["type"] == "object" {
		if _, ok := node["properties"]; !ok {
			node["properties"] = map[string]any{}
		}
	}
	if props, ok := node["properties"].(map[string]any); ok {
		for _, p := range props {
			if child, ok := p.(map[string]any); ok {
				scrub(child)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		scrub(items)
	}
}
