// Package capability turns a session's action configuration into the set of
// tools the language model can invoke. Each session gets its own toolset
// table; nothing here mutates shared state across sessions.
package capability

import (
	"context"
	"fmt"
	"sync"

	"parley/internal/session"
)

// InvokeFunc executes a tool call with the model-provided arguments.
type InvokeFunc func(ctx context.Context, sess *session.Session, args map[string]any) (string, error)

// Parameter describes one tool argument. Parameters keep their declaration
// order so the exposed schema is stable per session.
type Parameter struct {
	Name        string
	Type        string
	Description string
}

// Descriptor is one invocable tool: a name unique within the session, a
// description the model sees (it embeds the action id and session id the
// invoker needs for correlation), the parameter list, and the closure.
type Descriptor struct {
	Name        string
	Description string
	Parameters  []Parameter
	Invoke      InvokeFunc
}

// Property is a JSON Schema property for the model-facing tool definition.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ParameterSchema is the JSON Schema object form of a tool's parameters.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Schema renders the parameter list as a JSON Schema object. Required lists
// every parameter in declaration order.
func (d *Descriptor) Schema() ParameterSchema {
	props := make(map[string]Property, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		props[p.Name] = Property{Type: p.Type, Description: p.Description}
		required = append(required, p.Name)
	}
	return ParameterSchema{Type: "object", Properties: props, Required: required}
}

// Toolset is the session-scoped table of tools, keyed by name. Built once at
// session start and never mutated afterwards; reads need no lock, the mutex
// only guards construction-order bookkeeping for the builder.
type Toolset struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
	order []string
}

// NewToolset returns an empty toolset.
func NewToolset() *Toolset {
	return &Toolset{tools: make(map[string]*Descriptor)}
}

// Register adds a tool. The first registration of a name wins; a duplicate is
// reported to the caller and left out of the table.
func (t *Toolset) Register(desc *Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.tools[desc.Name]; exists {
		return fmt.Errorf("tool already registered: %s", desc.Name)
	}
	t.tools[desc.Name] = desc
	t.order = append(t.order, desc.Name)
	return nil
}

// Get returns the tool with the given name.
func (t *Toolset) Get(name string) (*Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	desc, ok := t.tools[name]
	return desc, ok
}

// Names returns tool names in registration order.
func (t *Toolset) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Descriptors returns the tools in registration order.
func (t *Toolset) Descriptors() []*Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Descriptor, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (t *Toolset) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tools)
}

// Invoke looks up and runs a tool. An unknown tool name is a tool-visible
// error, not a fault.
func (t *Toolset) Invoke(ctx context.Context, sess *session.Session, name string, args map[string]any) (string, error) {
	desc, ok := t.Get(name)
	if !ok {
		return "", fmt.Errorf("tool not found: %s", name)
	}
	return desc.Invoke(ctx, sess, args)
}

func argString(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
