// Package tools adapts model function calls onto local collaborators.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ent0n29/iris/internal/protocol"
)

// Handler executes one tool call. The returned value must be JSON-serializable.
type Handler func(ctx context.Context, args Args) (any, error)

// Args are the decoded arguments of a function call.
type Args map[string]any

// String returns a trimmed string argument.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

type entry struct {
	decl    protocol.FunctionDeclaration
	handler Handler
}

// Registry holds tool declarations and handlers in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func (r *Registry) Register(decl protocol.FunctionDeclaration, handler Handler) error {
	if strings.TrimSpace(decl.Name) == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[decl.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, decl.Name)
	}
	r.entries[decl.Name] = entry{decl: decl, handler: handler}
	r.order = append(r.order, decl.Name)
	return nil
}

// Declarations returns the schemas sent in the session setup.
func (r *Registry) Declarations() []protocol.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].decl)
	}
	return out
}

// Execute validates required arguments and runs the named handler.
func (r *Registry) Execute(ctx context.Context, name string, args Args) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := validate(e.decl, args); err != nil {
		return nil, err
	}
	return e.handler(ctx, args)
}

func validate(decl protocol.FunctionDeclaration, args Args) error {
	if decl.Parameters == nil {
		return nil
	}
	var missing []string
	for _, key := range decl.Parameters.Required {
		if v, ok := args[key]; !ok || v == nil {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidArgs, strings.Join(missing, ", "))
	}
	for key, schema := range decl.Parameters.Properties {
		if schema == nil || len(schema.Enum) == 0 {
			continue
		}
		v := strings.ToLower(args.String(key))
		if v == "" {
			continue
		}
		allowed := false
		for _, option := range schema.Enum {
			if v == option {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s must be one of %s", ErrInvalidArgs, key, strings.Join(schema.Enum, ", "))
		}
	}
	return nil
}
