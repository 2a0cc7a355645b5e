package actions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rendis/autoforge/pkg/schema"
)

// Registry is the concrete thread-safe executor lookup keyed by action kind.
type Registry struct {
	mu      sync.RWMutex
	actions map[schema.ActionKind]Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[schema.ActionKind]Action),
	}
}

// NewDefaultRegistry registers the http_request, send_email and
// telegram_message executors built from cfg.
func NewDefaultRegistry(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	r := NewRegistry()
	for _, a := range []Action{
		NewHTTPRequestAction(cfg),
		NewEmailAction(cfg.SMTP),
		NewTelegramAction(cfg.Telegram),
	} {
		// Kinds are distinct constants; Register cannot fail here.
		_ = r.Register(a)
	}
	return r
}

// Register adds an executor. Only kinds in the closed set are accepted.
func (r *Registry) Register(action Action) error {
	if action == nil {
		return schema.NewError(schema.ErrCodeValidation, "action is nil")
	}
	kind := action.Kind()
	if !kind.Known() {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown action type: %s", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", kind)
	}

	r.actions[kind] = action
	return nil
}

// Get retrieves an executor by kind.
func (r *Registry) Get(kind schema.ActionKind) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "unknown action type: %s", kind)
	}
	return action, nil
}

// Execute dispatches config to the executor for kind. Unknown kinds and
// executor panics are reported as error outcomes.
func (r *Registry) Execute(ctx context.Context, kind schema.ActionKind, config map[string]any) (out schema.Outcome) {
	action, err := r.Get(kind)
	if err != nil {
		return schema.ErrorOutcome("Unknown action type: %s", kind)
	}
	if config == nil {
		config = map[string]any{}
	}

	defer func() {
		if p := recover(); p != nil {
			out = schema.ErrorOutcome("%s: %s", kind, fmt.Sprint(p))
		}
	}()
	return action.Execute(ctx, config)
}

// List returns info for all registered executors, sorted by kind.
func (r *Registry) List() []ActionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(r.actions))
	for _, a := range r.actions {
		infos = append(infos, ActionInfo{
			Kind:        a.Kind(),
			Description: a.Description(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}

// Has checks if an executor is registered for kind.
func (r *Registry) Has(kind schema.ActionKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[kind]
	return ok
}

// Count returns the number of registered executors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
