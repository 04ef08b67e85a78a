package jobctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// TaskHandler executes one job payload and returns a JSON-serializable result.
type TaskHandler func(ctx context.Context, payload json.RawMessage) (any, error)

// UnknownTaskTypeError is returned by Execute when no handler is registered.
type UnknownTaskTypeError struct {
	TaskType string
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("no handler registered for task type: %s", e.TaskType)
}

// HandlerError carries a failure raised by a task handler.
type HandlerError struct {
	TaskType string
	Err      error
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Registry maps task types to handlers. Handlers are registered at startup;
// it is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]TaskHandler),
	}
}

// Register binds name to handler, replacing any previous binding.
func (r *Registry) Register(name string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// RegisterTyped registers a handler whose payload is decoded into P before the
// call. It is a package-level function because methods cannot be generic.
func RegisterTyped[P, R any](r *Registry, name string, handler func(ctx context.Context, payload P) (R, error)) {
	r.Register(name, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("invalid payload for task %q: %w", name, err)
			}
		}
		return handler(ctx, p)
	})
}

func (r *Registry) Get(name string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered task types in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the handler for taskType and returns its JSON-encoded result.
// Handler failures, including panics, come back as *HandlerError values.
func (r *Registry) Execute(ctx context.Context, taskType string, payload json.RawMessage) (result json.RawMessage, err error) {
	handler, ok := r.Get(taskType)
	if !ok {
		return nil, &UnknownTaskTypeError{TaskType: taskType}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &HandlerError{TaskType: taskType, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	value, err := handler(ctx, payload)
	if err != nil {
		return nil, &HandlerError{TaskType: taskType, Err: err}
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, &HandlerError{TaskType: taskType, Err: fmt.Errorf("failed to encode result: %w", err)}
	}

	return encoded, nil
}
