package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Func is an in-process pipeline body.
type Func func(ctx context.Context, params map[string]any) (map[string]any, error)

// Registry holds in-process pipelines keyed by name and invokes them
// synchronously on the caller's goroutine.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]Func
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		funcs:  map[string]Func{},
		logger: log.With(slog.String("component", "pipeline_registry")),
	}
}

// Register adds a pipeline under name.
func (r *Registry) Register(name string, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if fn == nil {
		return fmt.Errorf("pipeline %s: func is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("pipeline already registered: %s", name)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Names returns the registered pipeline names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the pipeline registered under name. A panic inside the pipeline
// is reported as an InvokeError carrying the activation id.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (activation Activation, err error) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return Activation{}, &InvokeError{
			Message: fmt.Sprintf("pipeline %q not found", name),
			Err:     ErrPipelineNotFound,
		}
	}

	activationID := uuid.NewString()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("pipeline panic", slog.String("pipeline", name), slog.String("activation_id", activationID), slog.Any("panic", rec))
			activation = Activation{}
			err = &InvokeError{ActivationID: activationID, Message: fmt.Sprintf("pipeline panic: %v", rec)}
		}
	}()

	result, err := fn(ctx, params)
	if err != nil {
		return Activation{}, &InvokeError{ActivationID: activationID, Message: err.Error(), Err: err}
	}
	return Activation{ID: activationID, Result: result}, nil
}
