// CLAUDE:SUMMARY Action registry: seven built-in DOM mutations plus runtime registration of custom handlers.
// Package action maps stream action names to the handlers that apply
// them. A fresh registry knows the seven built-ins (append, prepend,
// replace, update, remove, before, after); callers add their own
// handlers at runtime, shadowing built-ins if they reuse a name.
package action

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/hyperdrive/stream"
)

var (
	ErrEmptyName  = errors.New("action: empty action name")
	ErrNilHandler = errors.New("action: nil handler")
)

// Registry resolves action names for the stream dispatcher. Safe for
// concurrent use: resolution takes a read lock, registration a write
// lock.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]stream.Handler
	logger   *slog.Logger
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns a registry seeded with the built-in actions.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: builtins(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register binds a handler to an action name, shadowing any existing
// binding (built-ins included). The returned restore function puts the
// previous binding back; callers that extend the vocabulary for one
// scenario defer it.
func (r *Registry) Register(name string, h stream.Handler) (restore func(), err error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	r.mu.Lock()
	prev, had := r.handlers[name]
	r.handlers[name] = h
	r.mu.Unlock()

	r.logger.Debug("action: registered", "name", name, "shadowed", had)

	return func() {
		r.mu.Lock()
		if had {
			r.handlers[name] = prev
		} else {
			delete(r.handlers, name)
		}
		r.mu.Unlock()
	}, nil
}

// Resolve implements stream.Resolver.
func (r *Registry) Resolve(name string) (stream.Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	return h, ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		names = append(names, k)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
