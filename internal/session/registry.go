package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry tracks live sessions by connection id. Sessions are created on
// connect and discarded on disconnect; nothing survives a process restart.
type Registry struct {
	resolver  ContextResolver
	completer Completer
	opts      Options
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry whose sessions share the given
// collaborators and options.
func NewRegistry(resolver ContextResolver, completer Completer, opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		resolver:  resolver,
		completer: completer,
		opts:      opts,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Create registers a new session under a fresh id and returns it.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	s := New(id, r.resolver, r.completer, r.opts, r.logger)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("session", id))
	return s
}

// Get returns the session for id, or nil when it does not exist.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove discards the session for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if existed {
		r.logger.Info("session removed", zap.String("session", id))
	}
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
