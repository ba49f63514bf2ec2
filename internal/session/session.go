// Package session holds per-conversation message history and drives one turn
// at a time: enrichment, completion, and history bookkeeping.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"prodscout/internal/chat"
	"prodscout/internal/llm"
	"prodscout/internal/transport"
)

// Completer produces a streamed completion for an ordered history.
type Completer interface {
	StreamChat(ctx context.Context, history []chat.Message, params llm.GenParams) (<-chan string, <-chan error)
}

// ContextResolver resolves a query to scraped web context.
type ContextResolver interface {
	Resolve(ctx context.Context, query string, allowSearchFallback bool) (string, error)
}

// Options controls system-prompt and enrichment behavior for a session.
type Options struct {
	// EnableSystemPrompt inserts the static instruction text as message 0.
	EnableSystemPrompt bool
	// EnableProductContext appends resolved product context (with search
	// fallback) to the system prompt when it is first built.
	EnableProductContext bool
	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
	// GenParams are passed unchanged to every completion.
	GenParams llm.GenParams
}

// Session is one conversation: an ordered, append-only message history plus
// the collaborators needed to run a turn. All turn processing for a session
// is serialized by its mutex; distinct sessions are fully independent.
type Session struct {
	id        string
	resolver  ContextResolver
	completer Completer
	opts      Options
	logger    *zap.Logger

	mu      sync.Mutex
	history []chat.Message
}

// New creates an empty session.
func New(id string, resolver ContextResolver, completer Completer, opts Options, logger *zap.Logger) *Session {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:        id,
		resolver:  resolver,
		completer: completer,
		opts:      opts,
		logger:    logger.With(zap.String("session", id)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// History returns a copy of the message history.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.history))
	copy(out, s.history)
	return out
}

// HandleUserTurn processes one user message end to end: it ensures the system
// prompt exists, enriches and appends the user message, streams the reply to
// t, and appends the assistant message. It returns the full assembled reply.
//
// A completion failure leaves the history exactly as it was before the turn;
// no partial assistant entry is ever committed. Enrichment failures are
// invisible: the turn proceeds with whatever context could be resolved.
func (s *Session) HandleUserTurn(ctx context.Context, raw string, t transport.Transport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]chat.Message, len(s.history))
	copy(snapshot, s.history)

	s.ensureSystemPrompt(ctx, raw)

	enrichment := s.resolveQuiet(ctx, raw, false)
	s.history = append(s.history, chat.Message{
		Role:    chat.RoleUser,
		Content: enrichment + "\n" + raw,
	})

	reply, err := streamReply(ctx, s.completer, s.history, s.opts.GenParams, t)
	if err != nil {
		s.history = snapshot
		return "", err
	}

	s.history = append(s.history, chat.Message{Role: chat.RoleAssistant, Content: reply})
	return reply, nil
}

// ensureSystemPrompt inserts the system message at index 0 exactly once. The
// prompt is built from the static instructions plus, when product context is
// enabled, context resolved from the anchor query with search fallback. It is
// never rebuilt afterward, even if later messages carry richer context.
func (s *Session) ensureSystemPrompt(ctx context.Context, raw string) {
	if !s.opts.EnableSystemPrompt {
		return
	}
	if len(s.history) > 0 && s.history[0].Role == chat.RoleSystem {
		return
	}

	content := s.opts.SystemPrompt
	if s.opts.EnableProductContext {
		anchor := raw
		if len(s.history) > 0 {
			anchor = s.history[0].Content
		}
		if productContext := s.resolveQuiet(ctx, anchor, true); productContext != "" {
			content += "\n" + productContext
		}
	}

	s.history = append([]chat.Message{{Role: chat.RoleSystem, Content: content}}, s.history...)
}

// resolveQuiet runs context resolution and swallows its errors; a failed
// enrichment contributes nothing to the turn.
func (s *Session) resolveQuiet(ctx context.Context, query string, allowSearchFallback bool) string {
	text, err := s.resolver.Resolve(ctx, query, allowSearchFallback)
	if err != nil {
		s.logger.Warn("context resolution failed", zap.Bool("fallback", allowSearchFallback), zap.Error(err))
		return ""
	}
	return text
}
