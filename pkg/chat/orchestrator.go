// Package chat answers user turns: it retrieves context for the message,
// renders the prompt with the session's history, calls the completion
// provider and records the exchange.
package chat

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/andrew/rag-chat/pkg/llm"
	"github.com/andrew/rag-chat/pkg/logging"
	"github.com/andrew/rag-chat/pkg/models"
	"github.com/andrew/rag-chat/pkg/prompt"
	"github.com/andrew/rag-chat/pkg/retrieval"
	"github.com/andrew/rag-chat/pkg/session"
)

// DefaultTopK is the number of snippets retrieved per turn.
const DefaultTopK = 2

// Orchestrator coordinates one "answer a user turn" request. It is safe for
// concurrent use; per-session ordering is delegated to the session store.
type Orchestrator struct {
	store     session.Store
	retriever retrieval.Provider
	completer llm.Completer

	systemInstruction string
	topK              int
	historyWindow     int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSystemInstruction replaces prompt.DefaultSystemInstruction.
func WithSystemInstruction(instruction string) Option {
	return func(o *Orchestrator) { o.systemInstruction = instruction }
}

// WithTopK sets how many snippets are retrieved per turn.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithHistoryWindow limits the prompt to the last n history messages.
// n <= 0 sends the whole history.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) { o.historyWindow = n }
}

// New creates an Orchestrator over the given store and providers.
func New(store session.Store, retriever retrieval.Provider, completer llm.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:             store,
		retriever:         retriever,
		completer:         completer,
		systemInstruction: prompt.DefaultSystemInstruction,
		topK:              DefaultTopK,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type respondConfig struct {
	history     []models.Message
	hasOverride bool
}

// RespondOption configures a single Respond or RespondStream call.
type RespondOption func(*respondConfig)

// WithHistory uses msgs as the conversation history instead of the session
// store, and leaves the store untouched for this turn. An empty slice is
// still an override.
func WithHistory(msgs []models.Message) RespondOption {
	return func(c *respondConfig) {
		c.history = msgs
		c.hasOverride = true
	}
}

// turn is a prepared request: the prompt is rendered and the caller's
// history choice is fixed.
type turn struct {
	sessionID string
	input     string
	segments  []models.Message
	record    bool
}

func (o *Orchestrator) prepare(ctx context.Context, sessionID, input string, opts []RespondOption) (*turn, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	var cfg respondConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	snippets, err := o.retriever.Search(ctx, input, o.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	retrievalContext := retrieval.JoinSnippets(snippets)

	history := cfg.history
	if !cfg.hasOverride {
		history, err = o.store.List(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load history for session %q: %w", sessionID, err)
		}
	}
	history = prompt.Window(history, o.historyWindow)

	logging.Debugf("💬 session=%q snippets=%d history=%d override=%t", sessionID, len(snippets), len(history), cfg.hasOverride)

	return &turn{
		sessionID: sessionID,
		input:     input,
		segments:  prompt.Render(o.systemInstruction, history, retrievalContext, input),
		record:    !cfg.hasOverride,
	}, nil
}

// record appends the user message and the reply as one store operation.
func (o *Orchestrator) record(ctx context.Context, t *turn, reply string) error {
	if !t.record {
		return nil
	}
	err := o.store.Append(ctx, t.sessionID,
		models.NewMessage(models.RoleUser, t.input),
		models.NewMessage(models.RoleAssistant, reply),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn for session %q: %w", t.sessionID, err)
	}
	return nil
}

// Respond answers input and returns the full reply.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, input string, opts ...RespondOption) (string, error) {
	t, err := o.prepare(ctx, sessionID, input, opts)
	if err != nil {
		return "", err
	}

	reply, err := o.completer.Complete(ctx, t.segments)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	if err := o.record(ctx, t, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// RespondStream answers input incrementally. Retrieval and history loading
// happen before it returns; the completion starts when the sequence is
// ranged. The turn is recorded only once the provider's stream has been
// drained without error. Breaking out of the loop early leaves history
// unchanged. The sequence can be ranged once.
func (o *Orchestrator) RespondStream(ctx context.Context, sessionID, input string, opts ...RespondOption) (iter.Seq2[string, error], error) {
	t, err := o.prepare(ctx, sessionID, input, opts)
	if err != nil {
		return nil, err
	}

	var consumed atomic.Bool
	return func(yield func(string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}

		var reply strings.Builder
		for fragment, err := range o.completer.CompleteStream(ctx, t.segments) {
			if err != nil {
				yield("", fmt.Errorf("%w: %w", ErrCompletion, err))
				return
			}
			reply.WriteString(fragment)
			if !yield(fragment, nil) {
				logging.Debugf("💬 session=%q stream abandoned after %d bytes", t.sessionID, reply.Len())
				return
			}
		}

		if err := o.record(ctx, t, reply.String()); err != nil {
			yield("", err)
		}
	}, nil
}

// History returns the stored transcript for sessionID.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	return o.store.List(ctx, sessionID)
}

// ClearSession removes sessionID's history.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	return o.store.Clear(ctx, sessionID)
}

// ClearAllSessions removes every session's history.
func (o *Orchestrator) ClearAllSessions(ctx context.Context) error {
	return o.store.ClearAll(ctx)
}
