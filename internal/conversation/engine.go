// Package conversation runs the assistant's tool-calling loop: send
// history to the model, execute whatever tools it calls, feed the
// results back, and repeat until the model answers in plain text.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduplay1216-alt/myjarvis/internal/gemini"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
	"github.com/eduplay1216-alt/myjarvis/internal/tools"
)

// ErrBusy is returned when a turn is already running for the user.
// Turns are never queued; the caller should retry after the current
// turn finishes.
var ErrBusy = errors.New("a turn is already in progress for this user")

// ModelClient is the slice of the Gemini client the engine needs.
type ModelClient interface {
	GenerateContent(ctx context.Context, system string, history []gemini.Content, decls []gemini.FunctionDeclaration) (*gemini.Response, error)
}

// RefreshFunc runs after every tool batch, successful or not, so
// cached views stay current while a turn is still in flight.
type RefreshFunc func(ctx context.Context, owner string)

// Engine drives conversation turns.
type Engine struct {
	model    ModelClient
	store    *store.Store
	registry *tools.Registry
	refresh  RefreshFunc

	// maxIterations bounds model round-trips per turn.
	maxIterations int

	now func() time.Time

	mu     sync.Mutex
	active map[string]bool
}

// Option configures the engine.
type Option func(*Engine)

// WithRefresh sets the hook run after each tool batch.
func WithRefresh(fn RefreshFunc) Option {
	return func(e *Engine) { e.refresh = fn }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. maxIterations <= 0 falls back to 8.
func New(model ModelClient, st *store.Store, registry *tools.Registry, maxIterations int, opts ...Option) *Engine {
	if maxIterations <= 0 {
		maxIterations = 8
	}
	e := &Engine{
		model:         model,
		store:         st,
		registry:      registry,
		maxIterations: maxIterations,
		now:           time.Now,
		active:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// tryAcquire marks the owner's turn as active, refusing overlap.
func (e *Engine) tryAcquire(owner string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[owner] {
		return false
	}
	e.active[owner] = true
	return true
}

func (e *Engine) release(owner string) {
	e.mu.Lock()
	delete(e.active, owner)
	e.mu.Unlock()
}

// HandleTurn processes one user message and returns the model's final
// text. Exactly one user message is persisted per turn, plus one model
// message when the final text is non-empty. On any failure the persisted
// model message is a single apology and the error describes the cause.
func (e *Engine) HandleTurn(ctx context.Context, owner, userText string) (string, error) {
	if !e.tryAcquire(owner) {
		return "", ErrBusy
	}
	defer e.release(owner)

	turnID := uuid.NewString()
	logging.Debug("conversation", "turn %s started for %s", turnID, owner)

	history, err := e.loadHistory(owner)
	if err != nil {
		return "", err
	}

	if err := e.store.AppendMessage(&store.Message{Owner: owner, Role: store.RoleUser, Text: userText}); err != nil {
		return "", fmt.Errorf("persist user message: %w", err)
	}
	history = append(history, gemini.Content{
		Role:  "user",
		Parts: []gemini.Part{{Text: userText}},
	})

	system := systemPrompt(e.now())
	decls := e.registry.Declarations()

	for i := 0; i < e.maxIterations; i++ {
		resp, err := e.model.GenerateContent(ctx, system, history, decls)
		if err != nil {
			return e.apologize(owner, fmt.Errorf("model call: %w", err))
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			final := resp.Text()
			if final != "" {
				if err := e.store.AppendMessage(&store.Message{Owner: owner, Role: store.RoleModel, Text: final}); err != nil {
					return "", fmt.Errorf("persist model message: %w", err)
				}
			}
			logging.Debug("conversation", "turn for %s converged after %d iteration(s)", owner, i+1)
			return final, nil
		}

		history = append(history, resp.ModelContent())
		history = append(history, e.executeBatch(ctx, owner, calls))

		if e.refresh != nil {
			e.refresh(ctx, owner)
		}
	}

	return e.apologize(owner, fmt.Errorf("conversation did not converge after %d iterations", e.maxIterations))
}

// executeBatch runs all calls from one model response concurrently and
// collects their results into a single synthetic tool turn, preserving
// call order.
func (e *Engine) executeBatch(ctx context.Context, owner string, calls []gemini.FunctionCall) gemini.Content {
	parts := make([]gemini.Part, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call gemini.FunctionCall) {
			defer wg.Done()
			result := e.registry.Dispatch(ctx, owner, call.Name, call.Args)
			parts[i] = gemini.Part{
				FunctionResponse: &gemini.FunctionResponse{
					Name:     call.Name,
					Response: map[string]any(result),
				},
			}
		}(i, call)
	}
	wg.Wait()

	logging.Debug("conversation", "executed batch of %d tool call(s) for %s", len(calls), owner)
	return gemini.Content{Role: "tool", Parts: parts}
}

// loadHistory rebuilds model history from the persisted text log.
func (e *Engine) loadHistory(owner string) ([]gemini.Content, error) {
	msgs, err := e.store.GetMessages(owner)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := make([]gemini.Content, 0, len(msgs)+1)
	for _, m := range msgs {
		history = append(history, gemini.Content{
			Role:  m.Role,
			Parts: []gemini.Part{{Text: m.Text}},
		})
	}
	return history, nil
}

// apologize persists the single apology model message and surfaces the
// underlying cause to the caller.
func (e *Engine) apologize(owner string, cause error) (string, error) {
	logging.Warn("conversation", "turn for %s failed: %v", owner, cause)
	if err := e.store.AppendMessage(&store.Message{Owner: owner, Role: store.RoleModel, Text: apologyText}); err != nil {
		logging.Warn("conversation", "persist apology: %v", err)
	}
	return apologyText, cause
}
