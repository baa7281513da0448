package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/gemini"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
	"github.com/eduplay1216-alt/myjarvis/internal/tools"
)

// scriptedModel returns canned responses in order, then repeats the
// last one.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*gemini.Response
	err       error
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, system string, history []gemini.Content, decls []gemini.FunctionDeclaration) (*gemini.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

func textResponse(text string) *gemini.Response {
	return &gemini.Response{Candidates: []gemini.Candidate{{
		Content: gemini.Content{Role: "model", Parts: []gemini.Part{{Text: text}}},
	}}}
}

func callResponse(names ...string) *gemini.Response {
	parts := make([]gemini.Part, len(names))
	for i, name := range names {
		parts[i] = gemini.Part{FunctionCall: &gemini.FunctionCall{Name: name}}
	}
	return &gemini.Response{Candidates: []gemini.Candidate{{
		Content: gemini.Content{Role: "model", Parts: parts},
	}}}
}

func newTestEngine(t *testing.T, model ModelClient, reg *tools.Registry, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if reg == nil {
		reg = tools.NewRegistry()
	}
	return New(model, s, reg, 8, opts...), s
}

func countingTool(name string, counter *atomic.Int32) tools.Tool {
	return tools.Tool{
		Decl: gemini.FunctionDeclaration{Name: name, Description: "test tool"},
		Handler: func(ctx context.Context, owner string, args map[string]any) tools.Result {
			counter.Add(1)
			return tools.OK(nil)
		},
	}
}

func TestPlainTextTurn(t *testing.T) {
	model := &scriptedModel{responses: []*gemini.Response{textResponse("Bom dia, Senhor.")}}
	e, s := newTestEngine(t, model, nil)

	out, err := e.HandleTurn(context.Background(), "u1", "bom dia")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if out != "Bom dia, Senhor." {
		t.Errorf("unexpected reply: %q", out)
	}

	msgs, _ := s.GetMessages("u1")
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[0].Text != "bom dia" {
		t.Errorf("bad user message: %+v", msgs[0])
	}
	if msgs[1].Role != store.RoleModel || msgs[1].Text != "Bom dia, Senhor." {
		t.Errorf("bad model message: %+v", msgs[1])
	}
}

func TestToolCallThenAnswer(t *testing.T) {
	var executions atomic.Int32
	reg := tools.NewRegistry()
	reg.Register(countingTool("getTasks", &executions))

	model := &scriptedModel{responses: []*gemini.Response{
		callResponse("getTasks"),
		textResponse("O Senhor tem 3 tarefas."),
	}}
	e, s := newTestEngine(t, model, reg)

	out, err := e.HandleTurn(context.Background(), "u1", "minhas tarefas")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if out != "O Senhor tem 3 tarefas." {
		t.Errorf("unexpected reply: %q", out)
	}
	if executions.Load() != 1 {
		t.Errorf("tool should run exactly once, ran %d times", executions.Load())
	}

	msgs, _ := s.GetMessages("u1")
	if len(msgs) != 2 {
		t.Errorf("intermediate tool traffic must not be persisted, got %d messages", len(msgs))
	}
}

func TestConcurrentToolBatch(t *testing.T) {
	var executions atomic.Int32
	reg := tools.NewRegistry()
	reg.Register(countingTool("getTasks", &executions))
	reg.Register(countingTool("getFinancialSummary", &executions))

	model := &scriptedModel{responses: []*gemini.Response{
		callResponse("getTasks", "getFinancialSummary"),
		textResponse("Pronto."),
	}}
	e, _ := newTestEngine(t, model, reg)

	if _, err := e.HandleTurn(context.Background(), "u1", "resumo geral"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if executions.Load() != 2 {
		t.Errorf("both batch calls should run, ran %d", executions.Load())
	}
}

func TestNonConvergenceCap(t *testing.T) {
	var executions atomic.Int32
	reg := tools.NewRegistry()
	reg.Register(countingTool("getTasks", &executions))

	// Model calls a tool forever.
	model := &scriptedModel{responses: []*gemini.Response{callResponse("getTasks")}}
	e, s := newTestEngine(t, model, reg)

	out, err := e.HandleTurn(context.Background(), "u1", "loop")
	if err == nil {
		t.Fatal("expected non-convergence error")
	}
	if !strings.Contains(err.Error(), "did not converge") {
		t.Errorf("unexpected error: %v", err)
	}
	if out != apologyText {
		t.Errorf("expected apology text, got %q", out)
	}
	if model.calls != 8 {
		t.Errorf("expected 8 model calls, got %d", model.calls)
	}

	msgs, _ := s.GetMessages("u1")
	if len(msgs) != 2 || msgs[1].Text != apologyText {
		t.Errorf("expected user message plus one apology, got %+v", msgs)
	}
}

func TestModelErrorApologizes(t *testing.T) {
	model := &scriptedModel{err: errors.New("rate limited")}
	e, s := newTestEngine(t, model, nil)

	out, err := e.HandleTurn(context.Background(), "u1", "oi")
	if err == nil {
		t.Fatal("expected error")
	}
	if out != apologyText {
		t.Errorf("expected apology, got %q", out)
	}

	msgs, _ := s.GetMessages("u1")
	if len(msgs) != 2 || msgs[1].Role != store.RoleModel || msgs[1].Text != apologyText {
		t.Errorf("expected one apology model message, got %+v", msgs)
	}
}

func TestRefreshHookRunsAfterEveryBatch(t *testing.T) {
	var executions atomic.Int32
	reg := tools.NewRegistry()
	reg.Register(countingTool("getTasks", &executions))

	model := &scriptedModel{responses: []*gemini.Response{
		callResponse("getTasks"),
		callResponse("getTasks"),
		textResponse("Feito."),
	}}

	var refreshes atomic.Int32
	e, _ := newTestEngine(t, model, reg, WithRefresh(func(ctx context.Context, owner string) {
		refreshes.Add(1)
	}))

	if _, err := e.HandleTurn(context.Background(), "u1", "x"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if refreshes.Load() != 2 {
		t.Errorf("refresh should run after each batch, ran %d times", refreshes.Load())
	}
}

func TestOverlappingTurnsRefused(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Decl: gemini.FunctionDeclaration{Name: "slow", Description: "blocks"},
		Handler: func(ctx context.Context, owner string, args map[string]any) tools.Result {
			close(started)
			<-release
			return tools.OK(nil)
		},
	})

	model := &scriptedModel{responses: []*gemini.Response{
		callResponse("slow"),
		textResponse("ok"),
	}}
	e, _ := newTestEngine(t, model, reg)

	done := make(chan error, 1)
	go func() {
		_, err := e.HandleTurn(context.Background(), "u1", "first")
		done <- err
	}()

	<-started
	if _, err := e.HandleTurn(context.Background(), "u1", "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for overlapping turn, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	// After the first turn completes, the user can speak again.
	if _, err := e.HandleTurn(context.Background(), "u1", "third"); err != nil {
		t.Errorf("turn after release should succeed: %v", err)
	}
}

func TestHistoryIncludesPriorMessages(t *testing.T) {
	var seenHistory []gemini.Content
	model := &recordingModel{reply: "certo"}
	model.onCall = func(history []gemini.Content) { seenHistory = history }

	e, s := newTestEngine(t, model, nil)

	s.AppendMessage(&store.Message{Owner: "u1", Role: store.RoleUser, Text: "anterior"})
	s.AppendMessage(&store.Message{Owner: "u1", Role: store.RoleModel, Text: "resposta anterior"})

	if _, err := e.HandleTurn(context.Background(), "u1", "nova"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if len(seenHistory) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(seenHistory))
	}
	if seenHistory[0].Parts[0].Text != "anterior" || seenHistory[2].Parts[0].Text != "nova" {
		t.Errorf("history order wrong: %+v", seenHistory)
	}
}

type recordingModel struct {
	reply  string
	onCall func(history []gemini.Content)
}

func (m *recordingModel) GenerateContent(ctx context.Context, system string, history []gemini.Content, decls []gemini.FunctionDeclaration) (*gemini.Response, error) {
	if m.onCall != nil {
		m.onCall(history)
	}
	return textResponse(m.reply), nil
}

func TestSystemPromptCarriesCurrentInstant(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	prompt := systemPrompt(now)
	if !strings.Contains(prompt, "2026-08-28T12:00:00Z") {
		t.Errorf("prompt missing current instant: %s", prompt)
	}
}
