package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eduplay1216-alt/myjarvis/internal/conversation"
	"github.com/eduplay1216-alt/myjarvis/internal/reconcile"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
)

const testToken = "test-token"

type fakeEngine struct {
	reply string
	err   error
}

func (f *fakeEngine) HandleTurn(ctx context.Context, owner, text string) (string, error) {
	return f.reply, f.err
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(ctx context.Context, mimeType string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio")
	}
	return f.text, nil
}

type fakeSyncer struct {
	res *reconcile.Result
	err error
}

func (f *fakeSyncer) Sync(ctx context.Context, owner string) (*reconcile.Result, error) {
	return f.res, f.err
}

func newTestServer(t *testing.T, engine ChatEngine, syncer Syncer) (*httptest.Server, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	srv := NewServer(s, engine, &fakeTranscriber{text: "olá"}, syncer, "owner1", testToken)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{reply: "oi"}, nil)

	resp, _ := doJSON(t, "GET", ts.URL+"/api/tasks", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "GET", ts.URL+"/api/tasks", nil, "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", resp.StatusCode)
	}

	// Health endpoint stays open.
	resp, body := doJSON(t, "GET", ts.URL+"/healthz", nil, "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz should be public: %d %v", resp.StatusCode, body)
	}
}

func TestChat(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{reply: "Bom dia, Senhor."}, nil)

	resp, body := doJSON(t, "POST", ts.URL+"/api/chat", map[string]any{"message": "bom dia"}, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["reply"] != "Bom dia, Senhor." {
		t.Errorf("unexpected reply: %v", body)
	}
}

func TestChatBusy(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{err: conversation.ErrBusy}, nil)

	resp, _ := doJSON(t, "POST", ts.URL+"/api/chat", map[string]any{"message": "oi"}, testToken)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for overlapping turn, got %d", resp.StatusCode)
	}
}

func TestChatFailureReturnsApology(t *testing.T) {
	engine := &fakeEngine{reply: "Peço desculpas, Senhor. Encontrei um erro.", err: fmt.Errorf("model exploded")}
	ts, _ := newTestServer(t, engine, nil)

	resp, body := doJSON(t, "POST", ts.URL+"/api/chat", map[string]any{"message": "oi"}, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with apology, got %d", resp.StatusCode)
	}
	if !strings.Contains(body["reply"].(string), "desculpas") {
		t.Errorf("expected apology reply: %v", body)
	}
	if body["error"] == nil {
		t.Error("expected error detail alongside apology")
	}
}

func TestChatValidation(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{reply: "oi"}, nil)

	resp, _ := doJSON(t, "POST", ts.URL+"/api/chat", map[string]any{}, testToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", resp.StatusCode)
	}
}

func TestTaskLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{}, nil)

	resp, body := doJSON(t, "POST", ts.URL+"/api/tasks", map[string]any{
		"description": "comprar leite",
	}, testToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	task := body["task"].(map[string]any)
	id := int64(task["id"].(float64))

	resp, body = doJSON(t, "PATCH", fmt.Sprintf("%s/api/tasks/%d", ts.URL, id), map[string]any{
		"is_completed": true,
	}, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["task"].(map[string]any)["is_completed"] != true {
		t.Errorf("task not completed: %v", body)
	}

	resp, _ = doJSON(t, "DELETE", fmt.Sprintf("%s/api/tasks/%d", ts.URL, id), nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "DELETE", fmt.Sprintf("%s/api/tasks/%d", ts.URL, id), nil, testToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing task, got %d", resp.StatusCode)
	}
}

func TestTransactionsAndSummary(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{}, nil)

	resp, _ := doJSON(t, "POST", ts.URL+"/api/transactions", map[string]any{
		"description": "salário", "amount": 3000, "type": "receita",
	}, testToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", ts.URL+"/api/transactions", map[string]any{
		"description": "mercado", "amount": 200, "type": "despesa",
	}, testToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", ts.URL+"/api/summary", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	sum := body["summary"].(map[string]any)
	if sum["income"].(float64) != 3000 || sum["expenses"].(float64) != 200 || sum["balance"].(float64) != 2800 {
		t.Errorf("bad summary: %v", sum)
	}

	resp, _ = doJSON(t, "POST", ts.URL+"/api/transactions", map[string]any{
		"description": "x", "amount": 1, "type": "invalid",
	}, testToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad type, got %d", resp.StatusCode)
	}
}

func TestSyncEndpoint(t *testing.T) {
	syncer := &fakeSyncer{res: &reconcile.Result{Created: 2, Imported: 1}}
	ts, _ := newTestServer(t, &fakeEngine{}, syncer)

	resp, body := doJSON(t, "POST", ts.URL+"/api/sync", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := body["result"].(map[string]any)
	if result["created"].(float64) != 2 || result["imported"].(float64) != 1 {
		t.Errorf("bad sync result: %v", result)
	}
}

func TestSyncUnavailableWithoutCalendar(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{}, nil)

	resp, _ := doJSON(t, "POST", ts.URL+"/api/sync", nil, testToken)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestSyncFailure(t *testing.T) {
	syncer := &fakeSyncer{err: fmt.Errorf("calendar unreachable")}
	ts, _ := newTestServer(t, &fakeEngine{}, syncer)

	resp, _ := doJSON(t, "POST", ts.URL+"/api/sync", nil, testToken)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

func TestConfigErrorPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, &store.ConfigError{Table: "tasks", Column: "due_at", Remediation: "run migration"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["config_error"] != true {
		t.Errorf("expected config_error flag: %v", body)
	}
}

func TestTranscribe(t *testing.T) {
	ts, _ := newTestServer(t, &fakeEngine{}, nil)

	req, _ := http.NewRequest("POST", ts.URL+"/api/transcribe", strings.NewReader("fake-audio-bytes"))
	req.Header.Set("Content-Type", "audio/webm")
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["text"] != "olá" {
		t.Errorf("unexpected transcription: %v", body)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	ts, s := newTestServer(t, &fakeEngine{}, nil)

	s.AppendMessage(&store.Message{Owner: "owner1", Role: store.RoleUser, Text: "oi"})
	s.AppendMessage(&store.Message{Owner: "owner1", Role: store.RoleModel, Text: "Olá, Senhor."})

	resp, body := doJSON(t, "GET", ts.URL+"/api/messages", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "user" || first["text"] != "oi" {
		t.Errorf("bad first message: %v", first)
	}
}
