package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/eduplay1216-alt/myjarvis/internal/gemini"
)

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()

	res := r.Dispatch(context.Background(), "u1", "explodeTask", nil)
	if res.Success() {
		t.Fatal("expected failure for unknown tool")
	}
	errMsg, _ := res["error"].(string)
	if errMsg != "Tool explodeTask not found." {
		t.Errorf("unexpected error message: %q", errMsg)
	}
}

func TestDispatchMissingRequiredArg(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(Tool{
		Decl: gemFunc("echo", "echoes", &schemaObj{
			props:    map[string]*schemaProp{"text": {typ: "string"}},
			required: []string{"text"},
		}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			called = true
			return OK(nil)
		},
	})

	res := r.Dispatch(context.Background(), "u1", "echo", map[string]any{})
	if res.Success() {
		t.Fatal("expected failure for missing required arg")
	}
	if called {
		t.Error("handler must not run on validation failure")
	}
	errMsg, _ := res["error"].(string)
	if !strings.Contains(errMsg, "text") {
		t.Errorf("error should name the missing argument: %q", errMsg)
	}
}

func TestDispatchRejectsWrongType(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Decl: gemFunc("echo", "echoes", &schemaObj{
			props:    map[string]*schemaProp{"text": {typ: "string"}},
			required: []string{"text"},
		}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			return OK(nil)
		},
	})

	res := r.Dispatch(context.Background(), "u1", "echo", map[string]any{"text": float64(42)})
	if res.Success() {
		t.Fatal("expected failure for wrong argument type")
	}
	errMsg, _ := res["error"].(string)
	if !strings.Contains(errMsg, "string") {
		t.Errorf("error should name the expected type: %q", errMsg)
	}
}

func TestDispatchPassesArgsAndOwner(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Decl: gemFunc("echo", "echoes", &schemaObj{
			props:    map[string]*schemaProp{"text": {typ: "string"}},
			required: []string{"text"},
		}),
		Handler: func(ctx context.Context, owner string, args map[string]any) Result {
			return OK(map[string]any{"owner": owner, "text": args["text"]})
		},
	})

	res := r.Dispatch(context.Background(), "alice", "echo", map[string]any{"text": "hi"})
	if !res.Success() {
		t.Fatalf("expected success, got %v", res)
	}
	if res["owner"] != "alice" || res["text"] != "hi" {
		t.Errorf("payload mismatch: %v", res)
	}
}

func TestDeclarationsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		r.Register(Tool{
			Decl:    gemini.FunctionDeclaration{Name: name},
			Handler: func(ctx context.Context, owner string, args map[string]any) Result { return OK(nil) },
		})
	}

	decls := r.Declarations()
	got := []string{decls[0].Name, decls[1].Name, decls[2].Name}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", got, want)
		}
	}
}
