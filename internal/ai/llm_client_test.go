package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"multitenant-rag-platform/models"
)

func chatBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return body
}

func TestGenerate(t *testing.T) {
	invoker := &fakeInvoker{results: []invokeResult{{body: chatBody(t, "  la respuesta  ")}}}
	client := NewLLMClient(invoker, "primary", "fallback", 512, 6000, nil)

	got, err := client.Generate(context.Background(), "¿cuál es la respuesta?")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if got != "la respuesta" {
		t.Errorf("got %q", got)
	}

	if len(invoker.gotModels) != 1 || invoker.gotModels[0] != "primary" {
		t.Errorf("invoked models %v, want just the primary", invoker.gotModels)
	}

	var req chatRequest
	if err := json.Unmarshal(invoker.gotBodies[0], &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "¿cuál es la respuesta?" {
		t.Errorf("request messages = %+v", req.Messages)
	}
	if req.MaxTokens != 512 {
		t.Errorf("max_tokens = %d", req.MaxTokens)
	}
	if req.Temperature != 0.1 || req.TopP != 0.5 {
		t.Errorf("temperature = %v, top_p = %v", req.Temperature, req.TopP)
	}
}

func TestGenerateDefaultsMaxTokens(t *testing.T) {
	invoker := &fakeInvoker{results: []invokeResult{{body: chatBody(t, "ok")}}}
	client := NewLLMClient(invoker, "primary", "fallback", 0, 6000, nil)

	if _, err := client.Generate(context.Background(), "q"); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	var req chatRequest
	if err := json.Unmarshal(invoker.gotBodies[0], &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d, want the default", req.MaxTokens)
	}
}

func TestGenerateStripsReasoning(t *testing.T) {
	invoker := &fakeInvoker{results: []invokeResult{
		{body: chatBody(t, "<reasoning>pensando\nen varias líneas</reasoning>la respuesta final")},
	}}
	client := NewLLMClient(invoker, "primary", "fallback", 512, 6000, nil)

	got, err := client.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if got != "la respuesta final" {
		t.Errorf("got %q", got)
	}
}

func TestGenerateFallsBack(t *testing.T) {
	boom := errors.New("model overloaded")
	invoker := &fakeInvoker{results: []invokeResult{
		{err: boom},
		{err: boom},
		{body: chatBody(t, "desde el fallback")},
	}}
	client := NewLLMClient(invoker, "primary", "fallback", 512, 6000, nil)

	got, err := client.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if got != "desde el fallback" {
		t.Errorf("got %q", got)
	}

	want := []string{"primary", "primary", "fallback"}
	if len(invoker.gotModels) != len(want) {
		t.Fatalf("invoked models %v, want %v", invoker.gotModels, want)
	}
	for i := range want {
		if invoker.gotModels[i] != want[i] {
			t.Errorf("invocation %d hit %q, want %q", i, invoker.gotModels[i], want[i])
		}
	}
}

func TestGenerateBothModelsExhausted(t *testing.T) {
	invoker := &fakeInvoker{results: []invokeResult{{err: errors.New("down")}}}
	client := NewLLMClient(invoker, "primary", "fallback", 512, 6000, nil)

	_, err := client.Generate(context.Background(), "q")
	if !errors.Is(err, models.ErrLLMUnavailable) {
		t.Fatalf("got %v, want llm unavailable", err)
	}

	// Three real invocations reach the invoker; the circuit breaker may
	// reject the fourth before it gets there.
	if len(invoker.gotModels) < 3 {
		t.Fatalf("invoked models %v, want primary retried then fallback", invoker.gotModels)
	}
	if invoker.gotModels[0] != "primary" || invoker.gotModels[1] != "primary" || invoker.gotModels[2] != "fallback" {
		t.Errorf("invocation order %v", invoker.gotModels)
	}
}

func TestStripReasoning(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sin etiquetas", "sin etiquetas"},
		{"  con espacios  ", "con espacios"},
		{"<reasoning>adentro</reasoning>respuesta", "respuesta"},
		{"<reasoning>línea una\nlínea dos</reasoning>respuesta", "respuesta"},
		{"x<reasoning>1</reasoning>y<reasoning>2</reasoning>z", "xyz"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := StripReasoning(tc.in); got != tc.want {
			t.Errorf("StripReasoning(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	once := StripReasoning("<reasoning>a</reasoning> resultado")
	if StripReasoning(once) != once {
		t.Errorf("strip is not idempotent: %q", once)
	}
}
