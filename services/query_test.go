package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"multitenant-rag-platform/models"
)

const (
	testAgentID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	testDocID   = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
)

type fakeEmbedder struct {
	vec      []float32
	err      error
	lastText string
	calls    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeAgentStore struct {
	chunks    []models.RetrievedChunk
	agent     *models.Agent
	agentErr  error
	searchErr error

	gotTenant string
	gotAgent  string
	gotDoc    string
	gotVec    []float32
}

func (f *fakeAgentStore) SearchChunks(ctx context.Context, tenantID string, embedding []float32, agentID, documentID string) ([]models.RetrievedChunk, error) {
	f.gotTenant = tenantID
	f.gotVec = embedding
	f.gotAgent = agentID
	f.gotDoc = documentID
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.chunks, nil
}

func (f *fakeAgentStore) GetAgent(ctx context.Context, tenantID, agentID string) (*models.Agent, error) {
	if f.agentErr != nil {
		return nil, f.agentErr
	}
	return f.agent, nil
}

type fakeLLM struct {
	out        string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return prompt, nil
}

func TestRenderPromptTemplate(t *testing.T) {
	cases := []struct {
		name     string
		template string
		context  string
		query    string
		want     string
	}{
		{
			name:     "both placeholders",
			template: "Contexto: {context}\nPregunta: {query}",
			context:  "datos",
			query:    "pregunta",
			want:     "Contexto: datos\nPregunta: pregunta",
		},
		{
			name:     "unknown placeholder survives",
			template: "Usa {context}. Pregunta: {query}. Nota: {autor}",
			context:  "X",
			query:    "Y",
			want:     "Usa X. Pregunta: Y. Nota: {autor}",
		},
		{
			name:     "literal braces survive",
			template: `JSON como {"clave": 1} y {query}`,
			context:  "",
			query:    "Y",
			want:     `JSON como {"clave": 1} y Y`,
		},
		{
			name:     "no placeholders",
			template: "Responde siempre en español.",
			context:  "X",
			query:    "Y",
			want:     "Responde siempre en español.",
		},
		{
			name:     "doubled braces round-trip",
			template: "code {{x}} and {context}",
			context:  "C",
			query:    "Q",
			want:     "code {{x}} and C",
		},
		{
			name:     "value with braces inserted verbatim",
			template: "Usa {context}.",
			context:  "data {raw} here",
			query:    "Q",
			want:     "Usa data {raw} here.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RenderPromptTemplate(tc.template, tc.context, tc.query)
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderPromptTemplateNeverFailsOnStrayBraces(t *testing.T) {
	for _, template := range []string{"{", "}", "}{", "}}}", "{co}{ntext}", "{{", "{query"} {
		if _, err := RenderPromptTemplate(template, "C", "Q"); err != nil {
			t.Errorf("template %q: unexpected error %v", template, err)
		}
	}
}

func TestFormatNamedErrors(t *testing.T) {
	values := map[string]string{"context": "C", "query": "Q"}

	cases := []string{"{unknown}", "half {", "stray } here"}
	for _, format := range cases {
		_, err := formatNamed(format, values)
		if !errors.Is(err, models.ErrTemplate) {
			t.Errorf("format %q: got %v, want template error", format, err)
		}
	}

	got, err := formatNamed("{{literal}} {context}", values)
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	if got != "{literal} C" {
		t.Errorf("got %q", got)
	}
}

func TestBuildContext(t *testing.T) {
	chunks := []models.RetrievedChunk{
		{ChunkText: "primero"},
		{ChunkText: "segundo"},
		{ChunkText: "tercero"},
	}
	if got := buildContext(chunks); got != "primero\n\nsegundo\n\ntercero" {
		t.Errorf("got %q", got)
	}
	if got := buildContext(nil); got != "" {
		t.Errorf("empty retrieval: got %q", got)
	}
}

func TestQueryServiceAnswer(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	store := &fakeAgentStore{
		chunks: []models.RetrievedChunk{
			{ChunkText: "hecho uno"},
			{ChunkText: "hecho dos"},
		},
		agent: &models.Agent{
			AgentID:        testAgentID,
			PromptTemplate: "Contexto: {context}\nPregunta: {query}",
		},
	}
	llm := &fakeLLM{}

	svc := NewQueryService(embedder, store, llm, nil)

	answer, err := svc.Answer(context.Background(), models.QueryRequest{
		TenantID: "acme",
		AgentID:  testAgentID,
		Query:    "¿qué pasó?",
	})
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	if embedder.lastText != "¿qué pasó?" {
		t.Errorf("embedded %q, want the query", embedder.lastText)
	}
	if store.gotTenant != "acme" || store.gotAgent != testAgentID || store.gotDoc != "" {
		t.Errorf("search got tenant=%q agent=%q doc=%q", store.gotTenant, store.gotAgent, store.gotDoc)
	}
	if len(store.gotVec) != 2 {
		t.Errorf("search got %d-dim vector", len(store.gotVec))
	}
	if !strings.Contains(answer, "hecho uno\n\nhecho dos") {
		t.Errorf("prompt missing joined context: %q", answer)
	}
	if !strings.Contains(answer, "¿qué pasó?") {
		t.Errorf("prompt missing query: %q", answer)
	}
}

func TestQueryServiceAnswerWithDocumentFilter(t *testing.T) {
	store := &fakeAgentStore{
		agent: &models.Agent{AgentID: testAgentID, PromptTemplate: "{context} {query}"},
	}
	svc := NewQueryService(&fakeEmbedder{vec: []float32{1}}, store, &fakeLLM{out: "ok"}, nil)

	_, err := svc.Answer(context.Background(), models.QueryRequest{
		TenantID:   "acme",
		AgentID:    testAgentID,
		Query:      "q",
		DocumentID: testDocID,
	})
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if store.gotDoc != testDocID {
		t.Errorf("search got doc=%q, want %q", store.gotDoc, testDocID)
	}
}

func TestQueryServiceAnswerValidation(t *testing.T) {
	svc := NewQueryService(&fakeEmbedder{vec: []float32{1}}, &fakeAgentStore{}, &fakeLLM{}, nil)

	cases := []models.QueryRequest{
		{TenantID: "bad tenant!", AgentID: testAgentID, Query: "q"},
		{TenantID: "acme", AgentID: "not-a-uuid", Query: "q"},
		{TenantID: "acme", AgentID: testAgentID, Query: "q", DocumentID: "nope"},
		{TenantID: "acme", AgentID: testAgentID, Query: "   "},
		{TenantID: "acme;DROP SCHEMA acme", AgentID: testAgentID, Query: "q"},
	}

	for _, req := range cases {
		if _, err := svc.Answer(context.Background(), req); !errors.Is(err, models.ErrBadRequest) {
			t.Errorf("req %+v: got %v, want bad request", req, err)
		}
	}
}

func TestQueryServiceAnswerAgentNotFound(t *testing.T) {
	store := &fakeAgentStore{
		agentErr: models.ErrAgentNotFound,
	}
	svc := NewQueryService(&fakeEmbedder{vec: []float32{1}}, store, &fakeLLM{}, nil)

	_, err := svc.Answer(context.Background(), models.QueryRequest{
		TenantID: "acme",
		AgentID:  testAgentID,
		Query:    "q",
	})
	if !errors.Is(err, models.ErrAgentNotFound) {
		t.Errorf("got %v, want agent not found", err)
	}
}
