package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"multitenant-rag-platform/models"
	"multitenant-rag-platform/services"
)

const routeTestAgentID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

type stubStore struct {
	agentErr error
}

func (s stubStore) SearchChunks(ctx context.Context, tenantID string, embedding []float32, agentID, documentID string) ([]models.RetrievedChunk, error) {
	return []models.RetrievedChunk{{ChunkText: "contexto recuperado"}}, nil
}

func (s stubStore) GetAgent(ctx context.Context, tenantID, agentID string) (*models.Agent, error) {
	if s.agentErr != nil {
		return nil, s.agentErr
	}
	return &models.Agent{
		AgentID:        agentID,
		PromptTemplate: "Contexto: {context}\nPregunta: {query}",
	}, nil
}

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return "la respuesta generada", nil
}

func newQueryRouter(store stubStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc := services.NewQueryService(stubEmbedder{}, store, stubLLM{}, nil)
	SetupQueryRoutes(router, svc)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQueryEndpoint(t *testing.T) {
	router := newQueryRouter(stubStore{})

	body := `{"tenant_id": "acme", "agent_id": "` + routeTestAgentID + `", "query": "¿de qué trata?"}`
	w := postJSON(t, router, "/api/query", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "la respuesta generada" {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestQueryEndpointRejectsMissingFields(t *testing.T) {
	router := newQueryRouter(stubStore{})

	for _, body := range []string{
		`{"tenant_id": "acme"}`,
		`{"agent_id": "` + routeTestAgentID + `", "query": "q"}`,
		`not json`,
	} {
		w := postJSON(t, router, "/api/query", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
			continue
		}
		var resp struct {
			ErrorCode string `json:"error_code"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.ErrorCode != models.CodeBadRequest {
			t.Errorf("error_code = %q", resp.ErrorCode)
		}
	}
}

func TestQueryEndpointInvalidTenant(t *testing.T) {
	router := newQueryRouter(stubStore{})

	w := postJSON(t, router, "/api/query", `{"tenant_id": "bad tenant", "agent_id": "`+routeTestAgentID+`", "query": "q"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestQueryEndpointAgentNotFound(t *testing.T) {
	router := newQueryRouter(stubStore{agentErr: models.ErrAgentNotFound})

	w := postJSON(t, router, "/api/query", `{"tenant_id": "acme", "agent_id": "`+routeTestAgentID+`", "query": "q"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var resp struct {
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ErrorCode != models.CodeAgentNotFound {
		t.Errorf("error_code = %q", resp.ErrorCode)
	}
}
