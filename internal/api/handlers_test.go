package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"merchiq.com/analytics-agent/internal/auth"
	"merchiq.com/analytics-agent/internal/cache"
	"merchiq.com/analytics-agent/internal/core"
	"merchiq.com/analytics-agent/internal/memory"
)

// stubProcessor echoes a canned response so handler tests do not exercise
// the pipeline.
type stubProcessor struct {
	lastRequest core.Request
	response    core.Response
}

func (s *stubProcessor) ProcessQuestion(_ context.Context, req core.Request) core.Response {
	s.lastRequest = req
	resp := s.response
	if resp.ConversationID == "" {
		resp.ConversationID = req.ConversationID
	}
	return resp
}

func newTestRouter(processor QuestionProcessor, jwtSecret string) (http.Handler, *APIHandler) {
	logger := zap.NewNop()
	handler := NewAPIHandler(
		processor,
		core.NewQueryValidator(logger),
		memory.NewConversationStore(logger),
		cache.NewWithBackend(cache.NewMemoryBackend(), time.Minute, logger),
		nil,
		jwtSecret,
		HealthInfo{GeminiConfigured: true},
		logger,
	)
	return NewRouter(handler), handler
}

func TestRootAndHealth(t *testing.T) {
	router, _ := newTestRouter(&stubProcessor{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shopify-ai-analytics")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, true, health["gemini_configured"])
	assert.Equal(t, false, health["history_configured"])
}

func TestAnalyzeHandler(t *testing.T) {
	processor := &stubProcessor{response: core.Response{
		Answer:     "Your top product was Widget.",
		Confidence: "high",
	}}
	router, _ := newTestRouter(processor, "")

	body := `{"store_id": "shop-1", "question": "what sold best?", "access_token": "shpat_test"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shop-1", processor.lastRequest.StoreID)

	var resp core.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Your top product was Widget.", resp.Answer)
}

func TestAnalyzeHandlerRejectsBadInput(t *testing.T) {
	router, _ := newTestRouter(&stubProcessor{}, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"store_id": `},
		{"missing store_id", `{"question": "q", "access_token": "t"}`},
		{"missing question", `{"store_id": "s", "access_token": "t"}`},
		{"missing access_token", `{"store_id": "s", "question": "q"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestValidateQueryHandler(t *testing.T) {
	router, _ := newTestRouter(&stubProcessor{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/validate-query",
		strings.NewReader(`{"query": "FROM sales SHOW sum(net_sales) AS total_sales"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Errors)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/validate-query",
		strings.NewReader(`{"query": "FROM refunds SHOW total"}`)))

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Errors)
}

func TestDeleteConversationHandler(t *testing.T) {
	router, handler := newTestRouter(&stubProcessor{}, "")
	handler.conversations.AddTurn("conv-1", "q", "a", "", "sales")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/conv-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/conv-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationStatsHandler(t *testing.T) {
	router, handler := newTestRouter(&stubProcessor{}, "")
	handler.conversations.AddTurn("conv-1", "q", "a", "", "sales")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats memory.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalConversations)
	assert.Equal(t, 1, stats.TotalTurns)
}

func TestInvalidateCacheHandler(t *testing.T) {
	router, handler := newTestRouter(&stubProcessor{}, "")
	ctx := context.Background()
	handler.cache.Set(ctx, handler.cache.Key("shop-1", "FROM sales SHOW total_sales"), "v")
	handler.cache.Set(ctx, handler.cache.Key("shop-2", "FROM sales SHOW total_sales"), "v")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/shop-1/invalidate", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		StoreID     string `json:"store_id"`
		KeysDeleted int    `json:"keys_deleted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "shop-1", resp.StoreID)
	assert.Equal(t, 1, resp.KeysDeleted)
}

func TestHistoryHandlerWithoutStore(t *testing.T) {
	router, _ := newTestRouter(&stubProcessor{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestJWTAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	router, _ := newTestRouter(&stubProcessor{}, secret)

	// No token.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token signed with a different secret.
	wrong, err := auth.GenerateJWT("svc", "other-secret")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/stats", nil)
	req.Header.Set("Authorization", "Bearer "+wrong)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	token, err := auth.GenerateJWT("svc", secret)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/conversations/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
