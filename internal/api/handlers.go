package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"merchiq.com/analytics-agent/internal/auth"
	"merchiq.com/analytics-agent/internal/cache"
	"merchiq.com/analytics-agent/internal/core"
	"merchiq.com/analytics-agent/internal/memory"
	"merchiq.com/analytics-agent/internal/store"
)

// QuestionProcessor is the orchestrator surface the handlers depend on.
type QuestionProcessor interface {
	ProcessQuestion(ctx context.Context, req core.Request) core.Response
}

// HealthInfo reports which optional collaborators are configured.
type HealthInfo struct {
	GeminiConfigured  bool `json:"gemini_configured"`
	RedisConfigured   bool `json:"redis_configured"`
	HistoryConfigured bool `json:"history_configured"`
}

type APIHandler struct {
	orchestrator  QuestionProcessor
	validator     *core.QueryValidator
	conversations *memory.ConversationStore
	cache         *cache.Manager
	history       *store.QueryHistoryStore
	jwtSecret     string
	health        HealthInfo
	logger        *zap.Logger
}

func NewAPIHandler(
	orchestrator QuestionProcessor,
	validator *core.QueryValidator,
	conversations *memory.ConversationStore,
	cacheManager *cache.Manager,
	history *store.QueryHistoryStore,
	jwtSecret string,
	health HealthInfo,
	logger *zap.Logger,
) *APIHandler {
	return &APIHandler{
		orchestrator:  orchestrator,
		validator:     validator,
		conversations: conversations,
		cache:         cacheManager,
		history:       history,
		jwtSecret:     jwtSecret,
		health:        health,
		logger:        logger,
	}
}

// JWTAuthMiddleware guards the API group when a service secret is
// configured. Without a secret it is a pass-through.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.jwtSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if _, err := auth.ValidateJWT(tokenString, h.jwtSecret); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "shopify-ai-analytics",
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"gemini_configured":  h.health.GeminiConfigured,
		"redis_configured":   h.health.RedisConfigured,
		"history_configured": h.health.HistoryConfigured,
	})
}

// AnalyzeHandler runs a question through the pipeline.
func (h *APIHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req core.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.StoreID == "" || req.Question == "" || req.AccessToken == "" {
		http.Error(w, "store_id, question and access_token are required", http.StatusBadRequest)
		return
	}

	h.logger.Info("received_question",
		zap.String("store_id", req.StoreID),
		zap.String("conversation_id", req.ConversationID))

	resp := h.orchestrator.ProcessQuestion(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

type validateQueryRequest struct {
	Query string `json:"query"`
}

// ValidateQueryHandler validates a ShopifyQL query without executing it.
func (h *APIHandler) ValidateQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req validateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	valid, errors := h.validator.Validate(req.Query)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  valid,
		"errors": errors,
		"query":  req.Query,
	})
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if !h.conversations.Delete(conversationID) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ConversationStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.conversations.Stats())
}

// InvalidateCacheHandler removes every cached result for a store.
func (h *APIHandler) InvalidateCacheHandler(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	count := h.cache.InvalidateStore(r.Context(), storeID)
	writeJSON(w, http.StatusOK, map[string]any{
		"store_id":     storeID,
		"keys_deleted": count,
	})
}

// HistoryHandler lists recent query-history rows.
func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Query history is not configured", http.StatusNotFound)
		return
	}

	storeID := r.URL.Query().Get("store_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.history.Recent(r.Context(), storeID, limit)
	if err != nil {
		h.logger.Error("history_query_error", zap.Error(err))
		http.Error(w, "Failed to load query history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
