package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// Health endpoints stay public.
	r.Get("/", apiHandler.RootHandler)
	r.Get("/api/health", apiHandler.HealthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)

		r.Post("/analyze", apiHandler.AnalyzeHandler)
		r.Post("/validate-query", apiHandler.ValidateQueryHandler)

		r.Delete("/conversations/{conversationID}", apiHandler.DeleteConversationHandler)
		r.Get("/conversations/stats", apiHandler.ConversationStatsHandler)

		r.Post("/cache/{storeID}/invalidate", apiHandler.InvalidateCacheHandler)
		r.Get("/history", apiHandler.HistoryHandler)
	})

	return r
}
