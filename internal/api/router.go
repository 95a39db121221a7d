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

	// All API routes live under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Conversation routes
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", apiHandler.CreateConversationHandler)
			r.Get("/", apiHandler.ListConversationsHandler)
			r.Get("/{conversationID}", apiHandler.GetConversationHandler)
			r.Delete("/{conversationID}", apiHandler.DeleteConversationHandler)
			r.Get("/{conversationID}/messages", apiHandler.ListMessagesHandler)
			r.Post("/{conversationID}/messages", apiHandler.PostMessageHandler)
			r.Post("/{conversationID}/system-message", apiHandler.PostSystemMessageHandler)
		})

		// Upload, search, and session routes
		r.Route("/upload", func(r chi.Router) {
			r.Post("/", apiHandler.UploadHandler)
			r.Post("/search", apiHandler.SearchHandler)
			r.Get("/sessions", apiHandler.ListSessionsHandler)
			r.Get("/session/{sessionID}", apiHandler.GetSessionHandler)
			r.Delete("/session/{sessionID}", apiHandler.DeleteSessionHandler)
			r.Get("/{filename}", apiHandler.ServeUploadHandler)
		})
	})

	return r
}
