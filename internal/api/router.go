package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Index inspection.
	r.Get("/notes/{noteID}", h.GetNote)
	r.Get("/notes/{noteID}/chunks", h.NoteChunks)
	r.Get("/usage/{userID}", h.Usage)

	// Job intake.
	r.Post("/jobs/{queue}", h.Enqueue)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
