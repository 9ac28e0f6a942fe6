package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/synapse/internal/apperr"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetNote handles GET /api/notes/{noteID}.
//
//	@Summary		Get a note record with its indexing status
//	@Tags			notes
//	@Produce		json
//	@Param			noteID	path		string	true	"Note ID"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{noteID} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	note, err := h.svc.Note(r.Context(), noteID)
	if err != nil {
		h.fail(w, "get note", noteID, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// NoteChunks handles GET /api/notes/{noteID}/chunks.
//
//	@Summary		List the persisted chunks of a note
//	@Tags			notes
//	@Produce		json
//	@Param			noteID	path		string	true	"Note ID"
//	@Success		200		{object}	NoteChunksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{noteID}/chunks [get]
func (h *Handler) NoteChunks(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	resp, err := h.svc.NoteChunks(r.Context(), noteID)
	if err != nil {
		h.fail(w, "note chunks", noteID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Usage handles GET /api/usage/{userID}.
//
//	@Summary		Get the embedded token usage of a user
//	@Tags			usage
//	@Produce		json
//	@Param			userID	path		string	true	"User ID"
//	@Success		200		{object}	UsageResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/usage/{userID} [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	m, err := h.svc.Usage(r.Context(), userID)
	if err != nil {
		h.fail(w, "get usage", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Enqueue handles POST /api/jobs/{queue}.
//
//	@Summary		Push a job payload onto a worker queue
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			queue	path		string	true	"Queue name"
//	@Success		202		{object}	EnqueueResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/{queue} [post]
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	if err := h.svc.Enqueue(r.Context(), queueName, payload); err != nil {
		switch {
		case errors.Is(err, ErrUnknownQueue):
			writeJSON(w, http.StatusNotFound, errorBody("unknown queue"))
		case apperr.IsParse(err):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("enqueue failed", slog.String("queue", queueName), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{Queue: queueName})
}

func (h *Handler) fail(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	slog.Error(op+" failed", slog.String("id", id), slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
