package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 200
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// ConversationStore is the persistence surface for the CRUD handlers.
// Implemented by *conversation.Store.
type ConversationStore interface {
	Get(ctx context.Context, id uuid.UUID, ownerID string) (*conversation.Conversation, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]conversation.Summary, error)
	SearchTitles(ctx context.Context, ownerID, query string, page, limit int) (*conversation.SearchPage, error)
	Rename(ctx context.Context, id uuid.UUID, ownerID, title string) error
	Delete(ctx context.Context, id uuid.UUID, ownerID string) error
}

type conversationHandler struct {
	store  ConversationStore
	logger log.Logger
}

// list handles GET /api/v1/conversations.
func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	limit := queryInt(r, "limit", defaultListLimit, maxListLimit)
	offset := queryInt(r, "offset", 0, 1<<30)

	summaries, err := h.store.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		h.logger.Error("listing conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list conversations", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries}, h.logger)
}

// get handles GET /api/v1/conversations/{id}.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	conv, err := h.store.Get(r.Context(), id, ownerID)
	if err != nil {
		h.storeError(w, err, "loading conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv, h.logger)
}

// rename handles PATCH /api/v1/conversations/{id}.
func (h *conversationHandler) rename(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	var body struct {
		Title string `json:"title"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusBadRequest, "missing_title", "title is required", h.logger)
		return
	}

	if err := h.store.Rename(r.Context(), id, ownerID, body.Title); err != nil {
		h.storeError(w, err, "renaming conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    id.String(),
		"title": strings.TrimSpace(body.Title),
	}, h.logger)
}

// remove handles DELETE /api/v1/conversations/{id}.
func (h *conversationHandler) remove(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id, ownerID); err != nil {
		h.storeError(w, err, "deleting conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// search handles GET /api/v1/conversations/search.
func (h *conversationHandler) search(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "q is required", h.logger)
		return
	}

	page := queryInt(r, "page", 1, 1<<30)
	limit := queryInt(r, "limit", defaultSearchLimit, maxSearchLimit)

	result, err := h.store.SearchTitles(r.Context(), ownerID, query, page, limit)
	if err != nil {
		h.logger.Error("searching conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not search conversations", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result, h.logger)
}

// ownerAndID extracts the authenticated owner and the path id,
// writing the error response itself when either is missing.
func (h *conversationHandler) ownerAndID(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	ownerID, ok := ownerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return "", uuid.Nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_conversation_id", "conversation id must be a UUID", h.logger)
		return "", uuid.Nil, false
	}
	return ownerID, id, true
}

func (h *conversationHandler) storeError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
		return
	}
	h.logger.Error(action, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
}

// queryInt parses a positive integer query parameter with a default
// and an upper clamp.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
