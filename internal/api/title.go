package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quillchat/quill/internal/log"
)

// TitleGenerator names conversations from their opening message.
// Implemented by *backend.Titler.
type TitleGenerator interface {
	Generate(ctx context.Context, firstMessage string) string
}

type titleHandler struct {
	titler TitleGenerator
	logger log.Logger
}

// generate handles POST /api/v1/title. Clients use it to (re)generate
// a display title for a conversation's first message; persistence is
// their call via PATCH on the conversation.
func (h *titleHandler) generate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return
	}

	title := h.titler.Generate(r.Context(), body.Message)
	writeJSON(w, http.StatusOK, map[string]string{"title": title}, h.logger)
}
