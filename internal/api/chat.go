package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/quillchat/quill/internal/backend"
	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/quota"
	"github.com/quillchat/quill/internal/turn"
)

// SSE event types for chat streaming.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// ChunkPayload is the SSE data payload for streaming text chunks.
type ChunkPayload struct {
	Text string `json:"text"`
}

// DonePayload is the SSE data payload when a turn completes.
type DonePayload struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
	Title          string `json:"title,omitempty"`
	Created        bool   `json:"created,omitempty"`
	Usage          int    `json:"usage"`
	Category       string `json:"category"`
	Remember       bool   `json:"remember,omitempty"`
	PersistWarning string `json:"persistWarning,omitempty"`
}

// ErrorPayload is the SSE data payload for a mid-stream failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// chatRequest is the POST /api/v1/chat body.
type chatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	AttachmentURL  string `json:"attachmentUrl,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
}

// Runner executes one chat turn. Implemented by *turn.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req turn.Request, cb backend.StreamCallback) (*turn.Result, error)
}

type chatHandler struct {
	turns  Runner
	logger log.Logger
}

// send handles POST /api/v1/chat. The response is an SSE stream, but
// headers are deferred until the first model chunk: failures detected
// before any stream bytes (quota, unknown conversation, document
// path) go out as plain JSON with a real status code.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user identity required", h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return
	}

	conversationID := uuid.Nil
	if req.ConversationID != "" {
		var err error
		conversationID, err = uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_conversation_id", "conversationId must be a UUID", h.logger)
			return
		}
	}

	stream := &sseStream{w: w, flusher: flusher}
	ctx := r.Context()

	result, err := h.turns.Run(ctx, turn.Request{
		ConversationID: conversationID,
		OwnerID:        ownerID,
		Message:        req.Message,
		AttachmentURL:  req.AttachmentURL,
		AttachmentType: req.AttachmentType,
	}, func(_ context.Context, chunk string) error {
		return stream.event(EventChunk, ChunkPayload{Text: chunk})
	})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected during turn", "error", ctx.Err())
			return
		}
		h.turnError(stream, err)
		return
	}

	payload := DonePayload{
		Response:       result.Reply,
		ConversationID: result.ConversationID.String(),
		Title:          result.Title,
		Created:        result.Created,
		Usage:          result.Usage,
		Category:       string(result.Category),
		Remember:       result.Remember,
	}
	if result.PersistErr != nil {
		payload.PersistWarning = "response could not be saved to history"
	}
	if err := stream.event(EventDone, payload); err != nil {
		h.logger.Debug("failed to write done event", "error", err)
	}
}

// turnError reports a failed turn. Before any stream bytes it is a
// plain JSON error with a real status code; once streaming has begun
// only an SSE error event can go out.
func (h *chatHandler) turnError(stream *sseStream, err error) {
	code, status, message := "turn_failed", http.StatusInternalServerError, "could not complete the turn"
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		code, status, message = "quota_exceeded", http.StatusTooManyRequests, "conversation token quota exceeded"
	case errors.Is(err, conversation.ErrNotFound):
		code, status, message = "not_found", http.StatusNotFound, "conversation not found"
	case errors.Is(err, backend.ErrDocumentUnsupported):
		code, status, message = "document_unsupported", http.StatusUnprocessableEntity, "document understanding is not supported yet"
	case errors.Is(err, turn.ErrEmptyMessage):
		code, status, message = "missing_message", http.StatusBadRequest, "message is required"
	case errors.Is(err, context.DeadlineExceeded):
		code, status, message = "turn_timeout", http.StatusGatewayTimeout, "the turn took too long"
	}

	h.logger.Error("turn failed", "code", code, "error", err)

	if stream.started {
		_ = stream.event(EventError, ErrorPayload{Code: code, Message: message})
		return
	}
	writeError(stream.w, status, code, message, h.logger)
}

// sseStream lazily opens an SSE response on first event.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseStream) event(event string, data any) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	return writeEvent(s.w, s.flusher, event, data)
}

// writeEvent writes a single SSE event with JSON-encoded data.
// Format: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
