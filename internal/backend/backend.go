// Package backend holds the model-facing generation paths. Each
// backend takes a conversation history, produces one assistant reply,
// and reports the turn's token cost. Streaming is push-based through a
// callback so transports can forward chunks as they arrive.
package backend

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"

	"github.com/quillchat/quill/internal/conversation"
)

// ErrDocumentUnsupported indicates the document understanding path is
// not available. Turns routed there fail before any model call.
var ErrDocumentUnsupported = errors.New("document understanding is not supported yet")

// StreamCallback receives response text incrementally during
// generation. Returning an error aborts the generation.
type StreamCallback func(ctx context.Context, chunk string) error

// Request is one generation request. Messages holds the full history
// including the latest user message. Attachment fields are set only
// for turns that uploaded a file.
type Request struct {
	Messages       []conversation.Message
	AttachmentURL  string
	AttachmentType string
}

// Result is a completed generation.
type Result struct {
	Reply conversation.Message
	Usage int
}

// Backend produces one assistant reply for a request.
type Backend interface {
	Generate(ctx context.Context, req Request, cb StreamCallback) (*Result, error)
}

// LastUserText returns the text of the most recent user message, for
// prompts that only need the latest turn.
func LastUserText(messages []conversation.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}

// toModelMessages converts stored messages to the Genkit wire form.
// Assistant turns map to the model role; anything unrecognized is
// treated as user input.
func toModelMessages(messages []conversation.Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(messages))
	for _, m := range messages {
		role := ai.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = ai.RoleModel
		}
		out = append(out, &ai.Message{Role: role, Content: m.Content})
	}
	return out
}

// streamAdapter bridges Genkit's chunk callback to StreamCallback.
func streamAdapter(cb StreamCallback) ai.ModelStreamCallback {
	return func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
		if text := chunk.Text(); text != "" {
			return cb(ctx, text)
		}
		return nil
	}
}

// usageOf extracts total token usage from a model response, zero when
// the provider reported none.
func usageOf(resp *ai.ModelResponse) int {
	if resp == nil || resp.Usage == nil {
		return 0
	}
	return resp.Usage.TotalTokens
}
