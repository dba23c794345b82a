package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
)

// ErrNoAttachment indicates an image turn arrived without a file.
var ErrNoAttachment = errors.New("image turn requires an attachment")

// Image handles turns about an uploaded picture. The latest user
// message is rebuilt into a two-part (text, media) message before
// dispatch, and output is capped so vision replies stay short.
type Image struct {
	g         *genkit.Genkit
	modelName string
	maxTokens int
	logger    log.Logger
}

// NewImage creates the image backend. maxTokens caps the reply length.
func NewImage(g *genkit.Genkit, modelName string, maxTokens int, logger log.Logger) *Image {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Image{g: g, modelName: modelName, maxTokens: maxTokens, logger: logger}
}

// Generate runs an image understanding turn.
func (im *Image) Generate(ctx context.Context, req Request, cb StreamCallback) (*Result, error) {
	if req.AttachmentURL == "" {
		return nil, ErrNoAttachment
	}

	messages, err := attachToLastUser(req)
	if err != nil {
		return nil, err
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(im.modelName),
		ai.WithMessages(toModelMessages(messages)...),
		ai.WithConfig(&genai.GenerateContentConfig{
			MaxOutputTokens: int32(im.maxTokens),
		}),
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(streamAdapter(cb)))
	}

	resp, err := genkit.Generate(ctx, im.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}

	usage := usageOf(resp)
	im.logger.DebugContext(ctx, "image turn generated",
		"model", im.modelName, "usage", usage, "max_tokens", im.maxTokens)

	return &Result{
		Reply: conversation.NewAssistantMessage(resp.Text()),
		Usage: usage,
	}, nil
}

// attachToLastUser returns a copy of the history where the most recent
// user message carries the attachment as a media part.
func attachToLastUser(req Request) ([]conversation.Message, error) {
	contentType := req.AttachmentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != conversation.RoleUser {
			continue
		}
		messages := make([]conversation.Message, len(req.Messages))
		copy(messages, req.Messages)
		messages[i] = conversation.WithAttachment(messages[i], contentType, req.AttachmentURL)
		return messages, nil
	}
	return nil, fmt.Errorf("no user message to attach image to")
}
