package backend

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
)

// systemPrompt frames every text turn.
const systemPrompt = `You are Quill, a helpful and concise AI assistant.
Answer directly and truthfully. Use Markdown formatting when it helps
readability. If you do not know something, say so instead of guessing.`

// Text is the default conversational backend.
type Text struct {
	g         *genkit.Genkit
	modelName string
	logger    log.Logger
}

// NewText creates the text backend with a provider-qualified model name.
func NewText(g *genkit.Genkit, modelName string, logger log.Logger) *Text {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Text{g: g, modelName: modelName, logger: logger}
}

// Generate runs a plain text turn over the full history.
func (t *Text) Generate(ctx context.Context, req Request, cb StreamCallback) (*Result, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(t.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(toModelMessages(req.Messages)...),
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(streamAdapter(cb)))
	}

	resp, err := genkit.Generate(ctx, t.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("text generation: %w", err)
	}

	usage := usageOf(resp)
	t.logger.DebugContext(ctx, "text turn generated",
		"model", t.modelName, "usage", usage)

	return &Result{
		Reply: conversation.NewAssistantMessage(resp.Text()),
		Usage: usage,
	}, nil
}
