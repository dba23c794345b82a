package backend

import (
	"context"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
)

const (
	titleTimeout       = 5 * time.Second
	titleInputMaxRunes = 500
	titleFallbackRunes = 48
)

const titlePrompt = `Generate a short, descriptive title (max 6 words) for a conversation that starts with this message.
Return ONLY the title text, no quotes, no explanations, no punctuation at the end.

Message: %s

Title:`

// Titler generates conversation titles from the opening message.
type Titler struct {
	g         *genkit.Genkit
	modelName string
	logger    log.Logger
}

// NewTitler creates a title generator.
func NewTitler(g *genkit.Genkit, modelName string, logger log.Logger) *Titler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Titler{g: g, modelName: modelName, logger: logger}
}

// Generate produces a title for the first user message. Best-effort:
// on model failure or empty output it falls back to a truncation of
// the message itself, so the caller always gets a usable title.
func (t *Titler) Generate(ctx context.Context, firstMessage string) string {
	firstMessage = strings.TrimSpace(firstMessage)
	if firstMessage == "" {
		return conversation.DefaultTitle
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	input := firstMessage
	if runes := []rune(input); len(runes) > titleInputMaxRunes {
		input = string(runes[:titleInputMaxRunes]) + "..."
	}

	resp, err := genkit.Generate(ctx, t.g,
		ai.WithModelName(t.modelName),
		ai.WithPrompt(titlePrompt, input),
	)
	if err != nil {
		t.logger.DebugContext(ctx, "title generation failed, using fallback", "error", err)
		return FallbackTitle(firstMessage)
	}

	title := sanitizeTitle(resp.Text())
	if title == "" {
		return FallbackTitle(firstMessage)
	}
	return title
}

// FallbackTitle derives a title by truncating the first message.
func FallbackTitle(firstMessage string) string {
	title := strings.TrimSpace(firstMessage)
	if title == "" {
		return conversation.DefaultTitle
	}
	if runes := []rune(title); len(runes) > titleFallbackRunes {
		title = strings.TrimSpace(string(runes[:titleFallbackRunes])) + "..."
	}
	return title
}

// sanitizeTitle strips quoting and clamps length.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`")
	title = strings.TrimSpace(title)
	if runes := []rune(title); len(runes) > conversation.TitleMaxLength {
		title = string(runes[:conversation.TitleMaxLength-3]) + "..."
	}
	return title
}
