// Package router classifies a user turn to decide which backend
// handles it: plain text generation, image understanding, or document
// understanding.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/quillchat/quill/internal/log"
)

// Category is the routing decision for a turn.
type Category string

const (
	CategoryText     Category = "text"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
)

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryText, CategoryImage, CategoryDocument:
		return true
	}
	return false
}

// Result is the classifier's decision for one turn.
type Result struct {
	Category Category `json:"category"`
	Remember bool     `json:"remember"`
}

// DefaultResult is used whenever classification fails: the text path
// always works, and not remembering is the safe side.
var DefaultResult = Result{Category: CategoryText, Remember: false}

// maxClassifyResponseBytes limits model output before JSON parsing.
const maxClassifyResponseBytes = 4 * 1024

// classifyPrompt instructs the model to route the turn. Output is a
// single JSON object so parsing stays trivial.
// %s placeholders: (1) attachment hint, (2) user message.
const classifyPrompt = `You are a request router for a chat assistant. Classify the user's latest message into exactly one category:

- "image": the user wants an image analyzed, described, or discussed, or attached an image
- "document": the user wants a PDF or document file analyzed or summarized, or attached a document
- "text": everything else (questions, conversation, code, writing)

Also decide "remember": true if the message states a durable fact about the user worth keeping for future conversations (name, preferences, ongoing projects), false otherwise.

%s
Respond with ONLY a JSON object, no prose:
{"category": "text", "remember": false}

User message:
%s`

// Router classifies turns with a small, fast model.
type Router struct {
	g         *genkit.Genkit
	modelName string
	logger    log.Logger
}

// New creates a router using the given provider-qualified model name.
func New(g *genkit.Genkit, modelName string, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Router{g: g, modelName: modelName, logger: logger}
}

// Classify routes a user turn. attachmentType is the MIME type of an
// uploaded file, or empty when the turn has no attachment.
//
// Classification is best-effort and never blocks a turn: on model or
// parse failure the result falls back to DefaultResult and the error
// is only logged. The returned error is non-nil solely when the
// context was cancelled, so callers can stop early.
func (r *Router) Classify(ctx context.Context, userText, attachmentType string) (Result, error) {
	hint := ""
	if attachmentType != "" {
		hint = fmt.Sprintf("The message has an attached file of type %q.\n", attachmentType)
	}
	prompt := fmt.Sprintf(classifyPrompt, hint, userText)

	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModelName(r.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		if ctx.Err() != nil {
			return DefaultResult, ctx.Err()
		}
		r.logger.WarnContext(ctx, "classification failed, using text path", "error", err)
		return DefaultResult, nil
	}

	result, err := parseResult(resp.Text())
	if err != nil {
		r.logger.WarnContext(ctx, "unparseable classification, using text path", "error", err)
		return DefaultResult, nil
	}
	return result, nil
}

// parseResult extracts a Result from raw model output, tolerating
// code fences and surrounding prose.
func parseResult(raw string) (Result, error) {
	text := stripCodeFences(raw)
	if len(text) > maxClassifyResponseBytes {
		return DefaultResult, fmt.Errorf("classification response too large: %d bytes", len(text))
	}

	// Models sometimes wrap the object in commentary; take the
	// outermost braces.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return DefaultResult, fmt.Errorf("no JSON object in classification output")
	}

	var wire struct {
		Category string `json:"category"`
		Remember bool   `json:"remember"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
		return DefaultResult, fmt.Errorf("parsing classification: %w", err)
	}

	cat := Category(strings.ToLower(strings.TrimSpace(wire.Category)))
	if !cat.Valid() {
		return DefaultResult, fmt.Errorf("unknown category %q", wire.Category)
	}
	return Result{Category: cat, Remember: wire.Remember}, nil
}

// stripCodeFences removes ```json ... ``` wrapping from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
