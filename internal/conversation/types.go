// Package conversation provides persistence for chat conversations.
//
// A conversation is an owned, ordered sequence of messages plus a
// cumulative token usage counter that gates further turns. Storage is
// PostgreSQL; the message array is serialized as JSONB.
package conversation

import (
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// Role constants for persisted messages. The router may synthesize
// system framing for the model, but only user and assistant entries
// are ever stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TitleMaxLength caps conversation titles (generated or user-set).
const TitleMaxLength = 100

// DefaultTitle is used when no title has been generated yet.
const DefaultTitle = "New Chat"

// Message is a single conversation entry. Content holds Genkit Part
// slices so the image path can persist multi-part (text + media)
// messages with the same encoding as plain text.
type Message struct {
	Role    string     `json:"role"`
	Content []*ai.Part `json:"content"`
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p != nil && p.IsText() {
			out += p.Text
		}
	}
	return out
}

// NewUserMessage builds a plain-text user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []*ai.Part{ai.NewTextPart(text)}}
}

// NewAssistantMessage builds a plain-text assistant message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []*ai.Part{ai.NewTextPart(text)}}
}

// WithAttachment rebuilds a message as a two-part (text, media) form.
// Used by the image path before dispatching to a vision model.
func WithAttachment(m Message, contentType, url string) Message {
	return Message{
		Role:    m.Role,
		Content: []*ai.Part{ai.NewTextPart(m.Text()), ai.NewMediaPart(contentType, url)},
	}
}

// MergeTurn appends newly generated assistant messages onto the prior
// history, preserving order. No deduplication beyond identity: the
// caller owns at-least-once semantics.
func MergeTurn(prior, generated []Message) []Message {
	merged := make([]Message, 0, len(prior)+len(generated))
	merged = append(merged, prior...)
	merged = append(merged, generated...)
	return merged
}

// Conversation is the application-level record.
type Conversation struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       string    `json:"ownerId"`
	Title         string    `json:"title"`
	Messages      []Message `json:"messages"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	TokenUsage    int       `json:"tokenUsage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Summary is a lightweight projection for list and search responses.
type Summary struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	TokenUsage int       `json:"tokenUsage"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SearchPage is a paginated title-search result.
type SearchPage struct {
	Conversations []Summary `json:"conversations"`
	CurrentPage   int       `json:"currentPage"`
	TotalPages    int       `json:"totalPages"`
	TotalResults  int       `json:"totalResults"`
}
