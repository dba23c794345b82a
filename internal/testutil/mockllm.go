// Package testutil provides shared testing infrastructure: a
// deterministic mock model, a disposable PostgreSQL container, and an
// SSE stream parser.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// MockModel provides deterministic model responses for testing. It
// matches the last user message against registered substring patterns
// and returns the first matching rule's response with its token usage.
//
// Thread-safe for concurrent use.
type MockModel struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	usage    int
	calls    []MockCall
}

type mockRule struct {
	pattern  string
	response string
	usage    int
}

// MockCall records a single request handled by the mock.
type MockCall struct {
	UserMessage string
	HasMedia    bool
	MaxTokens   int
	Response    string
}

// NewMockModel creates a mock with a fallback response and the token
// usage reported for every call that has no per-rule usage.
func NewMockModel(fallback string, usage int) *MockModel {
	return &MockModel{fallback: fallback, usage: usage}
}

// AddResponse registers a pattern-response pair. Matching is
// case-insensitive substring; first registered match wins.
func (m *MockModel) AddResponse(pattern, response string) {
	m.AddResponseWithUsage(pattern, response, 0)
}

// AddResponseWithUsage registers a pattern-response pair that reports
// the given token usage instead of the default.
func (m *MockModel) AddResponseWithUsage(pattern, response string, usage int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
		usage:    usage,
	})
}

// Calls returns a copy of all recorded calls.
func (m *MockModel) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears recorded calls, keeping registered rules.
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Register defines the mock as a Genkit model under the given name
// (e.g. "mock/chat") and returns its reference.
func (m *MockModel) Register(g *genkit.Genkit, name string) ai.Model {
	return genkit.DefineModel(g, name, &ai.ModelOptions{
		Label: "Mock Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
			Media:      true,
		},
	}, m.generate)
}

func (m *MockModel) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	// Real providers fail fast on a dead context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var userText string
	var hasMedia bool
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != ai.RoleUser {
			continue
		}
		userText = req.Messages[i].Text()
		for _, p := range req.Messages[i].Content {
			if p != nil && p.IsMedia() {
				hasMedia = true
			}
		}
		break
	}

	var maxTokens int
	switch cfg := req.Config.(type) {
	case *genai.GenerateContentConfig:
		maxTokens = int(cfg.MaxOutputTokens)
	case map[string]any:
		if v, ok := cfg["maxOutputTokens"].(int); ok {
			maxTokens = v
		}
	}

	m.mu.Lock()
	responseText := m.fallback
	usage := m.usage
	lower := strings.ToLower(userText)
	for _, r := range m.rules {
		if strings.Contains(lower, r.pattern) {
			responseText = r.response
			if r.usage > 0 {
				usage = r.usage
			}
			break
		}
	}
	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		HasMedia:    hasMedia,
		MaxTokens:   maxTokens,
		Response:    responseText,
	})
	m.mu.Unlock()

	// Streaming callers get the text in two chunks so accumulation
	// logic is actually exercised.
	if cb != nil {
		half := len(responseText) / 2
		for _, part := range []string{responseText[:half], responseText[half:]} {
			if part == "" {
				continue
			}
			if err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(part)},
			}); err != nil {
				return nil, err
			}
		}
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
		Usage: &ai.GenerationUsage{TotalTokens: usage},
	}, nil
}
