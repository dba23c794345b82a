package router

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/testutil"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Result
		wantErr bool
	}{
		{
			name: "plain object",
			raw:  `{"category": "image", "remember": true}`,
			want: Result{Category: CategoryImage, Remember: true},
		},
		{
			name: "code fenced",
			raw:  "```json\n{\"category\": \"document\", \"remember\": false}\n```",
			want: Result{Category: CategoryDocument},
		},
		{
			name: "surrounding prose",
			raw:  `Sure! Here is the classification: {"category": "text", "remember": true} Hope that helps.`,
			want: Result{Category: CategoryText, Remember: true},
		},
		{
			name: "mixed case category",
			raw:  `{"category": "Image", "remember": false}`,
			want: Result{Category: CategoryImage},
		},
		{
			name:    "unknown category",
			raw:     `{"category": "video", "remember": false}`,
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			raw:     "I think this is a text request.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			raw:     `{"category": "text",`,
			wantErr: true,
		},
		{
			name:    "empty output",
			raw:     "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, DefaultResult, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryText.Valid())
	assert.True(t, CategoryImage.Valid())
	assert.True(t, CategoryDocument.Valid())
	assert.False(t, Category("video").Valid())
	assert.False(t, Category("").Valid())
}

func TestClassify(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel(`{"category": "text", "remember": false}`, 5)
	mock.AddResponse("look at this picture", `{"category": "image", "remember": false}`)
	mock.AddResponse("summarize this pdf", `{"category": "document", "remember": false}`)
	mock.AddResponse("my name is", `{"category": "text", "remember": true}`)
	mock.AddResponse("gibberish", "not json at all")
	mock.Register(g, "mock/router")

	r := New(g, "mock/router", log.NewNop())
	ctx := context.Background()

	got, err := r.Classify(ctx, "look at this picture of my dog", "image/png")
	require.NoError(t, err)
	assert.Equal(t, CategoryImage, got.Category)

	got, err = r.Classify(ctx, "summarize this pdf please", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, CategoryDocument, got.Category)

	got, err = r.Classify(ctx, "my name is Ada", "")
	require.NoError(t, err)
	assert.Equal(t, CategoryText, got.Category)
	assert.True(t, got.Remember)

	// Unparseable output falls back to the text path without error.
	got, err = r.Classify(ctx, "gibberish", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultResult, got)
}

func TestClassify_AttachmentHintInPrompt(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel(`{"category": "text", "remember": false}`, 5)
	mock.Register(g, "mock/router")

	r := New(g, "mock/router", log.NewNop())
	_, err := r.Classify(context.Background(), "what is this", "image/jpeg")
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UserMessage, `"image/jpeg"`)
	assert.Contains(t, calls[0].UserMessage, "what is this")
}

func TestClassify_ContextCancelled(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel(`{"category": "text", "remember": false}`, 5)
	mock.Register(g, "mock/router")

	r := New(g, "mock/router", log.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := r.Classify(ctx, "hello", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DefaultResult, got)
}
