package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/testutil"
)

func TestTitlerGenerate(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel("General Conversation", 8)
	mock.AddResponse("kyoto", "Kyoto Trip Planning")
	mock.AddResponse("quoted", `"Quoted Title"`)
	mock.AddResponse("blank", "   ")
	mock.Register(g, "mock/title")

	titler := NewTitler(g, "mock/title", log.NewNop())
	ctx := context.Background()

	assert.Equal(t, "Kyoto Trip Planning", titler.Generate(ctx, "Help me plan a trip to Kyoto in autumn"))

	// Surrounding quotes are stripped.
	assert.Equal(t, "Quoted Title", titler.Generate(ctx, "something quoted"))

	// Blank model output falls back to truncation.
	assert.Equal(t, "something blank", titler.Generate(ctx, "something blank"))

	// Empty input gets the default title.
	assert.Equal(t, conversation.DefaultTitle, titler.Generate(ctx, "   "))
}

func TestFallbackTitle(t *testing.T) {
	assert.Equal(t, "short message", FallbackTitle("short message"))
	assert.Equal(t, conversation.DefaultTitle, FallbackTitle(""))
	assert.Equal(t, conversation.DefaultTitle, FallbackTitle("  \n "))

	long := strings.Repeat("word ", 30)
	got := FallbackTitle(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), titleFallbackRunes+3)
}

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "Plain", sanitizeTitle("  Plain \n"))
	assert.Equal(t, "Wrapped", sanitizeTitle(`"Wrapped"`))

	long := strings.Repeat("t", conversation.TitleMaxLength+20)
	got := sanitizeTitle(long)
	assert.Len(t, []rune(got), conversation.TitleMaxLength)
	assert.True(t, strings.HasSuffix(got, "..."))
}
