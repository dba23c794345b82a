package conversation

import (
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "plain text",
			msg:  NewUserMessage("hello"),
			want: "hello",
		},
		{
			name: "multiple text parts concatenated",
			msg: Message{Role: RoleUser, Content: []*ai.Part{
				ai.NewTextPart("foo"),
				ai.NewTextPart("bar"),
			}},
			want: "foobar",
		},
		{
			name: "media parts skipped",
			msg: Message{Role: RoleUser, Content: []*ai.Part{
				ai.NewTextPart("describe this"),
				ai.NewMediaPart("image/png", "https://example.com/a.png"),
			}},
			want: "describe this",
		},
		{
			name: "empty content",
			msg:  Message{Role: RoleUser},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.Text())
		})
	}
}

func TestWithAttachment(t *testing.T) {
	m := NewUserMessage("what is in this picture?")
	got := WithAttachment(m, "image/jpeg", "https://cdn.example.com/cat.jpg")

	require.Len(t, got.Content, 2)
	assert.Equal(t, RoleUser, got.Role)
	assert.True(t, got.Content[0].IsText())
	assert.Equal(t, "what is in this picture?", got.Content[0].Text)
	assert.True(t, got.Content[1].IsMedia())
	assert.Equal(t, "https://cdn.example.com/cat.jpg", got.Content[1].Text)
}

func TestMergeTurn(t *testing.T) {
	prior := []Message{
		NewUserMessage("hi"),
		NewAssistantMessage("hello"),
	}
	generated := []Message{
		NewUserMessage("how are you?"),
		NewAssistantMessage("fine, thanks"),
	}

	merged := MergeTurn(prior, generated)
	require.Len(t, merged, 4)
	assert.Equal(t, "hi", merged[0].Text())
	assert.Equal(t, "fine, thanks", merged[3].Text())

	// Inputs are not mutated.
	assert.Len(t, prior, 2)
	assert.Len(t, generated, 2)

	t.Run("nil prior", func(t *testing.T) {
		merged := MergeTurn(nil, generated)
		require.Len(t, merged, 2)
		assert.Equal(t, "how are you?", merged[0].Text())
	})
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "short", truncateTitle("short"))

	long := strings.Repeat("x", TitleMaxLength+50)
	got := truncateTitle(long)
	assert.Len(t, got, TitleMaxLength)

	// Multibyte runes are not split.
	wide := strings.Repeat("語", TitleMaxLength+1)
	got = truncateTitle(wide)
	assert.Equal(t, TitleMaxLength, len([]rune(got)))
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"100%", `100\%`},
		{"under_score", `under\_score`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeLike(tt.in))
	}
}
