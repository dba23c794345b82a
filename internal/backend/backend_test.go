package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/testutil"
)

func TestTextGenerate(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel("generic reply", 120)
	mock.AddResponseWithUsage("capital of france", "Paris is the capital of France.", 87)
	mock.Register(g, "mock/chat")

	text := NewText(g, "mock/chat", log.NewNop())
	res, err := text.Generate(context.Background(), Request{
		Messages: []conversation.Message{
			conversation.NewUserMessage("What is the capital of France?"),
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleAssistant, res.Reply.Role)
	assert.Equal(t, "Paris is the capital of France.", res.Reply.Text())
	assert.Equal(t, 87, res.Usage)
}

func TestTextGenerate_Streaming(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel("streamed answer", 10)
	mock.Register(g, "mock/chat")

	text := NewText(g, "mock/chat", log.NewNop())

	var chunks []string
	res, err := text.Generate(context.Background(), Request{
		Messages: []conversation.Message{conversation.NewUserMessage("hi")},
	}, func(_ context.Context, chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "streamed answer", strings.Join(chunks, ""))
	assert.Equal(t, "streamed answer", res.Reply.Text())
}

func TestTextGenerate_HistoryForwarded(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel("ok", 10)
	mock.Register(g, "mock/chat")

	text := NewText(g, "mock/chat", log.NewNop())
	_, err := text.Generate(context.Background(), Request{
		Messages: []conversation.Message{
			conversation.NewUserMessage("first question"),
			conversation.NewAssistantMessage("first answer"),
			conversation.NewUserMessage("follow-up question"),
		},
	}, nil)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "follow-up question", calls[0].UserMessage)
}

func TestImageGenerate(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel("a tabby cat on a sofa", 95)
	mock.Register(g, "mock/vision")

	img := NewImage(g, "mock/vision", 100, log.NewNop())
	res, err := img.Generate(context.Background(), Request{
		Messages: []conversation.Message{
			conversation.NewUserMessage("what is in this picture?"),
		},
		AttachmentURL:  "https://cdn.example.com/cat.jpg",
		AttachmentType: "image/jpeg",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a tabby cat on a sofa", res.Reply.Text())
	assert.Equal(t, 95, res.Usage)

	// The model saw a media part and the output cap.
	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].HasMedia)
	assert.Equal(t, 100, calls[0].MaxTokens)
}

func TestImageGenerate_NoAttachment(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel("unused", 10)
	mock.Register(g, "mock/vision")

	img := NewImage(g, "mock/vision", 100, log.NewNop())
	_, err := img.Generate(context.Background(), Request{
		Messages: []conversation.Message{conversation.NewUserMessage("hi")},
	}, nil)
	assert.ErrorIs(t, err, ErrNoAttachment)
	assert.Empty(t, mock.Calls())
}

func TestAttachToLastUser(t *testing.T) {
	req := Request{
		Messages: []conversation.Message{
			conversation.NewUserMessage("earlier"),
			conversation.NewAssistantMessage("reply"),
			conversation.NewUserMessage("describe this"),
		},
		AttachmentURL:  "https://cdn.example.com/a.png",
		AttachmentType: "image/png",
	}

	messages, err := attachToLastUser(req)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Only the last user message is restructured.
	assert.Len(t, messages[0].Content, 1)
	require.Len(t, messages[2].Content, 2)
	assert.True(t, messages[2].Content[0].IsText())
	assert.True(t, messages[2].Content[1].IsMedia())

	// The original slice is untouched.
	assert.Len(t, req.Messages[2].Content, 1)

	t.Run("no user message", func(t *testing.T) {
		_, err := attachToLastUser(Request{
			Messages:      []conversation.Message{conversation.NewAssistantMessage("only me")},
			AttachmentURL: "https://cdn.example.com/a.png",
		})
		assert.Error(t, err)
	})
}

func TestDocumentGenerate(t *testing.T) {
	doc := NewDocument()
	res, err := doc.Generate(context.Background(), Request{
		Messages:       []conversation.Message{conversation.NewUserMessage("summarize this")},
		AttachmentURL:  "https://cdn.example.com/report.pdf",
		AttachmentType: "application/pdf",
	}, nil)
	assert.ErrorIs(t, err, ErrDocumentUnsupported)
	assert.Nil(t, res)
}

func TestLastUserText(t *testing.T) {
	messages := []conversation.Message{
		conversation.NewUserMessage("first"),
		conversation.NewAssistantMessage("reply"),
		conversation.NewUserMessage("second"),
	}
	assert.Equal(t, "second", LastUserText(messages))
	assert.Empty(t, LastUserText(nil))
	assert.Empty(t, LastUserText([]conversation.Message{conversation.NewAssistantMessage("x")}))
}
