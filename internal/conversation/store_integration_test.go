//go:build integration
// +build integration

package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/testutil"
)

func TestStore_CreateAndGet_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", "First Chat", []Message{
		NewUserMessage("hello"),
		NewAssistantMessage("hi there"),
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "First Chat", created.Title)
	assert.Zero(t, created.TokenUsage)
	assert.NotZero(t, created.CreatedAt)

	got, err := store.Get(ctx, created.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[0].Text())
	assert.Equal(t, RoleAssistant, got.Messages[1].Role)
	assert.Empty(t, got.AttachmentURL)
}

func TestStore_Get_OwnerScoping_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	created, err := store.Create(ctx, "owner", "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, created.Title)

	// A different owner cannot see the conversation.
	_, err = store.Get(ctx, created.ID, "intruder")
	assert.ErrorIs(t, err, ErrNotFound)

	// Neither can anyone with a random id.
	_, err = store.Get(ctx, uuid.New(), "owner")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	for i := range 5 {
		_, err := store.Create(ctx, "lister", fmt.Sprintf("Chat %d", i+1), nil)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "someone-else", "Other", nil)
	require.NoError(t, err)

	all, err := store.List(ctx, "lister", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	page, err := store.List(ctx, "lister", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := store.List(ctx, "lister", 10, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	empty, err := store.List(ctx, "nobody", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_CompleteTurn_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", "Turns", []Message{NewUserMessage("q1")})
	require.NoError(t, err)

	merged := MergeTurn(created.Messages, []Message{NewAssistantMessage("a1")})
	err = store.CompleteTurn(ctx, created.ID, "user-1", merged, 42, "")
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, 42, got.TokenUsage)
	assert.Empty(t, got.AttachmentURL)

	// Second turn accumulates usage and records the attachment.
	merged = MergeTurn(got.Messages, []Message{
		NewUserMessage("look at this"),
		NewAssistantMessage("a cat"),
	})
	err = store.CompleteTurn(ctx, created.ID, "user-1", merged, 58, "https://cdn.example.com/cat.png")
	require.NoError(t, err)

	got, err = store.Get(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 4)
	assert.Equal(t, 100, got.TokenUsage)
	assert.Equal(t, "https://cdn.example.com/cat.png", got.AttachmentURL)

	// Empty attachment URL on a later turn keeps the existing one.
	err = store.CompleteTurn(ctx, created.ID, "user-1", merged, 0, "")
	require.NoError(t, err)
	got, err = store.Get(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/cat.png", got.AttachmentURL)

	// Wrong owner cannot complete a turn.
	err = store.CompleteTurn(ctx, created.ID, "intruder", merged, 10, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Usage_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", "Usage", nil)
	require.NoError(t, err)

	usage, err := store.Usage(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Zero(t, usage)

	require.NoError(t, store.CompleteTurn(ctx, created.ID, "user-1", nil, 650, ""))

	usage, err = store.Usage(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 650, usage)

	_, err = store.Usage(ctx, uuid.New(), "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RenameAndDelete_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", "Old Title", nil)
	require.NoError(t, err)

	require.NoError(t, store.Rename(ctx, created.ID, "user-1", "New Title"))
	got, err := store.Get(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title)

	assert.ErrorIs(t, store.Rename(ctx, created.ID, "intruder", "Hijacked"), ErrNotFound)

	require.NoError(t, store.Delete(ctx, created.ID, "user-1"))
	_, err = store.Get(ctx, created.ID, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, created.ID, "user-1"), ErrNotFound)
}

func TestStore_SearchTitles_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	titles := []string{
		"Trip to Kyoto",
		"Kyoto food guide",
		"Budget overview",
		"Tokyo itinerary",
	}
	for _, title := range titles {
		_, err := store.Create(ctx, "traveler", title, nil)
		require.NoError(t, err)
	}

	page, err := store.SearchTitles(ctx, "traveler", "kyoto", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalResults)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Conversations, 2)

	// Pagination.
	page, err = store.SearchTitles(ctx, "traveler", "o", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalResults)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Conversations, 2)

	page, err = store.SearchTitles(ctx, "traveler", "o", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Len(t, page.Conversations, 2)

	// Out-of-range page returns empty with correct totals.
	page, err = store.SearchTitles(ctx, "traveler", "o", 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Conversations)
	assert.Equal(t, 4, page.TotalResults)

	// LIKE metacharacters match literally.
	_, err = store.Create(ctx, "traveler", "100% done", nil)
	require.NoError(t, err)
	page, err = store.SearchTitles(ctx, "traveler", "100%", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalResults)

	// No cross-owner leakage.
	page, err = store.SearchTitles(ctx, "stranger", "kyoto", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalResults)
}

func TestStore_EmptyOwner_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	_, err := store.Create(ctx, "", "x", nil)
	assert.ErrorIs(t, err, ErrEmptyOwner)
	_, err = store.Get(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, ErrEmptyOwner)
	_, err = store.List(ctx, "", 0, 0)
	assert.ErrorIs(t, err, ErrEmptyOwner)
	assert.ErrorIs(t, store.Delete(ctx, uuid.New(), ""), ErrEmptyOwner)
}
