package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillchat/quill/internal/log"
)

// querier is the subset of pgx used by the store. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so the store works inside transactions too.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations in PostgreSQL.
type Store struct {
	db     querier
	logger log.Logger
}

// NewStore creates a conversation store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: pool, logger: logger}
}

// Create inserts a new conversation and returns the stored record.
func (s *Store) Create(ctx context.Context, ownerID, title string, messages []Message) (*Conversation, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}
	if title == "" {
		title = DefaultTitle
	}
	title = truncateTitle(title)
	if messages == nil {
		messages = []Message{}
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}

	c := &Conversation{OwnerID: ownerID, Title: title, Messages: messages}
	err = s.db.QueryRow(ctx, `
		INSERT INTO conversations (owner_id, title, messages)
		VALUES ($1, $2, $3)
		RETURNING id, token_usage, created_at, updated_at`,
		ownerID, title, payload,
	).Scan(&c.ID, &c.TokenUsage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	s.logger.DebugContext(ctx, "conversation created",
		"conversation_id", c.ID, "owner_id", ownerID)
	return c, nil
}

// Get loads a conversation by id, scoped to its owner. Returns
// ErrNotFound when the row is missing or owned by someone else.
func (s *Store) Get(ctx context.Context, id uuid.UUID, ownerID string) (*Conversation, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}

	var (
		c       Conversation
		payload []byte
		attach  *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, title, messages, attachment_url, token_usage, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &payload, &attach, &c.TokenUsage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	if err := json.Unmarshal(payload, &c.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if attach != nil {
		c.AttachmentURL = *attach
	}
	return &c, nil
}

// List returns the owner's conversations as summaries, most recently
// updated first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, ownerID string, limit, offset int) ([]Summary, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, title, token_usage, updated_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		OFFSET $2`
	args := []any{ownerID, offset}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.Title, &sm.TokenUsage, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		summaries = append(summaries, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return summaries, nil
}

// SearchTitles performs a case-insensitive substring search over the
// owner's conversation titles, paginated. page is 1-based; out-of-range
// pages return an empty result with correct totals.
func (s *Store) SearchTitles(ctx context.Context, ownerID, query string, page, limit int) (*SearchPage, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	pattern := "%" + escapeLike(query) + "%"

	var total int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM conversations
		WHERE owner_id = $1 AND title ILIKE $2`,
		ownerID, pattern,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count search results: %w", err)
	}

	result := &SearchPage{
		Conversations: []Summary{},
		CurrentPage:   page,
		TotalResults:  total,
		TotalPages:    (total + limit - 1) / limit,
	}
	if total == 0 {
		return result, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, title, token_usage, updated_at
		FROM conversations
		WHERE owner_id = $1 AND title ILIKE $2
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`,
		ownerID, pattern, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.Title, &sm.TokenUsage, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		result.Conversations = append(result.Conversations, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return result, nil
}

// Rename updates the conversation title.
func (s *Store) Rename(ctx context.Context, id uuid.UUID, ownerID, title string) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}
	title = truncateTitle(strings.TrimSpace(title))
	if title == "" {
		title = DefaultTitle
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET title = $3, updated_at = now()
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID, title,
	)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation and its history.
func (s *Store) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM conversations
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.DebugContext(ctx, "conversation deleted",
		"conversation_id", id, "owner_id", ownerID)
	return nil
}

// CompleteTurn atomically records a finished turn: it replaces the
// message array with the merged history, adds the turn's token cost to
// the cumulative counter, and stamps the attachment URL when one was
// sent. Concurrent turns on the same conversation are last-write-wins
// on the message array; the usage counter still accumulates both.
func (s *Store) CompleteTurn(ctx context.Context, id uuid.UUID, ownerID string, messages []Message, cost int, attachmentURL string) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}
	if cost < 0 {
		cost = 0
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET messages = $3,
		    token_usage = token_usage + $4,
		    attachment_url = COALESCE(NULLIF($5, ''), attachment_url),
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID, payload, cost, attachmentURL,
	)
	if err != nil {
		return fmt.Errorf("complete turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.DebugContext(ctx, "turn persisted",
		"conversation_id", id, "owner_id", ownerID,
		"messages", len(messages), "cost", cost)
	return nil
}

// Usage returns the cumulative token usage for a conversation.
func (s *Store) Usage(ctx context.Context, id uuid.UUID, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, ErrEmptyOwner
	}

	var usage int
	err := s.db.QueryRow(ctx, `
		SELECT token_usage FROM conversations
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&usage)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("query token usage: %w", err)
	}
	return usage, nil
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) > TitleMaxLength {
		return string(runes[:TitleMaxLength])
	}
	return title
}

// escapeLike escapes LIKE metacharacters so user queries match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
