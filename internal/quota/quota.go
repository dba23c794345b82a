// Package quota enforces the per-conversation token budget that gates
// new turns.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
)

// ErrQuotaExceeded indicates the conversation has spent its token
// budget and no further turns are allowed.
var ErrQuotaExceeded = errors.New("conversation token quota exceeded")

// UsageReader reports cumulative token usage for a conversation.
// Implemented by *conversation.Store.
type UsageReader interface {
	Usage(ctx context.Context, id uuid.UUID, ownerID string) (int, error)
}

// Guard checks conversations against a fixed ceiling before a turn
// runs. The check is strict-greater: a conversation sitting exactly at
// the ceiling may still run one more turn.
type Guard struct {
	usage   UsageReader
	ceiling int
	logger  log.Logger
}

// NewGuard creates a guard with the given ceiling.
func NewGuard(usage UsageReader, ceiling int, logger log.Logger) *Guard {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Guard{usage: usage, ceiling: ceiling, logger: logger}
}

// Ceiling returns the configured budget.
func (g *Guard) Ceiling() int { return g.ceiling }

// Check returns ErrQuotaExceeded when the conversation's cumulative
// usage is over the ceiling. Conversations that do not exist yet have
// zero usage and always pass; a first turn is never quota-blocked.
func (g *Guard) Check(ctx context.Context, id uuid.UUID, ownerID string) error {
	if id == uuid.Nil {
		return nil
	}

	used, err := g.usage.Usage(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read token usage: %w", err)
	}

	if used > g.ceiling {
		g.logger.InfoContext(ctx, "turn rejected, quota exceeded",
			"conversation_id", id, "used", used, "ceiling", g.ceiling)
		return fmt.Errorf("%w: used %d of %d", ErrQuotaExceeded, used, g.ceiling)
	}
	return nil
}
