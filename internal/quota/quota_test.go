package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillchat/quill/internal/conversation"
	"github.com/quillchat/quill/internal/log"
)

type stubUsage struct {
	usage int
	err   error
}

func (s *stubUsage) Usage(_ context.Context, _ uuid.UUID, _ string) (int, error) {
	return s.usage, s.err
}

func TestGuardCheck(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	tests := []struct {
		name    string
		usage   int
		ceiling int
		wantErr error
	}{
		{name: "well under ceiling", usage: 100, ceiling: 600},
		{name: "exactly at ceiling still allowed", usage: 600, ceiling: 600},
		{name: "one over ceiling rejected", usage: 601, ceiling: 600, wantErr: ErrQuotaExceeded},
		{name: "far over ceiling rejected", usage: 650, ceiling: 600, wantErr: ErrQuotaExceeded},
		{name: "zero usage", usage: 0, ceiling: 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(&stubUsage{usage: tt.usage}, tt.ceiling, log.NewNop())
			err := g.Check(ctx, id, "owner")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuardCheck_NewConversation(t *testing.T) {
	ctx := context.Background()

	// Nil id means the conversation has not been created yet.
	g := NewGuard(&stubUsage{err: errors.New("should not be called")}, 600, log.NewNop())
	assert.NoError(t, g.Check(ctx, uuid.Nil, "owner"))

	// An unknown id reads as zero usage.
	g = NewGuard(&stubUsage{err: conversation.ErrNotFound}, 600, log.NewNop())
	assert.NoError(t, g.Check(ctx, uuid.New(), "owner"))
}

func TestGuardCheck_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	g := NewGuard(&stubUsage{err: boom}, 600, log.NewNop())

	err := g.Check(context.Background(), uuid.New(), "owner")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestGuardCeiling(t *testing.T) {
	g := NewGuard(&stubUsage{}, 600, nil)
	assert.Equal(t, 600, g.Ceiling())
}
