package assistant

import (
	"context"

	"github.com/google/uuid"
)

type ChatLogRepository interface {
	Create(ctx context.Context, l *ChatLog) error
	// Recent returns the owner's newest n exchanges, oldest first.
	Recent(ctx context.Context, ownerID uuid.UUID, n int) ([]*ChatLog, error)
	// ListByOwner pages through the owner's exchanges, oldest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*ChatLog, int, error)
}
