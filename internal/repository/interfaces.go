package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/broadcast-engine/internal/model"
)

type BroadcastRepository interface {
	Create(ctx context.Context, broadcast *model.Broadcast) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Broadcast, error)
	// GetStatus is the runner's per-iteration pause poll; it must
	// always hit the store, never a cache.
	GetStatus(ctx context.Context, id uuid.UUID) (model.BroadcastStatus, error)
	List(ctx context.Context, tenantID uuid.UUID, status *model.BroadcastStatus, limit, offset int) ([]*model.Broadcast, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.BroadcastStatus) error
	// FinishRun persists the final stats and status in one write.
	FinishRun(ctx context.Context, id uuid.UUID, status model.BroadcastStatus, stats model.BroadcastStats) error
}

type ConnectionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Connection, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*model.Connection, error)
}
