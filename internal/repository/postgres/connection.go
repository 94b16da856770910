package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/internal/repository"
	apperrors "github.com/jwalitptl/broadcast-engine/pkg/errors"
)

type connectionRepository struct {
	BaseRepository
}

func NewConnectionRepository(base BaseRepository) repository.ConnectionRepository {
	return &connectionRepository{base}
}

func (r *connectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	query := `
		SELECT id, tenant_id, channel, external_id, access_token, status, created_at, updated_at
		FROM channel_connections
		WHERE id = $1
	`

	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("connection", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

func (r *connectionRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*model.Connection, error) {
	query := `
		SELECT id, tenant_id, channel, external_id, access_token, status, created_at, updated_at
		FROM channel_connections
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	var conns []*model.Connection
	err := r.db.SelectContext(ctx, &conns, query, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}
