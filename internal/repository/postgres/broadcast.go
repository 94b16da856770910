package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/internal/repository"
	apperrors "github.com/jwalitptl/broadcast-engine/pkg/errors"
)

const broadcastColumns = `
	id, tenant_id, connection_id, channel, message, media_url, recipients,
	delay_ms, jitter, status,
	sent_count AS "stats.sent_count",
	failed_count AS "stats.failed_count",
	total_count AS "stats.total_count",
	created_at, updated_at, started_at, finished_at
`

type broadcastRepository struct {
	BaseRepository
}

func NewBroadcastRepository(base BaseRepository) repository.BroadcastRepository {
	return &broadcastRepository{base}
}

func (r *broadcastRepository) Create(ctx context.Context, broadcast *model.Broadcast) error {
	if broadcast == nil {
		return fmt.Errorf("broadcast cannot be nil")
	}
	if len(broadcast.Recipients) == 0 {
		return fmt.Errorf("broadcast must have at least one recipient")
	}

	query := `
		INSERT INTO broadcasts (
			id, tenant_id, connection_id, channel, message, media_url, recipients,
			delay_ms, jitter, status, sent_count, failed_count, total_count,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`
	if broadcast.ID == uuid.Nil {
		broadcast.ID = uuid.New()
	}
	broadcast.Status = model.BroadcastStatusDraft
	broadcast.Stats = model.BroadcastStats{Total: len(broadcast.Recipients)}
	broadcast.CreatedAt = time.Now()
	broadcast.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		broadcast.ID,
		broadcast.TenantID,
		broadcast.ConnectionID,
		broadcast.Channel,
		broadcast.Message,
		broadcast.MediaURL,
		broadcast.Recipients,
		broadcast.DelayMs,
		broadcast.Jitter,
		broadcast.Status,
		broadcast.Stats.Sent,
		broadcast.Stats.Failed,
		broadcast.Stats.Total,
		broadcast.CreatedAt,
		broadcast.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create broadcast: %w", err)
	}
	return nil
}

func (r *broadcastRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Broadcast, error) {
	query := fmt.Sprintf(`SELECT %s FROM broadcasts WHERE id = $1`, broadcastColumns)

	var broadcast model.Broadcast
	err := r.db.GetContext(ctx, &broadcast, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("broadcast", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast: %w", err)
	}
	return &broadcast, nil
}

func (r *broadcastRepository) GetStatus(ctx context.Context, id uuid.UUID) (model.BroadcastStatus, error) {
	query := `SELECT status FROM broadcasts WHERE id = $1`

	var status model.BroadcastStatus
	err := r.db.GetContext(ctx, &status, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("broadcast", err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get broadcast status: %w", err)
	}
	return status, nil
}

func (r *broadcastRepository) List(ctx context.Context, tenantID uuid.UUID, status *model.BroadcastStatus, limit, offset int) ([]*model.Broadcast, error) {
	query := fmt.Sprintf(`SELECT %s FROM broadcasts WHERE tenant_id = $1`, broadcastColumns)
	args := []interface{}{tenantID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	var broadcasts []*model.Broadcast
	err := r.db.SelectContext(ctx, &broadcasts, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcasts: %w", err)
	}
	return broadcasts, nil
}

func (r *broadcastRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.BroadcastStatus) error {
	query := `
		UPDATE broadcasts
		SET status = $2,
		    updated_at = $3,
		    started_at = CASE WHEN $2 = 'RUNNING' AND started_at IS NULL THEN $3 ELSE started_at END
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update broadcast status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("broadcast", sql.ErrNoRows)
	}
	return nil
}

func (r *broadcastRepository) FinishRun(ctx context.Context, id uuid.UUID, status model.BroadcastStatus, stats model.BroadcastStats) error {
	query := `
		UPDATE broadcasts
		SET status = $2,
		    sent_count = $3,
		    failed_count = $4,
		    updated_at = $5,
		    finished_at = CASE WHEN $2 IN ('DONE', 'FAILED') THEN $5 ELSE finished_at END
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, status, stats.Sent, stats.Failed, time.Now())
	if err != nil {
		return fmt.Errorf("failed to finish broadcast run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("broadcast", sql.ErrNoRows)
	}
	return nil
}
