package broadcast

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/internal/repository"
	apperrors "github.com/jwalitptl/broadcast-engine/pkg/errors"
	"github.com/jwalitptl/broadcast-engine/pkg/logger"
	"github.com/jwalitptl/broadcast-engine/pkg/messaging"
)

type Defaults struct {
	DelayMs int
	Jitter  float64
}

// Service owns the tenant-facing broadcast lifecycle: records are
// created as drafts, started and resumed by enqueuing a dispatch job,
// and paused by flipping the persisted status the runner polls.
type Service struct {
	broadcasts  repository.BroadcastRepository
	connections repository.ConnectionRepository
	queue       messaging.Publisher
	queueName   string
	defaults    Defaults
	logger      *logger.Logger
}

func NewService(
	broadcasts repository.BroadcastRepository,
	connections repository.ConnectionRepository,
	queue messaging.Publisher,
	queueName string,
	defaults Defaults,
	logger *logger.Logger,
) *Service {
	return &Service{
		broadcasts:  broadcasts,
		connections: connections,
		queue:       queue,
		queueName:   queueName,
		defaults:    defaults,
		logger:      logger,
	}
}

func (s *Service) CreateBroadcast(ctx context.Context, tenantID uuid.UUID, req *model.CreateBroadcastRequest) (*model.Broadcast, error) {
	connectionID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		return nil, apperrors.BadRequest("invalid connection id", err)
	}

	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.TenantID != tenantID {
		return nil, apperrors.NotFound("connection", nil)
	}
	if !conn.Active() {
		return nil, apperrors.Conflict("connection is disabled", nil)
	}
	if conn.Channel != req.Channel {
		return nil, apperrors.BadRequest(
			fmt.Sprintf("connection is for channel %s, not %s", conn.Channel, req.Channel), nil)
	}

	delayMs := req.DelayMs
	if delayMs == 0 {
		delayMs = s.defaults.DelayMs
	}
	jitter := req.Jitter
	if jitter == 0 {
		jitter = s.defaults.Jitter
	}

	broadcast := &model.Broadcast{
		TenantID:     tenantID,
		ConnectionID: connectionID,
		Channel:      req.Channel,
		Message:      req.Message,
		MediaURL:     req.MediaURL,
		Recipients:   req.Recipients,
		DelayMs:      delayMs,
		Jitter:       jitter,
	}

	if err := s.broadcasts.Create(ctx, broadcast); err != nil {
		return nil, err
	}

	s.logger.Info("broadcast created",
		"broadcast_id", broadcast.ID.String(),
		"tenant_id", tenantID.String(),
		"channel", string(broadcast.Channel),
		"recipient_count", broadcast.Stats.Total,
	)
	return broadcast, nil
}

func (s *Service) GetBroadcast(ctx context.Context, tenantID, id uuid.UUID) (*model.Broadcast, error) {
	broadcast, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if broadcast.TenantID != tenantID {
		return nil, apperrors.NotFound("broadcast", nil)
	}
	return broadcast, nil
}

func (s *Service) ListBroadcasts(ctx context.Context, tenantID uuid.UUID, status *model.BroadcastStatus, limit, offset int) ([]*model.Broadcast, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.broadcasts.List(ctx, tenantID, status, limit, offset)
}

// StartBroadcast enqueues a draft for dispatch. The record stays DRAFT
// until the worker picks it up; the status flip to RUNNING is the
// runner's, so a crashed enqueue can simply be retried.
func (s *Service) StartBroadcast(ctx context.Context, tenantID, id uuid.UUID) error {
	broadcast, err := s.GetBroadcast(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if broadcast.Status != model.BroadcastStatusDraft {
		return apperrors.Conflict(
			fmt.Sprintf("broadcast cannot start from status %s", broadcast.Status), nil)
	}

	return s.enqueue(ctx, broadcast)
}

// PauseBroadcast flips the persisted status; the runner observes it at
// its next between-sends poll. A hung in-flight send is not
// interrupted.
func (s *Service) PauseBroadcast(ctx context.Context, tenantID, id uuid.UUID) error {
	broadcast, err := s.GetBroadcast(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !broadcast.Status.CanTransitionTo(model.BroadcastStatusPaused) {
		return apperrors.Conflict(
			fmt.Sprintf("broadcast cannot pause from status %s", broadcast.Status), nil)
	}

	if err := s.broadcasts.UpdateStatus(ctx, id, model.BroadcastStatusPaused); err != nil {
		return err
	}
	s.logger.Info("broadcast paused", "broadcast_id", id.String())
	return nil
}

// ResumeBroadcast re-enqueues a paused broadcast. The job carries the
// full recipient list; the runner skips the first sent+failed entries,
// so recipients already contacted are not re-sent.
func (s *Service) ResumeBroadcast(ctx context.Context, tenantID, id uuid.UUID) error {
	broadcast, err := s.GetBroadcast(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if broadcast.Status != model.BroadcastStatusPaused {
		return apperrors.Conflict(
			fmt.Sprintf("broadcast cannot resume from status %s", broadcast.Status), nil)
	}

	if broadcast.Stats.Attempted() >= broadcast.Stats.Total {
		// Paused on the final recipient with nothing left to send.
		return s.broadcasts.UpdateStatus(ctx, id, model.BroadcastStatusDone)
	}

	return s.enqueue(ctx, broadcast)
}

func (s *Service) enqueue(ctx context.Context, broadcast *model.Broadcast) error {
	job := model.DispatchJob{
		BroadcastID:  broadcast.ID,
		ConnectionID: broadcast.ConnectionID,
		Recipients:   broadcast.Recipients,
		Message:      broadcast.Message,
		DelayMs:      broadcast.DelayMs,
		Jitter:       broadcast.Jitter,
	}
	if broadcast.MediaURL != nil {
		job.MediaURL = *broadcast.MediaURL
	}

	if err := s.queue.Publish(ctx, s.queueName, job); err != nil {
		return fmt.Errorf("failed to enqueue dispatch job: %w", err)
	}

	s.logger.Info("dispatch job enqueued",
		"broadcast_id", broadcast.ID.String(),
		"recipient_count", len(broadcast.Recipients),
	)
	return nil
}
