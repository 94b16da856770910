package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/internal/repository"
	"github.com/jwalitptl/broadcast-engine/internal/sender"
	"github.com/jwalitptl/broadcast-engine/pkg/logger"
	"github.com/jwalitptl/broadcast-engine/pkg/metrics"
)

// SenderResolver turns a connection id into the channel adapter for
// that connection.
type SenderResolver interface {
	ForConnection(ctx context.Context, connectionID uuid.UUID) (sender.Sender, error)
}

// Runner drains one broadcast's recipient list: strictly sequential
// sends, a fresh status read before every send so an external pause
// lands between sends, randomized pacing in between, and a single
// final write of stats and status.
type Runner struct {
	broadcasts repository.BroadcastRepository
	senders    SenderResolver
	logger     *logger.Logger
	metrics    *metrics.Metrics

	// sleep is swapped in tests to capture pacing without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(
	broadcasts repository.BroadcastRepository,
	senders SenderResolver,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Runner {
	return &Runner{
		broadcasts: broadcasts,
		senders:    senders,
		logger:     logger,
		metrics:    metrics,
		sleep:      sleepContext,
	}
}

// Run executes one dispatch job to completion, pause, or failure. A
// returned error means the run itself could not proceed; individual
// recipient failures are counted, logged, and never returned.
func (r *Runner) Run(ctx context.Context, job model.DispatchJob) error {
	log := r.logger.WithFields(map[string]interface{}{
		"broadcast_id": job.BroadcastID.String(),
	})

	broadcast, err := r.broadcasts.GetByID(ctx, job.BroadcastID)
	if err != nil {
		return fmt.Errorf("failed to load broadcast: %w", err)
	}

	if broadcast.Status.Terminal() {
		log.Warn("skipping broadcast in terminal state", "status", string(broadcast.Status))
		return nil
	}
	if broadcast.Status == model.BroadcastStatusRunning {
		log.Warn("skipping broadcast already running")
		return nil
	}
	if !broadcast.Status.CanTransitionTo(model.BroadcastStatusRunning) {
		return fmt.Errorf("broadcast cannot start from status %s", broadcast.Status)
	}

	if err := r.broadcasts.UpdateStatus(ctx, job.BroadcastID, model.BroadcastStatusRunning); err != nil {
		return fmt.Errorf("failed to mark broadcast running: %w", err)
	}

	channel := string(broadcast.Channel)
	total := len(job.Recipients)
	progress := ResumeProgress(total, broadcast.Stats.Sent, broadcast.Stats.Failed)

	// Sent+failed counts from a paused run double as the resume
	// offset: recipients before it were already attempted.
	start := progress.Attempted()
	if start > total {
		start = total
	}

	snd, err := r.senders.ForConnection(ctx, job.ConnectionID)
	if err != nil {
		log.Error(err, "failed to resolve channel connection", "connection_id", job.ConnectionID.String())
		if finishErr := r.broadcasts.FinishRun(ctx, job.BroadcastID, model.BroadcastStatusFailed, progress.Stats()); finishErr != nil {
			log.Error(finishErr, "failed to persist failed status")
		}
		r.metrics.BroadcastsFinished.WithLabelValues(string(model.BroadcastStatusFailed)).Inc()
		return fmt.Errorf("failed to resolve connection: %w", err)
	}

	pacing := NewPacing(job.DelayMs, job.Jitter)
	msg := sender.Message{Text: job.Message, MediaURL: job.MediaURL}

	log.Info("broadcast run started",
		"channel", channel,
		"recipient_count", total,
		"resume_offset", start,
	)

	r.metrics.BroadcastsStarted.Inc()
	r.metrics.ActiveRuns.Inc()
	defer r.metrics.ActiveRuns.Dec()
	runStart := time.Now()
	defer func() {
		r.metrics.RunDuration.Observe(time.Since(runStart).Seconds())
	}()

	paused := false

	for i := start; i < total; i++ {
		// Cooperative pause point: always a fresh read, never a
		// cached status, so a pause flipped mid-sleep is seen here.
		status, err := r.broadcasts.GetStatus(ctx, job.BroadcastID)
		if err != nil {
			log.Error(err, "failed to re-read broadcast status, aborting run")
			return fmt.Errorf("failed to re-read broadcast status: %w", err)
		}
		if status == model.BroadcastStatusPaused {
			log.Info("pause observed, stopping run", "attempted", progress.Attempted())
			paused = true
			break
		}

		recipient := job.Recipients[i]
		sendStart := time.Now()
		result, err := snd.Send(ctx, recipient, msg)
		r.metrics.SendDuration.WithLabelValues(channel).Observe(time.Since(sendStart).Seconds())

		if err != nil {
			progress.MarkFailed()
			r.metrics.MessagesFailed.WithLabelValues(channel).Inc()
			log.Warn("send failed", "recipient", recipient, "error", err.Error())
		} else {
			progress.MarkSent()
			r.metrics.MessagesSent.WithLabelValues(channel).Inc()
			log.Debug("send succeeded", "recipient", recipient, "message_id", result.MessageID)
		}

		log.Debug("broadcast progress", "fraction_complete", progress.FractionComplete())

		if i < total-1 {
			delay := pacing.Delay()
			r.metrics.PacingDelay.Observe(delay.Seconds())
			if err := r.sleep(ctx, delay); err != nil {
				// Worker is shutting down; leave the broadcast
				// resumable rather than half-finished RUNNING.
				log.Warn("run interrupted by shutdown", "attempted", progress.Attempted())
				paused = true
				break
			}
		}
	}

	finalStatus := model.BroadcastStatusDone
	if paused {
		finalStatus = model.BroadcastStatusPaused
	}

	// The final write must land even when the run stopped because ctx
	// was cancelled, or a shutdown would strand the record as RUNNING.
	if err := r.broadcasts.FinishRun(context.WithoutCancel(ctx), job.BroadcastID, finalStatus, progress.Stats()); err != nil {
		log.Error(err, "failed to persist final broadcast state")
		return fmt.Errorf("failed to persist final broadcast state: %w", err)
	}

	r.metrics.BroadcastsFinished.WithLabelValues(string(finalStatus)).Inc()
	log.Info("broadcast run finished",
		"status", string(finalStatus),
		"sent", progress.Sent(),
		"failed", progress.Failed(),
		"total", progress.Total(),
	)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
