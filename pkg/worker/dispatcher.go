package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/pkg/logger"
	"github.com/jwalitptl/broadcast-engine/pkg/messaging"
	"github.com/jwalitptl/broadcast-engine/pkg/metrics"
)

// Runner executes one dispatch job to completion.
type Runner interface {
	Run(ctx context.Context, job model.DispatchJob) error
}

type DispatcherConfig struct {
	Queue       string
	Concurrency int
}

// Dispatcher drains dispatch jobs from the broker and hands each one
// to a Runner. At most Concurrency broadcasts run at once; a single
// broadcast is never split across runners.
type Dispatcher struct {
	broker  messaging.Broker
	runner  Runner
	config  DispatcherConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(
	broker messaging.Broker,
	runner Runner,
	config DispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Dispatcher {
	if config.Queue == "" {
		panic("Queue must be set")
	}
	if config.Concurrency <= 0 {
		panic("Concurrency must be greater than 0")
	}

	return &Dispatcher{
		broker:  broker,
		runner:  runner,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Start consumes jobs until ctx is cancelled, then waits for in-flight
// runs to wind down before returning.
func (d *Dispatcher) Start(ctx context.Context) error {
	msgs, err := d.broker.Subscribe(ctx, d.config.Queue)
	if err != nil {
		return fmt.Errorf("failed to subscribe to dispatch queue: %w", err)
	}

	d.logger.Info("dispatcher started",
		"queue", d.config.Queue,
		"concurrency", d.config.Concurrency,
	)

	sem := make(chan struct{}, d.config.Concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shutting down, draining in-flight runs")
			wg.Wait()
			return nil
		case payload, ok := <-msgs:
			if !ok {
				wg.Wait()
				return nil
			}

			var job model.DispatchJob
			if err := json.Unmarshal(payload, &job); err != nil {
				d.metrics.QueueOperations.WithLabelValues("decode", "error").Inc()
				d.logger.Error(err, "discarding malformed dispatch job")
				continue
			}
			d.metrics.QueueOperations.WithLabelValues("decode", "success").Inc()

			sem <- struct{}{}
			wg.Add(1)
			go func(job model.DispatchJob) {
				defer wg.Done()
				defer func() { <-sem }()

				if err := d.runner.Run(ctx, job); err != nil {
					d.metrics.QueueOperations.WithLabelValues("run", "error").Inc()
					d.logger.Error(err, "broadcast run failed",
						"broadcast_id", job.BroadcastID.String())
					return
				}
				d.metrics.QueueOperations.WithLabelValues("run", "success").Inc()
			}(job)
		}
	}
}
