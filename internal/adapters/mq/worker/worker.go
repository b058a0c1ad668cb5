// Package worker turns raw triggers into compensated gate events.
//
// Workers read the current offset and calibration snapshots at the moment
// a trigger is dequeued, compute the unified timestamp exactly once, and
// append the resulting immutable event to the race log.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Areo-RGB/sprintgates/internal/adapters/bus"
	"github.com/Areo-RGB/sprintgates/internal/adapters/mq/queue"
	"github.com/Areo-RGB/sprintgates/internal/domain/compensate"
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/internal/timeutil"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// OffsetReader exposes the current clock offset snapshot.
type OffsetReader interface {
	Offset() float64
}

// StatsReader exposes the current calibration snapshot.
type StatsReader interface {
	Stats() model.CalibrationStats
}

// Appender receives compensated events.
type Appender interface {
	Append(e model.GateEvent)
}

// Publisher mirrors compensated events to peer devices.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// Queue defines how workers receive triggers.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Trigger
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
			w.log = logger.Get().Named(name)
		}
	}
}

// Worker processes triggers from the queue until shut down.
type Worker struct {
	queue     Queue
	offsets   OffsetReader
	stats     StatsReader
	appender  Appender
	publisher Publisher
	mono      *timeutil.Monotonic
	name      string

	shutdown chan struct{}
	done     chan struct{}

	log logger.Logger
}

// NewWorker creates a compensation worker.
func NewWorker(q Queue, offsets OffsetReader, stats StatsReader, appender Appender, publisher Publisher, mono *timeutil.Monotonic, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		offsets:   offsets,
		stats:     stats,
		appender:  appender,
		publisher: publisher,
		mono:      mono,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		log:       logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	triggers := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-triggers:
			if !ok {
				return
			}
			w.processTrigger(ctx, t)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.log.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processTrigger compensates one trigger and appends the resulting event.
func (w *Worker) processTrigger(ctx context.Context, t queue.Trigger) {
	started := w.mono.NowMs()

	unified := compensate.Unified(t.LocalTime, w.offsets.Offset(), w.stats.Stats(), t.Source, t.Meta)
	event := model.GateEvent{
		ID:        uuid.NewString(),
		Timestamp: unified,
		Source:    t.Source,
	}
	w.appender.Append(event)
	if w.publisher != nil {
		w.publisher.Publish(ctx, bus.TopicGateTrigger, bus.GateTrigger{
			Timestamp: event.Timestamp,
			Source:    event.Source,
		})
	}

	metrics.RecordCompensationLatency(w.mono.NowMs() - started)
	w.log.Debug(ctx, "event appended",
		logger.String("id", event.ID),
		logger.String("source", string(event.Source)),
		logger.Float64("unified_ms", event.Timestamp),
	)
}

// Pool manages multiple workers draining one queue.
type Pool struct {
	workers []*Worker
	log     logger.Logger
}

// NewPool creates a worker pool.
func NewPool(count int, q Queue, offsets OffsetReader, stats StatsReader, appender Appender, publisher Publisher, mono *timeutil.Monotonic) *Pool {
	if count < 1 {
		count = 1
	}

	p := &Pool{
		workers: make([]*Worker, count),
		log:     logger.Get().Named("worker-pool"),
	}
	for i := 0; i < count; i++ {
		p.workers[i] = NewWorker(q, offsets, stats, appender, publisher, mono,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.log.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Stop shuts all workers down, waiting up to the given timeout.
func (p *Pool) Stop(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.log.Warn(ctx, "worker shutdown failed", logger.Error(err))
		}
	}
}
