// Package app provides the timing engine that wires the offset estimator,
// calibration profiler, motion detector, compensation workers, and race
// aggregator together.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Areo-RGB/sprintgates/internal/adapters/bus"
	"github.com/Areo-RGB/sprintgates/internal/adapters/capture"
	"github.com/Areo-RGB/sprintgates/internal/adapters/mq/queue"
	"github.com/Areo-RGB/sprintgates/internal/adapters/mq/worker"
	"github.com/Areo-RGB/sprintgates/internal/adapters/timesource"
	"github.com/Areo-RGB/sprintgates/internal/config"
	"github.com/Areo-RGB/sprintgates/internal/domain/calibration"
	clocksync "github.com/Areo-RGB/sprintgates/internal/domain/clock"
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/internal/domain/motion"
	"github.com/Areo-RGB/sprintgates/internal/domain/race"
	"github.com/Areo-RGB/sprintgates/internal/timeutil"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Default engine configuration constants.
const (
	workerStopTimeout = 5 * time.Second
)

// Engine owns the full trigger-to-race pipeline of one device.
type Engine struct {
	mu sync.Mutex

	// Collaborators, replaceable through options.
	clock      timeutil.Clock
	mono       *timeutil.Monotonic
	deviceBus  bus.Bus
	source     timesource.Source
	echoSource timesource.EchoSource
	frames     capture.Source
	cfg        *config.Config
	log        logger.Logger

	// Core components, built on Start.
	estimator  *clocksync.Estimator
	profiler   *calibration.Profiler
	detector   *motion.Detector
	aggregator *race.Aggregator
	triggerQ   *queue.InMemoryQueue
	pool       *worker.Pool

	ownsBus bool
	started bool
	cancel  context.CancelFunc
	routing sync.WaitGroup
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock sets the clock the engine schedules on.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithBus sets the device bus. The caller keeps ownership; the engine will
// not close a supplied bus.
func WithBus(b bus.Bus) Option {
	return func(e *Engine) {
		if b != nil {
			e.deviceBus = b
			e.ownsBus = false
		}
	}
}

// WithTimeSource sets the reference time source.
func WithTimeSource(s timesource.Source) Option {
	return func(e *Engine) {
		if s != nil {
			e.source = s
		}
	}
}

// WithEchoTimeSource sets an asymmetric-exchange-capable time source.
func WithEchoTimeSource(s timesource.EchoSource) Option {
	return func(e *Engine) {
		e.echoSource = s
	}
}

// WithCaptureSource sets the frame source driving motion detection and
// cadence measurement.
func WithCaptureSource(s capture.Source) Option {
	return func(e *Engine) {
		e.frames = s
	}
}

// WithConfig sets the engine configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New constructs an Engine with default configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:   timeutil.RealClock{},
		cfg:     config.New(),
		ownsBus: true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start builds and launches all components.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	if e.log == nil {
		e.log = logger.Get().Named("engine")
	}

	e.log.Info(ctx, "starting timing engine...")

	e.mono = timeutil.NewMonotonic(e.clock)
	if e.deviceBus == nil {
		e.deviceBus = bus.NewInMemoryBus()
		e.ownsBus = true
	}
	if e.source == nil {
		// Without a peer the engine still runs, synced against itself.
		e.log.Warn(ctx, "no reference time source supplied; using in-process loopback")
		lb := timesource.NewLoopback(e.clock, e.mono)
		e.source = lb
		if e.echoSource == nil {
			e.echoSource = lb
		}
	}

	cfg := e.cfg
	estOpts := []clocksync.Option{
		clocksync.WithStartupBurst(cfg.StartupSamples, cfg.StartupSpacing),
		clocksync.WithSyncBurst(cfg.SyncSamples, cfg.SyncSpacing),
		clocksync.WithSyncInterval(cfg.SyncInterval),
		clocksync.WithRTTOutlier(cfg.RTTOutlierMS),
		clocksync.WithEchoRTTOutlier(cfg.EchoRTTOutlierMS),
		clocksync.WithMaxCorrection(cfg.MaxCorrectionMS),
		clocksync.WithSmoothingAlpha(cfg.SmoothingAlpha),
	}
	if e.echoSource != nil {
		estOpts = append(estOpts, clocksync.WithEchoSource(e.echoSource))
	}
	e.estimator = clocksync.New(e.source, e.clock, e.mono, estOpts...)

	profOpts := []calibration.Option{
		calibration.WithJitterProfile(cfg.JitterSamples, cfg.JitterWait),
		calibration.WithCadenceWindow(cfg.CadenceWindow),
	}
	// The capture channel supports a single receiver; fan it out so the
	// cadence measurement and the detector each see the full stream.
	var fan *capture.Fanout
	if e.frames != nil {
		fan = capture.NewFanout(e.frames)
		profOpts = append(profOpts, calibration.WithCaptureSource(fan.Subscribe()))
	}
	e.profiler = calibration.New(e.estimator, e.clock, e.mono, profOpts...)

	raceOpts := []race.Option{race.WithGateCount(cfg.GateCount)}
	if len(cfg.Distances) > 0 {
		raceOpts = append(raceOpts, race.WithDistances(cfg.Distances))
	}
	e.aggregator = race.New(raceOpts...)

	e.triggerQ = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	e.pool = worker.NewPool(cfg.WorkerCount, e.triggerQ, e.estimator, e.profiler, e.aggregator, e.deviceBus, e.mono)
	e.detector = motion.New(e.triggerQ, e.mono,
		motion.WithThreshold(cfg.MotionThreshold),
		motion.WithCooldown(cfg.TriggerCooldown),
		motion.WithTripwireWidth(cfg.TripwireWidth),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.pool.Start(runCtx)
	go e.estimator.Run(runCtx)
	go e.profiler.Calibrate(runCtx)
	if fan != nil {
		detectorFrames := fan.Subscribe()
		go fan.Run(runCtx)
		go e.detector.Run(runCtx, detectorFrames)
	}
	e.startRouting(runCtx)

	e.started = true
	e.log.Info(ctx, "timing engine started",
		logger.Int("workers", cfg.WorkerCount),
		logger.Int("gate_count", cfg.GateCount),
		logger.Bool("capture", e.frames != nil),
	)
	return nil
}

// startRouting subscribes to the control topics and routes them into the
// aggregator.
func (e *Engine) startRouting(ctx context.Context) {
	clearCh, clearCancel := e.deviceBus.Subscribe(bus.TopicClearEvents)
	configCh, configCancel := e.deviceBus.Subscribe(bus.TopicConfigChange)
	distCh, distCancel := e.deviceBus.Subscribe(bus.TopicDistanceChange)

	e.routing.Add(1)
	go func() {
		defer e.routing.Done()
		defer clearCancel()
		defer configCancel()
		defer distCancel()

		for {
			select {
			case <-ctx.Done():
				return
			case <-clearCh:
				e.aggregator.Clear()
				e.log.Info(ctx, "event log cleared")
			case msg := <-configCh:
				change, ok := msg.Payload.(bus.ConfigChange)
				if !ok {
					continue
				}
				if err := e.aggregator.SetGateCount(ctx, change.Count); err != nil {
					e.log.Warn(ctx, "rejected gate config", logger.Int("count", change.Count), logger.Error(err))
				}
			case msg := <-distCh:
				change, ok := msg.Payload.(bus.DistanceChange)
				if !ok {
					continue
				}
				e.aggregator.SetDistances(change.Distances)
				e.log.Info(ctx, "distance config updated", logger.Int("gates", len(change.Distances)))
			}
		}
	}()
}

// Stop tears the engine down: timers and watches are cancelled, workers
// drained, and late probe results discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}
	ctx := context.Background()
	e.log.Info(ctx, "stopping timing engine...")

	e.estimator.Close()
	e.cancel()
	e.pool.Stop(workerStopTimeout)
	_ = e.triggerQ.Close()
	e.routing.Wait()
	if e.ownsBus {
		e.deviceBus.Close()
	}

	e.started = false
	e.log.Info(ctx, "timing engine stopped")
}

// running reports whether Start has built and launched the pipeline.
func (e *Engine) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// ManualTrigger records a button press at the current local time. A
// trigger on an engine that is not running is refused.
func (e *Engine) ManualTrigger(ctx context.Context) bool {
	if !e.running() {
		return false
	}
	t := model.RawTrigger{
		Source:    model.SourceManual,
		LocalTime: e.mono.NowMs(),
	}
	if !e.triggerQ.Enqueue(ctx, t) {
		e.log.Warn(ctx, "manual trigger dropped; queue full")
		return false
	}
	metrics.RecordTrigger(string(model.SourceManual))
	return true
}

// RemoteTrigger appends a gate event mirrored from a peer device. The
// timestamp is already unified; no further compensation is applied.
func (e *Engine) RemoteTrigger(_ context.Context, t bus.GateTrigger) {
	if !e.running() {
		return
	}
	e.aggregator.Append(model.GateEvent{
		ID:        uuid.NewString(),
		Timestamp: t.Timestamp,
		Source:    t.Source,
	})
}

// Arm enables motion triggering. No-op until the engine is running.
func (e *Engine) Arm() {
	if e.running() {
		e.detector.Arm()
	}
}

// Disarm disables motion triggering. No-op until the engine is running.
func (e *Engine) Disarm() {
	if e.running() {
		e.detector.Disarm()
	}
}

// Calibrate runs a full calibration pass and returns the new snapshot.
// An engine that is not running returns the zero snapshot.
func (e *Engine) Calibrate(ctx context.Context) model.CalibrationStats {
	if !e.running() {
		return model.CalibrationStats{}
	}
	return e.profiler.Calibrate(ctx)
}

// Races derives the current race windows at the unified "now".
func (e *Engine) Races() []race.Race {
	if !e.running() {
		return nil
	}
	return e.aggregator.Races(e.Now())
}

// Events returns a copy of the raw event log.
func (e *Engine) Events() []model.GateEvent {
	if !e.running() {
		return nil
	}
	return e.aggregator.Events()
}

// Stats returns the current calibration snapshot.
func (e *Engine) Stats() model.CalibrationStats {
	if !e.running() {
		return model.CalibrationStats{}
	}
	return e.profiler.Stats()
}

// Offset returns the current clock offset in ms.
func (e *Engine) Offset() float64 {
	if !e.running() {
		return 0
	}
	return e.estimator.Offset()
}

// Now returns the current unified time in ms. Zero until the engine is
// running.
func (e *Engine) Now() float64 {
	if !e.running() {
		return 0
	}
	return e.mono.NowMs() + e.estimator.Offset()
}
