package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rendis/autoforge/internal/logging"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// Dispatcher defaults.
const (
	DefaultWorkers    = 4
	DefaultQueueSize  = 256
	DefaultRunTimeout = 300 * time.Second
)

// ErrDispatcherStopped is returned when work is dispatched to a stopped dispatcher.
var ErrDispatcherStopped = errors.New("dispatcher is stopped")

// ExecutionRunner runs and interrupts execution records. Satisfied by *Runner.
type ExecutionRunner interface {
	Run(ctx context.Context, executionID string) (*store.Execution, error)
	Interrupt(ctx context.Context, rec *store.Execution) (*store.Execution, error)
}

// DispatcherConfig holds dispatcher settings.
type DispatcherConfig struct {
	Workers    int           // concurrent runs
	QueueSize  int           // buffered execution IDs before Dispatch blocks
	RunTimeout time.Duration // ceiling for one run; also the age after which a running record is stuck
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	return c
}

// DispatcherMetrics tracks dispatcher operational metrics.
type DispatcherMetrics struct {
	Queued    int64 `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// Dispatcher hands execution IDs to a fixed pool of workers over a buffered
// queue. Delivery is at least once: an ID left in the queue at Stop stays
// pending in the store and is picked up again by RecoverPending.
type Dispatcher struct {
	runner  ExecutionRunner
	store   store.Store
	cfg     DispatcherConfig
	logger  *slog.Logger
	queue   chan string
	done    chan struct{}
	metrics DispatcherMetrics

	mu      sync.Mutex
	started bool
	closed  bool
	workers sync.WaitGroup
	work    sync.WaitGroup

	// sending is read-held by every Dispatch from its closed check until its
	// send settles. Stop takes it exclusively before draining the queue.
	sending sync.RWMutex
}

// NewDispatcher creates a Dispatcher. Call Start to launch its workers.
func NewDispatcher(runner ExecutionRunner, s store.Store, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner: runner,
		store:  s,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan string, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the workers. Cancelling ctx does not cancel runs in progress;
// use Stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherStopped
	}
	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	d.started = true

	base := context.WithoutCancel(ctx)
	for range d.cfg.Workers {
		d.workers.Add(1)
		go d.worker(base)
	}
	d.logger.Info("dispatcher started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
	return nil
}

// Dispatch enqueues an execution ID. It blocks while the queue is full and
// respects ctx while waiting.
func (d *Dispatcher) Dispatch(ctx context.Context, executionID string) error {
	d.sending.RLock()
	defer d.sending.RUnlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	d.work.Add(1)
	d.mu.Unlock()

	select {
	case d.queue <- executionID:
		atomic.AddInt64(&d.metrics.Queued, 1)
		return nil
	case <-ctx.Done():
		d.work.Done()
		return ctx.Err()
	case <-d.done:
		d.work.Done()
		return ErrDispatcherStopped
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.workers.Done()
	for {
		select {
		case <-d.done:
			return
		case id := <-d.queue:
			atomic.AddInt64(&d.metrics.Queued, -1)
			d.execute(ctx, id)
			d.work.Done()
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, executionID string) {
	ctx = logging.WithExecutionID(ctx, executionID)
	atomic.AddInt64(&d.metrics.Active, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&d.metrics.Panics, 1)
			atomic.AddInt64(&d.metrics.Failed, 1)
			logging.LogWith(ctx, d.logger).Error("run panicked", "panic", fmt.Sprint(r))
		}
		atomic.AddInt64(&d.metrics.Active, -1)
	}()

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.RunTimeout)
	defer cancel()

	if _, err := d.runner.Run(runCtx, executionID); err != nil {
		atomic.AddInt64(&d.metrics.Failed, 1)
		level := slog.LevelWarn
		if schema.IsCode(err, schema.ErrCodeConflict) {
			level = slog.LevelDebug
		}
		logging.LogWith(ctx, d.logger).Log(ctx, level, "run not completed", "error", err)
		return
	}
	atomic.AddInt64(&d.metrics.Completed, 1)
}

// Wait blocks until every dispatched ID has been run or discarded by Stop.
func (d *Dispatcher) Wait() {
	d.work.Wait()
}

// Stop refuses new work, waits for runs in progress and discards IDs still
// queued. Discarded records stay pending.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.workers.Wait()
	d.sending.Lock()
	defer d.sending.Unlock()

	discarded := 0
	for {
		select {
		case <-d.queue:
			atomic.AddInt64(&d.metrics.Queued, -1)
			d.work.Done()
			discarded++
		default:
			d.logger.Info("dispatcher stopped", "left_pending", discarded)
			return
		}
	}
}

// Metrics returns a snapshot of the current dispatcher metrics.
func (d *Dispatcher) Metrics() DispatcherMetrics {
	return DispatcherMetrics{
		Queued:    atomic.LoadInt64(&d.metrics.Queued),
		Active:    atomic.LoadInt64(&d.metrics.Active),
		Completed: atomic.LoadInt64(&d.metrics.Completed),
		Failed:    atomic.LoadInt64(&d.metrics.Failed),
		Panics:    atomic.LoadInt64(&d.metrics.Panics),
	}
}

// RecoverPending re-dispatches every pending record, oldest first. It is the
// redelivery half of at-least-once dispatch.
func (d *Dispatcher) RecoverPending(ctx context.Context) (int, error) {
	status := schema.ExecutionStatusPending
	pending, err := d.store.ListExecutions(ctx, store.ExecutionFilter{Status: &status})
	if err != nil {
		return 0, fmt.Errorf("list pending executions: %w", err)
	}
	slices.Reverse(pending)

	n := 0
	for _, rec := range pending {
		if err := d.Dispatch(ctx, rec.ID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		d.logger.Info("re-dispatched pending executions", "count", n)
	}
	return n, nil
}

// RecoverStuck fails records that have been running longer than the run
// timeout, which only happens when the process died mid-run.
func (d *Dispatcher) RecoverStuck(ctx context.Context) (int, error) {
	status := schema.ExecutionStatusRunning
	cutoff := time.Now().UTC().Add(-d.cfg.RunTimeout)
	stuck, err := d.store.ListExecutions(ctx, store.ExecutionFilter{Status: &status, StartedUntil: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("list running executions: %w", err)
	}

	n := 0
	for _, rec := range stuck {
		if _, err := d.runner.Interrupt(ctx, rec); err != nil {
			d.logger.Warn("interrupt stuck execution", "execution_id", rec.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		d.logger.Warn("failed stuck executions", "count", n)
	}
	return n, nil
}
