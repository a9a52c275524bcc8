package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/leadassignment"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/metrics"
)

// Assigner runs one assignment attempt
type Assigner interface {
	Assign(ctx context.Context, leadID string) (*leadassignment.Result, error)
}

// DispatchError reports an assignment task that failed for good
type DispatchError struct {
	LeadID   string
	Attempts int
	Err      error
}

func (e DispatchError) Error() string {
	return fmt.Sprintf("assignment of lead %s failed after %d attempt(s): %v", e.LeadID, e.Attempts, e.Err)
}

func (e DispatchError) Unwrap() error {
	return e.Err
}

// DispatcherConfig sizes the worker pool and its retry policy
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	TaskTimeout time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 15 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

// Dispatcher runs assignment tasks in the background. Lead intake hands it
// lead ids without waiting; tasks that hit lock contention are retried with
// jittered backoff, and tasks that fail for good are published on Errors.
type Dispatcher struct {
	assigner Assigner
	cfg      DispatcherConfig
	metrics  *metrics.Metrics
	log      logger.Logger

	tasks  chan string
	errs   chan DispatchError
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewDispatcher creates a dispatcher. Call Start before enqueueing.
func NewDispatcher(a Assigner, cfg DispatcherConfig, m *metrics.Metrics, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		assigner: a,
		cfg:      cfg,
		metrics:  m,
		log:      log.With("component", "dispatcher"),
		tasks:    make(chan string, cfg.QueueSize),
		errs:     make(chan DispatchError, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info("dispatcher started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
}

// Enqueue schedules an assignment for leadID. It never blocks and reports
// false when the queue is full or the dispatcher is stopped.
func (d *Dispatcher) Enqueue(leadID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}

	select {
	case d.tasks <- leadID:
		d.metrics.SetQueueDepth(len(d.tasks))
		return true
	default:
		d.metrics.RecordDispatchDropped()
		return false
	}
}

// Errors delivers tasks that failed after all attempts. The channel is
// closed once Stop has returned.
func (d *Dispatcher) Errors() <-chan DispatchError {
	return d.errs
}

// Stop refuses new tasks and waits for queued ones to finish. When ctx
// expires first, running tasks are cancelled and Stop returns ctx.Err().
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		d.cancel()
		<-done
	}
	d.cancel()
	close(d.errs)
	d.log.Info("dispatcher stopped")
	return err
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for leadID := range d.tasks {
		d.metrics.SetQueueDepth(len(d.tasks))
		d.run(leadID)
	}
}

func (d *Dispatcher) run(leadID string) {
	var delay time.Duration
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.TaskTimeout)
		res, err := d.assigner.Assign(ctx, leadID)
		cancel()

		if err == nil {
			if res.Outcome == leadassignment.OutcomeNoEligibleBroker {
				d.log.Warn("lead left pending, no active broker", "lead_id", leadID)
			}
			return
		}

		if !domain.IsContentionTimeout(err) || attempt >= d.cfg.MaxAttempts || d.ctx.Err() != nil {
			d.report(DispatchError{LeadID: leadID, Attempts: attempt, Err: err})
			return
		}

		delay = nextBackoff(delay, d.cfg.BaseBackoff, 2.0, d.cfg.MaxBackoff)
		d.metrics.RecordDispatchRetry()
		d.log.Debug("retrying assignment", "lead_id", leadID, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			d.report(DispatchError{LeadID: leadID, Attempts: attempt, Err: err})
			return
		}
	}
}

func (d *Dispatcher) report(e DispatchError) {
	select {
	case d.errs <- e:
	default:
		d.log.Error("dispatch error dropped, error channel full", "lead_id", e.LeadID, "error", e.Err)
	}
}
