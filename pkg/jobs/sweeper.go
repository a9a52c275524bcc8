package jobs

import (
	"context"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// PendingLeads lists leads still waiting for a broker
type PendingLeads interface {
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Enqueuer accepts assignment tasks
type Enqueuer interface {
	Enqueue(leadID string) bool
}

const sweepBatch = 500

// Sweeper periodically re-dispatches leads that intake left pending, e.g.
// because the queue was full, no broker was active, or the process
// restarted before the task ran.
type Sweeper struct {
	cron    *cron.Cron
	leads   PendingLeads
	queue   Enqueuer
	grace   time.Duration
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// NewSweeper creates a sweeper. Leads younger than grace are left alone
// since their first dispatch may still be in flight.
func NewSweeper(leads PendingLeads, queue Enqueuer, grace time.Duration, m *metrics.Metrics, log logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		leads:   leads,
		queue:   queue,
		grace:   grace,
		metrics: m,
		log:     log.With("component", "sweeper"),
		now:     time.Now,
	}
}

// Schedule registers the sweep on a cron spec such as "@every 5m"
func (s *Sweeper) Schedule(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("pending lead sweep failed", "error", err)
		}
	})
	return err
}

// Start runs the scheduler in its own goroutine
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns a context done when a running sweep ends
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep enqueues pending leads older than the grace period and returns how
// many were accepted. It stops early when the queue fills up.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.leads.ListPendingOlderThan(ctx, s.now().Add(-s.grace), sweepBatch)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, id := range ids {
		if !s.queue.Enqueue(id) {
			s.log.Warn("queue full, sweep cut short", "queued", queued, "pending", len(ids))
			break
		}
		queued++
	}

	s.metrics.RecordSweeperRequeued(queued)
	if queued > 0 {
		s.log.Info("re-dispatched pending leads", "count", queued)
	}
	return queued, nil
}
