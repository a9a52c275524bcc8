package leadassignment

import (
	"context"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/metrics"
	"github.com/jordanlanch/brokerdesk/pkg/models"
)

// Outcome of an assignment attempt that did not fail
type Outcome string

const (
	OutcomeAssigned         Outcome = "assigned"
	OutcomeNoEligibleBroker Outcome = "no_eligible_broker"
	OutcomeAlreadyAssigned  Outcome = "already_assigned"
)

// Result of an assignment attempt. Entry and Broker are set only when the
// outcome is OutcomeAssigned.
type Result struct {
	Outcome Outcome
	Lead    *models.Lead
	Entry   *models.LedgerEntry
	Broker  *models.RosterEntry
}

// Hook runs after an assignment has been committed
type Hook func(ctx context.Context, res *Result)

// Service handles lead assignment operations.
type Service struct {
	store   Store
	hooks   []Hook
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewService creates a new lead assignment service. m may be nil.
func NewService(store Store, m *metrics.Metrics, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, metrics: m, log: log}
}

// OnAssigned registers a hook called after every successful assignment.
// Hooks must not be added once the service is in use.
func (s *Service) OnAssigned(h Hook) {
	s.hooks = append(s.hooks, h)
}

// Assign gives the lead to the next broker in the rotation. Lock waits that
// exceed the configured bound fail with CONTENTION_TIMEOUT; nothing is
// retried here.
func (s *Service) Assign(ctx context.Context, leadID string) (*Result, error) {
	start := time.Now()
	res, err := s.store.SelectAndAssign(ctx, leadID)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case domain.IsNotFound(err):
			s.metrics.RecordAssignment("not_found", elapsed)
		case database.IsContention(err):
			s.metrics.RecordAssignment("contention", elapsed)
			s.log.Warn("assignment lock contention", "lead_id", leadID, "elapsed", elapsed, "error", err)
			return nil, domain.NewContentionTimeoutError(err)
		default:
			s.metrics.RecordAssignment("error", elapsed)
			s.log.Error("assignment failed", "lead_id", leadID, "error", err)
		}
		return nil, err
	}

	s.metrics.RecordAssignment(string(res.Outcome), elapsed)

	switch res.Outcome {
	case OutcomeAssigned:
		s.log.Info("lead assigned",
			"lead_id", leadID,
			"broker_id", res.Entry.BrokerID,
			"order_position", res.Entry.OrderPosition,
		)
		for _, h := range s.hooks {
			h(ctx, res)
		}
	case OutcomeNoEligibleBroker:
		s.log.Warn("no active broker for lead", "lead_id", leadID)
	default:
		s.log.Debug("lead already assigned", "lead_id", leadID)
	}
	return res, nil
}
