package leadassignment

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/ledger"
	"github.com/jordanlanch/brokerdesk/pkg/leads"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/roster"
)

// Store is the transactional boundary of the engine. SelectAndAssign must
// pick the next broker and record the assignment atomically: either the lead,
// the roster entry and the ledger all change, or nothing does.
type Store interface {
	SelectAndAssign(ctx context.Context, leadID string) (*Result, error)
}

// SQLStore implements Store with row locks. Locks are always taken in the
// same order: the lead row, then the active roster rows by ascending id.
type SQLStore struct {
	db          *database.Client
	lockTimeout time.Duration
	now         func() time.Time
}

// NewSQLStore creates a store whose lock waits are bounded by lockTimeout
func NewSQLStore(db *database.Client, lockTimeout time.Duration) *SQLStore {
	return &SQLStore{db: db, lockTimeout: lockTimeout, now: time.Now}
}

// SelectAndAssign implements Store
func (s *SQLStore) SelectAndAssign(ctx context.Context, leadID string) (*Result, error) {
	var res *Result
	err := s.db.WithTx(ctx, database.TxOptions{LockTimeout: s.lockTimeout}, func(tx *database.Conn) error {
		lead, err := leads.Get(ctx, tx, leadID, tx.SupportsRowLocks())
		if err != nil {
			return err
		}

		active, err := roster.LockActive(ctx, tx)
		if err != nil {
			return err
		}

		next := SelectNext(active)
		if next == nil {
			res = &Result{Outcome: OutcomeNoEligibleBroker, Lead: lead}
			return nil
		}
		if lead.IsAssigned() {
			res = &Result{Outcome: OutcomeAlreadyAssigned, Lead: lead}
			return nil
		}

		// read the clock only once the locks are held, so assignment times
		// follow commit order
		now := s.now().UTC().Truncate(time.Microsecond)
		b := tx.Builder()
		updated, err := tx.Exec(ctx, b.Update(database.TableLeads).
			Set("handled_by", next.BrokerID).
			Set("handled_at", now).
			Set("status", string(models.LeadStatusAssigned)).
			Set("updated_at", now).
			Where(entsql.And(entsql.EQ("id", lead.ID), entsql.IsNull("handled_by"))))
		if err != nil {
			return fmt.Errorf("failed to assign lead: %w", err)
		}
		if n, err := updated.RowsAffected(); err != nil {
			return fmt.Errorf("failed to assign lead: %w", err)
		} else if n != 1 {
			// only reachable if the lead lock was bypassed
			return fmt.Errorf("lead %s changed while locked", lead.ID)
		}

		if _, err := tx.Exec(ctx, b.Update(database.TableBrokerOrder).
			Set("last_assigned", now).
			Add("total_assigned", 1).
			Set("updated_at", now).
			Where(entsql.EQ("id", next.ID))); err != nil {
			return fmt.Errorf("failed to advance rotation: %w", err)
		}

		entry := &models.LedgerEntry{
			LeadID:        lead.ID,
			BrokerID:      next.BrokerID,
			OrderPosition: next.OrderPosition,
			AssignedAt:    now,
		}
		if err := ledger.Append(ctx, tx, entry); err != nil {
			return err
		}

		brokerID := next.BrokerID
		lead.HandledBy = &brokerID
		lead.HandledAt = &now
		lead.Status = models.LeadStatusAssigned
		lead.UpdatedAt = now

		broker := *next
		broker.LastAssigned = &now
		broker.TotalAssigned++
		broker.UpdatedAt = now

		res = &Result{Outcome: OutcomeAssigned, Lead: lead, Entry: entry, Broker: &broker}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SelectNext picks the broker that receives the next lead. Brokers that have
// never been assigned come first in position order; after that the broker
// served longest ago wins. Ties fall back to order_position, then id.
// Returns nil when no active entry is given.
func SelectNext(entries []models.RosterEntry) *models.RosterEntry {
	var best *models.RosterEntry
	for i := range entries {
		e := &entries[i]
		if !e.IsActive {
			continue
		}
		if best == nil || precedes(e, best) {
			best = e
		}
	}
	return best
}

func precedes(a, b *models.RosterEntry) bool {
	aNew, bNew := a.LastAssigned == nil, b.LastAssigned == nil
	if aNew != bNew {
		return aNew
	}
	if !aNew && !a.LastAssigned.Equal(*b.LastAssigned) {
		return a.LastAssigned.Before(*b.LastAssigned)
	}
	if a.OrderPosition != b.OrderPosition {
		return a.OrderPosition < b.OrderPosition
	}
	return a.ID < b.ID
}
