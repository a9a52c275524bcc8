package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/models"
)

// Columns selected for a ledger entry, in scan order
var Columns = []string{"id", "lead_id", "broker_id", "order_position", "assigned_at"}

// Append records an assignment decision. It is the only write to the ledger
// and must run inside the transaction that assigns the lead.
func Append(ctx context.Context, tx *database.Conn, entry *models.LedgerEntry) error {
	b := tx.Builder()
	id, err := tx.InsertID(ctx, b.Insert(database.TableLeadDistributionLog).
		Columns("lead_id", "broker_id", "order_position", "assigned_at").
		Values(entry.LeadID, entry.BrokerID, entry.OrderPosition, entry.AssignedAt))
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	entry.ID = id
	return nil
}

// Service answers audit queries over the distribution ledger. It is read only.
type Service struct {
	db *database.Client
}

// NewService creates a new ledger service
func NewService(db *database.Client) *Service {
	return &Service{db: db}
}

// ListForLead returns the entries of a lead ordered by assigned_at, id
func (s *Service) ListForLead(ctx context.Context, leadID string) ([]models.LedgerEntry, error) {
	return s.List(ctx, models.LedgerFilter{LeadID: leadID})
}

// ListForBroker returns the entries of a broker ordered by assigned_at, id
func (s *Service) ListForBroker(ctx context.Context, brokerID string) ([]models.LedgerEntry, error) {
	return s.List(ctx, models.LedgerFilter{BrokerID: brokerID})
}

// List returns the entries matching filter ordered by assigned_at, id
func (s *Service) List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	conn := s.db.Conn()
	b := conn.Builder()
	sel := b.Select(Columns...).
		From(b.Table(database.TableLeadDistributionLog)).
		OrderBy("assigned_at", "id")
	if p := predicate(filter); p != nil {
		sel = sel.Where(p)
	}

	rows, err := conn.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.LeadID, &e.BrokerID, &e.OrderPosition, &e.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return entries, nil
}

// Summary counts leads per broker within filter, ordered by broker id.
// Aggregation happens here rather than in SQL because sqlite returns
// MIN/MAX over datetime columns as text.
func (s *Service) Summary(ctx context.Context, filter models.LedgerFilter) ([]models.BrokerDistribution, error) {
	entries, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	byBroker := make(map[string]*models.BrokerDistribution)
	for _, e := range entries {
		at := e.AssignedAt
		d, ok := byBroker[e.BrokerID]
		if !ok {
			d = &models.BrokerDistribution{BrokerID: e.BrokerID, FirstAssigned: &at}
			byBroker[e.BrokerID] = d
		}
		d.LeadCount++
		d.LastAssigned = &at
	}

	out := make([]models.BrokerDistribution, 0, len(byBroker))
	for _, d := range byBroker {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BrokerID < out[j].BrokerID })
	return out, nil
}

func predicate(f models.LedgerFilter) *entsql.Predicate {
	var ps []*entsql.Predicate
	if f.LeadID != "" {
		ps = append(ps, entsql.EQ("lead_id", f.LeadID))
	}
	if f.BrokerID != "" {
		ps = append(ps, entsql.EQ("broker_id", f.BrokerID))
	}
	if f.From != nil {
		ps = append(ps, entsql.GTE("assigned_at", utc(*f.From)))
	}
	if f.To != nil {
		ps = append(ps, entsql.LT("assigned_at", utc(*f.To)))
	}
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	default:
		return entsql.And(ps...)
	}
}

func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
