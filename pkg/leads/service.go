package leads

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/metrics"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/phone"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Columns selected for a lead, in scan order
var Columns = []string{
	"id", "name", "email", "phone", "location", "property_type", "price_range",
	"observations", "status", "handled_by", "handled_at", "created_at", "updated_at",
}

// Dispatcher schedules an assignment attempt for a lead without blocking.
// It reports false when the task could not be queued.
type Dispatcher interface {
	Enqueue(leadID string) bool
}

// Service handles lead intake and the broker-facing lead updates.
type Service struct {
	db         *database.Client
	phones     *phone.Normalizer
	dispatcher Dispatcher
	validator  *validator.Validate
	metrics    *metrics.Metrics
	log        logger.Logger
	now        func() time.Time
}

// NewService creates a new lead service. m may be nil.
func NewService(db *database.Client, phones *phone.Normalizer, m *metrics.Metrics, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		db:        db,
		phones:    phones,
		validator: validator.New(),
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// SetDispatcher wires the background assignment dispatcher. The dispatcher
// itself depends on the assignment engine, so it is attached after construction.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Create stores a pending lead and schedules its assignment. The returned
// lead is always pending; assignment happens in the background and its
// failures never reach the submitter.
func (s *Service) Create(ctx context.Context, req models.CreateLeadRequest) (*models.Lead, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	e164, err := s.phones.E164(req.Phone)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	lead := &models.Lead{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        e164,
		Location:     titleCase(req.Location),
		PropertyType: strings.TrimSpace(req.PropertyType),
		PriceRange:   strings.TrimSpace(req.PriceRange),
		Observations: strings.TrimSpace(req.Observations),
		Status:       models.LeadStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	conn := s.db.Conn()
	b := conn.Builder()
	_, err = conn.Exec(ctx, b.Insert(database.TableLeads).
		Columns("id", "name", "email", "phone", "location", "property_type", "price_range",
			"observations", "status", "created_at", "updated_at").
		Values(lead.ID, lead.Name, lead.Email, lead.Phone, lead.Location, lead.PropertyType,
			lead.PriceRange, lead.Observations, string(lead.Status), lead.CreatedAt, lead.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}
	s.metrics.RecordLeadReceived()

	switch {
	case s.dispatcher == nil:
		s.log.Warn("no dispatcher configured, lead left pending", "lead_id", lead.ID)
	case !s.dispatcher.Enqueue(lead.ID):
		s.log.Warn("assignment queue full, lead left for the sweeper", "lead_id", lead.ID)
	}

	return lead, nil
}

// Get returns a lead by id
func (s *Service) Get(ctx context.Context, id string) (*models.Lead, error) {
	return Get(ctx, s.db.Conn(), id, false)
}

// Update applies the broker-editable fields. Assignment columns cannot be
// changed here, and a lead must be assigned before its status moves on.
func (s *Service) Update(ctx context.Context, id string, u models.LeadUpdate) (*models.Lead, error) {
	if u.IsEmpty() {
		return nil, domain.NewValidationError("nothing to update")
	}
	if err := s.validator.Struct(u); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	var lead *models.Lead
	err := s.db.WithTx(ctx, database.TxOptions{}, func(tx *database.Conn) error {
		current, err := Get(ctx, tx, id, tx.SupportsRowLocks())
		if err != nil {
			return err
		}
		if u.Status != nil && !current.IsAssigned() {
			return domain.NewValidationError("lead has not been assigned to a broker yet")
		}

		now := s.now().UTC().Truncate(time.Microsecond)
		b := tx.Builder()
		upd := b.Update(database.TableLeads).Set("updated_at", now)
		if u.Status != nil {
			upd.Set("status", string(*u.Status))
			current.Status = *u.Status
		}
		if u.Observations != nil {
			obs := strings.TrimSpace(*u.Observations)
			upd.Set("observations", obs)
			current.Observations = obs
		}
		if _, err := tx.Exec(ctx, upd.Where(entsql.EQ("id", id))); err != nil {
			return fmt.Errorf("failed to update lead: %w", err)
		}
		current.UpdatedAt = now
		lead = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// ListPendingOlderThan returns ids of unassigned pending leads created before
// cutoff, oldest first
func (s *Service) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	conn := s.db.Conn()
	b := conn.Builder()
	sel := b.Select("id").
		From(b.Table(database.TableLeads)).
		Where(entsql.And(
			entsql.EQ("status", string(models.LeadStatusPending)),
			entsql.IsNull("handled_by"),
			entsql.LT("created_at", cutoff.UTC().Truncate(time.Microsecond)),
		)).
		OrderBy("created_at", "id")
	if limit > 0 {
		sel = sel.Limit(limit)
	}

	rows, err := conn.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending leads: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get reads one lead through conn, optionally locking the row until the
// surrounding transaction ends.
func Get(ctx context.Context, conn *database.Conn, id string, forUpdate bool) (*models.Lead, error) {
	b := conn.Builder()
	sel := b.Select(Columns...).
		From(b.Table(database.TableLeads)).
		Where(entsql.EQ("id", id))
	if forUpdate {
		sel = sel.ForUpdate()
	}

	rows, err := conn.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch lead: %w", err)
		}
		return nil, domain.NewNotFoundError("lead")
	}
	return Scan(rows)
}

// Scan reads one lead row selected with Columns
func Scan(rows *entsql.Rows) (*models.Lead, error) {
	var (
		l         models.Lead
		status    string
		handledBy sql.NullString
		handledAt sql.NullTime
	)
	if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Location, &l.PropertyType,
		&l.PriceRange, &l.Observations, &status, &handledBy, &handledAt,
		&l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}
	l.Status = models.LeadStatus(status)
	if handledBy.Valid {
		v := handledBy.String
		l.HandledBy = &v
	}
	if handledAt.Valid {
		v := handledAt.Time
		l.HandledAt = &v
	}
	return &l, nil
}

// titleCase normalizes free-form place names.
// A Caser keeps state, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(s))
}
