package roster

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/models"
)

// EntryColumns are selected for a roster entry, in scan order
var EntryColumns = []string{
	"id", "broker_id", "order_position", "is_active",
	"last_assigned", "total_assigned", "created_at", "updated_at",
}

// enrollLockKey serializes enrollments so each one sees the previous max position
const enrollLockKey int64 = 0x62726f6b6572

// ProfileReader looks up broker identities
type ProfileReader interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	GetMany(ctx context.Context, ids []string) (map[string]*models.Profile, error)
}

// Service owns the broker_order table: enrollment, activation and positions.
// Rotation bookkeeping (last_assigned, total_assigned) is written only by the
// assignment engine.
type Service struct {
	db       *database.Client
	profiles ProfileReader
	now      func() time.Time
}

// NewService creates a new roster service
func NewService(db *database.Client, profiles ProfileReader) *Service {
	return &Service{db: db, profiles: profiles, now: time.Now}
}

// ListOrdered returns every entry, active or not, in rotation order
func (s *Service) ListOrdered(ctx context.Context) ([]models.RosterEntry, error) {
	conn := s.db.Conn()
	b := conn.Builder()
	rows, err := conn.Query(ctx, b.Select(EntryColumns...).
		From(b.Table(database.TableBrokerOrder)).
		OrderBy("order_position", "id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListWithBrokers returns the ordered roster joined with broker identity
func (s *Service) ListWithBrokers(ctx context.Context) ([]models.RosterListing, error) {
	entries, err := s.ListOrdered(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.BrokerID
	}
	brokers, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	listing := make([]models.RosterListing, len(entries))
	for i, e := range entries {
		listing[i] = models.RosterListing{RosterEntry: e}
		if p, ok := brokers[e.BrokerID]; ok {
			listing[i].BrokerName = p.FullName
			listing[i].BrokerEmail = p.Email
		}
	}
	return listing, nil
}

// Get returns the roster entry of a broker
func (s *Service) Get(ctx context.Context, brokerID string) (*models.RosterEntry, error) {
	return getByBroker(ctx, s.db.Conn(), brokerID)
}

// Enroll adds a broker to the end of the rotation. An inactive entry is
// reactivated with a fresh position; its counters are kept as history.
// An active entry yields ALREADY_ENROLLED.
func (s *Service) Enroll(ctx context.Context, brokerID string) (*models.RosterEntry, error) {
	p, err := s.profiles.Get(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	if p.Role != models.RoleBroker {
		return nil, domain.NewValidationError(fmt.Sprintf("profile %s does not have the broker role", brokerID))
	}

	var entry *models.RosterEntry
	err = s.db.WithTx(ctx, database.TxOptions{}, func(tx *database.Conn) error {
		if err := tx.AdvisoryLock(ctx, enrollLockKey); err != nil {
			return err
		}
		existing, err := getByBroker(ctx, tx, brokerID)
		if err != nil && !domain.IsNotFound(err) {
			return err
		}
		if existing != nil && existing.IsActive {
			return domain.NewAlreadyEnrolledError(brokerID)
		}

		position, err := nextPosition(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now().UTC().Truncate(time.Microsecond)
		b := tx.Builder()

		if existing != nil {
			if _, err := tx.Exec(ctx, b.Update(database.TableBrokerOrder).
				Set("is_active", true).
				Set("order_position", position).
				Set("updated_at", now).
				Where(entsql.EQ("id", existing.ID))); err != nil {
				return fmt.Errorf("failed to reactivate roster entry: %w", err)
			}
			existing.IsActive = true
			existing.OrderPosition = position
			existing.UpdatedAt = now
			entry = existing
			return nil
		}

		id, err := tx.InsertID(ctx, b.Insert(database.TableBrokerOrder).
			Columns("broker_id", "order_position", "is_active", "total_assigned", "created_at", "updated_at").
			Values(brokerID, position, true, 0, now, now))
		if err != nil {
			return fmt.Errorf("failed to create roster entry: %w", err)
		}
		entry = &models.RosterEntry{
			ID:            id,
			BrokerID:      brokerID,
			OrderPosition: position,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.NewAlreadyEnrolledError(brokerID)
		}
		return nil, err
	}
	return entry, nil
}

// Disable removes a broker from future selections. Idempotent.
func (s *Service) Disable(ctx context.Context, brokerID string) (*models.RosterEntry, error) {
	conn := s.db.Conn()
	b := conn.Builder()
	res, err := conn.Exec(ctx, b.Update(database.TableBrokerOrder).
		Set("is_active", false).
		Set("updated_at", s.now().UTC().Truncate(time.Microsecond)).
		Where(entsql.EQ("broker_id", brokerID)))
	if err != nil {
		return nil, fmt.Errorf("failed to disable roster entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, domain.NewNotFoundError("roster entry")
	}
	return s.Get(ctx, brokerID)
}

// Reorder applies all position updates atomically. Every referenced entry must
// exist; otherwise nothing is written and the missing ids are reported.
func (s *Service) Reorder(ctx context.Context, updates []models.PositionUpdate) ([]models.RosterEntry, error) {
	if len(updates) == 0 {
		return nil, domain.NewValidationError("at least one position update is required")
	}

	sorted := make([]models.PositionUpdate, len(updates))
	copy(sorted, updates)
	// ascending id keeps lock order consistent with the assignment engine
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return nil, domain.NewValidationError(fmt.Sprintf("roster entry %d appears more than once", sorted[i].ID))
		}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	err := s.db.WithTx(ctx, database.TxOptions{}, func(tx *database.Conn) error {
		var missing []int
		for _, u := range sorted {
			b := tx.Builder()
			res, err := tx.Exec(ctx, b.Update(database.TableBrokerOrder).
				Set("order_position", u.OrderPosition).
				Set("updated_at", now).
				Where(entsql.EQ("id", u.ID)))
			if err != nil {
				return fmt.Errorf("failed to update position of entry %d: %w", u.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to update position of entry %d: %w", u.ID, err)
			}
			if n == 0 {
				missing = append(missing, u.ID)
			}
		}
		if len(missing) > 0 {
			return domain.NewMissingIDsError("roster entries", missing)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListOrdered(ctx)
}

// LockActive returns the active entries ordered by id, holding row locks on
// them until tx ends. Only the assignment engine calls this.
func LockActive(ctx context.Context, tx *database.Conn) ([]models.RosterEntry, error) {
	b := tx.Builder()
	sel := b.Select(EntryColumns...).
		From(b.Table(database.TableBrokerOrder)).
		Where(entsql.EQ("is_active", true)).
		OrderBy("id")
	if tx.SupportsRowLocks() {
		sel = sel.ForUpdate()
	}

	rows, err := tx.Query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to lock roster: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func getByBroker(ctx context.Context, conn *database.Conn, brokerID string) (*models.RosterEntry, error) {
	b := conn.Builder()
	rows, err := conn.Query(ctx, b.Select(EntryColumns...).
		From(b.Table(database.TableBrokerOrder)).
		Where(entsql.EQ("broker_id", brokerID)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roster entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch roster entry: %w", err)
		}
		return nil, domain.NewNotFoundError("roster entry")
	}
	return ScanEntry(rows)
}

func nextPosition(ctx context.Context, conn *database.Conn) (int, error) {
	b := conn.Builder()
	rows, err := conn.Query(ctx, b.Select(entsql.Max("order_position")).
		From(b.Table(database.TableBrokerOrder)))
	if err != nil {
		return 0, fmt.Errorf("failed to read max position: %w", err)
	}
	defer rows.Close()

	var maxPosition sql.NullInt64
	if rows.Next() {
		if err := rows.Scan(&maxPosition); err != nil {
			return 0, fmt.Errorf("failed to read max position: %w", err)
		}
	}
	return int(maxPosition.Int64) + 1, rows.Err()
}

// ScanEntry reads one roster row selected with EntryColumns
func ScanEntry(rows *entsql.Rows) (*models.RosterEntry, error) {
	var (
		e    models.RosterEntry
		last sql.NullTime
	)
	if err := rows.Scan(&e.ID, &e.BrokerID, &e.OrderPosition, &e.IsActive,
		&last, &e.TotalAssigned, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan roster entry: %w", err)
	}
	if last.Valid {
		t := last.Time
		e.LastAssigned = &t
	}
	return &e, nil
}

func scanEntries(rows *entsql.Rows) ([]models.RosterEntry, error) {
	entries := []models.RosterEntry{}
	for rows.Next() {
		e, err := ScanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	return entries, nil
}
