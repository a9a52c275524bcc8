package profiles

import (
	"context"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/models"
)

// Columns selected for a profile, in scan order
var Columns = []string{"id", "full_name", "email", "phone", "role", "created_at", "updated_at"}

// Service reads and maintains profiles. Profiles are owned by the auth
// collaborator; this service only exposes what the rotation needs.
type Service struct {
	db  *database.Client
	now func() time.Time
}

// NewService creates a new profile service
func NewService(db *database.Client) *Service {
	return &Service{db: db, now: time.Now}
}

// Create inserts a profile
func (s *Service) Create(ctx context.Context, req models.CreateProfileRequest) (*models.Profile, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	p := &models.Profile{
		ID:        uuid.NewString(),
		FullName:  strings.TrimSpace(req.FullName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
		Role:      req.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	conn := s.db.Conn()
	b := conn.Builder()
	_, err := conn.Exec(ctx, b.Insert(database.TableProfiles).
		Columns(Columns...).
		Values(p.ID, p.FullName, p.Email, p.Phone, string(p.Role), p.CreatedAt, p.UpdatedAt))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.NewConflictError("a profile with this email already exists")
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// Get returns a profile by id
func (s *Service) Get(ctx context.Context, id string) (*models.Profile, error) {
	conn := s.db.Conn()
	b := conn.Builder()
	rows, err := conn.Query(ctx, b.Select(Columns...).
		From(b.Table(database.TableProfiles)).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch profile: %w", err)
		}
		return nil, domain.NewNotFoundError("profile")
	}
	return Scan(rows)
}

// GetMany returns the profiles for the given ids keyed by id. Unknown ids are omitted.
func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	result := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	conn := s.db.Conn()
	b := conn.Builder()
	rows, err := conn.Query(ctx, b.Select(Columns...).
		From(b.Table(database.TableProfiles)).
		Where(entsql.In("id", args...)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch profiles: %w", err)
	}
	return result, nil
}

// SetRole changes the role of a profile and returns the previous role
func (s *Service) SetRole(ctx context.Context, id string, role models.Role) (models.Role, *models.Profile, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	previous := p.Role
	if previous == role {
		return previous, p, nil
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	conn := s.db.Conn()
	b := conn.Builder()
	if _, err := conn.Exec(ctx, b.Update(database.TableProfiles).
		Set("role", string(role)).
		Set("updated_at", now).
		Where(entsql.EQ("id", id))); err != nil {
		return "", nil, fmt.Errorf("failed to update role: %w", err)
	}

	p.Role = role
	p.UpdatedAt = now
	return previous, p, nil
}

// Scan reads one profile row selected with Columns
func Scan(rows *entsql.Rows) (*models.Profile, error) {
	var (
		p    models.Profile
		role string
	)
	if err := rows.Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	p.Role = models.Role(role)
	return &p, nil
}
