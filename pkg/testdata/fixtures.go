package testdata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/stretchr/testify/require"
)

// ValidPhone is a number libphonenumber accepts as valid (Google HQ, US)
const ValidPhone = "+1 650-253-0000"

// PropertyTypes used by the lead generator
var PropertyTypes = []string{"apartment", "house", "condo", "land", "commercial"}

// PriceRanges used by the lead generator
var PriceRanges = []string{"up to 300k", "300k-600k", "600k-1M", "1M+"}

// OpenTestDB opens a migrated sqlite database in a per-test temp directory.
// A file (not :memory:) is used so concurrent connections share one database.
func OpenTestDB(t *testing.T) *database.Client {
	t.Helper()
	return OpenTestDBFile(t, filepath.Join(t.TempDir(), "brokerdesk.db"), 5*time.Second)
}

// OpenTestDBFile opens the sqlite database at path with its own pool. Two
// clients on the same path compete for the write lock like separate processes.
func OpenTestDBFile(t *testing.T, path string, busyTimeout time.Duration) *database.Client {
	t.Helper()

	dsn := database.BuildSQLiteDSN(path, busyTimeout)
	client, err := database.NewClient("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// CreateProfile inserts a profile with the given role
func CreateProfile(t *testing.T, client *database.Client, name string, role models.Role) *models.Profile {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &models.Profile{
		ID:        uuid.NewString(),
		FullName:  name,
		Email:     gofakeit.Email(),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	conn := client.Conn()
	b := conn.Builder()
	_, err := conn.Exec(context.Background(), b.Insert(database.TableProfiles).
		Columns("id", "full_name", "email", "phone", "role", "created_at", "updated_at").
		Values(p.ID, p.FullName, p.Email, p.Phone, string(p.Role), p.CreatedAt, p.UpdatedAt))
	require.NoError(t, err)
	return p
}

// CreateBroker inserts a profile with the broker role
func CreateBroker(t *testing.T, client *database.Client, name string) *models.Profile {
	t.Helper()
	return CreateProfile(t, client, name, models.RoleBroker)
}

// GenerateLeadRequest returns a realistic contact form submission
func GenerateLeadRequest() models.CreateLeadRequest {
	return models.CreateLeadRequest{
		Name:         gofakeit.Name(),
		Email:        gofakeit.Email(),
		Phone:        ValidPhone,
		Location:     gofakeit.City(),
		PropertyType: PropertyTypes[gofakeit.Number(0, len(PropertyTypes)-1)],
		PriceRange:   PriceRanges[gofakeit.Number(0, len(PriceRanges)-1)],
		Observations: gofakeit.Sentence(12),
	}
}

// CreatePendingLead inserts a pending, unassigned lead directly
func CreatePendingLead(t *testing.T, client *database.Client) *models.Lead {
	t.Helper()
	return CreatePendingLeadAt(t, client, time.Now().UTC())
}

// CreatePendingLeadAt inserts a pending lead with a fixed creation time
func CreatePendingLeadAt(t *testing.T, client *database.Client, createdAt time.Time) *models.Lead {
	t.Helper()

	req := GenerateLeadRequest()
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	l := &models.Lead{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        "+16502530000",
		Location:     req.Location,
		PropertyType: req.PropertyType,
		PriceRange:   req.PriceRange,
		Observations: req.Observations,
		Status:       models.LeadStatusPending,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}

	conn := client.Conn()
	b := conn.Builder()
	_, err := conn.Exec(context.Background(), b.Insert(database.TableLeads).
		Columns("id", "name", "email", "phone", "location", "property_type", "price_range",
			"observations", "status", "created_at", "updated_at").
		Values(l.ID, l.Name, l.Email, l.Phone, l.Location, l.PropertyType, l.PriceRange,
			l.Observations, string(l.Status), l.CreatedAt, l.UpdatedAt))
	require.NoError(t, err)
	return l
}
