package roster

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jordanlanch/brokerdesk/pkg/cache"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/profiles"
	"github.com/jordanlanch/brokerdesk/pkg/testdata"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdmin(t *testing.T) (*Admin, *database.Client, *miniredis.Miniredis) {
	t.Helper()

	client := testdata.OpenTestDB(t)
	mr := miniredis.RunT(t)
	c := &cache.Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { c.Close() })

	ps := profiles.NewService(client)
	return NewAdmin(NewService(client, ps), ps, c, nil, logger.Nop()), client, mr
}

// hasCachedListing reports whether the listing of the current version is cached
func hasCachedListing(mr *miniredis.Miniredis) bool {
	var version int64
	if v, err := mr.Get(ListingVersionKey); err == nil {
		version, _ = strconv.ParseInt(v, 10, 64)
	}
	return mr.Exists(ListingKey(version))
}

// invalidatingProfiles simulates a roster mutation that commits while a
// listing is being read from the database
type invalidatingProfiles struct {
	*profiles.Service
	during func()
}

func (p *invalidatingProfiles) GetMany(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	if p.during != nil {
		during := p.during
		p.during = nil
		during()
	}
	return p.Service.GetMany(ctx, ids)
}

func TestAdmin_ListIsCachedAndInvalidated(t *testing.T) {
	admin, client, mr := setupAdmin(t)
	ctx := context.Background()

	a := testdata.CreateBroker(t, client, "A")
	_, err := admin.Enroll(ctx, a.ID)
	require.NoError(t, err)

	list, err := admin.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, hasCachedListing(mr))

	b := testdata.CreateBroker(t, client, "B")
	_, err = admin.Enroll(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, hasCachedListing(mr), "mutation must drop the cached listing")

	list, err = admin.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].BrokerName)
	assert.Equal(t, "B", list[1].BrokerName)
}

func TestAdmin_ListReadRacingInvalidationIsNotServed(t *testing.T) {
	client := testdata.OpenTestDB(t)
	mr := miniredis.RunT(t)
	c := &cache.Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()

	ps := &invalidatingProfiles{Service: profiles.NewService(client)}
	service := NewService(client, ps)
	admin := NewAdmin(service, ps.Service, c, nil, logger.Nop())

	a := testdata.CreateBroker(t, client, "A")
	_, err := admin.Enroll(ctx, a.ID)
	require.NoError(t, err)

	b := testdata.CreateBroker(t, client, "B")
	ps.during = func() {
		_, err := admin.Enroll(ctx, b.ID)
		require.NoError(t, err)
	}

	stale, err := admin.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
	assert.False(t, hasCachedListing(mr))

	fresh, err := admin.List(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.True(t, hasCachedListing(mr))
}

func TestAdmin_ListWithoutCache(t *testing.T) {
	client := testdata.OpenTestDB(t)
	ps := profiles.NewService(client)
	admin := NewAdmin(NewService(client, ps), ps, nil, nil, nil)
	ctx := context.Background()

	b := testdata.CreateBroker(t, client, "B")
	_, err := admin.Enroll(ctx, b.ID)
	require.NoError(t, err)

	list, err := admin.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAdmin_EnsureEnrolled(t *testing.T) {
	admin, client, _ := setupAdmin(t)
	ctx := context.Background()

	b := testdata.CreateBroker(t, client, "B")
	first, err := admin.EnsureEnrolled(ctx, b.ID)
	require.NoError(t, err)

	second, err := admin.EnsureEnrolled(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.OrderPosition, second.OrderPosition)

	_, err = admin.Enroll(ctx, b.ID)
	assert.True(t, domain.IsAlreadyEnrolled(err))
}

func TestAdmin_SetActive(t *testing.T) {
	admin, client, _ := setupAdmin(t)
	ctx := context.Background()

	a := testdata.CreateBroker(t, client, "A")
	b := testdata.CreateBroker(t, client, "B")
	_, err := admin.Enroll(ctx, a.ID)
	require.NoError(t, err)
	_, err = admin.Enroll(ctx, b.ID)
	require.NoError(t, err)

	off, err := admin.SetActive(ctx, a.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	on, err := admin.SetActive(ctx, a.ID, true)
	require.NoError(t, err)
	assert.True(t, on.IsActive)
	assert.Equal(t, 3, on.OrderPosition)

	// already active stays where it is
	same, err := admin.SetActive(ctx, b.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, same.OrderPosition)

	_, err = admin.SetActive(ctx, "never-enrolled", true)
	assert.True(t, domain.IsNotFound(err))
}

func TestAdmin_ApplyRoleChange(t *testing.T) {
	admin, client, _ := setupAdmin(t)
	ctx := context.Background()

	p := testdata.CreateProfile(t, client, "Promoted", models.RoleClient)

	t.Run("Promotion enrolls", func(t *testing.T) {
		updated, err := admin.ApplyRoleChange(ctx, p.ID, models.RoleBroker)
		require.NoError(t, err)
		assert.Equal(t, models.RoleBroker, updated.Role)

		entry, err := admin.roster.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, entry.IsActive)
	})

	t.Run("Repeated promotion is idempotent", func(t *testing.T) {
		_, err := admin.ApplyRoleChange(ctx, p.ID, models.RoleBroker)
		require.NoError(t, err)
	})

	t.Run("Demotion disables", func(t *testing.T) {
		_, err := admin.ApplyRoleChange(ctx, p.ID, models.RoleClient)
		require.NoError(t, err)

		entry, err := admin.roster.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, entry.IsActive)
	})

	t.Run("Unknown profile", func(t *testing.T) {
		_, err := admin.ApplyRoleChange(ctx, "missing", models.RoleBroker)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestAdmin_ApplyRoleChangeRetryCompletesEnrollment(t *testing.T) {
	admin, client, _ := setupAdmin(t)
	ctx := context.Background()
	conn := client.Conn()

	p := testdata.CreateProfile(t, client, "Promoted", models.RoleClient)

	_, err := conn.ExecRaw(ctx, `CREATE TRIGGER reject_enroll BEFORE INSERT ON broker_order
		BEGIN SELECT RAISE(ABORT, 'transient'); END`)
	require.NoError(t, err)

	_, err = admin.ApplyRoleChange(ctx, p.ID, models.RoleBroker)
	require.Error(t, err)

	// the role was written before enrollment failed
	stored, err := profiles.NewService(client).Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBroker, stored.Role)
	_, err = admin.roster.Get(ctx, p.ID)
	require.True(t, domain.IsNotFound(err))

	_, err = conn.ExecRaw(ctx, "DROP TRIGGER reject_enroll")
	require.NoError(t, err)

	updated, err := admin.ApplyRoleChange(ctx, p.ID, models.RoleBroker)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBroker, updated.Role)

	entry, err := admin.roster.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, entry.IsActive)
	assert.Equal(t, 1, entry.OrderPosition)
}

func TestAdmin_ApplyRoleChangeKeepsDisabledBroker(t *testing.T) {
	admin, client, _ := setupAdmin(t)
	ctx := context.Background()

	b := testdata.CreateBroker(t, client, "B")
	_, err := admin.Enroll(ctx, b.ID)
	require.NoError(t, err)
	_, err = admin.Disable(ctx, b.ID)
	require.NoError(t, err)

	_, err = admin.ApplyRoleChange(ctx, b.ID, models.RoleBroker)
	require.NoError(t, err)

	entry, err := admin.roster.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, entry.IsActive)
}

func TestAdmin_Reorder(t *testing.T) {
	admin, client, mr := setupAdmin(t)
	ctx := context.Background()

	a := testdata.CreateBroker(t, client, "A")
	ea, err := admin.Enroll(ctx, a.ID)
	require.NoError(t, err)

	_, err = admin.List(ctx)
	require.NoError(t, err)
	require.True(t, hasCachedListing(mr))

	entries, err := admin.Reorder(ctx, []models.PositionUpdate{{ID: ea.ID, OrderPosition: 7}})
	require.NoError(t, err)
	assert.Equal(t, 7, entries[0].OrderPosition)
	assert.False(t, hasCachedListing(mr))
}
