package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/profiles"
	"github.com/jordanlanch/brokerdesk/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*Service, *database.Client) {
	t.Helper()
	client := testdata.OpenTestDB(t)
	return NewService(client, profiles.NewService(client)), client
}

func brokerIDs(entries []models.RosterEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.BrokerID
	}
	return ids
}

func TestService_Enroll(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	b1 := testdata.CreateBroker(t, client, "Broker 1")
	b2 := testdata.CreateBroker(t, client, "Broker 2")

	t.Run("Success - Appends to the end", func(t *testing.T) {
		e1, err := service.Enroll(ctx, b1.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, e1.OrderPosition)
		assert.True(t, e1.IsActive)
		assert.Nil(t, e1.LastAssigned)
		assert.Zero(t, e1.TotalAssigned)

		e2, err := service.Enroll(ctx, b2.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, e2.OrderPosition)
		assert.Greater(t, e2.ID, e1.ID)
	})

	t.Run("Error - Already enrolled", func(t *testing.T) {
		_, err := service.Enroll(ctx, b1.ID)
		require.Error(t, err)
		assert.True(t, domain.IsAlreadyEnrolled(err))
	})

	t.Run("Error - Profile is not a broker", func(t *testing.T) {
		c := testdata.CreateProfile(t, client, "Client", models.RoleClient)
		_, err := service.Enroll(ctx, c.ID)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - Unknown profile", func(t *testing.T) {
		_, err := service.Enroll(ctx, "missing")
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestService_ConcurrentEnrollGetsDistinctPositions(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	const n = 8
	brokers := make([]*models.Profile, n)
	for i := range brokers {
		brokers[i] = testdata.CreateBroker(t, client, fmt.Sprintf("Broker %d", i))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		positions []int
	)
	for _, b := range brokers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			e, err := service.Enroll(ctx, id)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			positions = append(positions, e.OrderPosition)
			mu.Unlock()
		}(b.ID)
	}
	wg.Wait()

	sort.Ints(positions)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, positions)
}

func TestService_ReenrollGetsFreshPosition(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	b1 := testdata.CreateBroker(t, client, "Broker 1")
	b2 := testdata.CreateBroker(t, client, "Broker 2")
	b3 := testdata.CreateBroker(t, client, "Broker 3")
	for _, b := range []*models.Profile{b1, b2, b3} {
		_, err := service.Enroll(ctx, b.ID)
		require.NoError(t, err)
	}

	_, err := service.Disable(ctx, b1.ID)
	require.NoError(t, err)

	again, err := service.Enroll(ctx, b1.ID)
	require.NoError(t, err)
	assert.True(t, again.IsActive)
	assert.Equal(t, 4, again.OrderPosition)

	list, err := service.ListOrdered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b2.ID, b3.ID, b1.ID}, brokerIDs(list))
}

func TestService_Disable(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	b := testdata.CreateBroker(t, client, "Broker")
	enrolled, err := service.Enroll(ctx, b.ID)
	require.NoError(t, err)

	disabled, err := service.Disable(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, disabled.IsActive)
	assert.Equal(t, enrolled.OrderPosition, disabled.OrderPosition)

	// idempotent
	again, err := service.Disable(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive)

	_, err = service.Disable(ctx, "never-enrolled")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestService_ListOrdered(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	var ids []int
	for _, name := range []string{"A", "B", "C"} {
		b := testdata.CreateBroker(t, client, name)
		e, err := service.Enroll(ctx, b.ID)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	// equal positions fall back to id order
	_, err := service.Reorder(ctx, []models.PositionUpdate{
		{ID: ids[0], OrderPosition: 5},
		{ID: ids[1], OrderPosition: 5},
		{ID: ids[2], OrderPosition: 1},
	})
	require.NoError(t, err)

	list, err := service.ListOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[1].ID)
	assert.Equal(t, ids[1], list[2].ID)
}

func TestService_ListWithBrokers(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	b := testdata.CreateBroker(t, client, "Ana Souza")
	_, err := service.Enroll(ctx, b.ID)
	require.NoError(t, err)

	listing, err := service.ListWithBrokers(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, "Ana Souza", listing[0].BrokerName)
	assert.Equal(t, b.Email, listing[0].BrokerEmail)
	assert.Equal(t, b.ID, listing[0].BrokerID)
}

func TestService_Reorder(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	var entries []*models.RosterEntry
	for _, name := range []string{"A", "B"} {
		b := testdata.CreateBroker(t, client, name)
		e, err := service.Enroll(ctx, b.ID)
		require.NoError(t, err)
		entries = append(entries, e)
	}

	t.Run("Success - Swaps positions", func(t *testing.T) {
		list, err := service.Reorder(ctx, []models.PositionUpdate{
			{ID: entries[0].ID, OrderPosition: 2},
			{ID: entries[1].ID, OrderPosition: 1},
		})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, entries[1].ID, list[0].ID)
		assert.Equal(t, entries[0].ID, list[1].ID)
	})

	t.Run("Error - Missing ids roll back the batch", func(t *testing.T) {
		_, err := service.Reorder(ctx, []models.PositionUpdate{
			{ID: entries[0].ID, OrderPosition: 10},
			{ID: 9999, OrderPosition: 1},
			{ID: 4242, OrderPosition: 2},
		})
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
		assert.Contains(t, err.Error(), "4242, 9999")

		got, err := service.Get(ctx, entries[0].BrokerID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.OrderPosition)
	})

	t.Run("Error - Duplicate ids", func(t *testing.T) {
		_, err := service.Reorder(ctx, []models.PositionUpdate{
			{ID: entries[0].ID, OrderPosition: 1},
			{ID: entries[0].ID, OrderPosition: 2},
		})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - Empty batch", func(t *testing.T) {
		_, err := service.Reorder(ctx, nil)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestLockActive(t *testing.T) {
	service, client := setupService(t)
	ctx := context.Background()

	a := testdata.CreateBroker(t, client, "A")
	b := testdata.CreateBroker(t, client, "B")
	c := testdata.CreateBroker(t, client, "C")
	for _, p := range []*models.Profile{a, b, c} {
		_, err := service.Enroll(ctx, p.ID)
		require.NoError(t, err)
	}
	_, err := service.Disable(ctx, b.ID)
	require.NoError(t, err)

	err = client.WithTx(ctx, database.TxOptions{}, func(tx *database.Conn) error {
		active, err := LockActive(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID, c.ID}, brokerIDs(active))
		return nil
	})
	require.NoError(t, err)
}
