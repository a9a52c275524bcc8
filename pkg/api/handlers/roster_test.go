package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterHandler_EnrollAndList(t *testing.T) {
	env := setupEnv(t)
	h := NewRosterHandler(env.admin, env.ledger)
	ana := testdata.CreateBroker(t, env.db, "Ana")
	bia := testdata.CreateBroker(t, env.db, "Bia")

	for _, b := range []*models.Profile{ana, bia} {
		c, rec := request(http.MethodPost, "/", "", "brokerId", b.ID)
		require.NoError(t, h.Enroll(c))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	c, rec := request(http.MethodPost, "/", "", "brokerId", ana.ID)
	require.NoError(t, h.Enroll(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_enrolled", decode[models.ErrorResponse](t, rec).Error)

	c, rec = request(http.MethodGet, "/api/v1/broker-order", "")
	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	listing := decode[[]models.RosterListing](t, rec)
	require.Len(t, listing, 2)
	assert.Equal(t, "Ana", listing[0].BrokerName)
	assert.Equal(t, 1, listing[0].OrderPosition)
	assert.Equal(t, "Bia", listing[1].BrokerName)
	assert.Equal(t, 2, listing[1].OrderPosition)
}

func TestRosterHandler_Enroll_Rejected(t *testing.T) {
	env := setupEnv(t)
	h := NewRosterHandler(env.admin, env.ledger)
	client := testdata.CreateProfile(t, env.db, "Client", models.RoleClient)

	c, rec := request(http.MethodPost, "/", "", "brokerId", client.ID)
	require.NoError(t, h.Enroll(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = request(http.MethodPost, "/", "", "brokerId", "missing")
	require.NoError(t, h.Enroll(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRosterHandler_Reorder(t *testing.T) {
	env := setupEnv(t)
	h := NewRosterHandler(env.admin, env.ledger)
	a := env.enroll(t, "Ana")
	b := env.enroll(t, "Bia")

	body := fmt.Sprintf(`[{"id":%d,"orderPosition":1},{"id":%d,"orderPosition":2}]`, b.ID, a.ID)
	c, rec := request(http.MethodPatch, "/api/v1/broker-order", body)
	require.NoError(t, h.Reorder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decode[[]models.RosterEntry](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, b.ID, entries[0].ID)
	assert.Equal(t, a.ID, entries[1].ID)
}

func TestRosterHandler_Reorder_Rejected(t *testing.T) {
	env := setupEnv(t)
	h := NewRosterHandler(env.admin, env.ledger)
	a := env.enroll(t, "Ana")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not a list", `{"id":1}`, http.StatusBadRequest},
		{"empty list", `[]`, http.StatusBadRequest},
		{"zero id", `[{"id":0,"orderPosition":1}]`, http.StatusBadRequest},
		{"duplicate ids", fmt.Sprintf(`[{"id":%d,"orderPosition":1},{"id":%d,"orderPosition":2}]`, a.ID, a.ID), http.StatusBadRequest},
		{"unknown ids", fmt.Sprintf(`[{"id":%d,"orderPosition":5},{"id":4242,"orderPosition":1}]`, a.ID), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := request(http.MethodPatch, "/api/v1/broker-order", tt.body)
			require.NoError(t, h.Reorder(c))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	entry, err := env.roster.Get(t.Context(), a.BrokerID)
	require.NoError(t, err)
	assert.Equal(t, a.OrderPosition, entry.OrderPosition)
}

func TestRosterHandler_DisableAndSetActive(t *testing.T) {
	env := setupEnv(t)
	h := NewRosterHandler(env.admin, env.ledger)
	a := env.enroll(t, "Ana")
	env.enroll(t, "Bia")

	c, rec := request(http.MethodDelete, "/", "", "brokerId", a.BrokerID)
	require.NoError(t, h.Disable(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.RosterEntry](t, rec).IsActive)

	c, rec = request(http.MethodPut, "/", `{"isActive":true}`, "brokerId", a.BrokerID)
	require.NoError(t, h.SetActive(c))
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode[models.RosterEntry](t, rec)
	assert.True(t, entry.IsActive)
	assert.Equal(t, 3, entry.OrderPosition)

	c, rec = request(http.MethodPut, "/", `{}`, "brokerId", a.BrokerID)
	require.NoError(t, h.SetActive(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = request(http.MethodDelete, "/", "", "brokerId", "missing")
	require.NoError(t, h.Disable(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = request(http.MethodPut, "/", `{"isActive":true}`, "brokerId", "missing")
	require.NoError(t, h.SetActive(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRosterHandler_Distribution(t *testing.T) {
	env := setupEnv(t)
	h := NewRosterHandler(env.admin, env.ledger)
	a := env.enroll(t, "Ana")
	env.assignedLead(t)
	env.assignedLead(t)

	c, rec := request(http.MethodGet, "/", "", "brokerId", a.BrokerID)
	require.NoError(t, h.Distribution(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.LedgerEntry](t, rec), 2)
}
