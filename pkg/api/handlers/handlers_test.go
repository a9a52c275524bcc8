package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/api/errors"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/leadassignment"
	"github.com/jordanlanch/brokerdesk/pkg/leads"
	"github.com/jordanlanch/brokerdesk/pkg/ledger"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/middleware"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/phone"
	"github.com/jordanlanch/brokerdesk/pkg/profiles"
	"github.com/jordanlanch/brokerdesk/pkg/roster"
	"github.com/jordanlanch/brokerdesk/pkg/testdata"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db       *database.Client
	profiles *profiles.Service
	roster   *roster.Service
	admin    *roster.Admin
	leads    *leads.Service
	engine   *leadassignment.Service
	ledger   *ledger.Service
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	errors.SetLogger(logger.Nop())

	db := testdata.OpenTestDB(t)
	ps := profiles.NewService(db)
	rs := roster.NewService(db, ps)
	return &testEnv{
		db:       db,
		profiles: ps,
		roster:   rs,
		admin:    roster.NewAdmin(rs, ps, nil, nil, logger.Nop()),
		leads:    leads.NewService(db, phone.NewNormalizer("US"), nil, logger.Nop()),
		engine:   leadassignment.NewService(leadassignment.NewSQLStore(db, 5*time.Second), nil, logger.Nop()),
		ledger:   ledger.NewService(db),
	}
}

func (env *testEnv) enroll(t *testing.T, name string) *models.RosterEntry {
	t.Helper()
	b := testdata.CreateBroker(t, env.db, name)
	entry, err := env.roster.Enroll(context.Background(), b.ID)
	require.NoError(t, err)
	return entry
}

func (env *testEnv) assignedLead(t *testing.T) *leadassignment.Result {
	t.Helper()
	lead := testdata.CreatePendingLead(t, env.db)
	res, err := env.engine.Assign(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, leadassignment.OutcomeAssigned, res.Outcome)
	return res
}

// request builds an echo context. params alternates names and values.
func request(method, target, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c, rec
}

func as(c echo.Context, userID string, role models.Role) echo.Context {
	c.Set(middleware.ContextUserID, userID)
	c.Set(middleware.ContextUserRole, role)
	return c
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
