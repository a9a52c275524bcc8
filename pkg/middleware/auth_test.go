package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/auth"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-minimum-32-characters-long"

func token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := auth.GenerateJWT(userID, userID+"@example.com", role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func newAuthEcho(roles ...models.Role) *echo.Echo {
	e := echo.New()
	e.GET("/private", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	}, JWT(testSecret), RequireRole(roles...))
	return e
}

func get(e *echo.Echo, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWT(t *testing.T) {
	e := newAuthEcho(models.RoleAdmin, models.RoleBroker)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing_token"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid_token_format"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "invalid_token_format"},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized, "invalid_token"},
		{"broker", "Bearer " + token(t, "broker-1", models.RoleBroker), http.StatusOK, "broker-1"},
		{"lowercase scheme", "bearer " + token(t, "admin-1", models.RoleAdmin), http.StatusOK, "admin-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(e, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := newAuthEcho(models.RoleAdmin)

	rec := get(e, "Bearer "+token(t, "admin-1", models.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(e, "Bearer "+token(t, "broker-1", models.RoleBroker))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_permissions")

	rec = get(e, "Bearer "+token(t, "client-1", models.RoleClient))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRole_WithoutJWT(t *testing.T) {
	e := echo.New()
	e.GET("/private", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RequireRole(models.RoleAdmin))

	rec := get(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
