package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/brokerdesk/pkg/api/errors"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/roster"
	"github.com/labstack/echo/v4"
)

// ProfileHandler handles role changes
type ProfileHandler struct {
	admin     *roster.Admin
	validator *validator.Validate
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(admin *roster.Admin) *ProfileHandler {
	return &ProfileHandler{admin: admin, validator: validator.New()}
}

// UpdateRole godoc
// @Summary Change a profile's role
// @Description Promotion to broker enrolls the profile in the rotation; demotion disables it
// @Tags Profiles
// @Accept json
// @Produce json
// @Param id path string true "Profile ID"
// @Param request body models.UpdateRoleRequest true "New role"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/profiles/{id}/role [put]
func (h *ProfileHandler) UpdateRole(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.UpdateRoleRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	profile, err := h.admin.ApplyRoleChange(ctx, c.Param("id"), req.Role)
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}
