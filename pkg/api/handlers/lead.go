package handlers

import (
	"net/http"

	"github.com/jordanlanch/brokerdesk/pkg/api/errors"
	"github.com/jordanlanch/brokerdesk/pkg/leads"
	"github.com/jordanlanch/brokerdesk/pkg/middleware"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// LeadHandler handles lead endpoints
type LeadHandler struct {
	leadService *leads.Service
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leadService *leads.Service) *LeadHandler {
	return &LeadHandler{leadService: leadService}
}

// Create godoc
// @Summary Submit a contact form lead
// @Description Stores the lead as pending and schedules its assignment in the background
// @Tags Leads
// @Accept json
// @Produce json
// @Param request body models.CreateLeadRequest true "Contact form"
// @Success 201 {object} models.Lead
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /api/v1/leads [post]
func (h *LeadHandler) Create(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.CreateLeadRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	lead, err := h.leadService.Create(ctx, req)
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusCreated, lead)
}

// Get godoc
// @Summary Get a lead
// @Description Brokers only see leads handled by them
// @Tags Leads
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} models.Lead
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/leads/{id} [get]
func (h *LeadHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	lead, err := h.leadService.Get(ctx, c.Param("id"))
	if err != nil {
		return errors.FromDomain(c, err)
	}
	if !canSee(c, lead) {
		return forbidden(c)
	}

	return c.JSON(http.StatusOK, lead)
}

// Update godoc
// @Summary Update a lead
// @Description Only status and observations can be changed. Status moves on once the lead is assigned.
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param request body models.LeadUpdate true "Changes"
// @Success 200 {object} models.Lead
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/leads/{id} [patch]
func (h *LeadHandler) Update(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.LeadUpdate
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	id := c.Param("id")
	current, err := h.leadService.Get(ctx, id)
	if err != nil {
		return errors.FromDomain(c, err)
	}
	// handled_by never changes once set, so checking before the update is enough
	if !canSee(c, current) {
		return forbidden(c)
	}

	lead, err := h.leadService.Update(ctx, id, req)
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, lead)
}

// canSee lets admins through and restricts brokers to their own leads
func canSee(c echo.Context, lead *models.Lead) bool {
	role, _ := c.Get(middleware.ContextUserRole).(models.Role)
	if role == models.RoleAdmin {
		return true
	}
	return lead.HandledBy != nil && *lead.HandledBy == middleware.UserID(c)
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "This lead is handled by another broker.",
	})
}
