package handlers

import (
	"net/http"

	"github.com/jordanlanch/brokerdesk/pkg/api/errors"
	"github.com/jordanlanch/brokerdesk/pkg/leadassignment"
	"github.com/jordanlanch/brokerdesk/pkg/leads"
	"github.com/jordanlanch/brokerdesk/pkg/ledger"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// LeadAssignmentHandler exposes the assignment engine and the ledger per lead
type LeadAssignmentHandler struct {
	engine      *leadassignment.Service
	leadService *leads.Service
	ledger      *ledger.Service
}

// NewLeadAssignmentHandler creates a new lead assignment handler.
func NewLeadAssignmentHandler(engine *leadassignment.Service, leadService *leads.Service, ledgerService *ledger.Service) *LeadAssignmentHandler {
	return &LeadAssignmentHandler{
		engine:      engine,
		leadService: leadService,
		ledger:      ledgerService,
	}
}

// Assign godoc
// @Summary Assign a lead to the next broker
// @Description Runs the rotation for a pending lead. Used to retry leads left pending.
// @Tags Lead Assignment
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} models.AssignmentResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/leads/{id}/assign [post]
func (h *LeadAssignmentHandler) Assign(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.engine.Assign(ctx, c.Param("id"))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	switch res.Outcome {
	case leadassignment.OutcomeAssigned:
		return c.JSON(http.StatusOK, models.AssignmentResponse{
			Outcome: string(res.Outcome),
			Lead:    res.Lead,
			Entry:   res.Entry,
		})
	case leadassignment.OutcomeAlreadyAssigned:
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "already_assigned",
			Message: "The lead is already handled by a broker.",
		})
	default:
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "no_eligible_broker",
			Message: "No active broker is enrolled in the rotation.",
		})
	}
}

// Distribution godoc
// @Summary List assignment decisions for a lead
// @Tags Lead Assignment
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {array} models.LedgerEntry
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/leads/{id}/distribution [get]
func (h *LeadAssignmentHandler) Distribution(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Param("id")
	if _, err := h.leadService.Get(ctx, id); err != nil {
		return errors.FromDomain(c, err)
	}

	entries, err := h.ledger.ListForLead(ctx, id)
	if err != nil {
		return errors.InternalError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(entries))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
