package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/brokerdesk/pkg/api/errors"
	"github.com/jordanlanch/brokerdesk/pkg/ledger"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/jordanlanch/brokerdesk/pkg/roster"
	"github.com/labstack/echo/v4"
)

// RosterHandler handles broker rotation administration
type RosterHandler struct {
	admin     *roster.Admin
	ledger    *ledger.Service
	validator *validator.Validate
}

// NewRosterHandler creates a new roster handler
func NewRosterHandler(admin *roster.Admin, ledgerService *ledger.Service) *RosterHandler {
	return &RosterHandler{
		admin:     admin,
		ledger:    ledgerService,
		validator: validator.New(),
	}
}

// List godoc
// @Summary List the broker rotation
// @Description Entries in rotation order, inactive ones included
// @Tags Broker Order
// @Produce json
// @Success 200 {array} models.RosterListing
// @Security BearerAuth
// @Router /api/v1/broker-order [get]
func (h *RosterHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	listing, err := h.admin.List(ctx)
	if err != nil {
		return errors.InternalError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(listing))
}

// Reorder godoc
// @Summary Reorder the rotation
// @Description Applies every position change or none. Unknown entry ids are reported.
// @Tags Broker Order
// @Accept json
// @Produce json
// @Param request body []models.PositionUpdate true "New positions"
// @Success 200 {array} models.RosterEntry
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/broker-order [patch]
func (h *RosterHandler) Reorder(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var updates []models.PositionUpdate
	if err := c.Bind(&updates); err != nil {
		return errors.ValidationError(c, err)
	}
	for _, u := range updates {
		if err := h.validator.Struct(u); err != nil {
			return errors.ValidationError(c, err)
		}
	}

	entries, err := h.admin.Reorder(ctx, updates)
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(entries))
}

// Enroll godoc
// @Summary Add a broker to the rotation
// @Description New and returning brokers are placed last
// @Tags Broker Order
// @Produce json
// @Param brokerId path string true "Broker profile ID"
// @Success 201 {object} models.RosterEntry
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/broker-order/{brokerId} [post]
func (h *RosterHandler) Enroll(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	entry, err := h.admin.Enroll(ctx, c.Param("brokerId"))
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// Disable godoc
// @Summary Remove a broker from the rotation
// @Description Soft disable. Counters and ledger history are kept.
// @Tags Broker Order
// @Produce json
// @Param brokerId path string true "Broker profile ID"
// @Success 200 {object} models.RosterEntry
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/broker-order/{brokerId} [delete]
func (h *RosterHandler) Disable(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	entry, err := h.admin.Disable(ctx, c.Param("brokerId"))
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// SetActive godoc
// @Summary Toggle a broker's participation
// @Tags Broker Order
// @Accept json
// @Produce json
// @Param brokerId path string true "Broker profile ID"
// @Param request body models.SetActiveRequest true "Active flag"
// @Success 200 {object} models.RosterEntry
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/broker-order/{brokerId}/active [put]
func (h *RosterHandler) SetActive(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	entry, err := h.admin.SetActive(ctx, c.Param("brokerId"), *req.IsActive)
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// Distribution godoc
// @Summary List leads assigned to a broker
// @Tags Broker Order
// @Produce json
// @Param brokerId path string true "Broker profile ID"
// @Success 200 {array} models.LedgerEntry
// @Security BearerAuth
// @Router /api/v1/broker-order/{brokerId}/distribution [get]
func (h *RosterHandler) Distribution(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := h.ledger.ListForBroker(ctx, c.Param("brokerId"))
	if err != nil {
		return errors.InternalError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(entries))
}
