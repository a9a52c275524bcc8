package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/api/errors"
	"github.com/jordanlanch/brokerdesk/pkg/ledger"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/labstack/echo/v4"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LedgerHandler serves distribution reports
type LedgerHandler struct {
	ledger *ledger.Service
	names  ledger.BrokerNames
}

// NewLedgerHandler creates a new ledger handler. names resolves broker
// names in exports and may be nil.
func NewLedgerHandler(ledgerService *ledger.Service, names ledger.BrokerNames) *LedgerHandler {
	return &LedgerHandler{ledger: ledgerService, names: names}
}

// Summary godoc
// @Summary Leads received per broker
// @Tags Distribution Ledger
// @Produce json
// @Param broker_id query string false "Broker profile ID"
// @Param from query string false "Inclusive start, RFC 3339 or YYYY-MM-DD"
// @Param to query string false "Exclusive end, RFC 3339 or YYYY-MM-DD"
// @Success 200 {array} models.BrokerDistribution
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/distribution-ledger/summary [get]
func (h *LedgerHandler) Summary(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	filter, err := parseLedgerFilter(c)
	if err != nil {
		return errors.ValidationError(c, err)
	}

	summary, err := h.ledger.Summary(ctx, filter)
	if err != nil {
		return errors.InternalError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(summary))
}

// Export godoc
// @Summary Download the ledger as an Excel workbook
// @Tags Distribution Ledger
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param broker_id query string false "Broker profile ID"
// @Param lead_id query string false "Lead ID"
// @Param from query string false "Inclusive start, RFC 3339 or YYYY-MM-DD"
// @Param to query string false "Exclusive end, RFC 3339 or YYYY-MM-DD"
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/distribution-ledger/export [get]
func (h *LedgerHandler) Export(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	filter, err := parseLedgerFilter(c)
	if err != nil {
		return errors.ValidationError(c, err)
	}

	var buf bytes.Buffer
	if err := h.ledger.ExportXLSX(ctx, &buf, filter, h.names); err != nil {
		return errors.InternalError(c, err)
	}

	filename := fmt.Sprintf("distribution-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func parseLedgerFilter(c echo.Context) (models.LedgerFilter, error) {
	filter := models.LedgerFilter{
		LeadID:   c.QueryParam("lead_id"),
		BrokerID: c.QueryParam("broker_id"),
	}

	var err error
	if filter.From, err = parseTimeParam(c.QueryParam("from")); err != nil {
		return filter, fmt.Errorf("from: %w", err)
	}
	if filter.To, err = parseTimeParam(c.QueryParam("to")); err != nil {
		return filter, fmt.Errorf("to: %w", err)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, fmt.Errorf("from must be before to")
	}
	return filter, nil
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q", v)
}
