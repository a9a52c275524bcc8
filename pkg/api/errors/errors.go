package errors

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/brokerdesk/pkg/domain"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// RetryAfterSeconds is the hint sent with CONTENTION_TIMEOUT responses
const RetryAfterSeconds = 1

var log atomic.Value

func init() {
	log.Store(logger.Default())
}

// SetLogger replaces the logger used for errors whose details are hidden
// from the caller
func SetLogger(l logger.Logger) {
	if l != nil {
		log.Store(l)
	}
}

func current() logger.Logger {
	return log.Load().(logger.Logger)
}

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, err error) error {
	current().Warn("validation error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// InternalError returns a generic internal server error and reports err to Sentry
func InternalError(c echo.Context, err error) error {
	current().Error("internal error", "path", c.Request().URL.Path, "method", c.Request().Method, "error", err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// NotFoundError returns a not found error naming the resource
func NotFoundError(c echo.Context, message string) error {
	if message == "" {
		message = "The requested resource was not found."
	}
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: message,
	})
}

// ConflictError returns a conflict error. message must be safe to expose.
func ConflictError(c echo.Context, code, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// ContentionError tells the caller the assignment locks were busy and the
// request may be retried
func ContentionError(c echo.Context) error {
	c.Response().Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
		Error:   strings.ToLower(domain.ErrCodeContentionTimeout),
		Message: "The rotation is busy. Please retry shortly.",
	})
}

// FromDomain writes the response matching err. Domain errors keep their
// message; anything else is treated as internal.
func FromDomain(c echo.Context, err error) error {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return InternalError(c, err)
	}

	switch de.Code {
	case domain.ErrCodeNotFound:
		return NotFoundError(c, de.Message)
	case domain.ErrCodeValidation:
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: de.Message})
	case domain.ErrCodeAlreadyEnrolled:
		return ConflictError(c, "already_enrolled", de.Message)
	case domain.ErrCodeConflict:
		return ConflictError(c, "conflict", de.Message)
	case domain.ErrCodeContentionTimeout:
		current().Warn("assignment contention", "path", c.Request().URL.Path, "error", de.Err)
		return ContentionError(c)
	case domain.ErrCodeUnauthorized:
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: de.Message})
	case domain.ErrCodeForbidden:
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Message: de.Message})
	default:
		return InternalError(c, err)
	}
}
