package handlers

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

const requestTimeout = 10 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
