package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig holds the headers added to every API response.
// Empty fields fall back to the defaults.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy string
	ReferrerPolicy        string
	CacheControl          string
}

// DefaultSecurityHeadersConfig returns defaults for a JSON API that serves no
// documents of its own
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		CacheControl:          "no-store",
	}
}

// SecurityHeaders sets Content-Security-Policy, Referrer-Policy and
// Cache-Control. Lead data is personal, so responses are never cached.
func SecurityHeaders(config SecurityHeadersConfig) echo.MiddlewareFunc {
	defaults := DefaultSecurityHeadersConfig()
	if config.ContentSecurityPolicy == "" {
		config.ContentSecurityPolicy = defaults.ContentSecurityPolicy
	}
	if config.ReferrerPolicy == "" {
		config.ReferrerPolicy = defaults.ReferrerPolicy
	}
	if config.CacheControl == "" {
		config.CacheControl = defaults.CacheControl
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
			h.Set("Referrer-Policy", config.ReferrerPolicy)
			h.Set("Cache-Control", config.CacheControl)
			return next(c)
		}
	}
}
