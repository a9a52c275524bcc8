package main

import (
	"github.com/jordanlanch/brokerdesk/pkg/api/handlers"
	custommiddleware "github.com/jordanlanch/brokerdesk/pkg/middleware"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/labstack/echo/v4"
)

type routeHandlers struct {
	lead       *handlers.LeadHandler
	assignment *handlers.LeadAssignmentHandler
	roster     *handlers.RosterHandler
	ledger     *handlers.LedgerHandler
	profile    *handlers.ProfileHandler
}

// registerRoutes mounts the /api/v1 routes. Lead intake is the only public
// endpoint and is guarded by intake.
func registerRoutes(e *echo.Echo, h routeHandlers, jwtSecret string, intake *custommiddleware.RateLimiter) {
	v1 := e.Group("/api/v1")

	jwt := custommiddleware.JWT(jwtSecret)
	staff := custommiddleware.RequireRole(models.RoleAdmin, models.RoleBroker)
	admin := custommiddleware.RequireRole(models.RoleAdmin)

	// Leads
	v1.POST("/leads", h.lead.Create, intake.Middleware())
	v1.GET("/leads/:id", h.lead.Get, jwt, staff)
	v1.PATCH("/leads/:id", h.lead.Update, jwt, staff)
	v1.POST("/leads/:id/assign", h.assignment.Assign, jwt, admin)
	v1.GET("/leads/:id/distribution", h.assignment.Distribution, jwt, admin)

	// Broker rotation
	v1.GET("/broker-order", h.roster.List, jwt, staff)
	v1.PATCH("/broker-order", h.roster.Reorder, jwt, admin)
	v1.POST("/broker-order/:brokerId", h.roster.Enroll, jwt, admin)
	v1.DELETE("/broker-order/:brokerId", h.roster.Disable, jwt, admin)
	v1.PUT("/broker-order/:brokerId/active", h.roster.SetActive, jwt, admin)
	v1.GET("/broker-order/:brokerId/distribution", h.roster.Distribution, jwt, admin)

	// Distribution ledger
	v1.GET("/distribution-ledger/summary", h.ledger.Summary, jwt, admin)
	v1.GET("/distribution-ledger/export", h.ledger.Export, jwt, admin)

	// Profiles
	v1.PUT("/profiles/:id/role", h.profile.UpdateRole, jwt, admin)
}
