// handlers/driver_routes.go
package handlers

import (
	"referral-ledger/middleware"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// SetupDriverRoutes registers the read-only dashboard routes and the admin driver routes.
func SetupDriverRoutes(app *fiber.App, driverService *services.DriverService, adminRole string, gatewayAuth fiber.Handler) {
	// 🔓 Dashboard: gateway auth only, read-only
	app.Get("/drivers", gatewayAuth, driverService.ListDrivers)
	app.Get("/drivers/:id/eligibility", gatewayAuth, driverService.GetEligibility)
	app.Get("/drivers/:id/payouts", gatewayAuth, driverService.GetPayoutHistory)
	app.Get("/drivers/:id/referral-link", gatewayAuth, driverService.GetReferralLink)

	// 🔐 Admin: gateway token, then user context with admin role
	admin := app.Group("/s/admin", gatewayAuth, middleware.UserContextMiddleware(), middleware.RequireRole(adminRole))

	admin.Get("/stats", driverService.GetStats)
	admin.Post("/drivers", driverService.CreateDriver)
	admin.Put("/drivers/:id", driverService.UpdateDriver)
	admin.Delete("/drivers/:id", driverService.DeleteDriver)
	admin.Post("/payouts/:id/paid", driverService.MarkPayoutPaid)
}
