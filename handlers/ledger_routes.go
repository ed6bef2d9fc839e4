// handlers/ledger_routes.go
package handlers

import (
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// SetupLedgerRoutes registers the remote ledger API. Device agents may read
// drivers and users and record installs and redemptions; driver mutations
// stay behind the gateway token.
func SetupLedgerRoutes(app *fiber.App, api *services.LedgerAPI, deviceAuth, gatewayAuth fiber.Handler) {
	g := app.Group("/ledger")

	// 📱 Device agents
	g.Get("/drivers", deviceAuth, api.ListDrivers)
	g.Get("/drivers/:id", deviceAuth, api.GetDriver)
	g.Post("/drivers/:id/increment", deviceAuth, api.IncrementDriver)

	g.Get("/users/:id", deviceAuth, api.GetUser)
	g.Put("/users/:id", deviceAuth, api.SetUser)
	g.Patch("/users/:id", deviceAuth, api.PatchUser)
	g.Post("/users/:id/redemption", deviceAuth, api.CreditRedemption)

	// 🔐 Operators
	g.Post("/drivers", gatewayAuth, api.CreateDriver)
	g.Put("/drivers/:id", gatewayAuth, api.UpdateDriver)
	g.Delete("/drivers/:id", gatewayAuth, api.DeleteDriver)
}
