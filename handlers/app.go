// handlers/app.go
package handlers

import (
	"referral-ledger/middleware"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AppConfig carries what NewApp needs to assemble the server.
type AppConfig struct {
	ServiceToken   string
	DeviceToken    string
	AllowedOrigins string
	AdminRole      string

	LedgerAPI     *services.LedgerAPI
	DriverService *services.DriverService
}

// NewApp builds the fiber app with every route registered.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		MaxAge:       86400, // 24 hours
	}))

	// Health and metrics stay outside gateway auth
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// 🔐❗ Device agents hold the device token; only the gateway holds the service token
	gatewayAuth := middleware.GatewayAuthMiddleware(cfg.ServiceToken)
	deviceAuth := middleware.DeviceAuthMiddleware(cfg.DeviceToken, cfg.ServiceToken)

	SetupLedgerRoutes(app, cfg.LedgerAPI, deviceAuth, gatewayAuth)
	SetupDriverRoutes(app, cfg.DriverService, cfg.AdminRole, gatewayAuth)

	return app
}
