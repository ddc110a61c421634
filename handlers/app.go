package handlers

import (
	"strings"

	"coin-rewards-ledger/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
)

type AppOptions struct {
	GatewayToken   string
	AllowedOrigins []string
	AdminUIDs      []string
	Auth           middleware.TokenValidator
	Gatherer       prometheus.Gatherer
}

// NewApp builds the fiber app with every route registered.
func NewApp(svc *Services, opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	origins := strings.Join(opts.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: origins != "*", // fiber refuses credentials with a wildcard origin
		MaxAge:           86400,
	}))
	app.Use(middleware.RequestLogger(svc.Metrics, svc.Log.WithField("component", "http")))

	SetupSystemRoutes(app, opts.Gatherer)

	// every route below must come from the gateway
	app.Use(middleware.GatewayAuthMiddleware(opts.GatewayToken, svc.Log))

	SetupUserRoutes(app, svc)
	SetupAdminRoutes(app, svc, opts.AdminUIDs)
	SetupStreamRoutes(app, svc, opts.Auth, opts.AdminUIDs)

	return app
}
