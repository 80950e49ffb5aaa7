package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterOps adds the ingestor's health and metrics endpoints. Health
// reports 503 while the broker is disconnected.
func RegisterOps(app *fiber.App, brokerConnected func() bool, registry *prometheus.Registry) {
	app.Get("/health", func(c *fiber.Ctx) error {
		if !brokerConnected() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "broker": "disconnected"})
		}
		return c.JSON(fiber.Map{"status": "ok", "broker": "connected"})
	})
	if registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
}
