package http

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

const defaultLogLimit = 50

// Reader is the read side of the store the status API serves from.
type Reader interface {
	ListActivityStatuses(ctx context.Context) ([]domain.DeviceActivityStatus, error)
	ActivityStatus(ctx context.Context, deviceID int64) (domain.DeviceActivityStatus, error)
	OpenEmergencyEvents(ctx context.Context) ([]domain.EmergencyEvent, error)
	ListAutoSaveLogs(ctx context.Context, deviceID int64, limit int) ([]domain.AutoSaveLogEntry, error)
}

func Register(app *fiber.App, r Reader) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	g := app.Group("/")
	g.Get("devices/activity", func(c *fiber.Ctx) error {
		items, err := r.ListActivityStatuses(c.UserContext())
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(items)
	})
	g.Get("devices/:id/activity", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid device id"})
		}
		st, err := r.ActivityStatus(c.UserContext(), int64(id))
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no activity recorded for device"})
		}
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(st)
	})
	g.Get("devices/:id/autosave-logs", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid device id"})
		}
		limit := defaultLogLimit
		if raw := c.Query("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid limit"})
			}
		}
		items, err := r.ListAutoSaveLogs(c.UserContext(), int64(id), limit)
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(items)
	})
	g.Get("emergencies/open", func(c *fiber.Ctx) error {
		items, err := r.OpenEmergencyEvents(c.UserContext())
		if err != nil {
			return internalError(c, err)
		}
		return c.JSON(items)
	})
}

func internalError(c *fiber.Ctx, err error) error {
	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
