package server_handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	appinfo "devgateway/pkg/appinfo"
)

type HealthResponse struct {
	Status           string    `json:"status"`
	Uptime           string    `json:"uptime"`
	StartTime        time.Time `json:"start_time"`
	HandlerCount     int       `json:"handler_count"`
	MockHandlers     int       `json:"mock_handlers"`
	FilesystemRoutes int       `json:"filesystem_handlers"`
	Version          string    `json:"version"`
}

func HealthHandler(handlerCount, mockCount, fsCount int, version string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(HealthResponse{
			Status:           "ok",
			Uptime:           time.Since(appinfo.StartTime).String(),
			StartTime:        appinfo.StartTime,
			HandlerCount:     handlerCount,
			MockHandlers:     mockCount,
			FilesystemRoutes: fsCount,
			Version:          version,
		})
	}
}
