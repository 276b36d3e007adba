package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hctoledo/wachannel/pkg/msgworker"
)

// GetWorkerPoolStats returns real-time worker pool statistics
func GetWorkerPoolStats(c *fiber.Ctx) error {
	stats := msgworker.GetGlobalStats()
	return c.JSON(stats)
}
