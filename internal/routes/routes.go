package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/lukasbrandt/advisory-backend/internal/config"
	"github.com/lukasbrandt/advisory-backend/internal/handlers"
	"github.com/lukasbrandt/advisory-backend/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	syncHandler *handlers.SyncHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Admin-guarded sync surface. The trigger gets its own stricter limit
	// since a sync pass is expensive upstream.
	admin := api.Group("", middleware.AdminRequired(cfg))

	sync := admin.Group("/sync")
	sync.Post("", limiter.New(limiter.Config{
		Max:               5,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}), syncHandler.Trigger)
	sync.Get("/runs", syncHandler.Runs)
	sync.Get("/runs/latest", syncHandler.LatestRun)

	admin.Get("/activities/matched", syncHandler.MatchedActivities)
}
