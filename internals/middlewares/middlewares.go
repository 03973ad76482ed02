package middlewares

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares/logger"
)

// SetupMiddlewares installs the global chain. Recovery stays outermost.
func SetupMiddlewares(app *fiber.App, log zerolog.Logger, origins []string, requestTimeout time.Duration) {
	app.Use(RecoveryMiddleware(log))
	app.Use(logger.RequestID(requestTimeout))
	app.Use(logger.LoggerMiddleware(log))
	app.Use(CorsMiddleware(origins))
}
