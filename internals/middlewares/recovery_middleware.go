package middlewares

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares/logger"
)

// RecoveryMiddleware turns a handler panic into a 500 and logs it with the
// request id and stack.
func RecoveryMiddleware(log zerolog.Logger) fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			ev := log.Error().
				Interface("panic", e).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Bytes("stack", debug.Stack())
			if id, ok := c.Locals(logger.LocalRequestID).(string); ok {
				ev = ev.Str("request_id", id)
			}
			ev.Msg("handler panicked")
		},
	})
}
