package route

import (
	"github.com/gofiber/fiber/v2"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/webhooks/controller"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/webhooks/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares"
)

// WebhookRoutes mounts the provider callbacks. No JWT: every adapter
// authenticates its own callbacks.
func WebhookRoutes(app fiber.Router, ingress *service.Ingress) {
	h := controller.NewWebhookController(ingress)

	wh := app.Group("/webhooks")
	wh.Post("/:provider", middlewares.WebhookRateLimiter(0), h.Receive)
}
