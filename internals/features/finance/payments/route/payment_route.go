package route

import (
	"github.com/gofiber/fiber/v2"

	"github.com/boazomare1/school-managementKE-sub001/internals/constants"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/controller"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares/auth"
)

// PaymentUserRoutes: mounted at /api/u (JWT).
func PaymentUserRoutes(r fiber.Router, s *service.PaymentService) {
	h := controller.NewPaymentController(s)

	payments := r.Group("/payments")
	payments.Post("/", h.Create)
	payments.Get("/invoice/:id", h.ListByInvoice)
	payments.Get("/:ref", h.Get)
	payments.Post("/:ref/refresh", h.Refresh)
}

// PaymentAdminRoutes: mounted at /api/a (JWT + finance staff).
func PaymentAdminRoutes(r fiber.Router, s *service.PaymentService) {
	h := controller.NewPaymentAdminController(s)

	r.Post("/payments/:ref/timeout",
		auth.OnlyRoles(constants.RoleErrorAdmin("payment timeout"), constants.AdminOnly...),
		h.Timeout,
	)
	r.Get("/payment-audits", h.Audits)

	controller.NewPaymentGatewayEventController(s).RegisterRoutes(r)
}
