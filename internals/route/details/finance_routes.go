// file: internals/route/details/finance_routes.go
package details

import (
	"github.com/gofiber/fiber/v2"

	InvoiceRoute "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/route"
	invoiceService "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	PaymentRoute "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/route"
	paymentService "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	WebhookRoute "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/webhooks/route"
	webhookService "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/webhooks/service"
)

// Provider callbacks: no JWT, each adapter verifies its own signature.
func FinancePublicRoutes(r fiber.Router, ingress *webhookService.Ingress) {
	WebhookRoute.WebhookRoutes(r, ingress)
}

func FinanceUserRoutes(r fiber.Router, payments *paymentService.PaymentService) {
	PaymentRoute.PaymentUserRoutes(r, payments)
}

func FinanceAdminRoutes(r fiber.Router, invoices *invoiceService.Manager, payments *paymentService.PaymentService) {
	InvoiceRoute.InvoiceAdminRoutes(r, invoices)
	PaymentRoute.PaymentAdminRoutes(r, payments)
}
