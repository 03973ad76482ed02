package route

import (
	"github.com/gofiber/fiber/v2"

	"github.com/boazomare1/school-managementKE-sub001/internals/constants"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/controller"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares/auth"
)

// InvoiceAdminRoutes mounts under the admin group (JWT + finance staff).
// Deactivation is admin only.
func InvoiceAdminRoutes(admin fiber.Router, m *service.Manager) {
	h := controller.NewInvoiceController(m)

	grp := admin.Group("/invoices")
	grp.Post("/", h.Create)
	grp.Get("/", h.List)
	grp.Get("/:id", h.Get)
	grp.Post("/:id/overdue", h.MarkOverdue)
	grp.Post("/:id/deactivate",
		auth.OnlyRoles(constants.RoleErrorAdmin("invoice deactivation"), constants.AdminOnly...),
		h.Deactivate,
	)
}
