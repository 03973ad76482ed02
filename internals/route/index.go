// file: internals/route/index.go
package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/constants"
	invoiceService "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	paymentService "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	webhookService "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/webhooks/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares/auth"
	routeDetails "github.com/boazomare1/school-managementKE-sub001/internals/route/details"
)

var startTime = time.Now()

// Deps are the wired services the HTTP surface needs.
type Deps struct {
	DB        *gorm.DB
	JWTSecret string
	Invoices  *invoiceService.Manager
	Payments  *paymentService.PaymentService
	Ingress   *webhookService.Ingress
	Gatherer  prometheus.Gatherer
	Log       zerolog.Logger
}

func SetupRoutes(app *fiber.App, d Deps) {
	startTime = time.Now()

	d.Log.Info().Msg("setting up base routes")
	BaseRoutes(app, d.DB, d.Gatherer)

	// ===================== PUBLIC (callback provider) =====================
	routeDetails.FinancePublicRoutes(app, d.Ingress)

	// ===================== PRIVATE (USER) =====================
	private := app.Group("/api/u",
		middlewares.GlobalRateLimiter(),
		auth.AuthMiddleware(d.JWTSecret),
		auth.OnlyRoles("", constants.AllRoles...),
	)

	// ===================== ADMIN (finance staff) =====================
	admin := app.Group("/api/a",
		middlewares.GlobalRateLimiter(),
		auth.AuthMiddleware(d.JWTSecret),
		auth.OnlyRoles(constants.RoleErrorFinance("finance administration"), constants.FinanceStaff...),
	)

	d.Log.Info().Msg("mounting finance routes")
	routeDetails.FinanceUserRoutes(private, d.Payments)
	routeDetails.FinanceAdminRoutes(admin, d.Invoices, d.Payments)
}
