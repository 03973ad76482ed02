// file: internals/features/finance/payments/controller/payment_controller.go
package controller

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/boazomare1/school-managementKE-sub001/internals/constants"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/dto"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	helper "github.com/boazomare1/school-managementKE-sub001/internals/helpers"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares/auth"
)

var validate = validator.New()

type PaymentController struct {
	Service *service.PaymentService
}

func NewPaymentController(s *service.PaymentService) *PaymentController {
	return &PaymentController{Service: s}
}

// POST /api/u/payments
func (h *PaymentController) Create(c *fiber.Ctx) error {
	var req dto.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid json")
	}
	if err := validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	if err := money.ValidatePositive("amount", req.Amount); err != nil {
		return helper.FromError(c, err)
	}

	in, err := req.ToInput(helper.GetUserUUID(c))
	if err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid invoice_id")
	}
	// cash is recorded at the bursar's desk, never by the payer
	if (in.Method == model.PaymentMethodManual || in.Provider == model.ProviderManual) &&
		!auth.HasRole(c, constants.FinanceStaff...) {
		return helper.JsonError(c, http.StatusForbidden, constants.RoleErrorFinance("manual payments"))
	}

	res, err := h.Service.InitiatePayment(c.UserContext(), in)
	if err != nil {
		return helper.FromError(c, err)
	}
	if res.Payment.PaymentStatus == model.PaymentStatusPendingConfirmation {
		return helper.JsonOK(c, "payment awaiting confirmation", dto.FromInitiate(res))
	}
	return helper.JsonCreated(c, "payment recorded", dto.FromInitiate(res))
}

// GET /api/u/payments/:ref
func (h *PaymentController) Get(c *fiber.Ctx) error {
	p, err := h.Service.Get(c.UserContext(), strings.TrimSpace(c.Params("ref")))
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.FromModel(p))
}

// POST /api/u/payments/:ref/refresh
// Asks the provider about a payment still awaiting confirmation.
func (h *PaymentController) Refresh(c *fiber.Ctx) error {
	res, err := h.Service.RefreshStatus(c.UserContext(), strings.TrimSpace(c.Params("ref")))
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.FromApplyResult(res))
}

// GET /api/u/payments/invoice/:id
func (h *PaymentController) ListByInvoice(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid invoice id")
	}
	rows, err := h.Service.ListByInvoice(c.UserContext(), id)
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.FromModels(rows))
}
