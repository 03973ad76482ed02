package controller

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/dto"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	helper "github.com/boazomare1/school-managementKE-sub001/internals/helpers"
)

type PaymentAdminController struct {
	Service *service.PaymentService
}

func NewPaymentAdminController(s *service.PaymentService) *PaymentAdminController {
	return &PaymentAdminController{Service: s}
}

// POST /api/a/payments/:ref/timeout
func (h *PaymentAdminController) Timeout(c *fiber.Ctx) error {
	p, changed, err := h.Service.Timeout(c.UserContext(), strings.TrimSpace(c.Params("ref")))
	if err != nil {
		return helper.FromError(c, err)
	}
	msg := "payment already final"
	if changed {
		msg = "payment timed out"
	}
	return helper.JsonUpdated(c, msg, dto.FromModel(p))
}

// GET /api/a/payment-audits?kind=&unresolved=&invoice_id=&page=&per_page=
func (h *PaymentAdminController) Audits(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, 20, 200)

	f := ledger.AuditFilter{
		UnresolvedOnly: c.QueryBool("unresolved", false),
		Kind:           model.AuditKind(strings.ToLower(strings.TrimSpace(c.Query("kind")))),
		Limit:          p.Limit,
		Offset:         p.Offset,
	}
	if s := strings.TrimSpace(c.Query("invoice_id")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return helper.JsonError(c, http.StatusBadRequest, "invalid invoice_id")
		}
		f.InvoiceID = &id
	}

	rows, total, err := h.Service.Audits(c.UserContext(), f)
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromAudits(rows),
		helper.BuildPaginationFromOffset(total, p.Offset, p.Limit))
}
