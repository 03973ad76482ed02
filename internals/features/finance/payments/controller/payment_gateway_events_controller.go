// file: internals/features/finance/payments/controller/payment_gateway_events_controller.go
package controller

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/dto"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	helper "github.com/boazomare1/school-managementKE-sub001/internals/helpers"
)

/* =======================================================================
   Controller (read-only; event hanya ditulis oleh webhook ingress)
======================================================================= */

type PaymentGatewayEventController struct {
	Service *service.PaymentService
}

func NewPaymentGatewayEventController(s *service.PaymentService) *PaymentGatewayEventController {
	return &PaymentGatewayEventController{Service: s}
}

func (h *PaymentGatewayEventController) RegisterRoutes(r fiber.Router) {
	gr := r.Group("/payment-gateway-events")
	gr.Get("/", h.ListEvents) // GET /payment-gateway-events?provider=&status=&payment_id=&q=&start=&end=&page=&per_page=
	gr.Get("/:id", h.GetByID) // GET /payment-gateway-events/:id
}

/* =======================================================================
   List (filter + pagination)
   Query params:
     - provider: mpesa|stripe|midtrans|...
     - status: received|success|duplicate|failed|rejected|ignored|requeued
     - payment_id: uuid
     - q: cari di external_id / external_ref
     - start, end: RFC3339 (filter received_at)
======================================================================= */

func (h *PaymentGatewayEventController) ListEvents(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, 20, 200)

	f := ledger.GatewayEventFilter{
		Provider: strings.ToLower(strings.TrimSpace(c.Query("provider"))),
		Status:   model.GatewayEventStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Query:    strings.TrimSpace(c.Query("q")),
		Limit:    p.Limit,
		Offset:   p.Offset,
	}
	if pid := strings.TrimSpace(c.Query("payment_id")); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return helper.JsonError(c, http.StatusBadRequest, "invalid payment_id")
		}
		f.PaymentID = &id
	}
	if start := strings.TrimSpace(c.Query("start")); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return helper.JsonError(c, http.StatusBadRequest, "invalid start (use RFC3339)")
		}
		f.Start = &t
	}
	if end := strings.TrimSpace(c.Query("end")); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return helper.JsonError(c, http.StatusBadRequest, "invalid end (use RFC3339)")
		}
		f.End = &t
	}

	rows, total, err := h.Service.GatewayEvents(c.UserContext(), f)
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromModelsPGW(rows),
		helper.BuildPaginationFromOffset(total, p.Offset, p.Limit))
}

/* =======================================================================
   Detail (payload mentah ikut dikirim)
======================================================================= */

func (h *PaymentGatewayEventController) GetByID(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid id")
	}
	m, err := h.Service.GatewayEvent(c.UserContext(), id)
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.FromModelPGW(m, true))
}
