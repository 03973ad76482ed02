// file: internals/features/finance/invoices/controller/invoice_controller.go
package controller

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/dto"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	helper "github.com/boazomare1/school-managementKE-sub001/internals/helpers"
)

var validate = validator.New()

type InvoiceController struct {
	Manager *service.Manager
}

func NewInvoiceController(m *service.Manager) *InvoiceController {
	return &InvoiceController{Manager: m}
}

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(c.Params("id")))
}

// POST /api/a/invoices
func (h *InvoiceController) Create(c *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid json")
	}
	if err := validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	in, err := req.ToInput()
	if err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid due_date")
	}

	inv, err := h.Manager.CreateInvoice(c.UserContext(), in)
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonCreated(c, "invoice created", dto.FromModel(inv))
}

// GET /api/a/invoices?status=&enrollment_id=&active=
func (h *InvoiceController) List(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, 20, 200)

	f := ledger.InvoiceFilter{
		Status:     model.InvoiceStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		ActiveOnly: c.QueryBool("active", false),
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
	if s := strings.TrimSpace(c.Query("enrollment_id")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return helper.JsonError(c, http.StatusBadRequest, "invalid enrollment_id")
		}
		f.EnrollmentID = &id
	}
	if s := strings.TrimSpace(c.Query("school_id")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return helper.JsonError(c, http.StatusBadRequest, "invalid school_id")
		}
		f.SchoolID = &id
	}

	rows, total, err := h.Manager.List(c.UserContext(), f)
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromModels(rows),
		helper.BuildPaginationFromOffset(total, p.Offset, p.Limit))
}

// GET /api/a/invoices/:id  (":id" is a UUID or an invoice number)
func (h *InvoiceController) Get(c *fiber.Ctx) error {
	var (
		inv *model.Invoice
		err error
	)
	if id, perr := parseID(c); perr == nil {
		inv, err = h.Manager.Get(c.UserContext(), id)
	} else {
		inv, err = h.Manager.GetByNumber(c.UserContext(), c.Params("id"))
	}
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.FromModel(inv))
}

// POST /api/a/invoices/:id/overdue
func (h *InvoiceController) MarkOverdue(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid id")
	}
	inv, changed, err := h.Manager.MarkOverdue(c.UserContext(), id)
	if err != nil {
		return helper.FromError(c, err)
	}
	msg := "invoice unchanged"
	if changed {
		msg = "invoice marked overdue"
	}
	return helper.JsonUpdated(c, msg, dto.FromModel(inv))
}

// POST /api/a/invoices/:id/deactivate
func (h *InvoiceController) Deactivate(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return helper.JsonError(c, http.StatusBadRequest, "invalid id")
	}
	inv, err := h.Manager.Deactivate(c.UserContext(), id)
	if err != nil {
		return helper.FromError(c, err)
	}
	return helper.JsonUpdated(c, "invoice deactivated", dto.FromModel(inv))
}
