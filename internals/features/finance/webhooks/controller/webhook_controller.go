// file: internals/features/finance/webhooks/controller/webhook_controller.go
package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways/mpesa"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/webhooks/service"
)

type WebhookController struct {
	Ingress *service.Ingress
}

func NewWebhookController(ingress *service.Ingress) *WebhookController {
	return &WebhookController{Ingress: ingress}
}

/* =======================================================================
   POST /webhooks/:provider
   - body dibaca mentah (signature dihitung dari byte asli)
   - ?token= dipetakan ke header X-Callback-Token (Daraja tidak bisa kirim header custom)
   - balasan mengikuti format masing-masing provider
======================================================================= */

func (h *WebhookController) Receive(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))

	// fiber reuses the body buffer after the handler returns
	raw := append([]byte(nil), c.Body()...)

	headers := make(http.Header)
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers.Add(string(k), string(v))
	})
	if tok := strings.TrimSpace(c.Query("token")); tok != "" && headers.Get(mpesa.CallbackTokenHeader) == "" {
		headers.Set(mpesa.CallbackTokenHeader, tok)
	}

	ack, err := h.Ingress.Handle(c.UserContext(), provider, raw, headers)
	if err != nil && errors.Is(err, finerr.ErrUnsupported) {
		return fiber.NewError(fiber.StatusNotFound, "unknown provider "+provider)
	}

	if ack.ContentType != "" {
		c.Set(fiber.HeaderContentType, ack.ContentType)
	}
	status := ack.Status
	if status == 0 {
		status = fiber.StatusOK
	}
	return c.Status(status).Send(ack.Body)
}
