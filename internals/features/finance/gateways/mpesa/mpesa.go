// Package mpesa is the Safaricom Daraja STK push (mobile money) provider.
package mpesa

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

const (
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	// CallbackTokenHeader carries the shared secret configured in the callback URL.
	CallbackTokenHeader = "X-Callback-Token"

	// Daraja answers a query for an STK push still on the handset with this code.
	stillProcessingCode = "500.001.1001"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	CallbackToken  string

	HTTPClient *http.Client
	Now        func() time.Time
}

type Adapter struct {
	cfg    Config
	client *client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.ShortCode == "" || cfg.Passkey == "" || cfg.CallbackURL == "" || cfg.CallbackToken == "" {
		return nil, fmt.Errorf("%w: mpesa shortcode, passkey, callback url and callback token are required", finerr.ErrConfig)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Adapter{
		cfg: cfg,
		client: &client{
			httpClient: cfg.HTTPClient,
			baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			key:        cfg.ConsumerKey,
			secret:     cfg.ConsumerSecret,
			now:        cfg.Now,
		},
	}, nil
}

func (a *Adapter) Name() string { return paymodel.ProviderMpesa }

func (a *Adapter) Methods() []paymodel.PaymentMethod {
	return []paymodel.PaymentMethod{paymodel.PaymentMethodMobileMoney}
}

// password returns base64(shortcode+passkey+timestamp) and the timestamp.
func (a *Adapter) password() (string, string) {
	ts := a.cfg.Now().In(nairobi).Format("20060102150405")
	return base64.StdEncoding.EncodeToString([]byte(a.cfg.ShortCode + a.cfg.Passkey + ts)), ts
}

/* =========================================================
   Initiate (STK push)
========================================================= */

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (a *Adapter) Initiate(ctx context.Context, req gateways.InitiateRequest) (gateways.PendingPayment, error) {
	phone, err := NormalizePhone(req.PayerContact)
	if err != nil {
		return gateways.PendingPayment{}, err
	}
	if !req.Amount.IsInteger() {
		return gateways.PendingPayment{}, finerr.NewValidationError("amount", "mobile money amounts must be whole shillings")
	}

	pw, ts := a.password()
	body := stkPushRequest{
		BusinessShortCode: a.cfg.ShortCode,
		Password:          pw,
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.IntPart(),
		PartyA:            phone,
		PartyB:            a.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       a.cfg.CallbackURL,
		AccountReference:  truncate(firstNonEmpty(req.InvoiceNumber, req.PaymentRef), 12),
		TransactionDesc:   truncate(firstNonEmpty(req.Description, "School fees"), 13),
	}

	var out stkPushResponse
	if err := a.client.postJSON(ctx, stkPushPath, body, &out); err != nil {
		var he *httpError
		if errors.As(err, &he) {
			return gateways.PendingPayment{}, he.classify()
		}
		return gateways.PendingPayment{}, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return gateways.PendingPayment{}, fmt.Errorf("%w: mpesa stk push: %s %s",
			finerr.ErrProviderRejected, out.ResponseCode, out.ResponseDescription)
	}

	return gateways.PendingPayment{
		PaymentRef:        req.PaymentRef,
		ExternalReference: out.CheckoutRequestID,
		PromptRequired:    true,
		Status:            paymodel.PaymentStatusPendingConfirmation,
		CustomerMessage:   out.CustomerMessage,
	}, nil
}

/* =========================================================
   Callback
========================================================= */

type callbackEnvelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string     `json:"MerchantRequestID"`
	CheckoutRequestID string     `json:"CheckoutRequestID"`
	ResultCode        resultCode `json:"ResultCode"`
	ResultDesc        string     `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []struct {
			Name  string `json:"Name"`
			Value any    `json:"Value"`
		} `json:"Item"`
	} `json:"CallbackMetadata"`
}

func (a *Adapter) NormalizeCallback(raw []byte, headers http.Header) (gateways.WebhookEvent, error) {
	got := strings.TrimSpace(headers.Get(CallbackTokenHeader))
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.cfg.CallbackToken)) != 1 {
		return gateways.WebhookEvent{}, finerr.ErrSignatureInvalid
	}

	var env callbackEnvelope
	if err := api.Unmarshal(raw, &env); err != nil {
		return gateways.WebhookEvent{}, fmt.Errorf("%w: %v", finerr.ErrMalformedPayload, err)
	}
	cb := env.Body.StkCallback
	if cb == nil || cb.CheckoutRequestID == "" || cb.ResultCode == "" {
		return gateways.WebhookEvent{}, fmt.Errorf("%w: missing stkCallback fields", finerr.ErrMalformedPayload)
	}

	ev := gateways.WebhookEvent{
		Provider:          a.Name(),
		EventType:         "stk_callback",
		ExternalReference: cb.CheckoutRequestID,
		RawPayload:        append([]byte(nil), raw...),
		ReceivedAt:        time.Now().UTC(),
	}
	if cb.ResultCode.String() != "0" {
		ev.Outcome = gateways.OutcomeFailure
		ev.Reason = fmt.Sprintf("%s: %s", cb.ResultCode, cb.ResultDesc)
		return ev, nil
	}

	ev.Outcome = gateways.OutcomeSuccess
	for _, it := range cb.CallbackMetadata.Item {
		switch it.Name {
		case "Amount":
			amt, err := decimalOf(it.Value)
			if err != nil {
				return gateways.WebhookEvent{}, fmt.Errorf("%w: amount: %v", finerr.ErrMalformedPayload, err)
			}
			ev.Amount = amt
		case "MpesaReceiptNumber":
			ev.ProviderTransactionID = fmt.Sprint(it.Value)
		}
	}
	if ev.ProviderTransactionID == "" {
		return gateways.WebhookEvent{}, fmt.Errorf("%w: success without MpesaReceiptNumber", finerr.ErrMalformedPayload)
	}
	return ev, nil
}

type ackBody struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func (a *Adapter) Acknowledge(err error) gateways.Ack {
	switch {
	case err == nil:
		return gateways.JSONAck(http.StatusOK, ackBody{ResultCode: 0, ResultDesc: "Accepted"})
	case errors.Is(err, finerr.ErrSignatureInvalid):
		return gateways.JSONAck(http.StatusUnauthorized, ackBody{ResultCode: 1, ResultDesc: "Rejected"})
	case errors.Is(err, finerr.ErrMalformedPayload):
		return gateways.JSONAck(http.StatusBadRequest, ackBody{ResultCode: 1, ResultDesc: "Malformed"})
	default:
		return gateways.JSONAck(http.StatusOK, ackBody{ResultCode: 0, ResultDesc: "Accepted"})
	}
}

/* =========================================================
   Status query
========================================================= */

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string     `json:"ResponseCode"`
	ResponseDescription string     `json:"ResponseDescription"`
	CheckoutRequestID   string     `json:"CheckoutRequestID"`
	ResultCode          resultCode `json:"ResultCode"`
	ResultDesc          string     `json:"ResultDesc"`
}

func (a *Adapter) QueryStatus(ctx context.Context, externalReference string) (gateways.StatusResult, error) {
	pw, ts := a.password()
	var out stkQueryResponse
	err := a.client.postJSON(ctx, stkQueryPath, stkQueryRequest{
		BusinessShortCode: a.cfg.ShortCode,
		Password:          pw,
		Timestamp:         ts,
		CheckoutRequestID: externalReference,
	}, &out)
	if err != nil {
		var he *httpError
		if errors.As(err, &he) {
			if he.Body.ErrorCode == stillProcessingCode {
				return gateways.StatusResult{Outcome: gateways.OutcomePending, Reason: he.Body.ErrorMessage}, nil
			}
			return gateways.StatusResult{}, he.classify()
		}
		return gateways.StatusResult{}, err
	}

	switch out.ResultCode.String() {
	case "0":
		// the query API does not return the receipt number; the callback carries it
		return gateways.StatusResult{Outcome: gateways.OutcomeSuccess}, nil
	case "":
		return gateways.StatusResult{Outcome: gateways.OutcomePending, Reason: out.ResponseDescription}, nil
	default:
		return gateways.StatusResult{
			Outcome: gateways.OutcomeFailure,
			Reason:  fmt.Sprintf("%s: %s", out.ResultCode, out.ResultDesc),
		}, nil
	}
}

/* =========================================================
   Utils
========================================================= */

// resultCode accepts both 0 and "0"; Daraja uses either depending on the API.
type resultCode string

func (r *resultCode) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*r = ""
		return nil
	}
	*r = resultCode(strings.Trim(s, `"`))
	return nil
}

func (r resultCode) String() string { return string(r) }

func decimalOf(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case float64:
		return decimal.NewFromFloat(t), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", v)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
