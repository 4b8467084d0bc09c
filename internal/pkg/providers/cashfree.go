package providers

import (
	"context"
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

// Cashfree verifies checkout by looking the order up server side. Amounts
// travel in major units on the wire.
type Cashfree struct {
	cfg    CashfreeConfig
	client *resty.Client
}

func NewCashfree(cfg CashfreeConfig, timeout time.Duration) *Cashfree {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-client-id", cfg.AppID).
		SetHeader("x-client-secret", cfg.SecretKey).
		SetHeader("x-api-version", cfg.APIVersion)
	return &Cashfree{cfg: cfg, client: c}
}

func (c *Cashfree) Name() string       { return NameCashfree }
func (c *Cashfree) CarriesNotes() bool { return true }

type cashfreeOrder struct {
	CfOrderID        json.Number       `json:"cf_order_id"`
	OrderID          string            `json:"order_id"`
	OrderAmount      decimal.Decimal   `json:"order_amount"`
	OrderCurrency    string            `json:"order_currency"`
	OrderStatus      string            `json:"order_status"`
	PaymentSessionID string            `json:"payment_session_id"`
	OrderTags        map[string]string `json:"order_tags"`
}

type cashfreePayment struct {
	CfPaymentID    json.Number     `json:"cf_payment_id"`
	OrderID        string          `json:"order_id"`
	PaymentStatus  string          `json:"payment_status"`
	PaymentAmount  decimal.Decimal `json:"payment_amount"`
	PaymentGroup   string          `json:"payment_group"`
	PaymentMessage string          `json:"payment_message"`
}

type cashfreeRefund struct {
	CfRefundID   json.Number `json:"cf_refund_id"`
	RefundID     string      `json:"refund_id"`
	OrderID      string      `json:"order_id"`
	RefundStatus string      `json:"refund_status"`
}

type cashfreeError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

func (c *Cashfree) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	tags := map[string]string{"reference": req.Reference}
	for k, v := range req.Notes {
		tags[k] = v
	}
	body := map[string]interface{}{
		"order_id":       req.Reference,
		"order_amount":   json.Number(MinorToMajor(req.Amount, req.Currency).String()),
		"order_currency": strings.ToUpper(req.Currency),
		"customer_details": map[string]string{
			"customer_id":    fmt.Sprintf("cv_%d", req.Customer.ID),
			"customer_email": req.Customer.Email,
			"customer_phone": firstNonEmpty(req.Customer.Phone, "9999999999"),
		},
		"order_tags": tags,
	}
	if returnURL := firstNonEmpty(req.ReturnURL, c.cfg.ReturnURL); returnURL != "" {
		body["order_meta"] = map[string]string{"return_url": returnURL}
	}

	var out cashfreeOrder
	var apiErr cashfreeError
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("x-idempotency-key", req.Reference).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/orders")
	if err != nil {
		return nil, providerError(NameCashfree, "create_order", err, 0)
	}
	if resp.IsError() {
		return nil, providerError(NameCashfree, "create_order", fmt.Errorf("status %d: %s", resp.StatusCode(), apiErr.Code), resp.StatusCode())
	}
	log.Infof("[Cashfree] Created order %s", out.OrderID)

	return &Order{
		Provider: NameCashfree,
		OrderID:  out.OrderID,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		FormPayload: map[string]string{
			"payment_session_id": out.PaymentSessionID,
		},
	}, nil
}

func (c *Cashfree) getOrder(ctx context.Context, orderID string) (*cashfreeOrder, error) {
	var out cashfreeOrder
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/orders/" + url.PathEscape(orderID))
	if err != nil {
		return nil, providerError(NameCashfree, "get_order", err, 0)
	}
	if resp.IsError() {
		return nil, providerError(NameCashfree, "get_order", fmt.Errorf("status %d", resp.StatusCode()), resp.StatusCode())
	}
	return &out, nil
}

func (c *Cashfree) orderPayments(ctx context.Context, orderID string) ([]cashfreePayment, error) {
	var out []cashfreePayment
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/orders/" + url.PathEscape(orderID) + "/payments")
	if err != nil {
		return nil, providerError(NameCashfree, "get_payments", err, 0)
	}
	if resp.IsError() {
		return nil, providerError(NameCashfree, "get_payments", fmt.Errorf("status %d", resp.StatusCode()), resp.StatusCode())
	}
	return out, nil
}

func (c *Cashfree) VerifyPayment(ctx context.Context, proof Proof) (*Verification, error) {
	orderID := firstNonEmpty(proof.OrderID, proof.Reference)
	if orderID == "" {
		return nil, apperror.Invalid("order_id", "required")
	}
	order, err := c.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	v := &Verification{
		OrderID:   order.OrderID,
		Reference: firstNonEmpty(order.OrderTags["reference"], order.OrderID),
		Amount:    MajorToMinor(order.OrderAmount, order.OrderCurrency),
		Currency:  strings.ToUpper(order.OrderCurrency),
	}

	switch order.OrderStatus {
	case "PAID":
		payments, err := c.orderPayments(ctx, orderID)
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			if p.PaymentStatus == "SUCCESS" {
				v.ChargeID = p.CfPaymentID.String()
				v.MethodClass = methodClassFromName(p.PaymentGroup)
				break
			}
		}
		v.Success = true
	case "EXPIRED", "TERMINATED":
		v.FailureReason = "order " + strings.ToLower(order.OrderStatus)
	default:
		return nil, providerError(NameCashfree, "verify_payment", ErrPaymentPending, 0)
	}
	return v, nil
}

func (c *Cashfree) FetchOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	order, err := c.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	notes := order.OrderTags
	if notes == nil {
		notes = map[string]string{}
	}
	return &OrderDetails{
		OrderID:  order.OrderID,
		Amount:   MajorToMinor(order.OrderAmount, order.OrderCurrency),
		Currency: strings.ToUpper(order.OrderCurrency),
		Notes:    notes,
		Paid:     order.OrderStatus == "PAID",
	}, nil
}

func (c *Cashfree) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	path := "/orders/" + url.PathEscape(req.OrderID) + "/refunds"
	body := map[string]interface{}{
		"refund_id":     req.IdempotencyKey,
		"refund_amount": json.Number(MinorToMajor(req.Amount, req.Currency).String()),
		"refund_note":   "refund " + req.IdempotencyKey,
	}

	var out cashfreeRefund
	var apiErr cashfreeError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return nil, providerError(NameCashfree, "refund", err, 0)
	}
	if resp.StatusCode() == http.StatusConflict {
		// refund_id already used: return the refund created by the earlier attempt
		return c.getRefund(ctx, req.OrderID, req.IdempotencyKey)
	}
	if resp.IsError() {
		return nil, providerError(NameCashfree, "refund", fmt.Errorf("status %d: %s", resp.StatusCode(), apiErr.Code), resp.StatusCode())
	}
	return &RefundResult{RefundID: out.CfRefundID.String(), Status: out.RefundStatus}, nil
}

func (c *Cashfree) getRefund(ctx context.Context, orderID, refundID string) (*RefundResult, error) {
	var out cashfreeRefund
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/orders/" + url.PathEscape(orderID) + "/refunds/" + url.PathEscape(refundID))
	if err != nil {
		return nil, providerError(NameCashfree, "get_refund", err, 0)
	}
	if resp.IsError() {
		return nil, providerError(NameCashfree, "get_refund", fmt.Errorf("status %d", resp.StatusCode()), resp.StatusCode())
	}
	return &RefundResult{RefundID: out.CfRefundID.String(), Status: out.RefundStatus}, nil
}

// VerifyWebhook checks base64(HMAC-SHA256(timestamp + body)); the timestamp header is in milliseconds.
func (c *Cashfree) VerifyWebhook(headers http.Header, body []byte, now time.Time) error {
	sig := strings.TrimSpace(headers.Get("x-webhook-signature"))
	ts := strings.TrimSpace(headers.Get("x-webhook-timestamp"))
	if sig == "" || ts == "" || c.cfg.SecretKey == "" {
		return webhook.ErrMissingSignature
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return webhook.ErrMalformedHeader
	}
	if err := webhook.CheckTimestamp(time.UnixMilli(ms), now, c.cfg.Tolerance); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return webhook.ErrInvalidSignature
	}
	if !hmac.Equal(webhook.ComputeHMAC([]byte(c.cfg.SecretKey), []byte(ts), body), decoded) {
		return webhook.ErrInvalidSignature
	}
	return nil
}

type cashfreeWebhook struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order   *cashfreeOrder   `json:"order"`
		Payment *cashfreePayment `json:"payment"`
		Refund  *struct {
			CfRefundID   json.Number `json:"cf_refund_id"`
			RefundID     string      `json:"refund_id"`
			OrderID      string      `json:"order_id"`
			RefundStatus string      `json:"refund_status"`
		} `json:"refund"`
	} `json:"data"`
}

func (c *Cashfree) ParseWebhook(headers http.Header, body []byte) (*webhook.Event, error) {
	var w cashfreeWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode cashfree webhook: %w", err)
	}
	ev := &webhook.Event{Provider: NameCashfree, Type: w.Type, Kind: webhook.KindIgnored, Raw: body}

	eventTime := time.Now()
	if t, err := time.Parse(time.RFC3339, w.EventTime); err == nil {
		eventTime = t
	} else if ms, err := strconv.ParseInt(headers.Get("x-webhook-timestamp"), 10, 64); err == nil {
		eventTime = time.UnixMilli(ms)
	}

	var entityID string
	switch w.Type {
	case "PAYMENT_SUCCESS_WEBHOOK", "PAYMENT_FAILED_WEBHOOK":
		if w.Data.Payment == nil || w.Data.Order == nil {
			break
		}
		ev.Kind = webhook.KindPaymentSucceeded
		if w.Type != "PAYMENT_SUCCESS_WEBHOOK" {
			ev.Kind = webhook.KindPaymentFailed
			ev.FailureReason = firstNonEmpty(w.Data.Payment.PaymentMessage, strings.ToLower(w.Data.Payment.PaymentStatus))
		}
		currency := firstNonEmpty(w.Data.Order.OrderCurrency, "INR")
		ev.OrderID = w.Data.Order.OrderID
		ev.ChargeID = w.Data.Payment.CfPaymentID.String()
		ev.Amount = MajorToMinor(w.Data.Payment.PaymentAmount, currency)
		ev.Currency = strings.ToUpper(currency)
		ev.MethodClass = methodClassFromName(w.Data.Payment.PaymentGroup)
		ev.Notes = w.Data.Order.OrderTags
		ev.Reference = firstNonEmpty(w.Data.Order.OrderTags["reference"], w.Data.Order.OrderID)
		entityID = ev.ChargeID
	case "REFUND_STATUS_WEBHOOK":
		if w.Data.Refund == nil {
			break
		}
		switch w.Data.Refund.RefundStatus {
		case "SUCCESS":
			ev.Kind = webhook.KindRefundProcessed
		case "CANCELLED", "FAILED":
			ev.Kind = webhook.KindRefundFailed
		}
		ev.RefundID = w.Data.Refund.CfRefundID.String()
		ev.RefundReference = w.Data.Refund.RefundID
		ev.OrderID = w.Data.Refund.OrderID
		entityID = firstNonEmpty(ev.RefundID, ev.RefundReference) + "." + strings.ToLower(w.Data.Refund.RefundStatus)
	}

	ev.ID = webhook.FallbackID(entityID, eventTime.Unix())
	if ev.ID == "" {
		return nil, webhook.ErrMissingEventID
	}
	return ev, nil
}
