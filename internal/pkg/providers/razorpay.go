package providers

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/razorpay/razorpay-go"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

// razorpayAPI is the slice of the Razorpay SDK the adapter needs.
type razorpayAPI interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	FetchOrder(orderID string) (map[string]interface{}, error)
	FetchPayment(paymentID string) (map[string]interface{}, error)
	RefundPayment(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error)
	ListRefunds(paymentID string) (map[string]interface{}, error)
}

type razorpaySDK struct {
	client *razorpay.Client
}

func (s razorpaySDK) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return s.client.Order.Create(data, nil)
}

func (s razorpaySDK) FetchOrder(orderID string) (map[string]interface{}, error) {
	return s.client.Order.Fetch(orderID, nil, nil)
}

func (s razorpaySDK) FetchPayment(paymentID string) (map[string]interface{}, error) {
	return s.client.Payment.Fetch(paymentID, nil, nil)
}

func (s razorpaySDK) RefundPayment(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error) {
	return s.client.Payment.Refund(paymentID, amount, data, nil)
}

func (s razorpaySDK) ListRefunds(paymentID string) (map[string]interface{}, error) {
	return s.client.Payment.FetchMultipleRefund(paymentID, map[string]interface{}{"count": 100}, nil)
}

// Razorpay verifies checkout with the signed (order id, payment id, signature) triple.
type Razorpay struct {
	cfg     RazorpayConfig
	api     razorpayAPI
	timeout time.Duration
}

func NewRazorpay(cfg RazorpayConfig, timeout time.Duration) *Razorpay {
	return newRazorpay(cfg, razorpaySDK{client: razorpay.NewClient(cfg.KeyID, cfg.KeySecret)}, timeout)
}

func newRazorpay(cfg RazorpayConfig, api razorpayAPI, timeout time.Duration) *Razorpay {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Razorpay{cfg: cfg, api: api, timeout: timeout}
}

func (r *Razorpay) Name() string       { return NameRazorpay }
func (r *Razorpay) CarriesNotes() bool { return true }

func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	notes := map[string]interface{}{"reference": req.Reference}
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Reference,
		"notes":    notes,
	}

	order, err := callWithContext(ctx, func() (map[string]interface{}, error) { return r.api.CreateOrder(data) })
	if err != nil {
		return nil, providerError(NameRazorpay, "create_order", err, 0)
	}
	orderID := mapString(order, "id")
	if orderID == "" {
		return nil, providerError(NameRazorpay, "create_order", errors.New("response without order id"), 0)
	}
	log.Infof("[Razorpay] Created order %s for %s", orderID, req.Reference)

	return &Order{
		Provider: NameRazorpay,
		OrderID:  orderID,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		FormPayload: map[string]string{
			"key_id":   r.cfg.KeyID,
			"order_id": orderID,
		},
	}, nil
}

func (r *Razorpay) VerifyPayment(ctx context.Context, proof Proof) (*Verification, error) {
	if proof.OrderID == "" || proof.ChargeID == "" || proof.Signature == "" {
		return nil, apperror.Invalid("proof", "order_id, charge_id and signature are required")
	}
	v := &Verification{OrderID: proof.OrderID, ChargeID: proof.ChargeID, Reference: proof.Reference}
	if !r.validCheckoutSignature(proof.OrderID, proof.ChargeID, proof.Signature) {
		v.FailureReason = "signature mismatch"
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	payment, err := callWithContext(ctx, func() (map[string]interface{}, error) { return r.api.FetchPayment(proof.ChargeID) })
	if err != nil {
		return nil, providerError(NameRazorpay, "fetch_payment", err, 0)
	}
	if mapString(payment, "order_id") != proof.OrderID {
		v.FailureReason = "payment does not belong to order"
		return v, nil
	}

	v.Amount = mapInt64(payment, "amount")
	v.Currency = strings.ToUpper(mapString(payment, "currency"))
	v.MethodClass = methodClassFromName(mapString(payment, "method"))
	// "authorized" funds can still expire or be voided; payment.captured settles them.
	switch mapString(payment, "status") {
	case "captured":
		v.Success = true
	case "failed":
		v.FailureReason = firstNonEmpty(mapString(payment, "error_description"), "payment failed")
	default:
		return nil, providerError(NameRazorpay, "verify_payment", ErrPaymentPending, 0)
	}
	return v, nil
}

func (r *Razorpay) validCheckoutSignature(orderID, paymentID, signature string) bool {
	decoded, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	expected := webhook.ComputeHMAC([]byte(r.cfg.KeySecret), []byte(orderID+"|"+paymentID))
	return hmac.Equal(expected, decoded)
}

func (r *Razorpay) FetchOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	order, err := callWithContext(ctx, func() (map[string]interface{}, error) { return r.api.FetchOrder(orderID) })
	if err != nil {
		return nil, providerError(NameRazorpay, "fetch_order", err, 0)
	}
	return &OrderDetails{
		OrderID:  mapString(order, "id"),
		Amount:   mapInt64(order, "amount"),
		Currency: strings.ToUpper(mapString(order, "currency")),
		Notes:    stringNotes(order["notes"]),
		Paid:     mapString(order, "status") == "paid",
	}, nil
}

// RefundPayment reuses a refund already created under the same reference.
// Razorpay does not deduplicate on receipt, so a retry after an unknown
// outcome looks the payment's refunds up first.
func (r *Razorpay) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	existing, err := callWithContext(ctx, func() (map[string]interface{}, error) { return r.api.ListRefunds(req.ChargeID) })
	if err != nil {
		return nil, &apperror.ProviderError{Provider: NameRazorpay, Op: "list_refunds", Unknown: true, Err: err}
	}
	if prior := findRazorpayRefund(existing, req.IdempotencyKey); prior != nil {
		log.Infof("[Razorpay] Refund %s already issued for %s", mapString(prior, "id"), req.IdempotencyKey)
		return &RefundResult{RefundID: mapString(prior, "id"), Status: mapString(prior, "status")}, nil
	}

	data := map[string]interface{}{
		"receipt": req.IdempotencyKey,
		"notes":   map[string]interface{}{"refund_reference": req.IdempotencyKey},
	}
	refund, err := callWithContext(ctx, func() (map[string]interface{}, error) {
		return r.api.RefundPayment(req.ChargeID, int(req.Amount), data)
	})
	if err != nil {
		return nil, providerError(NameRazorpay, "refund", err, 0)
	}
	return &RefundResult{RefundID: mapString(refund, "id"), Status: mapString(refund, "status")}, nil
}

// findRazorpayRefund returns the non-failed refund carrying reference, if any.
func findRazorpayRefund(collection map[string]interface{}, reference string) map[string]interface{} {
	items, _ := collection["items"].([]interface{})
	for _, item := range items {
		refund, ok := item.(map[string]interface{})
		if !ok || mapString(refund, "status") == "failed" {
			continue
		}
		if mapString(refund, "receipt") == reference || stringNotes(refund["notes"])["refund_reference"] == reference {
			return refund
		}
	}
	return nil
}

func (r *Razorpay) VerifyWebhook(headers http.Header, body []byte, _ time.Time) error {
	return webhook.VerifyHMAC(body, headers.Get("X-Razorpay-Signature"), r.cfg.WebhookSecret)
}

type razorpayEntity struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	PaymentID        string          `json:"payment_id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           string          `json:"method"`
	Receipt          string          `json:"receipt"`
	ErrorDescription string          `json:"error_description"`
	Notes            json.RawMessage `json:"notes"`
}

type razorpayEnvelope struct {
	Entity razorpayEntity `json:"entity"`
}

type razorpayWebhook struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment      *razorpayEnvelope `json:"payment"`
		Order        *razorpayEnvelope `json:"order"`
		Refund       *razorpayEnvelope `json:"refund"`
		Subscription *razorpayEnvelope `json:"subscription"`
	} `json:"payload"`
}

func (r *Razorpay) ParseWebhook(headers http.Header, body []byte) (*webhook.Event, error) {
	var w razorpayWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode razorpay webhook: %w", err)
	}
	ev := &webhook.Event{Provider: NameRazorpay, Type: w.Event, Kind: webhook.KindIgnored, Raw: body}

	var entity *razorpayEntity
	switch w.Event {
	case "payment.captured", "order.paid":
		if w.Payload.Payment != nil {
			entity = &w.Payload.Payment.Entity
			ev.Kind = webhook.KindPaymentSucceeded
		}
	case "payment.failed":
		if w.Payload.Payment != nil {
			entity = &w.Payload.Payment.Entity
			ev.Kind = webhook.KindPaymentFailed
			ev.FailureReason = firstNonEmpty(entity.ErrorDescription, "payment failed")
		}
	case "refund.processed", "refund.failed":
		if w.Payload.Refund != nil {
			entity = &w.Payload.Refund.Entity
			ev.Kind = webhook.KindRefundProcessed
			if w.Event == "refund.failed" {
				ev.Kind = webhook.KindRefundFailed
			}
			ev.RefundID = entity.ID
			ev.RefundReference = firstNonEmpty(entity.Receipt, stringNotes(entity.Notes)["refund_reference"])
			ev.ChargeID = entity.PaymentID
		}
	case "subscription.cancelled":
		if w.Payload.Subscription != nil {
			entity = &w.Payload.Subscription.Entity
			ev.Kind = webhook.KindSubscriptionCancelled
			ev.SubscriptionRef = entity.ID
		}
	}

	if entity != nil {
		ev.Notes = stringNotes(entity.Notes)
		if ev.Kind == webhook.KindPaymentSucceeded || ev.Kind == webhook.KindPaymentFailed {
			ev.OrderID = entity.OrderID
			ev.ChargeID = entity.ID
			ev.Amount = entity.Amount
			ev.Currency = strings.ToUpper(entity.Currency)
			ev.MethodClass = methodClassFromName(entity.Method)
			ev.Reference = ev.Notes["reference"]
		}
		if ev.Kind == webhook.KindSubscriptionCancelled && ev.Notes["subscription_id"] != "" {
			ev.SubscriptionRef = ev.Notes["subscription_id"]
		}
	}

	ev.ID = strings.TrimSpace(headers.Get("X-Razorpay-Event-Id"))
	if ev.ID == "" && entity != nil {
		ev.ID = webhook.FallbackID(entity.ID, w.CreatedAt)
	}
	if ev.ID == "" {
		return nil, webhook.ErrMissingEventID
	}
	return ev, nil
}

func mapString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func mapInt64(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// stringNotes accepts notes as a map, raw JSON object or the empty array Razorpay sends when unset.
func stringNotes(raw interface{}) map[string]string {
	out := map[string]string{}
	var m map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		m = v
	case json.RawMessage:
		if len(v) == 0 || v[0] != '{' {
			return out
		}
		if err := json.Unmarshal(v, &m); err != nil {
			return out
		}
	default:
		return out
	}
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		} else if val != nil {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
