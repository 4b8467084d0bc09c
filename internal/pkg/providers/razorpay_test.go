package providers

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

type fakeRazorpayAPI struct {
	orders    map[string]map[string]interface{}
	payments  map[string]map[string]interface{}
	refunds   []map[string]interface{}
	createErr error
	listErr   error
	delay     time.Duration
	lastData  map[string]interface{}
}

func newFakeRazorpayAPI() *fakeRazorpayAPI {
	return &fakeRazorpayAPI{orders: map[string]map[string]interface{}{}, payments: map[string]map[string]interface{}{}}
}

func (f *fakeRazorpayAPI) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastData = data
	order := map[string]interface{}{
		"id":       "order_1",
		"amount":   float64(data["amount"].(int64)),
		"currency": data["currency"],
		"notes":    data["notes"],
		"status":   "created",
	}
	f.orders["order_1"] = order
	return order, nil
}

func (f *fakeRazorpayAPI) FetchOrder(orderID string) (map[string]interface{}, error) {
	return f.orders[orderID], nil
}

func (f *fakeRazorpayAPI) FetchPayment(paymentID string) (map[string]interface{}, error) {
	return f.payments[paymentID], nil
}

func (f *fakeRazorpayAPI) RefundPayment(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error) {
	refund := map[string]interface{}{
		"id": fmt.Sprintf("rfnd_%d", len(f.refunds)+1), "payment_id": paymentID, "amount": float64(amount),
		"status": "processed", "receipt": data["receipt"], "notes": data["notes"],
	}
	f.refunds = append(f.refunds, refund)
	return refund, nil
}

func (f *fakeRazorpayAPI) ListRefunds(paymentID string) (map[string]interface{}, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	items := []interface{}{}
	for _, rf := range f.refunds {
		if rf["payment_id"] == paymentID {
			items = append(items, rf)
		}
	}
	return map[string]interface{}{"entity": "collection", "count": float64(len(items)), "items": items}, nil
}

func testRazorpay(api razorpayAPI, timeout time.Duration) *Razorpay {
	return newRazorpay(RazorpayConfig{KeyID: "rzp_test", KeySecret: "key_secret", WebhookSecret: "hook_secret"}, api, timeout)
}

func checkoutSignature(orderID, paymentID, secret string) string {
	return hex.EncodeToString(webhook.ComputeHMAC([]byte(secret), []byte(orderID+"|"+paymentID)))
}

func TestRazorpayCreateOrderCarriesReferenceAndNotes(t *testing.T) {
	api := newFakeRazorpayAPI()
	rp := testRazorpay(api, time.Second)

	order, err := rp.CreateOrder(context.Background(), OrderRequest{
		Reference: "ref-1", Amount: 10000, Currency: "inr", Notes: map[string]string{"kind": "tip"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.OrderID)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "rzp_test", order.FormPayload["key_id"])
	assert.Equal(t, "ref-1", api.lastData["receipt"])

	details, err := rp.FetchOrder(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), details.Amount)
	assert.Equal(t, "tip", details.Notes["kind"])
	assert.Equal(t, "ref-1", details.Notes["reference"])
}

func TestRazorpayCreateOrderTimeoutIsUnknownOutcome(t *testing.T) {
	api := newFakeRazorpayAPI()
	api.delay = 200 * time.Millisecond
	rp := testRazorpay(api, 20*time.Millisecond)

	_, err := rp.CreateOrder(context.Background(), OrderRequest{Reference: "ref", Amount: 100, Currency: "INR"})
	require.Error(t, err)
	assert.True(t, apperror.IsUnknownOutcome(err))
}

func TestRazorpayVerifyPayment(t *testing.T) {
	api := newFakeRazorpayAPI()
	api.payments["pay_1"] = map[string]interface{}{
		"id": "pay_1", "order_id": "order_1", "amount": float64(10000), "currency": "INR", "status": "captured", "method": "upi",
	}
	rp := testRazorpay(api, time.Second)

	v, err := rp.VerifyPayment(context.Background(), Proof{
		OrderID: "order_1", ChargeID: "pay_1", Signature: checkoutSignature("order_1", "pay_1", "key_secret"),
	})
	require.NoError(t, err)
	assert.True(t, v.Success)
	assert.Equal(t, int64(10000), v.Amount)
	assert.Equal(t, "upi", v.MethodClass)

	tampered, err := rp.VerifyPayment(context.Background(), Proof{
		OrderID: "order_1", ChargeID: "pay_1", Signature: checkoutSignature("order_1", "pay_2", "key_secret"),
	})
	require.NoError(t, err)
	assert.False(t, tampered.Success)
	assert.Equal(t, "signature mismatch", tampered.FailureReason)

	_, err = rp.VerifyPayment(context.Background(), Proof{OrderID: "order_1"})
	var ve *apperror.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRazorpayVerifyPendingAndFailed(t *testing.T) {
	api := newFakeRazorpayAPI()
	api.payments["pay_p"] = map[string]interface{}{"id": "pay_p", "order_id": "order_1", "status": "created"}
	api.payments["pay_f"] = map[string]interface{}{"id": "pay_f", "order_id": "order_1", "status": "failed", "error_description": "card declined"}
	api.payments["pay_x"] = map[string]interface{}{"id": "pay_x", "order_id": "order_other", "status": "captured"}
	api.payments["pay_a"] = map[string]interface{}{"id": "pay_a", "order_id": "order_1", "amount": float64(10000), "status": "authorized"}
	rp := testRazorpay(api, time.Second)

	_, err := rp.VerifyPayment(context.Background(), Proof{OrderID: "order_1", ChargeID: "pay_p", Signature: checkoutSignature("order_1", "pay_p", "key_secret")})
	assert.True(t, apperror.IsUnknownOutcome(err))

	// Authorized but not captured: no credit until payment.captured arrives.
	v, err := rp.VerifyPayment(context.Background(), Proof{OrderID: "order_1", ChargeID: "pay_a", Signature: checkoutSignature("order_1", "pay_a", "key_secret")})
	assert.Nil(t, v)
	assert.ErrorIs(t, err, ErrPaymentPending)
	assert.True(t, apperror.IsUnknownOutcome(err))

	v, err = rp.VerifyPayment(context.Background(), Proof{OrderID: "order_1", ChargeID: "pay_f", Signature: checkoutSignature("order_1", "pay_f", "key_secret")})
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.Equal(t, "card declined", v.FailureReason)

	v, err = rp.VerifyPayment(context.Background(), Proof{OrderID: "order_1", ChargeID: "pay_x", Signature: checkoutSignature("order_1", "pay_x", "key_secret")})
	require.NoError(t, err)
	assert.False(t, v.Success)
}

func TestRazorpayRefund(t *testing.T) {
	api := newFakeRazorpayAPI()
	rp := testRazorpay(api, time.Second)

	res, err := rp.RefundPayment(context.Background(), RefundRequest{ChargeID: "pay_1", Amount: 500, IdempotencyKey: "rf-1"})
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", res.RefundID)
	require.Len(t, api.refunds, 1)
	assert.Equal(t, "rf-1", api.refunds[0]["receipt"])
}

func TestRazorpayRefundRetryReusesExistingRefund(t *testing.T) {
	api := newFakeRazorpayAPI()
	rp := testRazorpay(api, time.Second)
	ctx := context.Background()

	first, err := rp.RefundPayment(ctx, RefundRequest{ChargeID: "pay_1", Amount: 500, IdempotencyKey: "rf-1"})
	require.NoError(t, err)
	again, err := rp.RefundPayment(ctx, RefundRequest{ChargeID: "pay_1", Amount: 500, IdempotencyKey: "rf-1"})
	require.NoError(t, err)
	assert.Equal(t, first.RefundID, again.RefundID)
	assert.Equal(t, "processed", again.Status)
	assert.Len(t, api.refunds, 1)

	// A failed attempt under the same reference does not block a new one.
	api.refunds[0]["status"] = "failed"
	retried, err := rp.RefundPayment(ctx, RefundRequest{ChargeID: "pay_1", Amount: 500, IdempotencyKey: "rf-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefundID, retried.RefundID)
	assert.Len(t, api.refunds, 2)

	api.listErr = errors.New("connection reset")
	_, err = rp.RefundPayment(ctx, RefundRequest{ChargeID: "pay_2", Amount: 500, IdempotencyKey: "rf-2"})
	assert.True(t, apperror.IsUnknownOutcome(err))
	assert.Len(t, api.refunds, 2, "no refund issued without the lookup")
}

func TestRazorpayWebhook(t *testing.T) {
	rp := testRazorpay(newFakeRazorpayAPI(), time.Second)
	body := []byte(`{"entity":"event","event":"payment.captured","created_at":1700000000,
		"payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_9","amount":2500,"currency":"inr","status":"captured","method":"card","notes":{"reference":"ref-9","kind":"tip"}}}}}`)
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", hex.EncodeToString(webhook.ComputeHMAC([]byte("hook_secret"), body)))

	require.NoError(t, rp.VerifyWebhook(headers, body, time.Now()))
	headers.Set("X-Razorpay-Signature", hex.EncodeToString(webhook.ComputeHMAC([]byte("wrong"), body)))
	assert.ErrorIs(t, rp.VerifyWebhook(headers, body, time.Now()), webhook.ErrInvalidSignature)

	ev, err := rp.ParseWebhook(http.Header{}, body)
	require.NoError(t, err)
	assert.Equal(t, "pay_9.1700000000", ev.ID)
	assert.Equal(t, webhook.KindPaymentSucceeded, ev.Kind)
	assert.Equal(t, "order_9", ev.OrderID)
	assert.Equal(t, "pay_9", ev.ChargeID)
	assert.Equal(t, int64(2500), ev.Amount)
	assert.Equal(t, "INR", ev.Currency)
	assert.Equal(t, "card", ev.MethodClass)
	assert.Equal(t, "tip", ev.Notes["kind"])

	withID := http.Header{}
	withID.Set("X-Razorpay-Event-Id", "evt_abc")
	ev, err = rp.ParseWebhook(withID, body)
	require.NoError(t, err)
	assert.Equal(t, "evt_abc", ev.ID)
}

func TestRazorpayWebhookEmptyNotesArray(t *testing.T) {
	rp := testRazorpay(newFakeRazorpayAPI(), time.Second)
	body := []byte(`{"event":"payment.failed","created_at":1,"payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"failed","notes":[]}}}}`)

	ev, err := rp.ParseWebhook(http.Header{}, body)
	require.NoError(t, err)
	assert.Equal(t, webhook.KindPaymentFailed, ev.Kind)
	assert.Empty(t, ev.Notes)
	assert.Equal(t, "payment failed", ev.FailureReason)
}

func TestRegistry(t *testing.T) {
	rp := testRazorpay(newFakeRazorpayAPI(), time.Second)
	reg := NewRegistry(rp)

	p, err := reg.Get(" Razorpay ")
	require.NoError(t, err)
	assert.Equal(t, NameRazorpay, p.Name())
	_, ok := AsRefunder(p)
	assert.True(t, ok)
	assert.True(t, SupportsNotes(p))

	_, err = reg.Get("paypal")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	pp := NewPhonePe(PhonePeConfig{MerchantID: "M", SaltKey: "s", SaltIndex: "1"}, time.Second)
	_, ok = AsRefunder(pp)
	assert.False(t, ok)
	assert.False(t, SupportsNotes(pp))
}

func TestCurrencyConversion(t *testing.T) {
	assert.Equal(t, "100.5", MinorToMajor(10050, "INR").String())
	assert.Equal(t, "500", MinorToMajor(500, "JPY").String())
	assert.Equal(t, "1.234", MinorToMajor(1234, "KWD").String())
	assert.Equal(t, int64(10050), MajorToMinor(MinorToMajor(10050, "INR"), "INR"))
}
