package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

func phonePeBlob(t *testing.T, code, state, txnID, ref string, amount int64) string {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"success": code == "PAYMENT_SUCCESS",
		"code":    code,
		"data": map[string]interface{}{
			"merchantId":            "MERCHANT",
			"merchantTransactionId": ref,
			"transactionId":         txnID,
			"amount":                amount,
			"state":                 state,
			"paymentInstrument":     map[string]string{"type": "UPI"},
		},
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func newPhonePeServer(t *testing.T, statuses map[string]string) (*PhonePe, *httptest.Server) {
	t.Helper()
	var pp *PhonePe
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == phonePePayPath:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, pp.checksum(body["request"]+phonePePayPath), r.Header.Get("X-VERIFY"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_INITIATED","data":{"merchantTransactionId":"ref-1","instrumentResponse":{"redirectInfo":{"url":"https://pay.example/ref-1"}}}}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, phonePeStatusPath+"/MERCHANT/"):
			ref := strings.TrimPrefix(r.URL.Path, phonePeStatusPath+"/MERCHANT/")
			assert.Equal(t, pp.checksum(r.URL.Path), r.Header.Get("X-VERIFY"))
			assert.Equal(t, "MERCHANT", r.Header.Get("X-MERCHANT-ID"))
			code, ok := statuses[ref]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			raw, _ := base64.StdEncoding.DecodeString(phonePeBlob(t, code, map[string]string{
				"PAYMENT_SUCCESS": "COMPLETED", "PAYMENT_PENDING": "PENDING", "PAYMENT_ERROR": "FAILED",
			}[code], "T"+ref, ref, 10000))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(raw)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	pp = NewPhonePe(PhonePeConfig{MerchantID: "MERCHANT", SaltKey: "salt", SaltIndex: "1", BaseURL: srv.URL}, time.Second)
	return pp, srv
}

func TestPhonePeCreateOrder(t *testing.T) {
	pp, srv := newPhonePeServer(t, nil)
	defer srv.Close()

	order, err := pp.CreateOrder(context.Background(), OrderRequest{Reference: "ref-1", Amount: 10000, Currency: "INR", Customer: Customer{ID: 7}})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", order.OrderID)
	assert.Equal(t, "https://pay.example/ref-1", order.RedirectURL)

	_, err = pp.CreateOrder(context.Background(), OrderRequest{Reference: "ref-2", Amount: 100, Currency: "USD"})
	var ve *apperror.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestPhonePeVerifyDecodesBlobAndLooksUpStatus(t *testing.T) {
	pp, srv := newPhonePeServer(t, map[string]string{"ref-ok": "PAYMENT_SUCCESS", "ref-pending": "PAYMENT_PENDING", "ref-bad": "PAYMENT_ERROR"})
	defer srv.Close()

	blob := phonePeBlob(t, "PAYMENT_SUCCESS", "COMPLETED", "Tref-ok", "ref-ok", 10000)
	v, err := pp.VerifyPayment(context.Background(), Proof{Payload: blob, Signature: pp.checksum(blob)})
	require.NoError(t, err)
	assert.True(t, v.Success)
	assert.Equal(t, "ref-ok", v.Reference)
	assert.Equal(t, "Tref-ok", v.ChargeID)
	assert.Equal(t, int64(10000), v.Amount)
	assert.Equal(t, "upi", v.MethodClass)

	// tampered blob with known reference fails the record
	v, err = pp.VerifyPayment(context.Background(), Proof{Reference: "ref-ok", Payload: blob, Signature: pp.checksum(blob + "x")})
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.Equal(t, "checksum mismatch", v.FailureReason)

	// tampered blob without a reference cannot locate anything
	_, err = pp.VerifyPayment(context.Background(), Proof{Payload: blob, Signature: "deadbeef###1"})
	var ve *apperror.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = pp.VerifyPayment(context.Background(), Proof{Reference: "ref-pending"})
	assert.True(t, apperror.IsUnknownOutcome(err))

	v, err = pp.VerifyPayment(context.Background(), Proof{Reference: "ref-bad"})
	require.NoError(t, err)
	assert.False(t, v.Success)
}

func TestPhonePeWebhook(t *testing.T) {
	pp := NewPhonePe(PhonePeConfig{MerchantID: "MERCHANT", SaltKey: "salt", SaltIndex: "1"}, time.Second)
	blob := phonePeBlob(t, "PAYMENT_SUCCESS", "COMPLETED", "T1", "ref-1", 10000)
	body, _ := json.Marshal(map[string]string{"response": blob})
	headers := http.Header{}
	headers.Set("X-VERIFY", pp.checksum(blob))

	require.NoError(t, pp.VerifyWebhook(headers, body, time.Now()))
	ev, err := pp.ParseWebhook(headers, body)
	require.NoError(t, err)
	assert.Equal(t, "T1:PAYMENT_SUCCESS", ev.ID)
	assert.Equal(t, webhook.KindPaymentSucceeded, ev.Kind)
	assert.Equal(t, "ref-1", ev.OrderID)

	headers.Set("X-VERIFY", pp.checksum("other"))
	assert.ErrorIs(t, pp.VerifyWebhook(headers, body, time.Now()), webhook.ErrInvalidSignature)
}
