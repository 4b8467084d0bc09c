package providers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

const (
	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status"
)

// PhonePe returns a base64 JSON blob signed with a salted SHA-256 checksum.
// It does not carry order notes and has no refund support in this adapter.
type PhonePe struct {
	cfg    PhonePeConfig
	client *resty.Client
}

func NewPhonePe(cfg PhonePeConfig, timeout time.Duration) *PhonePe {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &PhonePe{cfg: cfg, client: c}
}

func (p *PhonePe) Name() string { return NamePhonePe }

// checksum is sha256(content + saltKey) + "###" + saltIndex.
func (p *PhonePe) checksum(content string) string {
	sum := sha256.Sum256([]byte(content + p.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.cfg.SaltIndex
}

func (p *PhonePe) validChecksum(content, header string) bool {
	expected := p.checksum(content)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(header))) == 1
}

type phonePeResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
		PaymentInstrument     struct {
			Type string `json:"type"`
		} `json:"paymentInstrument"`
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

func (p *PhonePe) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if !strings.EqualFold(req.Currency, "INR") {
		return nil, apperror.Invalid("currency", "phonepe only supports INR")
	}
	payload := map[string]interface{}{
		"merchantId":            p.cfg.MerchantID,
		"merchantTransactionId": req.Reference,
		"merchantUserId":        fmt.Sprintf("CV%d", req.Customer.ID),
		"amount":                req.Amount,
		"redirectUrl":           firstNonEmpty(req.ReturnURL, p.cfg.RedirectURL),
		"redirectMode":          "POST",
		"callbackUrl":           p.cfg.CallbackURL,
		"paymentInstrument":     map[string]string{"type": "PAY_PAGE"},
	}
	if req.Customer.Phone != "" {
		payload["mobileNumber"] = req.Customer.Phone
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	var out phonePeResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("X-VERIFY", p.checksum(encoded+phonePePayPath)).
		SetBody(map[string]string{"request": encoded}).
		SetResult(&out).
		Post(phonePePayPath)
	if err != nil {
		return nil, providerError(NamePhonePe, "create_order", err, 0)
	}
	if resp.IsError() || !out.Success {
		return nil, providerError(NamePhonePe, "create_order", fmt.Errorf("status %d code %s", resp.StatusCode(), out.Code), resp.StatusCode())
	}
	log.Infof("[PhonePe] Created pay page for %s", req.Reference)

	return &Order{
		Provider:    NamePhonePe,
		OrderID:     req.Reference,
		Amount:      req.Amount,
		Currency:    "INR",
		RedirectURL: out.Data.InstrumentResponse.RedirectInfo.URL,
	}, nil
}

// decodeBlob validates the checksum and decodes the base64 response blob.
func (p *PhonePe) decodeBlob(blob, checksum string) (*phonePeResponse, error) {
	if !p.validChecksum(blob, checksum) {
		return nil, webhook.ErrInvalidSignature
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode phonepe blob: %w", err)
	}
	var out phonePeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode phonepe blob: %w", err)
	}
	return &out, nil
}

func (p *PhonePe) status(ctx context.Context, merchantTransactionID string) (*phonePeResponse, error) {
	path := fmt.Sprintf("%s/%s/%s", phonePeStatusPath, p.cfg.MerchantID, merchantTransactionID)
	var out phonePeResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("X-VERIFY", p.checksum(path)).
		SetHeader("X-MERCHANT-ID", p.cfg.MerchantID).
		SetResult(&out).
		Get(path)
	if err != nil {
		return nil, providerError(NamePhonePe, "status", err, 0)
	}
	if resp.IsError() {
		return nil, providerError(NamePhonePe, "status", fmt.Errorf("status %d", resp.StatusCode()), resp.StatusCode())
	}
	return &out, nil
}

func (p *PhonePe) VerifyPayment(ctx context.Context, proof Proof) (*Verification, error) {
	reference := firstNonEmpty(proof.Reference, proof.OrderID)
	if proof.Payload != "" {
		blob, err := p.decodeBlob(proof.Payload, proof.Signature)
		if err != nil {
			if reference == "" {
				return nil, apperror.Invalid("payload", "invalid checksum")
			}
			return &Verification{OrderID: reference, Reference: reference, FailureReason: "checksum mismatch"}, nil
		}
		if reference != "" && blob.Data.MerchantTransactionID != reference {
			return &Verification{OrderID: reference, Reference: reference, FailureReason: "reference mismatch"}, nil
		}
		reference = blob.Data.MerchantTransactionID
	}
	if reference == "" {
		return nil, apperror.Invalid("reference", "required")
	}

	st, err := p.status(ctx, reference)
	if err != nil {
		return nil, err
	}
	v := &Verification{
		OrderID:     reference,
		Reference:   reference,
		ChargeID:    st.Data.TransactionID,
		Amount:      st.Data.Amount,
		Currency:    "INR",
		MethodClass: methodClassFromName(st.Data.PaymentInstrument.Type),
	}
	switch {
	case st.Code == "PAYMENT_SUCCESS" || st.Data.State == "COMPLETED":
		v.Success = true
	case st.Code == "PAYMENT_PENDING" || st.Data.State == "PENDING":
		return nil, providerError(NamePhonePe, "verify_payment", ErrPaymentPending, 0)
	default:
		v.FailureReason = firstNonEmpty(st.Message, st.Code, "payment failed")
	}
	return v, nil
}

func (p *PhonePe) FetchOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	st, err := p.status(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderDetails{
		OrderID:     orderID,
		Amount:      st.Data.Amount,
		Currency:    "INR",
		Notes:       map[string]string{},
		Paid:        st.Code == "PAYMENT_SUCCESS",
		ChargeID:    st.Data.TransactionID,
		MethodClass: methodClassFromName(st.Data.PaymentInstrument.Type),
	}, nil
}

func (p *PhonePe) VerifyWebhook(headers http.Header, body []byte, _ time.Time) error {
	var cb struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &cb); err != nil || cb.Response == "" {
		return webhook.ErrMissingSignature
	}
	if !p.validChecksum(cb.Response, headers.Get("X-VERIFY")) {
		return webhook.ErrInvalidSignature
	}
	return nil
}

func (p *PhonePe) ParseWebhook(headers http.Header, body []byte) (*webhook.Event, error) {
	var cb struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode phonepe callback: %w", err)
	}
	st, err := p.decodeBlob(cb.Response, headers.Get("X-VERIFY"))
	if err != nil {
		return nil, err
	}
	if st.Data.MerchantTransactionID == "" {
		return nil, errors.New("phonepe callback without transaction id")
	}

	ev := &webhook.Event{
		Provider:    NamePhonePe,
		Type:        st.Code,
		Kind:        webhook.KindIgnored,
		OrderID:     st.Data.MerchantTransactionID,
		Reference:   st.Data.MerchantTransactionID,
		ChargeID:    st.Data.TransactionID,
		Amount:      st.Data.Amount,
		Currency:    "INR",
		MethodClass: methodClassFromName(st.Data.PaymentInstrument.Type),
		Raw:         body,
	}
	switch st.Code {
	case "PAYMENT_SUCCESS":
		ev.Kind = webhook.KindPaymentSucceeded
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT", "TRANSACTION_NOT_FOUND":
		ev.Kind = webhook.KindPaymentFailed
		ev.FailureReason = firstNonEmpty(st.Message, st.Code)
	}
	// one delivery per transaction state
	ev.ID = firstNonEmpty(st.Data.TransactionID, st.Data.MerchantTransactionID) + ":" + st.Code
	return ev, nil
}
