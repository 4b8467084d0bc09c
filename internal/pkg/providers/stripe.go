package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

type stripeAPI interface {
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeSDK struct {
	api *client.API
}

func (s stripeSDK) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.api.PaymentIntents.New(params)
}

func (s stripeSDK) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.api.PaymentIntents.Get(id, params)
}

func (s stripeSDK) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return s.api.Refunds.New(params)
}

// Stripe verifies checkout by looking the PaymentIntent up server side.
type Stripe struct {
	cfg     StripeConfig
	api     stripeAPI
	timeout time.Duration
}

func NewStripe(cfg StripeConfig, timeout time.Duration) *Stripe {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return newStripe(cfg, stripeSDK{api: sc}, timeout)
}

func newStripe(cfg StripeConfig, api stripeAPI, timeout time.Duration) *Stripe {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}
	return &Stripe{cfg: cfg, api: api, timeout: timeout}
}

func (s *Stripe) Name() string       { return NameStripe }
func (s *Stripe) CarriesNotes() bool { return true }

func (s *Stripe) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.Reference)
	params.AddMetadata("reference", req.Reference)
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}

	pi, err := s.api.NewPaymentIntent(params)
	if err != nil {
		return nil, providerError(NameStripe, "create_order", err, stripeStatus(err))
	}
	log.Infof("[Stripe] Created payment intent %s for %s", pi.ID, req.Reference)

	return &Order{
		Provider: NameStripe,
		OrderID:  pi.ID,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		FormPayload: map[string]string{
			"client_secret":   pi.ClientSecret,
			"publishable_key": s.cfg.PublishableKey,
		},
	}, nil
}

func (s *Stripe) getIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := s.api.GetPaymentIntent(id, params)
	if err != nil {
		return nil, providerError(NameStripe, "get_payment_intent", err, stripeStatus(err))
	}
	return pi, nil
}

func (s *Stripe) VerifyPayment(ctx context.Context, proof Proof) (*Verification, error) {
	if proof.OrderID == "" {
		return nil, apperror.Invalid("order_id", "required")
	}
	pi, err := s.getIntent(ctx, proof.OrderID)
	if err != nil {
		return nil, err
	}

	v := &Verification{
		OrderID:     pi.ID,
		Reference:   pi.Metadata["reference"],
		Amount:      pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
		MethodClass: stripeMethodClass(pi),
	}
	if pi.LatestCharge != nil {
		v.ChargeID = pi.LatestCharge.ID
	}
	if proof.Reference != "" && v.Reference != proof.Reference {
		v.FailureReason = "reference mismatch"
		return v, nil
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		v.Success = true
	case stripe.PaymentIntentStatusCanceled:
		v.FailureReason = "payment canceled"
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError == nil {
			return nil, providerError(NameStripe, "verify_payment", ErrPaymentPending, 0)
		}
		v.FailureReason = firstNonEmpty(pi.LastPaymentError.Msg, "payment failed")
	default:
		return nil, providerError(NameStripe, "verify_payment", ErrPaymentPending, 0)
	}
	return v, nil
}

func (s *Stripe) FetchOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	pi, err := s.getIntent(ctx, orderID)
	if err != nil {
		return nil, err
	}
	d := &OrderDetails{
		OrderID:     pi.ID,
		Amount:      pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
		Notes:       pi.Metadata,
		Paid:        pi.Status == stripe.PaymentIntentStatusSucceeded,
		MethodClass: stripeMethodClass(pi),
	}
	if pi.LatestCharge != nil {
		d.ChargeID = pi.LatestCharge.ID
	}
	return d, nil
}

func (s *Stripe) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripe.RefundParams{Amount: stripe.Int64(req.Amount)}
	if req.OrderID != "" {
		params.PaymentIntent = stripe.String(req.OrderID)
	} else {
		params.Charge = stripe.String(req.ChargeID)
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + req.IdempotencyKey)
	params.AddMetadata("refund_reference", req.IdempotencyKey)

	refund, err := s.api.NewRefund(params)
	if err != nil {
		return nil, providerError(NameStripe, "refund", err, stripeStatus(err))
	}
	return &RefundResult{RefundID: refund.ID, Status: string(refund.Status)}, nil
}

func (s *Stripe) VerifyWebhook(headers http.Header, body []byte, now time.Time) error {
	return webhook.VerifyTimestamped(body, headers.Get("Stripe-Signature"), s.cfg.WebhookSecret, now, s.cfg.Tolerance)
}

func (s *Stripe) ParseWebhook(_ http.Header, body []byte) (*webhook.Event, error) {
	var e stripe.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}
	if e.ID == "" {
		return nil, webhook.ErrMissingEventID
	}
	ev := &webhook.Event{Provider: NameStripe, ID: e.ID, Type: string(e.Type), Kind: webhook.KindIgnored, Raw: body}
	if e.Data == nil {
		return ev, nil
	}

	switch e.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(e.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		ev.Kind = webhook.KindPaymentSucceeded
		if e.Type == "payment_intent.payment_failed" {
			ev.Kind = webhook.KindPaymentFailed
			ev.FailureReason = "payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				ev.FailureReason = pi.LastPaymentError.Msg
			}
		}
		ev.OrderID = pi.ID
		ev.Amount = pi.Amount
		ev.Currency = strings.ToUpper(string(pi.Currency))
		ev.Notes = pi.Metadata
		ev.Reference = pi.Metadata["reference"]
		ev.MethodClass = stripeMethodClass(&pi)
		if pi.LatestCharge != nil {
			ev.ChargeID = pi.LatestCharge.ID
		}
	case "refund.created", "refund.updated":
		var refund stripe.Refund
		if err := json.Unmarshal(e.Data.Raw, &refund); err != nil {
			return nil, fmt.Errorf("decode refund: %w", err)
		}
		switch refund.Status {
		case stripe.RefundStatusSucceeded:
			ev.Kind = webhook.KindRefundProcessed
		case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
			ev.Kind = webhook.KindRefundFailed
		}
		ev.RefundID = refund.ID
		ev.RefundReference = refund.Metadata["refund_reference"]
		ev.Amount = refund.Amount
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(e.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		ev.Kind = webhook.KindSubscriptionCancelled
		ev.SubscriptionRef = firstNonEmpty(sub.Metadata["subscription_id"], sub.ID)
		ev.Notes = sub.Metadata
	}
	return ev, nil
}

func stripeMethodClass(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil && pi.LatestCharge.PaymentMethodDetails != nil {
		return methodClassFromName(string(pi.LatestCharge.PaymentMethodDetails.Type))
	}
	if len(pi.PaymentMethodTypes) == 1 {
		return methodClassFromName(pi.PaymentMethodTypes[0])
	}
	return ""
}

func stripeStatus(err error) int {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode
	}
	return 0
}
