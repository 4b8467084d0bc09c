package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

const (
	NameRazorpay = "razorpay"
	NameStripe   = "stripe"
	NamePhonePe  = "phonepe"
	NameCashfree = "cashfree"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrPaymentPending  = errors.New("payment not yet settled")
)

type Customer struct {
	ID    uint
	Name  string
	Email string
	Phone string
}

// OrderRequest asks a provider for a new order. Reference is the local
// idempotency key and is echoed back by every provider.
type OrderRequest struct {
	Reference string
	Amount    int64
	Currency  string
	Notes     map[string]string
	Customer  Customer
	ReturnURL string
}

// Order is what the client needs to complete checkout: either a redirect or a form payload.
type Order struct {
	Provider    string            `json:"provider"`
	OrderID     string            `json:"order_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	FormPayload map[string]string `json:"form_payload,omitempty"`
}

// Proof is the provider-specific evidence a client returns after checkout.
// Signature-triple providers fill OrderID, ChargeID and Signature; lookup
// providers only need OrderID; blob providers send Payload (+ Signature checksum).
type Proof struct {
	Reference string `json:"reference"`
	OrderID   string `json:"order_id"`
	ChargeID  string `json:"charge_id"`
	Signature string `json:"signature"`
	Payload   string `json:"payload"`
}

// Verification is the provider's verdict. Success=false is a definite failure.
type Verification struct {
	Success       bool
	OrderID       string
	ChargeID      string
	Reference     string
	Amount        int64
	Currency      string
	MethodClass   string
	FailureReason string
}

// OrderDetails is the provider-side view of an order, including the notes attached at creation.
type OrderDetails struct {
	OrderID     string
	Amount      int64
	Currency    string
	Notes       map[string]string
	Paid        bool
	ChargeID    string
	MethodClass string
}

type RefundRequest struct {
	ChargeID       string
	OrderID        string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Provider is the uniform contract every payment gateway adapter implements.
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifyPayment(ctx context.Context, proof Proof) (*Verification, error)
	FetchOrder(ctx context.Context, orderID string) (*OrderDetails, error)
}

// Refunder is implemented by providers that can reverse a charge. Its
// absence is a permanent capability gap.
type Refunder interface {
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// NotesCarrier reports whether order notes survive to FetchOrder and webhooks.
type NotesCarrier interface {
	CarriesNotes() bool
}

// WebhookHandler verifies and normalizes a provider's webhook deliveries.
type WebhookHandler interface {
	VerifyWebhook(headers http.Header, body []byte, now time.Time) error
	ParseWebhook(headers http.Header, body []byte) (*webhook.Event, error)
}

func AsRefunder(p Provider) (Refunder, bool) {
	r, ok := p.(Refunder)
	return r, ok
}

func SupportsNotes(p Provider) bool {
	n, ok := p.(NotesCarrier)
	return ok && n.CarriesNotes()
}

func AsWebhookHandler(p Provider) (WebhookHandler, bool) {
	h, ok := p.(WebhookHandler)
	return h, ok
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[strings.ToLower(p.Name())] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// providerError wraps err, flagging timeouts, cancellations and 5xx answers as unknown outcomes.
func providerError(provider, op string, err error, status int) error {
	if err == nil {
		return nil
	}
	var pe *apperror.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	unknown := status >= 500 || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, ErrPaymentPending)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		unknown = true
	}
	return &apperror.ProviderError{Provider: provider, Op: op, Unknown: unknown, Err: err}
}

// callWithContext runs a blocking SDK call that has no context support and
// gives up when ctx is done. The abandoned call's result is discarded.
func callWithContext(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		m   map[string]interface{}
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := fn()
		ch <- result{m, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.m, r.err
	}
}

func methodClassFromName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "card", "credit_card", "debit_card", "credit card", "debit card", "emi":
		return "card"
	case "upi", "upi_collect", "upi_intent":
		return "upi"
	case "netbanking", "net_banking":
		return "netbanking"
	case "us_bank_account", "sepa_debit", "bacs_debit", "acss_debit", "au_becs_debit", "bank_debit":
		return "bank_debit"
	case "wallet", "app":
		return "wallet"
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}
