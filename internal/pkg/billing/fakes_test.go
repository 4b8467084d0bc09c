package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/config"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/security"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

// checkoutProvider is a gateway without refunds or webhooks.
type checkoutProvider struct {
	mu        sync.Mutex
	name      string
	seq       int
	orders    map[string]*providers.OrderDetails
	orderErr  error
	verifyErr error
	paidDelta int64
	// methodClass is reported by VerifyPayment and FetchOrder, never by webhooks.
	methodClass string
	fetchErr    error
}

func newCheckoutProvider(name string) *checkoutProvider {
	return &checkoutProvider{name: name, orders: map[string]*providers.OrderDetails{}, methodClass: "card"}
}

func (p *checkoutProvider) Name() string { return p.name }

func (p *checkoutProvider) CreateOrder(_ context.Context, req providers.OrderRequest) (*providers.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.orderErr != nil {
		return nil, p.orderErr
	}
	p.seq++
	id := fmt.Sprintf("order_%d", p.seq)
	notes := map[string]string{"reference": req.Reference}
	for k, v := range req.Notes {
		notes[k] = v
	}
	p.orders[id] = &providers.OrderDetails{OrderID: id, Amount: req.Amount, Currency: req.Currency, Notes: notes}
	return &providers.Order{Provider: p.name, OrderID: id, Amount: req.Amount, Currency: req.Currency}, nil
}

func checkoutSignature(orderID, chargeID string) string {
	return "sig:" + orderID + ":" + chargeID
}

func (p *checkoutProvider) VerifyPayment(_ context.Context, proof providers.Proof) (*providers.Verification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	v := &providers.Verification{OrderID: proof.OrderID, ChargeID: proof.ChargeID, Reference: proof.Reference}
	if proof.Signature != checkoutSignature(proof.OrderID, proof.ChargeID) {
		v.FailureReason = "signature mismatch"
		return v, nil
	}
	order, ok := p.orders[proof.OrderID]
	if !ok {
		v.FailureReason = "unknown order"
		return v, nil
	}
	v.Success = true
	v.Amount = order.Amount + p.paidDelta
	v.Currency = order.Currency
	v.MethodClass = p.methodClass
	return v, nil
}

func (p *checkoutProvider) FetchOrder(_ context.Context, orderID string) (*providers.OrderDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	order, ok := p.orders[orderID]
	if !ok {
		return nil, &apperror.ProviderError{Provider: p.name, Op: "fetch_order", Err: errors.New("not found")}
	}
	cp := *order
	cp.MethodClass = p.methodClass
	return &cp, nil
}

// fakeGateway adds refunds, notes and signed webhooks.
type fakeGateway struct {
	*checkoutProvider
	refundErr error
	refunds   []providers.RefundRequest
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{checkoutProvider: newCheckoutProvider(name)}
}

func (g *fakeGateway) CarriesNotes() bool { return true }

func (g *fakeGateway) RefundPayment(_ context.Context, req providers.RefundRequest) (*providers.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &providers.RefundResult{RefundID: "rfnd_" + req.IdempotencyKey[:8], Status: "processed"}, nil
}

func (g *fakeGateway) refundCalls() []providers.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]providers.RefundRequest(nil), g.refunds...)
}

const webhookSignatureHeader = "X-Test-Signature"

func (g *fakeGateway) VerifyWebhook(headers http.Header, _ []byte, _ time.Time) error {
	if headers.Get(webhookSignatureHeader) != "valid" {
		return errors.New("bad signature")
	}
	return nil
}

type testDelivery struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Kind            string `json:"kind"`
	OrderID         string `json:"order_id"`
	ChargeID        string `json:"charge_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	SubscriptionRef string `json:"subscription_ref"`
	RefundID        string `json:"refund_id"`
	RefundReference string `json:"refund_reference"`
}

func (g *fakeGateway) ParseWebhook(_ http.Header, body []byte) (*webhook.Event, error) {
	var d testDelivery
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	return &webhook.Event{
		Provider:        g.name,
		ID:              d.ID,
		Type:            d.Type,
		Kind:            webhook.Kind(d.Kind),
		OrderID:         d.OrderID,
		ChargeID:        d.ChargeID,
		Amount:          d.Amount,
		Currency:        d.Currency,
		SubscriptionRef: d.SubscriptionRef,
		RefundID:        d.RefundID,
		RefundReference: d.RefundReference,
		Raw:             body,
	}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignDownload(_ context.Context, objectKey, fileName string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://files.test/%s?name=%s&ttl=%d", objectKey, fileName, int(ttl.Seconds())), nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type ledgerFixture struct {
	db      *gorm.DB
	svc     *Service
	gateway *fakeGateway
	basic   *checkoutProvider
	clock   *testClock
	fan     *models.User
	other   *models.User
	creator *models.User
	admin   *models.User
	tier    *models.SubscriptionTier
	product *models.Product
	post    *models.Post
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	return newLedgerFixtureOn(t, db)
}

// newLedgerFixtureOn seeds users and catalog rows into a migrated db. opts
// are applied after the fixture's own service options.
func newLedgerFixtureOn(t *testing.T, db *gorm.DB, opts ...Option) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		db:      db,
		gateway: newFakeGateway("razorpay"),
		basic:   newCheckoutProvider("phonepe"),
		clock:   &testClock{t: time.Now().UTC()},
	}
	f.fan = f.seedUser(t, "fan", models.ROLE_USER)
	f.other = f.seedUser(t, "other", models.ROLE_USER)
	f.admin = f.seedUser(t, "admin", models.ROLE_ADMIN)
	f.creator = &models.User{
		Name: "creator", Email: "creator@example.test", Role: models.ROLE_CREATOR, Status: models.STATUS_ACTIVE,
		CommissionTier: models.CommissionTierStandard,
		DMPrice:        2000, DMCurrency: "INR", DMMessageCount: 2, DMValidityDays: 7,
	}
	require.NoError(t, db.Create(f.creator).Error)

	f.tier = &models.SubscriptionTier{CreatorID: f.creator.ID, Name: "Gold", Price: 10000, Currency: "INR", IsActive: true}
	f.product = &models.Product{CreatorID: f.creator.ID, Title: "Preset pack", Price: 9000, Currency: "INR",
		ObjectKey: "products/preset.zip", FileName: "preset.zip", IsActive: true}
	f.post = &models.Post{CreatorID: f.creator.ID, Title: "Behind the scenes", PPVPrice: 5000, Currency: "INR"}
	require.NoError(t, db.Create(f.tier).Error)
	require.NoError(t, db.Create(f.product).Error)
	require.NoError(t, db.Create(f.post).Error)

	secret := []byte("0123456789abcdef0123456789abcdef")
	tokens, err := security.NewDownloadTokenIssuer(secret)
	require.NoError(t, err)
	tokens = tokens.WithClock(f.clock.now)

	registry := providers.NewRegistry(f.gateway, f.basic)
	f.svc = NewServiceFromDB(db, registry, config.Defaults(secret), append([]Option{
		WithClock(f.clock.now),
		WithDownloads(tokens, fakePresigner{}),
	}, opts...)...)
	return f
}

func (f *ledgerFixture) seedUser(t *testing.T, name, role string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.test", Role: role, Status: models.STATUS_ACTIVE}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

// pay completes checkout for a charge through the redirect path.
func (f *ledgerFixture) pay(t *testing.T, provider string, payer uint, res *ChargeResult) *VerifyResult {
	t.Helper()
	chargeID := "pay_" + res.Order.OrderID
	out, err := f.svc.VerifyCharge(context.Background(), provider, payer, providers.Proof{
		Reference: res.Reference,
		OrderID:   res.Order.OrderID,
		ChargeID:  chargeID,
		Signature: checkoutSignature(res.Order.OrderID, chargeID),
	})
	require.NoError(t, err)
	return out
}

func (f *ledgerFixture) buyProduct(t *testing.T) *ChargeResult {
	t.Helper()
	res, err := f.svc.CreateCharge(context.Background(), ChargeRequest{
		Kind: KindProduct, Provider: "razorpay", PayerID: f.fan.ID, ProductID: f.product.ID,
	})
	require.NoError(t, err)
	out := f.pay(t, "razorpay", f.fan.ID, res)
	require.Equal(t, models.ChargeStatusCompleted, out.Status)
	return res
}

// seedEarnings inserts settled revenue directly.
func (f *ledgerFixture) seedEarnings(t *testing.T, subscriptionNet, tipNet int64) {
	t.Helper()
	now := f.clock.now()
	if subscriptionNet > 0 {
		p := &models.Payment{SubscriptionID: 1, Charge: models.Charge{
			Reference: uuid.NewString(), PayerID: f.fan.ID, CreatorID: f.creator.ID,
			GrossAmount: subscriptionNet, Currency: "INR", Provider: "razorpay",
			NetEarnings: subscriptionNet, Status: models.ChargeStatusCompleted, CompletedAt: &now,
		}}
		require.NoError(t, f.db.Create(p).Error)
	}
	if tipNet > 0 {
		tip := &models.Tip{TipperID: f.fan.ID, CreatorID: f.creator.ID, Amount: tipNet, Currency: "INR",
			Provider: "razorpay", ProviderChargeID: uuid.NewString(), NetEarnings: tipNet}
		require.NoError(t, f.db.Create(tip).Error)
	}
}

func (f *ledgerFixture) payoutMethod(t *testing.T) *models.PayoutMethod {
	t.Helper()
	m, err := f.svc.CreatePayoutMethod(context.Background(), PayoutMethodInput{
		CreatorID: f.creator.ID, Type: models.PayoutMethodUPI, Details: map[string]string{"vpa": "creator@okbank"},
	})
	require.NoError(t, err)
	return m
}

func (f *ledgerFixture) deliver(t *testing.T, d testDelivery) (webhook.Result, error) {
	t.Helper()
	body, err := json.Marshal(d)
	require.NoError(t, err)
	headers := http.Header{}
	headers.Set(webhookSignatureHeader, "valid")
	return f.svc.HandleWebhook(context.Background(), "razorpay", headers, body)
}
