package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/config"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/security"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
)

const testUserHeader = "X-Test-User"

// testPay settles any proof whose signature is "ok".
type testPay struct {
	mu     sync.Mutex
	seq    int
	orders map[string]providers.OrderDetails
}

func (p *testPay) Name() string { return "testpay" }

func (p *testPay) CreateOrder(_ context.Context, req providers.OrderRequest) (*providers.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("order_%d", p.seq)
	p.orders[id] = providers.OrderDetails{OrderID: id, Amount: req.Amount, Currency: req.Currency}
	return &providers.Order{Provider: p.Name(), OrderID: id, Amount: req.Amount, Currency: req.Currency}, nil
}

func (p *testPay) VerifyPayment(_ context.Context, proof providers.Proof) (*providers.Verification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order := p.orders[proof.OrderID]
	v := &providers.Verification{OrderID: proof.OrderID, ChargeID: proof.ChargeID, Reference: proof.Reference}
	if proof.Signature != "ok" {
		v.FailureReason = "signature mismatch"
		return v, nil
	}
	v.Success = true
	v.Amount = order.Amount
	v.Currency = order.Currency
	v.MethodClass = "upi"
	return v, nil
}

func (p *testPay) FetchOrder(_ context.Context, orderID string) (*providers.OrderDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return nil, errors.New("no such order")
	}
	return &order, nil
}

func (p *testPay) VerifyWebhook(headers http.Header, _ []byte, _ time.Time) error {
	if headers.Get("X-Testpay-Signature") != "valid" {
		return errors.New("bad signature")
	}
	return nil
}

func (p *testPay) ParseWebhook(_ http.Header, body []byte) (*webhook.Event, error) {
	var d struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	return &webhook.Event{Provider: p.Name(), ID: d.ID, Type: d.Type, Kind: webhook.KindIgnored, Raw: body}, nil
}

type stubPresigner struct{}

func (stubPresigner) PresignDownload(_ context.Context, objectKey, fileName string, _ time.Duration) (string, error) {
	return "https://files.test/" + objectKey + "?name=" + fileName, nil
}

type apiFixture struct {
	db      *gorm.DB
	app     *fiber.App
	fan     *models.User
	other   *models.User
	creator *models.User
	admin   *models.User
	product *models.Product
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)

	f := &apiFixture{db: db}
	f.fan = seedUser(t, db, "fan", models.ROLE_USER)
	f.other = seedUser(t, db, "other", models.ROLE_USER)
	f.admin = seedUser(t, db, "admin", models.ROLE_ADMIN)
	f.creator = &models.User{Name: "creator", Email: "creator@example.test", Role: models.ROLE_CREATOR,
		Status: models.STATUS_ACTIVE, CommissionTier: models.CommissionTierStandard}
	require.NoError(t, db.Create(f.creator).Error)
	f.product = &models.Product{CreatorID: f.creator.ID, Title: "LUT pack", Price: 9000, Currency: "INR",
		ObjectKey: "products/lut.zip", FileName: "lut.zip", IsActive: true}
	require.NoError(t, db.Create(f.product).Error)

	secret := []byte("0123456789abcdef0123456789abcdef")
	tokens, err := security.NewDownloadTokenIssuer(secret)
	require.NoError(t, err)
	registry := providers.NewRegistry(&testPay{orders: map[string]providers.OrderDetails{}})
	svc := billing.NewServiceFromDB(db, registry, config.Defaults(secret), billing.WithDownloads(tokens, stubPresigner{}))
	lc := NewLedgerController(svc, nil)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		if raw := c.Get(testUserHeader); raw != "" {
			id, _ := strconv.Atoi(raw)
			var u models.User
			require.NoError(t, db.First(&u, id).Error)
			usercontext.SetUserContext(c, usercontext.UserContext{
				UserID: u.ID, Username: u.Name, Role: u.Role, IsLoggedIn: true,
				IsAdmin: u.IsAdmin(), IsCreator: u.IsCreator(),
			})
		}
		return c.Next()
	})
	app.Get("/account", lc.HandleGetAccount)
	app.Post("/charges", lc.HandleCreateCharge)
	app.Post("/charges/:provider/verify", lc.HandleVerifyCharge)
	app.Get("/purchases", lc.HandleListPurchases)
	app.Post("/purchases/:id/download-token", lc.HandleIssueDownloadToken)
	app.Get("/downloads/:token", lc.HandleDownload)
	app.Post("/webhooks/:provider", lc.HandleWebhook)
	app.Get("/creator/balance", lc.HandleGetBalance)
	app.Post("/creator/payouts", lc.HandleRequestPayout)
	app.Post("/creator/payout-methods", lc.HandleCreatePayoutMethod)
	app.Post("/refunds", lc.HandleRequestRefund)
	app.Get("/refunds/:id", lc.HandleGetRefund)
	app.Get("/admin/refunds", lc.HandleAdminListRefunds)
	app.Post("/admin/jobs/:type", lc.HandleAdminTriggerJob)
	f.app = app
	return f
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.test", Role: role, Status: models.STATUS_ACTIVE}
	require.NoError(t, db.Create(u).Error)
	return u
}

func (f *apiFixture) do(t *testing.T, method, path string, user *models.User, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set(testUserHeader, strconv.Itoa(int(user.ID)))
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

// buyProduct runs checkout and verification, returning the purchase id.
func (f *apiFixture) buyProduct(t *testing.T) uint {
	t.Helper()
	resp, created := f.do(t, http.MethodPost, "/charges", f.fan, fiber.Map{
		"kind": "product", "provider": "testpay", "productId": f.product.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := created["order"].(map[string]interface{})

	resp, verified := f.do(t, http.MethodPost, "/charges/testpay/verify", f.fan, fiber.Map{
		"reference": created["reference"], "order_id": order["order_id"], "charge_id": "pay_1", "signature": "ok",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ChargeStatusCompleted, verified["status"])
	return uint(verified["recordId"].(float64))
}

func TestAccountEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodGet, "/account", f.creator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "creator", body["username"])
	assert.Equal(t, models.ROLE_CREATOR, body["role"])
	assert.NotNil(t, body["commission_tier"])

	_, body = f.do(t, http.MethodGet, "/account", f.fan, nil)
	assert.Nil(t, body["commission_tier"])
}

func TestCheckoutToDownload(t *testing.T) {
	f := newAPIFixture(t)
	purchaseID := f.buyProduct(t)

	resp, body := f.do(t, http.MethodGet, "/purchases", f.fan, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["purchases"], 1)

	resp, _ = f.do(t, http.MethodPost, fmt.Sprintf("/purchases/%d/download-token", purchaseID), f.other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, grant := f.do(t, http.MethodPost, fmt.Sprintf("/purchases/%d/download-token", purchaseID), f.fan, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := grant["token"].(string)

	resp, _ = f.do(t, http.MethodGet, "/downloads/"+token, nil, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://files.test/products/lut.zip?name=lut.zip", resp.Header.Get("Location"))

	resp, body = f.do(t, http.MethodGet, "/downloads/"+token+"x", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "token_invalid", body["error"])
}

func TestCreateChargeValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodPost, "/charges", f.fan, fiber.Map{"kind": "lottery", "provider": "testpay"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Contains(t, body["fields"], "kind")
}

func TestVerifyChargeRejectsForeignPayer(t *testing.T) {
	f := newAPIFixture(t)
	_, created := f.do(t, http.MethodPost, "/charges", f.fan, fiber.Map{
		"kind": "product", "provider": "testpay", "productId": f.product.ID,
	})
	order := created["order"].(map[string]interface{})

	resp, body := f.do(t, http.MethodPost, "/charges/testpay/verify", f.other, fiber.Map{
		"reference": created["reference"], "order_id": order["order_id"], "charge_id": "pay_1", "signature": "ok",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body["error"])
}

func TestPayoutInsufficientBalance(t *testing.T) {
	f := newAPIFixture(t)
	f.buyProduct(t)

	resp, _ := f.do(t, http.MethodPost, "/creator/payout-methods", f.creator, fiber.Map{
		"type": "upi", "details": fiber.Map{"vpa": "creator@okbank"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var method models.PayoutMethod
	require.NoError(t, f.db.Where("creator_id = ?", f.creator.ID).First(&method).Error)

	resp, balance := f.do(t, http.MethodGet, "/creator/balance", f.creator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	available := int64(balance["availableBalance"].(float64))
	require.Positive(t, available)

	resp, body := f.do(t, http.MethodPost, "/creator/payouts", f.creator, fiber.Map{
		"amount": available + 1, "payoutMethodId": method.ID,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", body["error"])
	assert.EqualValues(t, available+1, body["requested"])
	assert.EqualValues(t, available, body["available"])

	resp, _ = f.do(t, http.MethodPost, "/creator/payouts", f.creator, fiber.Map{
		"amount": available, "payoutMethodId": method.ID,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRefundVisibility(t *testing.T) {
	f := newAPIFixture(t)
	purchaseID := f.buyProduct(t)

	resp, body := f.do(t, http.MethodPost, "/refunds", f.fan, fiber.Map{
		"purchaseId": purchaseID, "reason": "the archive is corrupted",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	refundID := uint(body["refund"].(map[string]interface{})["id"].(float64))
	path := fmt.Sprintf("/refunds/%d", refundID)

	resp, _ = f.do(t, http.MethodGet, path, f.fan, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, path, f.admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, path, f.other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/refunds", f.fan, fiber.Map{
		"purchaseId": purchaseID, "reason": "asking a second time",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "refund_already_active", body["error"])

	resp, body = f.do(t, http.MethodGet, "/admin/refunds", f.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["refunds"], 1)
}

func TestWebhookEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	payload := `{"id":"evt_1","type":"account.updated"}`

	send := func(signature string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/testpay", strings.NewReader(payload))
		req.Header.Set("X-Testpay-Signature", signature)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := send("forged")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Empty(t, raw)

	resp = send("valid")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	assert.Equal(t, true, first["received"])
	assert.Nil(t, first["duplicate"])

	resp = send("valid")
	var second map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, true, second["duplicate"])

	resp, _ = f.do(t, http.MethodPost, "/webhooks/unknown", nil, fiber.Map{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminTriggerJobInline(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodPost, "/admin/jobs/reconcile_refunds", f.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Contains(t, body["result"], "examined")

	resp, body = f.do(t, http.MethodPost, "/admin/jobs/purge_webhook_events", f.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["result"], "purged")

	resp, _ = f.do(t, http.MethodPost, "/admin/jobs/rebuild_everything", f.admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
