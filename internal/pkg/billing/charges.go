package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/audit"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/fees"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxTipMessage = 200

// settlement is a provider verdict on one charge, from a redirect or a webhook.
type settlement struct {
	success       bool
	chargeID      string
	amount        int64
	currency      string
	methodClass   string
	failureReason string
}

func payerLockKey(payerID uint) string {
	return fmt.Sprintf("charge:payer:%d", payerID)
}

func customerOf(u *models.User) providers.Customer {
	return providers.Customer{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

// CreateCharge creates the local PENDING record and the provider order.
// Prices come from the catalog; only tips carry a client amount.
func (s *Service) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	p, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, apperror.Invalid("provider", "unsupported provider")
	}
	payer, err := s.repo.GetUser(ctx, req.PayerID)
	if err != nil {
		return nil, err
	}

	switch req.Kind {
	case KindSubscription:
		return s.createSubscriptionCharge(ctx, p, payer, req)
	case KindProduct, KindPPV:
		return s.createPurchaseCharge(ctx, p, payer, req)
	case KindDM:
		return s.createDMCharge(ctx, p, payer, req)
	case KindTip:
		return s.createTipCharge(ctx, p, payer, req)
	}
	return nil, apperror.Invalid("kind", "unsupported charge kind")
}

func (s *Service) loadCreator(ctx context.Context, creatorID, payerID uint) (*models.User, error) {
	creator, err := s.repo.GetUser(ctx, creatorID)
	if errors.Is(err, apperror.ErrNotFound) || (err == nil && !creator.IsCreator()) {
		return nil, apperror.Invalid("creatorId", "unknown creator")
	}
	if err != nil {
		return nil, err
	}
	if creator.ID == payerID {
		return nil, apperror.Invalid("creatorId", "cannot pay yourself")
	}
	return creator, nil
}

// newCharge builds a PENDING charge after checking that the fee schedule can price it.
func (s *Service) newCharge(payerID uint, creator *models.User, amount int64, currency, provider string) (models.Charge, error) {
	currency = strings.ToUpper(currency)
	if _, err := s.calc.Calculate(amount, provider, "", creator.CommissionTier, currency); err != nil {
		if errors.Is(err, fees.ErrInvalidAmount) {
			return models.Charge{}, apperror.Invalid("amount", "must be positive")
		}
		return models.Charge{}, fmt.Errorf("price charge: %w", err)
	}
	return models.Charge{
		Reference:      uuid.NewString(),
		PayerID:        payerID,
		CreatorID:      creator.ID,
		GrossAmount:    amount,
		Currency:       currency,
		Provider:       provider,
		CommissionTier: creator.CommissionTier,
		Status:         models.ChargeStatusPending,
	}, nil
}

func (s *Service) createSubscriptionCharge(ctx context.Context, p providers.Provider, payer *models.User, req ChargeRequest) (*ChargeResult, error) {
	tier, err := s.repo.GetSubscriptionTier(ctx, req.TierID)
	if errors.Is(err, apperror.ErrNotFound) || (err == nil && !tier.IsActive) {
		return nil, apperror.Invalid("tierId", "unknown tier")
	}
	if err != nil {
		return nil, err
	}
	creator, err := s.loadCreator(ctx, tier.CreatorID, payer.ID)
	if err != nil {
		return nil, err
	}
	charge, err := s.newCharge(payer.ID, creator, tier.Price, tier.Currency, p.Name())
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		FanID:     payer.ID,
		TierID:    tier.ID,
		CreatorID: creator.ID,
		Status:    models.SubscriptionStatusPending,
	}
	payment := &models.Payment{Charge: charge}
	err = s.withLock(ctx, payerLockKey(payer.ID), func() error {
		open, err := s.repo.FindOpenSubscription(ctx, payer.ID, tier.ID)
		if err == nil {
			if err := s.releaseOpenSubscription(ctx, open); err != nil {
				return err
			}
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return s.repo.CreateSubscriptionWithPayment(ctx, sub, payment)
	})
	if err != nil {
		return nil, err
	}

	rec := paymentRecord(payment)
	notes := map[string]string{
		"kind":            string(KindSubscription),
		"subscription_id": strconv.FormatUint(uint64(sub.ID), 10),
	}
	order, err := s.placeOrder(ctx, p, rec, payer, notes, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{Kind: KindSubscription, Reference: rec.Reference, RecordID: rec.ID, Order: order}, nil
}

// releaseOpenSubscription rejects a second subscription to the same tier
// unless the existing one is a checkout abandoned long enough ago.
func (s *Service) releaseOpenSubscription(ctx context.Context, open *models.Subscription) error {
	if open.Status == models.SubscriptionStatusPending && s.now().Sub(open.CreatedAt) > s.cfg.AbandonPendingAfter {
		log.Infof("[Ledger] Abandoning stale pending subscription %d", open.ID)
		return s.repo.AbandonSubscription(ctx, open.ID, "abandoned", s.now())
	}
	conflict := apperror.Conflict(apperror.ReasonDuplicate, "an active or pending subscription to this tier exists")
	conflict.Details = map[string]interface{}{"subscriptionId": open.ID, "status": open.Status}
	return conflict
}

func (s *Service) createPurchaseCharge(ctx context.Context, p providers.Provider, payer *models.User, req ChargeRequest) (*ChargeResult, error) {
	purchase := &models.Purchase{}
	var creatorID uint
	var amount int64
	var currency string

	if req.Kind == KindProduct {
		product, err := s.repo.GetProduct(ctx, req.ProductID)
		if errors.Is(err, apperror.ErrNotFound) || (err == nil && !product.IsActive) {
			return nil, apperror.Invalid("productId", "unknown product")
		}
		if err != nil {
			return nil, err
		}
		purchase.Kind = models.PurchaseKindProduct
		purchase.ProductID = &product.ID
		creatorID, amount, currency = product.CreatorID, product.Price, product.Currency
	} else {
		post, err := s.repo.GetPost(ctx, req.PostID)
		if errors.Is(err, apperror.ErrNotFound) || (err == nil && post.PPVPrice <= 0) {
			return nil, apperror.Invalid("postId", "post is not pay-per-view")
		}
		if err != nil {
			return nil, err
		}
		purchase.Kind = models.PurchaseKindPPV
		purchase.PostID = &post.ID
		creatorID, amount, currency = post.CreatorID, post.PPVPrice, post.Currency
	}

	creator, err := s.loadCreator(ctx, creatorID, payer.ID)
	if err != nil {
		return nil, err
	}
	if purchase.Charge, err = s.newCharge(payer.ID, creator, amount, currency, p.Name()); err != nil {
		return nil, err
	}

	err = s.withLock(ctx, payerLockKey(payer.ID), func() error {
		open, err := s.repo.FindOpenPurchase(ctx, payer.ID, purchase.Kind, purchase.ResourceID())
		if err == nil {
			if err := s.releaseOpenPurchase(ctx, open); err != nil {
				return err
			}
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return s.repo.CreatePurchase(ctx, purchase)
	})
	if err != nil {
		return nil, err
	}

	rec := purchaseRecord(purchase)
	notes := map[string]string{"kind": string(rec.Kind), "purchase_id": strconv.FormatUint(uint64(purchase.ID), 10)}
	order, err := s.placeOrder(ctx, p, rec, payer, notes, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{Kind: rec.Kind, Reference: rec.Reference, RecordID: rec.ID, Order: order}, nil
}

// releaseOpenPurchase allows a new checkout only after an abandoned PENDING one is failed.
func (s *Service) releaseOpenPurchase(ctx context.Context, open *models.Purchase) error {
	if open.IsPending() && s.now().Sub(open.CreatedAt) > s.cfg.AbandonPendingAfter {
		log.Infof("[Ledger] Abandoning stale pending purchase %d", open.ID)
		_, err := s.repo.FailCharge(ctx, purchaseRecord(open), "abandoned")
		return err
	}
	conflict := apperror.Conflict(apperror.ReasonDuplicate, "this item was already purchased or a checkout is in progress")
	conflict.Details = map[string]interface{}{"purchaseId": open.ID, "status": open.Status}
	return conflict
}

func (s *Service) createDMCharge(ctx context.Context, p providers.Provider, payer *models.User, req ChargeRequest) (*ChargeResult, error) {
	creator, err := s.loadCreator(ctx, req.CreatorID, payer.ID)
	if err != nil {
		return nil, err
	}
	if !creator.OffersPaidDMs() {
		return nil, apperror.Invalid("creatorId", "creator does not offer paid messages")
	}
	charge, err := s.newCharge(payer.ID, creator, creator.DMPrice, creator.DMCurrency, p.Name())
	if err != nil {
		return nil, err
	}
	dm := &models.DMPayment{
		MessagesAllowed: creator.DMMessageCount,
		ValidityDays:    creator.DMValidityDays,
		Charge:          charge,
	}
	if err := s.repo.CreateDMPayment(ctx, dm); err != nil {
		return nil, err
	}

	rec := dmRecord(dm)
	notes := map[string]string{"kind": string(KindDM), "dm_payment_id": strconv.FormatUint(uint64(dm.ID), 10)}
	order, err := s.placeOrder(ctx, p, rec, payer, notes, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{Kind: KindDM, Reference: rec.Reference, RecordID: rec.ID, Order: order}, nil
}

// createTipCharge only creates the provider order. The tip row is written
// once the money arrives, from the context carried in the order notes.
func (s *Service) createTipCharge(ctx context.Context, p providers.Provider, payer *models.User, req ChargeRequest) (*ChargeResult, error) {
	if !providers.SupportsNotes(p) {
		return nil, apperror.Invalid("provider", "provider cannot carry tips")
	}
	creator, err := s.loadCreator(ctx, req.CreatorID, payer.ID)
	if err != nil {
		return nil, err
	}
	if req.Amount < s.cfg.MinTipAmount || req.Amount > s.cfg.MaxTipAmount {
		return nil, apperror.Invalid("amount", fmt.Sprintf("must be between %d and %d", s.cfg.MinTipAmount, s.cfg.MaxTipAmount))
	}
	currency := strings.ToUpper(firstNonEmpty(req.Currency, s.cfg.SettlementCurrency))
	message := truncateUTF8(strings.TrimSpace(req.Message), maxTipMessage)

	reference := uuid.NewString()
	order, err := p.CreateOrder(ctx, providers.OrderRequest{
		Reference: reference,
		Amount:    req.Amount,
		Currency:  currency,
		Customer:  customerOf(payer),
		ReturnURL: req.ReturnURL,
		Notes: map[string]string{
			"kind":       string(KindTip),
			"tipper_id":  strconv.FormatUint(uint64(payer.ID), 10),
			"creator_id": strconv.FormatUint(uint64(creator.ID), 10),
			"message":    message,
		},
	})
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, "tip.order_created", logrus.Fields{
		"reference": reference, "provider": p.Name(), "order_id": order.OrderID,
		"tipper_id": payer.ID, "creator_id": creator.ID, "amount": req.Amount, "currency": currency,
	})
	return &ChargeResult{Kind: KindTip, Reference: reference, Order: order}, nil
}

// placeOrder creates the provider order for a PENDING record. If the
// provider call fails the local row is deleted again; the client never saw
// an order id, so nothing can be paid against it.
func (s *Service) placeOrder(ctx context.Context, p providers.Provider, rec *ChargeRecord, payer *models.User, notes map[string]string, returnURL string) (*providers.Order, error) {
	order, err := p.CreateOrder(ctx, providers.OrderRequest{
		Reference: rec.Reference,
		Amount:    rec.GrossAmount,
		Currency:  rec.Currency,
		Notes:     notes,
		Customer:  customerOf(payer),
		ReturnURL: returnURL,
	})
	if err == nil {
		err = s.repo.SetProviderOrderID(ctx, rec, order.OrderID)
	}
	if err != nil {
		if delErr := s.repo.DeleteCharge(context.WithoutCancel(ctx), rec); delErr != nil {
			log.Errorf("[Ledger] Failed to roll back %s %d after order failure: %v", rec.Table, rec.ID, delErr)
		}
		log.Warnf("[Ledger] %s order creation failed for %s: %v", p.Name(), rec.Reference, err)
		return nil, err
	}
	rec.ProviderOrderID = &order.OrderID

	audit.Record(ctx, "charge.created", logrus.Fields{
		"kind": rec.Kind, "record_id": rec.ID, "reference": rec.Reference, "provider": p.Name(),
		"order_id": order.OrderID, "payer_id": rec.PayerID, "creator_id": rec.CreatorID,
		"amount": rec.GrossAmount, "currency": rec.Currency,
	})
	return order, nil
}

// VerifyCharge handles the redirect path. An unknown provider outcome
// leaves the record PENDING for the webhook to resolve.
func (s *Service) VerifyCharge(ctx context.Context, providerName string, principalID uint, proof providers.Proof) (*VerifyResult, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, apperror.Invalid("provider", "unsupported provider")
	}
	v, err := p.VerifyPayment(ctx, proof)
	if err != nil {
		if apperror.IsUnknownOutcome(err) {
			log.Warnf("[Ledger] %s verification outcome unknown for %s: %v", p.Name(), firstNonEmpty(proof.OrderID, proof.Reference), err)
			return &VerifyResult{Reference: proof.Reference, Status: models.ChargeStatusPending, Pending: true}, nil
		}
		return nil, err
	}

	orderID := firstNonEmpty(v.OrderID, proof.OrderID)
	rec, err := s.locateCharge(ctx, p.Name(), orderID, firstNonEmpty(v.Reference, proof.Reference))
	if errors.Is(err, apperror.ErrNotFound) {
		return s.verifyTip(ctx, p, principalID, orderID, v)
	}
	if err != nil {
		return nil, err
	}
	if rec.PayerID != principalID {
		return nil, apperror.Forbidden("charge belongs to another payer")
	}

	status, err := s.settle(ctx, rec, settlement{
		success:       v.Success,
		chargeID:      v.ChargeID,
		amount:        v.Amount,
		currency:      v.Currency,
		methodClass:   v.MethodClass,
		failureReason: v.FailureReason,
	})
	if apperror.IsUnknownOutcome(err) {
		return &VerifyResult{Kind: rec.Kind, Reference: rec.Reference, RecordID: rec.ID, Status: models.ChargeStatusPending, Pending: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Kind: rec.Kind, Reference: rec.Reference, RecordID: rec.ID, Status: status}, nil
}

// locateCharge finds the record by provider order id, then by our reference.
func (s *Service) locateCharge(ctx context.Context, provider, orderID, reference string) (*ChargeRecord, error) {
	rec, err := s.repo.FindChargeByOrder(ctx, provider, orderID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	rec, err = s.repo.FindChargeByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if rec.Provider != provider || (orderID != "" && rec.OrderID() != "" && rec.OrderID() != orderID) {
		return nil, apperror.ErrNotFound
	}
	return rec, nil
}

func (s *Service) verifyTip(ctx context.Context, p providers.Provider, principalID uint, orderID string, v *providers.Verification) (*VerifyResult, error) {
	if orderID == "" || !providers.SupportsNotes(p) {
		return nil, apperror.ErrNotFound
	}
	details, err := p.FetchOrder(ctx, orderID)
	if err != nil {
		if apperror.IsUnknownOutcome(err) {
			return &VerifyResult{Kind: KindTip, Status: models.ChargeStatusPending, Pending: true}, nil
		}
		return nil, err
	}
	if details.Notes["kind"] != string(KindTip) {
		return nil, apperror.ErrNotFound
	}
	if parseID(details.Notes["tipper_id"]) != principalID {
		return nil, apperror.Forbidden("tip belongs to another payer")
	}

	res := &VerifyResult{Kind: KindTip, Reference: details.Notes["reference"], Status: models.ChargeStatusFailed}
	if !v.Success {
		return res, nil
	}
	if details.Amount != 0 && details.Amount != v.Amount {
		audit.Anomaly(ctx, "tip.amount_mismatch", logrus.Fields{"provider": p.Name(), "order_id": orderID, "order_amount": details.Amount, "paid": v.Amount})
		return res, nil
	}
	if _, err := s.recordTip(ctx, p.Name(), orderID, v.ChargeID, details.Notes, v.Amount, firstNonEmpty(v.Currency, details.Currency)); err != nil {
		return nil, err
	}
	res.Status = models.ChargeStatusCompleted
	return res, nil
}

// recordTip writes the tip once per provider charge.
func (s *Service) recordTip(ctx context.Context, provider, orderID, chargeID string, notes map[string]string, amount int64, currency string) (bool, error) {
	tipperID := parseID(notes["tipper_id"])
	creatorID := parseID(notes["creator_id"])
	if tipperID == 0 || creatorID == 0 {
		return false, fmt.Errorf("tip order %s carries no tipper or creator", orderID)
	}
	e, err := s.calc.CalculateTip(amount, currency)
	if err != nil {
		return false, fmt.Errorf("calculate tip: %w", err)
	}

	tip := &models.Tip{
		TipperID:                     tipperID,
		CreatorID:                    creatorID,
		Amount:                       amount,
		Currency:                     e.Currency,
		Provider:                     provider,
		ProviderOrderID:              orderID,
		ProviderChargeID:             firstNonEmpty(chargeID, orderID),
		PaymentFee:                   e.PaymentFee,
		PaymentFeePercentage:         e.PaymentFeePercentage,
		PlatformCommission:           e.PlatformCommission,
		PlatformCommissionPercentage: e.PlatformCommissionPercentage,
		NetEarnings:                  e.NetEarnings,
		Message:                      notes["message"],
	}
	created, err := s.repo.CreateTipIfNotExists(ctx, tip)
	if err != nil {
		return false, err
	}
	if created {
		audit.Record(ctx, "tip.recorded", logrus.Fields{
			"tip_id": tip.ID, "provider": provider, "charge_id": tip.ProviderChargeID,
			"tipper_id": tipperID, "creator_id": creatorID, "amount": amount, "net_earnings": e.NetEarnings, "currency": e.Currency,
		})
	}
	return created, nil
}

// settle applies a provider verdict. It is idempotent: a repeated success
// on a COMPLETED record changes nothing, and a success arriving for a
// FAILED record is refused and flagged.
func (s *Service) settle(ctx context.Context, rec *ChargeRecord, st settlement) (string, error) {
	if !st.success {
		return s.failCharge(ctx, rec, firstNonEmpty(st.failureReason, "payment failed"))
	}
	if st.amount != rec.GrossAmount || (st.currency != "" && !strings.EqualFold(st.currency, rec.Currency)) {
		audit.Anomaly(ctx, "charge.amount_mismatch", logrus.Fields{
			"kind": rec.Kind, "record_id": rec.ID, "reference": rec.Reference,
			"expected": rec.GrossAmount, "expected_currency": rec.Currency, "paid": st.amount, "paid_currency": st.currency,
		})
		return s.failCharge(ctx, rec, fmt.Sprintf("amount mismatch: expected %d %s, got %d %s", rec.GrossAmount, rec.Currency, st.amount, st.currency))
	}

	if st.methodClass == "" {
		class, err := s.lookupMethodClass(ctx, rec)
		if err != nil {
			return "", err
		}
		st.methodClass = class
	}

	e, err := s.calc.Calculate(rec.GrossAmount, rec.Provider, st.methodClass, rec.CommissionTier, rec.Currency)
	if err != nil {
		return "", fmt.Errorf("calculate earnings: %w", err)
	}

	now := s.now()
	var moved bool
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		moved, err = tx.CompleteCharge(ctx, rec, e, st.chargeID, now)
		if err != nil || !moved {
			return err
		}
		switch rec.Kind {
		case KindSubscription:
			activated, err := tx.TransitionSubscription(ctx, rec.SubscriptionID,
				[]string{models.SubscriptionStatusPending}, models.SubscriptionStatusActive,
				map[string]interface{}{"start_date": now, "end_date": now.Add(s.cfg.SubscriptionPeriod)})
			if err != nil {
				return err
			}
			if !activated {
				log.Warnf("[Ledger] Subscription %d was not pending when payment %d completed", rec.SubscriptionID, rec.ID)
			}
		case KindDM:
			if rec.ValidityDays > 0 {
				return tx.SetDMExpiry(ctx, rec.ID, now.AddDate(0, 0, rec.ValidityDays))
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if !moved {
		status, err := s.repo.ChargeStatus(ctx, rec)
		if err != nil {
			return "", err
		}
		if status == models.ChargeStatusCompleted || status == models.ChargeStatusRefunded {
			return status, nil
		}
		audit.Anomaly(ctx, "charge.success_after_terminal", logrus.Fields{
			"kind": rec.Kind, "record_id": rec.ID, "reference": rec.Reference, "status": status, "charge_id": st.chargeID,
		})
		return status, apperror.Conflict(apperror.ReasonInvalidTransition, "charge is "+strings.ToLower(status))
	}

	audit.Record(ctx, "charge.completed", logrus.Fields{
		"kind": rec.Kind, "record_id": rec.ID, "reference": rec.Reference, "provider": rec.Provider,
		"charge_id": st.chargeID, "creator_id": rec.CreatorID, "gross": e.GrossAmount, "payment_fee": e.PaymentFee,
		"platform_commission": e.PlatformCommission, "net_earnings": e.NetEarnings, "currency": rec.Currency,
	})
	return models.ChargeStatusCompleted, nil
}

// lookupMethodClass asks the provider for the payment method of the order
// when the verdict did not carry one, so the fee rate does not depend on
// which completion path arrived first.
func (s *Service) lookupMethodClass(ctx context.Context, rec *ChargeRecord) (string, error) {
	if rec.OrderID() == "" {
		return "", nil
	}
	p, err := s.registry.Get(rec.Provider)
	if err != nil {
		return "", nil
	}
	details, err := p.FetchOrder(ctx, rec.OrderID())
	if err != nil {
		log.Warnf("[Ledger] Could not resolve payment method for %s %d: %v", rec.Kind, rec.ID, err)
		return "", err
	}
	return details.MethodClass, nil
}

// failCharge moves PENDING -> FAILED; a subscription payment takes its
// PENDING subscription down with it.
func (s *Service) failCharge(ctx context.Context, rec *ChargeRecord, reason string) (string, error) {
	var moved bool
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		moved, err = tx.FailCharge(ctx, rec, reason)
		if err != nil || !moved {
			return err
		}
		if rec.Kind == KindSubscription {
			_, err = tx.TransitionSubscription(ctx, rec.SubscriptionID,
				[]string{models.SubscriptionStatusPending}, models.SubscriptionStatusCancelled,
				map[string]interface{}{"cancelled_at": s.now()})
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if !moved {
		return s.repo.ChargeStatus(ctx, rec)
	}
	audit.Record(ctx, "charge.failed", logrus.Fields{
		"kind": rec.Kind, "record_id": rec.ID, "reference": rec.Reference, "reason": reason,
	})
	return models.ChargeStatusFailed, nil
}

// ListPurchases returns the payer's purchases, newest first.
func (s *Service) ListPurchases(ctx context.Context, payerID uint) ([]models.Purchase, error) {
	return s.repo.ListPurchasesByPayer(ctx, payerID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// truncateUTF8 cuts s to at most n bytes without splitting a character.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func parseID(s string) uint {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
