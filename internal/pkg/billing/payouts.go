package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/audit"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

type bankDetails struct {
	AccountNumber string `json:"account_number" validate:"required,numeric,min=6,max=20"`
	IFSC          string `json:"ifsc" validate:"required,len=11,alphanum"`
	AccountHolder string `json:"account_holder" validate:"max=100"`
}

type upiDetails struct {
	VPA string `json:"vpa" validate:"required,max=256,contains=@"`
}

func payoutLockKey(creatorID uint) string {
	return fmt.Sprintf("payout:creator:%d", creatorID)
}

// RequestPayout reserves amount from the creator's available balance. The
// balance check and the insert run under a per-creator lock inside one
// transaction that also row-locks the creator, so concurrent requests
// cannot both spend the same balance.
func (s *Service) RequestPayout(ctx context.Context, req PayoutRequest) (*models.Payout, error) {
	if req.Amount <= 0 {
		return nil, apperror.Invalid("amount", "must be positive")
	}
	creator, err := s.repo.GetUser(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}
	if !creator.IsCreator() {
		return nil, apperror.Forbidden("only creators can request payouts")
	}
	method, err := s.repo.GetPayoutMethod(ctx, req.PayoutMethodID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Invalid("payoutMethodId", "unknown payout method")
	}
	if err != nil {
		return nil, err
	}
	if method.CreatorID != creator.ID {
		return nil, apperror.Forbidden("payout method belongs to another creator")
	}

	payout := &models.Payout{
		CreatorID:      creator.ID,
		Amount:         req.Amount,
		Currency:       s.cfg.SettlementCurrency,
		PayoutMethodID: method.ID,
		Status:         models.PayoutStatusPending,
	}
	var available int64
	err = s.withLock(ctx, payoutLockKey(creator.ID), func() error {
		return s.repo.Transaction(ctx, func(tx Repository) error {
			if err := tx.LockCreator(ctx, creator.ID); err != nil {
				return err
			}
			balance, err := computeBalance(ctx, tx, creator.ID, s.cfg.SettlementCurrency)
			if err != nil {
				return err
			}
			available = balance.AvailableBalance
			if req.Amount > available {
				return apperror.InsufficientBalance(req.Amount, available)
			}
			return tx.CreatePayout(ctx, payout)
		})
	})
	if err != nil {
		if apperror.IsConflict(err, apperror.ReasonInsufficientBalance) {
			log.Infof("[Payout] Creator %d requested %d with %d available", creator.ID, req.Amount, available)
		}
		return nil, err
	}

	audit.Record(ctx, "payout.requested", logrus.Fields{
		"payout_id": payout.ID, "creator_id": creator.ID, "amount": payout.Amount,
		"currency": payout.Currency, "payout_method_id": method.ID, "available_before": available,
	})
	return payout, nil
}

func (s *Service) ListPayouts(ctx context.Context, creatorID uint) ([]models.Payout, error) {
	return s.repo.ListPayoutsByCreator(ctx, creatorID)
}

func (s *Service) ListPayoutsByStatus(ctx context.Context, status string) ([]models.Payout, error) {
	return s.repo.ListPayoutsByStatus(ctx, strings.ToUpper(status))
}

// TransitionPayout is the admin side of the payout lifecycle:
// PENDING -> PROCESSING -> PAID|FAILED, or PENDING -> REJECTED.
// FAILED and REJECTED release the amount back to the balance.
func (s *Service) TransitionPayout(ctx context.Context, adminID, payoutID uint, to, note, externalRef string) (*models.Payout, error) {
	to = strings.ToUpper(strings.TrimSpace(to))
	from, ok := payoutSourceState(to)
	if !ok {
		return nil, apperror.Invalid("status", "unsupported target status")
	}
	payout, err := s.repo.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !payoutTransitions.allows(payout.Status, to) {
		return nil, apperror.Conflict(apperror.ReasonInvalidTransition,
			fmt.Sprintf("payout is %s, cannot move to %s", payout.Status, to))
	}

	updates := map[string]interface{}{}
	if note != "" {
		updates["review_note"] = note
	}
	if externalRef != "" {
		updates["external_ref"] = externalRef
	}
	if to != models.PayoutStatusProcessing {
		updates["processed_at"] = s.now()
	}
	moved, err := s.repo.TransitionPayout(ctx, payout.ID, from, to, updates)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperror.Conflict(apperror.ReasonInvalidTransition, "payout changed concurrently")
	}

	audit.Record(ctx, "payout.transitioned", logrus.Fields{
		"payout_id": payout.ID, "creator_id": payout.CreatorID, "from": from, "to": to,
		"admin_id": adminID, "amount": payout.Amount, "external_ref": externalRef,
	})
	return s.repo.GetPayout(ctx, payout.ID)
}

// CreatePayoutMethod validates the destination details for the method type.
// A creator's first method becomes the default.
func (s *Service) CreatePayoutMethod(ctx context.Context, in PayoutMethodInput) (*models.PayoutMethod, error) {
	creator, err := s.repo.GetUser(ctx, in.CreatorID)
	if err != nil {
		return nil, err
	}
	if !creator.IsCreator() {
		return nil, apperror.Forbidden("only creators can add payout methods")
	}

	var details interface{}
	label := strings.TrimSpace(in.Label)
	switch in.Type {
	case models.PayoutMethodBank:
		d := bankDetails{
			AccountNumber: strings.TrimSpace(in.Details["account_number"]),
			IFSC:          strings.ToUpper(strings.TrimSpace(in.Details["ifsc"])),
			AccountHolder: strings.TrimSpace(in.Details["account_holder"]),
		}
		if err := validate.Struct(d); err != nil {
			return nil, apperror.FromValidator(err)
		}
		if label == "" {
			label = "Bank ****" + d.AccountNumber[len(d.AccountNumber)-4:]
		}
		details = d
	case models.PayoutMethodUPI:
		d := upiDetails{VPA: strings.ToLower(strings.TrimSpace(in.Details["vpa"]))}
		if err := validate.Struct(d); err != nil {
			return nil, apperror.FromValidator(err)
		}
		if label == "" {
			label = d.VPA
		}
		details = d
	default:
		return nil, apperror.Invalid("type", "oneof=bank upi")
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountPayoutMethods(ctx, creator.ID)
	if err != nil {
		return nil, err
	}
	m := &models.PayoutMethod{
		CreatorID:   creator.ID,
		Type:        in.Type,
		Label:       label,
		DetailsJSON: string(raw),
		IsDefault:   count == 0,
	}
	if err := s.repo.CreatePayoutMethod(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListPayoutMethods(ctx context.Context, creatorID uint) ([]models.PayoutMethod, error) {
	return s.repo.ListPayoutMethods(ctx, creatorID)
}

func (s *Service) SetDefaultPayoutMethod(ctx context.Context, creatorID, methodID uint) error {
	method, err := s.repo.GetPayoutMethod(ctx, methodID)
	if err != nil {
		return err
	}
	if method.CreatorID != creatorID {
		return apperror.Forbidden("payout method belongs to another creator")
	}
	return s.repo.SetDefaultPayoutMethod(ctx, creatorID, methodID)
}
