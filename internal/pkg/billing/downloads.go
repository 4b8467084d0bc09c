package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/audit"
	"github.com/sirupsen/logrus"
)

// ErrDownloadsDisabled is returned when no token secret or presigner is configured.
var ErrDownloadsDisabled = errors.New("downloads are not configured")

// IssueDownloadToken grants the buyer of a completed product purchase a
// short-lived download token.
func (s *Service) IssueDownloadToken(ctx context.Context, principalID, purchaseID uint) (*DownloadGrant, error) {
	if s.tokens == nil {
		return nil, ErrDownloadsDisabled
	}
	rec, err := s.repo.GetChargeRecord(ctx, tablePurchases, purchaseID)
	if err != nil {
		return nil, err
	}
	if rec.PayerID != principalID {
		return nil, apperror.Forbidden("purchase belongs to another payer")
	}
	if rec.Kind != KindProduct {
		return nil, apperror.Invalid("purchaseId", "only product purchases can be downloaded")
	}
	if !rec.IsCompleted() {
		return nil, apperror.Forbidden("purchase is " + rec.Status)
	}

	ttl := s.cfg.DownloadTokenTTL
	token, err := s.tokens.Issue(rec.ID, rec.ResourceID, principalID, ttl)
	if err != nil {
		return nil, err
	}
	return &DownloadGrant{Token: token, ExpiresAt: s.now().Add(ttl).Truncate(time.Second)}, nil
}

// RedeemDownload checks a download token and returns a presigned URL for the
// product file. principalID 0 skips the owner match for anonymous links.
func (s *Service) RedeemDownload(ctx context.Context, token string, principalID uint) (string, error) {
	if s.tokens == nil || s.presigner == nil {
		return "", ErrDownloadsDisabled
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		// keeps security.ErrTokenExpired / ErrTokenInvalid visible to errors.Is
		return "", errors.Join(apperror.Forbidden("download token rejected"), err)
	}
	if principalID != 0 && claims.PrincipalID != principalID {
		return "", apperror.Forbidden("token was issued to another user")
	}

	rec, err := s.repo.GetChargeRecord(ctx, tablePurchases, claims.PurchaseID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", apperror.Forbidden("purchase no longer exists")
	}
	if err != nil {
		return "", err
	}
	if !rec.IsCompleted() || rec.ResourceID != claims.ResourceID {
		return "", apperror.Forbidden("purchase no longer grants access")
	}
	product, err := s.repo.GetProduct(ctx, rec.ResourceID)
	if err != nil {
		return "", err
	}

	url, err := s.presigner.PresignDownload(ctx, product.ObjectKey, product.FileName, s.cfg.DownloadTokenTTL)
	if err != nil {
		return "", err
	}
	audit.Record(ctx, "download.redeemed", logrus.Fields{
		"purchase_id": rec.ID, "product_id": product.ID, "principal_id": claims.PrincipalID,
	})
	return url, nil
}

