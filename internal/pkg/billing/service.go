package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/config"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/fees"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/locker"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/security"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
	"gorm.io/gorm"
)

const lockTTL = 30 * time.Second

// Presigner hands out short-lived URLs for stored objects.
type Presigner interface {
	PresignDownload(ctx context.Context, objectKey, fileName string, ttl time.Duration) (string, error)
}

// Service is the payment reconciliation and payout ledger.
type Service struct {
	repo      Repository
	registry  *providers.Registry
	calc      *fees.Calculator
	locker    locker.Locker
	guard     *webhook.Guard
	cfg       *config.Ledger
	tokens    *security.DownloadTokenIssuer
	presigner Presigner
	now       func() time.Time
}

type Option func(*Service)

// WithLocker replaces the in-process locker, e.g. with a Redis one shared by all instances.
func WithLocker(l locker.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDownloads enables download tokens for purchased products.
func WithDownloads(tokens *security.DownloadTokenIssuer, presigner Presigner) Option {
	return func(s *Service) {
		s.tokens = tokens
		s.presigner = presigner
	}
}

// NewService creates the ledger from an injected repository, provider set and settings.
func NewService(repo Repository, registry *providers.Registry, cfg *config.Ledger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Defaults(nil)
	}
	s := &Service{
		repo:     repo,
		registry: registry,
		calc:     fees.NewCalculator(cfg.FeeSchedule),
		locker:   locker.NewLocal(),
		guard:    webhook.NewGuard(repo),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates the ledger from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, registry *providers.Registry, cfg *config.Ledger, opts ...Option) *Service {
	return NewService(NewRepository(db), registry, cfg, opts...)
}

func (s *Service) Config() *config.Ledger {
	return s.cfg
}

func (s *Service) Calculator() *fees.Calculator {
	return s.calc
}

// withLock runs fn while holding the named advisory lock.
func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Acquire(ctx, key, lockTTL)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer release()
	return fn()
}

// GetAccount returns the user row behind an authenticated principal.
func (s *Service) GetAccount(ctx context.Context, userID uint) (*models.User, error) {
	return s.repo.GetUser(ctx, userID)
}
