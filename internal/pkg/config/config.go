package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/hkdf"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/fees"
)

// Ledger holds the money-moving settings shared by the server, the jobs and the CLI.
type Ledger struct {
	SettlementCurrency  string
	RefundWindow        time.Duration
	SubscriptionPeriod  time.Duration
	DownloadTokenTTL    time.Duration
	DownloadTokenSecret []byte
	AbandonPendingAfter time.Duration
	StaleRefundAfter    time.Duration
	MinTipAmount        int64
	MaxTipAmount        int64
	FeeSchedule         *fees.Schedule
}

// Load reads the ledger settings from the environment. A missing fee file
// falls back to the compiled-in schedule; an unreadable one is an error.
func Load() (*Ledger, error) {
	secret, err := DownloadTokenSecret()
	if err != nil {
		return nil, err
	}

	schedule := fees.DefaultSchedule()
	if path := env.GetEnv("FEE_SCHEDULE_FILE", ""); path != "" {
		schedule, err = fees.LoadSchedule(path)
		if err != nil {
			return nil, err
		}
		log.Infof("[Config] Loaded fee schedule from %s", path)
	}

	return &Ledger{
		SettlementCurrency:  strings.ToUpper(env.GetEnv("SETTLEMENT_CURRENCY", "INR")),
		RefundWindow:        time.Duration(env.GetEnvInt("REFUND_WINDOW_DAYS", 7)) * 24 * time.Hour,
		SubscriptionPeriod:  time.Duration(env.GetEnvInt("SUBSCRIPTION_PERIOD_DAYS", 30)) * 24 * time.Hour,
		DownloadTokenTTL:    time.Duration(env.GetEnvInt("DOWNLOAD_TOKEN_TTL_HOURS", 24)) * time.Hour,
		DownloadTokenSecret: secret,
		AbandonPendingAfter: time.Duration(env.GetEnvInt("ABANDON_PENDING_MINUTES", 60)) * time.Minute,
		StaleRefundAfter:    time.Duration(env.GetEnvInt("STALE_REFUND_MINUTES", 30)) * time.Minute,
		MinTipAmount:        int64(env.GetEnvInt("MIN_TIP_AMOUNT", 100)),
		MaxTipAmount:        int64(env.GetEnvInt("MAX_TIP_AMOUNT", 10000000)),
		FeeSchedule:         schedule,
	}, nil
}

// Defaults returns a Ledger with the compiled-in values and the given token secret.
func Defaults(secret []byte) *Ledger {
	return &Ledger{
		SettlementCurrency:  "INR",
		RefundWindow:        7 * 24 * time.Hour,
		SubscriptionPeriod:  30 * 24 * time.Hour,
		DownloadTokenTTL:    24 * time.Hour,
		DownloadTokenSecret: secret,
		AbandonPendingAfter: time.Hour,
		StaleRefundAfter:    30 * time.Minute,
		MinTipAmount:        100,
		MaxTipAmount:        10000000,
		FeeSchedule:         fees.DefaultSchedule(),
	}
}

// DownloadTokenSecret returns DOWNLOAD_TOKEN_SECRET or derives one from APP_SECRET.
func DownloadTokenSecret() ([]byte, error) {
	if s := env.GetEnv("DOWNLOAD_TOKEN_SECRET", ""); s != "" {
		return []byte(s), nil
	}
	master := env.GetEnv("APP_SECRET", "")
	if master == "" {
		return nil, errors.New("DOWNLOAD_TOKEN_SECRET or APP_SECRET must be set")
	}
	return DeriveKey([]byte(master), "creatorvault download token v1", 32)
}

// DeriveKey expands master into an n-byte subkey bound to info.
func DeriveKey(master []byte, info string, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return out, nil
}
