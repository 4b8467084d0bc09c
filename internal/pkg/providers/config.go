package providers

import (
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
)

const defaultTimeout = 15 * time.Second

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Tolerance      time.Duration
}

type PhonePeConfig struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
	RedirectURL string
	CallbackURL string
}

type CashfreeConfig struct {
	AppID      string
	SecretKey  string
	BaseURL    string
	APIVersion string
	ReturnURL  string
	Tolerance  time.Duration
}

// Config holds credentials for every provider; a provider with empty credentials is disabled.
type Config struct {
	Timeout  time.Duration
	Razorpay RazorpayConfig
	Stripe   StripeConfig
	PhonePe  PhonePeConfig
	Cashfree CashfreeConfig
}

func LoadConfig() Config {
	timeout := defaultTimeout
	if v, err := strconv.Atoi(env.GetEnv("PROVIDER_TIMEOUT_SECONDS", "")); err == nil && v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	return Config{
		Timeout: timeout,
		Razorpay: RazorpayConfig{
			KeyID:         env.GetEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     env.GetEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: env.GetEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		Stripe: StripeConfig{
			SecretKey:      env.GetEnv("STRIPE_SECRET_KEY", ""),
			PublishableKey: env.GetEnv("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:  env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		PhonePe: PhonePeConfig{
			MerchantID:  env.GetEnv("PHONEPE_MERCHANT_ID", ""),
			SaltKey:     env.GetEnv("PHONEPE_SALT_KEY", ""),
			SaltIndex:   env.GetEnv("PHONEPE_SALT_INDEX", "1"),
			BaseURL:     strings.TrimRight(env.GetEnv("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"), "/"),
			RedirectURL: env.GetEnv("PHONEPE_REDIRECT_URL", ""),
			CallbackURL: env.GetEnv("PHONEPE_CALLBACK_URL", ""),
		},
		Cashfree: CashfreeConfig{
			AppID:      env.GetEnv("CASHFREE_APP_ID", ""),
			SecretKey:  env.GetEnv("CASHFREE_SECRET_KEY", ""),
			BaseURL:    strings.TrimRight(env.GetEnv("CASHFREE_BASE_URL", "https://sandbox.cashfree.com/pg"), "/"),
			APIVersion: env.GetEnv("CASHFREE_API_VERSION", "2023-08-01"),
			ReturnURL:  env.GetEnv("CASHFREE_RETURN_URL", ""),
		},
	}
}

// NewRegistryFromConfig builds every provider that has credentials configured.
func NewRegistryFromConfig(cfg Config) *Registry {
	r := NewRegistry()
	if cfg.Razorpay.KeyID != "" && cfg.Razorpay.KeySecret != "" {
		r.Register(NewRazorpay(cfg.Razorpay, cfg.Timeout))
	}
	if cfg.Stripe.SecretKey != "" {
		r.Register(NewStripe(cfg.Stripe, cfg.Timeout))
	}
	if cfg.PhonePe.MerchantID != "" && cfg.PhonePe.SaltKey != "" {
		r.Register(NewPhonePe(cfg.PhonePe, cfg.Timeout))
	}
	if cfg.Cashfree.AppID != "" && cfg.Cashfree.SecretKey != "" {
		r.Register(NewCashfree(cfg.Cashfree, cfg.Timeout))
	}
	return r
}
