package fees

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Method classes understood by the default schedule.
const (
	MethodCard       = "card"
	MethodUPI        = "upi"
	MethodNetbanking = "netbanking"
	MethodBankDebit  = "bank_debit"
	MethodWallet     = "wallet"
)

var hundred = decimal.NewFromInt(100)

// ProviderRates holds processor fee percentages for one provider, keyed by payment method class.
type ProviderRates struct {
	Default decimal.Decimal
	Methods map[string]decimal.Decimal
}

// Schedule is an immutable fee table. Build it with DefaultSchedule or LoadSchedule
// and inject it into a Calculator; never mutate it after construction.
type Schedule struct {
	providers   map[string]ProviderRates
	tiers       map[string]decimal.Decimal
	defaultTier string

	// Tips are credited with their own rates. Both default to zero.
	tipPaymentFee decimal.Decimal
	tipCommission decimal.Decimal
}

// DefaultSchedule returns the compiled-in fee table.
func DefaultSchedule() *Schedule {
	pct := decimal.RequireFromString
	return &Schedule{
		providers: map[string]ProviderRates{
			"razorpay": {Default: pct("2"), Methods: map[string]decimal.Decimal{
				MethodCard: pct("2"), MethodUPI: pct("1"), MethodNetbanking: pct("1.9"),
			}},
			"stripe": {Default: pct("2.9"), Methods: map[string]decimal.Decimal{
				MethodCard: pct("2.9"), MethodBankDebit: pct("0.8"),
			}},
			"phonepe": {Default: pct("1.5"), Methods: map[string]decimal.Decimal{}},
			"cashfree": {Default: pct("1.95"), Methods: map[string]decimal.Decimal{
				MethodUPI: pct("1"),
			}},
		},
		tiers: map[string]decimal.Decimal{
			"STANDARD": pct("15"),
			"PARTNER":  pct("10"),
		},
		defaultTier:   "STANDARD",
		tipPaymentFee: decimal.Zero,
		tipCommission: decimal.Zero,
	}
}

type scheduleFile struct {
	Providers map[string]struct {
		Default float64            `yaml:"default"`
		Methods map[string]float64 `yaml:"methods"`
	} `yaml:"providers"`
	CommissionTiers map[string]float64 `yaml:"commission_tiers"`
	DefaultTier     string             `yaml:"default_tier"`
	Tips            struct {
		PaymentFeePercentage float64 `yaml:"payment_fee_percentage"`
		CommissionPercentage float64 `yaml:"commission_percentage"`
	} `yaml:"tips"`
}

// LoadSchedule reads a YAML fee table from path.
func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fee schedule: %w", err)
	}
	return ParseSchedule(data)
}

// ParseSchedule decodes and validates a YAML fee table.
func ParseSchedule(data []byte) (*Schedule, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fee schedule: %w", err)
	}
	if len(f.Providers) == 0 {
		return nil, fmt.Errorf("fee schedule: no providers defined")
	}
	if len(f.CommissionTiers) == 0 {
		return nil, fmt.Errorf("fee schedule: no commission tiers defined")
	}

	s := &Schedule{
		providers:     make(map[string]ProviderRates, len(f.Providers)),
		tiers:         make(map[string]decimal.Decimal, len(f.CommissionTiers)),
		defaultTier:   strings.ToUpper(strings.TrimSpace(f.DefaultTier)),
		tipPaymentFee: decimal.NewFromFloat(f.Tips.PaymentFeePercentage),
		tipCommission: decimal.NewFromFloat(f.Tips.CommissionPercentage),
	}
	for name, p := range f.Providers {
		rates := ProviderRates{Default: decimal.NewFromFloat(p.Default), Methods: make(map[string]decimal.Decimal, len(p.Methods))}
		for method, v := range p.Methods {
			rates.Methods[strings.ToLower(method)] = decimal.NewFromFloat(v)
		}
		s.providers[strings.ToLower(name)] = rates
	}
	for tier, v := range f.CommissionTiers {
		s.tiers[strings.ToUpper(tier)] = decimal.NewFromFloat(v)
	}
	if s.defaultTier == "" {
		s.defaultTier = "STANDARD"
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schedule) validate() error {
	if _, ok := s.tiers[s.defaultTier]; !ok {
		return fmt.Errorf("fee schedule: default tier %q not defined", s.defaultTier)
	}
	maxCommission := decimal.Zero
	for tier, v := range s.tiers {
		if !inRange(v) {
			return fmt.Errorf("fee schedule: tier %s percentage %s out of range", tier, v)
		}
		if v.GreaterThan(maxCommission) {
			maxCommission = v
		}
	}
	for name, p := range s.providers {
		rates := []decimal.Decimal{p.Default}
		for _, v := range p.Methods {
			rates = append(rates, v)
		}
		for _, v := range rates {
			if !inRange(v) || v.Add(maxCommission).GreaterThan(hundred) {
				return fmt.Errorf("fee schedule: provider %s percentage %s out of range", name, v)
			}
		}
	}
	if !inRange(s.tipPaymentFee) || !inRange(s.tipCommission) || s.tipPaymentFee.Add(s.tipCommission).GreaterThan(hundred) {
		return fmt.Errorf("fee schedule: tip percentages out of range")
	}
	return nil
}

func inRange(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}

// ProcessorPercentage returns the processor fee for (provider, methodClass).
// Unknown method classes fall back to the provider default.
func (s *Schedule) ProcessorPercentage(provider, methodClass string) (decimal.Decimal, error) {
	rates, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if v, ok := rates.Methods[strings.ToLower(methodClass)]; ok {
		return v, nil
	}
	return rates.Default, nil
}

// CommissionPercentage returns the platform commission for a tier; an empty tier means the default.
func (s *Schedule) CommissionPercentage(tier string) (string, decimal.Decimal, error) {
	tier = strings.ToUpper(strings.TrimSpace(tier))
	if tier == "" {
		tier = s.defaultTier
	}
	v, ok := s.tiers[tier]
	if !ok {
		return "", decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return tier, v, nil
}

// Providers lists the providers with a configured fee table.
func (s *Schedule) Providers() []string {
	out := make([]string, 0, len(s.providers))
	for name := range s.providers {
		out = append(out, name)
	}
	return out
}
