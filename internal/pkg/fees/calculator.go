package fees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownTier     = errors.New("unknown commission tier")
	ErrInvalidAmount   = errors.New("gross amount must be positive")
)

// Earnings is the result of a fee calculation. All amounts are minor units.
// The percentages are echoed so they can be stored with the transaction.
type Earnings struct {
	GrossAmount                  int64
	Currency                     string
	PaymentFee                   int64
	PaymentFeePercentage         decimal.Decimal
	PlatformCommission           int64
	PlatformCommissionPercentage decimal.Decimal
	NetEarnings                  int64
	CreatorSharePercentage       decimal.Decimal
	CommissionTier               string
	MethodClass                  string
}

// Calculator turns a gross charge into processor fee, platform commission and creator net.
type Calculator struct {
	schedule *Schedule
}

func NewCalculator(schedule *Schedule) *Calculator {
	if schedule == nil {
		schedule = DefaultSchedule()
	}
	return &Calculator{schedule: schedule}
}

func (c *Calculator) Schedule() *Schedule {
	return c.schedule
}

// Calculate splits gross using the processor rate for (provider, methodClass) and the
// commission for tier. The creator share is rounded down and the platform commission
// absorbs the remainder, so PaymentFee+PlatformCommission+NetEarnings == GrossAmount.
func (c *Calculator) Calculate(gross int64, provider, methodClass, tier, currency string) (Earnings, error) {
	if gross <= 0 {
		return Earnings{}, ErrInvalidAmount
	}
	feePct, err := c.schedule.ProcessorPercentage(provider, methodClass)
	if err != nil {
		return Earnings{}, err
	}
	tierName, commissionPct, err := c.schedule.CommissionPercentage(tier)
	if err != nil {
		return Earnings{}, err
	}
	e := split(gross, feePct, commissionPct)
	e.Currency = strings.ToUpper(currency)
	e.CommissionTier = tierName
	e.MethodClass = strings.ToLower(methodClass)
	return e, nil
}

// CalculateTip applies the tip rates, which are zero unless configured.
func (c *Calculator) CalculateTip(gross int64, currency string) (Earnings, error) {
	if gross <= 0 {
		return Earnings{}, ErrInvalidAmount
	}
	e := split(gross, c.schedule.tipPaymentFee, c.schedule.tipCommission)
	e.Currency = strings.ToUpper(currency)
	return e, nil
}

func split(gross int64, feePct, commissionPct decimal.Decimal) Earnings {
	g := decimal.NewFromInt(gross)
	sharePct := hundred.Sub(feePct).Sub(commissionPct)
	if sharePct.IsNegative() {
		sharePct = decimal.Zero
	}

	fee := g.Mul(feePct).Div(hundred).Floor().IntPart()
	net := g.Mul(sharePct).Div(hundred).Floor().IntPart()
	if net < 0 {
		net = 0
	}
	if net > gross-fee {
		net = gross - fee
	}

	return Earnings{
		GrossAmount:                  gross,
		PaymentFee:                   fee,
		PaymentFeePercentage:         feePct,
		PlatformCommission:           gross - fee - net,
		PlatformCommissionPercentage: commissionPct,
		NetEarnings:                  net,
		CreatorSharePercentage:       sharePct,
	}
}

func (e Earnings) String() string {
	return fmt.Sprintf("gross=%d fee=%d(%s%%) commission=%d(%s%%) net=%d %s",
		e.GrossAmount, e.PaymentFee, e.PaymentFeePercentage, e.PlatformCommission, e.PlatformCommissionPercentage, e.NetEarnings, e.Currency)
}
