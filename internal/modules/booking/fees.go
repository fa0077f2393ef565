package booking

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeePolicy computes the platform cut of a booking price.
type FeePolicy struct {
	Rate       decimal.Decimal
	MinimumFee int64
}

type FeeBreakdown struct {
	Price           int64 `json:"price"`
	PlatformFee     int64 `json:"platform_fee"`
	ProviderEarning int64 `json:"provider_earning"`
	// Clamped is set when the minimum fee exceeded the price and the fee was
	// cut down to the price. It signals a configuration problem.
	Clamped bool `json:"-"`
}

func NewFeePolicy(rate decimal.Decimal, minimumFee int64) (FeePolicy, error) {
	if !rate.IsPositive() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return FeePolicy{}, fmt.Errorf("fee rate must be in (0,1), got %s", rate)
	}
	if minimumFee < 0 {
		return FeePolicy{}, fmt.Errorf("minimum fee must be >= 0, got %d", minimumFee)
	}
	return FeePolicy{Rate: rate, MinimumFee: minimumFee}, nil
}

// Calculate returns max(round(price*rate), minimumFee) as the platform fee,
// never more than the price, and the remainder as the provider's earning.
func (p FeePolicy) Calculate(price int64) (FeeBreakdown, error) {
	if price <= 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: price must be positive, got %d", ErrValidation, price)
	}

	fee := decimal.NewFromInt(price).Mul(p.Rate).Round(0).IntPart()
	if fee < p.MinimumFee {
		fee = p.MinimumFee
	}

	clamped := false
	if fee > price {
		fee = price
		clamped = true
	}

	return FeeBreakdown{
		Price:           price,
		PlatformFee:     fee,
		ProviderEarning: price - fee,
		Clamped:         clamped,
	}, nil
}
