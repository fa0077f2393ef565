package booking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFeePolicy(t *testing.T, rate string, minFee int64) FeePolicy {
	t.Helper()
	p, err := NewFeePolicy(decimal.RequireFromString(rate), minFee)
	require.NoError(t, err)
	return p
}

func TestFeePolicyCalculate(t *testing.T) {
	tests := []struct {
		name    string
		rate    string
		minFee  int64
		price   int64
		fee     int64
		earning int64
		clamped bool
	}{
		{name: "rate applies", rate: "0.1", minFee: 5000, price: 500000, fee: 50000, earning: 450000},
		{name: "minimum fee applies", rate: "0.1", minFee: 5000, price: 20000, fee: 5000, earning: 15000},
		{name: "rounds half away from zero", rate: "0.1", minFee: 0, price: 15, fee: 2, earning: 13},
		{name: "rounds down below half", rate: "0.1", minFee: 0, price: 14, fee: 1, earning: 13},
		{name: "minimum above price is clamped", rate: "0.1", minFee: 5000, price: 3000, fee: 3000, earning: 0, clamped: true},
		{name: "minimum equal to price", rate: "0.1", minFee: 3000, price: 3000, fee: 3000, earning: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustFeePolicy(t, tt.rate, tt.minFee)

			got, err := p.Calculate(tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.price, got.Price)
			assert.Equal(t, tt.fee, got.PlatformFee)
			assert.Equal(t, tt.earning, got.ProviderEarning)
			assert.Equal(t, tt.clamped, got.Clamped)
			assert.Equal(t, got.Price, got.PlatformFee+got.ProviderEarning)
		})
	}
}

func TestFeePolicyNeverReturnsNegativeEarning(t *testing.T) {
	p := mustFeePolicy(t, "0.99", 100000)
	for price := int64(1); price <= 200000; price += 997 {
		got, err := p.Calculate(price)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.ProviderEarning, int64(0), "price %d", price)
		assert.Equal(t, price, got.PlatformFee+got.ProviderEarning)
	}
}

func TestFeePolicyRejectsNonPositivePrice(t *testing.T) {
	p := mustFeePolicy(t, "0.1", 0)

	_, err := p.Calculate(0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = p.Calculate(-10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewFeePolicyValidatesConfig(t *testing.T) {
	for _, rate := range []string{"0", "1", "1.5", "-0.1"} {
		_, err := NewFeePolicy(decimal.RequireFromString(rate), 0)
		assert.Error(t, err, "rate %s", rate)
	}

	_, err := NewFeePolicy(decimal.RequireFromString("0.1"), -1)
	assert.Error(t, err)
}
