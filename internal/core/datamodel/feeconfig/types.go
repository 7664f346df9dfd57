package feeconfig

import (
	"github.com/shopspring/decimal"
)

// PaymentMethodSetting is the per-method, per-restaurant fee-bearing rule
// resolved by the configuration provider. Restaurant-specific entries win
// over platform defaults.
type PaymentMethodSetting struct {
	CustomerPaysProcessorFeeByDefault  bool
	AllowToggleByMerchant              bool
	IncludeProcessorFeeInServiceCharge bool
}

// VolumeTier is a discounted rate that applies once a restaurant's reported
// monthly volume reaches the threshold.
type VolumeTier struct {
	MinMonthlyVolume decimal.Decimal
	Percentage       decimal.Decimal
	FixedFee         decimal.Decimal
}

// ProviderRate is a provider's fee table: a standard percentage + fixed fee
// and optional volume tiers sorted ascending by threshold.
type ProviderRate struct {
	Percentage  decimal.Decimal
	FixedFee    decimal.Decimal
	Currency    string
	VolumeTiers []VolumeTier
}

// TierFor returns the percentage and fixed fee to apply for the reported
// monthly volume: the highest tier whose threshold is covered, or the
// standard rate when no volume is supplied or no tier matches.
func (r *ProviderRate) TierFor(monthlyVolume *decimal.Decimal) (percentage, fixedFee decimal.Decimal) {
	percentage, fixedFee = r.Percentage, r.FixedFee
	if monthlyVolume == nil {
		return percentage, fixedFee
	}
	for _, tier := range r.VolumeTiers {
		if monthlyVolume.GreaterThanOrEqual(tier.MinMonthlyVolume) {
			percentage, fixedFee = tier.Percentage, tier.FixedFee
		}
	}
	return percentage, fixedFee
}

// EffectiveFee is the ranking fee for a transaction amount at this rate.
func (r *ProviderRate) EffectiveFee(amount decimal.Decimal, monthlyVolume *decimal.Decimal) decimal.Decimal {
	percentage, fixedFee := r.TierFor(monthlyVolume)
	return percentage.Mul(amount).Add(fixedFee)
}
