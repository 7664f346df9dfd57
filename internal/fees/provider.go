package fees

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pos-payments/internal"
	"github.com/frahmantamala/pos-payments/internal/core/datamodel/feeconfig"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// ConfigProvider resolves fee and service-charge configuration. Lookups
// resolve restaurant-specific first, then platform default, then the
// engine's hard fallback; the provider never mutates configuration.
type ConfigProvider interface {
	// GetPaymentMethodSetting returns nil, nil when neither a restaurant
	// entry nor a platform default exists for the method.
	GetPaymentMethodSetting(ctx context.Context, method datamodel.Method, restaurantID string) (*feeconfig.PaymentMethodSetting, error)
	GetProviderRate(ctx context.Context, provider string) (*feeconfig.ProviderRate, error)
	// GetMethodRate returns the rate table of the default provider for a
	// payment method, used when fees are computed before a provider is
	// chosen. Cash has no rate entry and reports ok=false.
	GetMethodRate(ctx context.Context, method datamodel.Method, restaurantID string) (*feeconfig.ProviderRate, bool)
	GetServiceChargeRate(ctx context.Context, restaurantID string) (decimal.Decimal, bool)
	ServiceChargeEnabled(ctx context.Context, restaurantID string) bool
	GetPlatformFeeRate(ctx context.Context) (decimal.Decimal, bool)
	ProviderEnabled(ctx context.Context, provider, restaurantID string) bool
}

// StaticProvider is a ConfigProvider backed by the loaded application
// config. Rates are parsed once at construction so lookup paths never fail
// on malformed decimals.
type StaticProvider struct {
	serviceChargeEnabled bool
	serviceChargeRate    *decimal.Decimal
	restaurantRates      map[string]decimal.Decimal
	disabledRestaurants  map[string]bool
	platformFeeRate      *decimal.Decimal
	providerRates        map[string]*feeconfig.ProviderRate
	providerMethods      map[string]map[datamodel.Method]bool
	providerRestaurants  map[string]map[string]bool
	methodSettings       map[string]feeconfig.PaymentMethodSetting
}

func NewStaticProvider(cfg *internal.PaymentConfig) (*StaticProvider, error) {
	p := &StaticProvider{
		serviceChargeEnabled: cfg.ServiceCharge.Enabled,
		restaurantRates:      make(map[string]decimal.Decimal),
		disabledRestaurants:  make(map[string]bool),
		providerRates:        make(map[string]*feeconfig.ProviderRate),
		providerMethods:      make(map[string]map[datamodel.Method]bool),
		providerRestaurants:  make(map[string]map[string]bool),
		methodSettings:       make(map[string]feeconfig.PaymentMethodSetting),
	}

	if cfg.ServiceCharge.Rate != "" {
		rate, err := decimal.NewFromString(cfg.ServiceCharge.Rate)
		if err != nil {
			return nil, fmt.Errorf("service_charge.rate: %w", err)
		}
		p.serviceChargeRate = &rate
	}
	for restaurantID, raw := range cfg.ServiceCharge.RestaurantRates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("service_charge.restaurant_rates[%s]: %w", restaurantID, err)
		}
		p.restaurantRates[restaurantID] = rate
	}
	for _, restaurantID := range cfg.ServiceCharge.DisabledRestaurants {
		p.disabledRestaurants[restaurantID] = true
	}
	if cfg.PlatformFeeRate != "" {
		rate, err := decimal.NewFromString(cfg.PlatformFeeRate)
		if err != nil {
			return nil, fmt.Errorf("platform_fee_rate: %w", err)
		}
		p.platformFeeRate = &rate
	}

	for _, pc := range cfg.Providers {
		rate, err := parseProviderRate(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		p.providerRates[pc.Name] = rate

		methods := make(map[datamodel.Method]bool, len(pc.Methods))
		for _, m := range pc.Methods {
			methods[datamodel.Method(m)] = true
		}
		p.providerMethods[pc.Name] = methods

		if len(pc.Restaurants) > 0 {
			restaurants := make(map[string]bool, len(pc.Restaurants))
			for _, r := range pc.Restaurants {
				restaurants[r] = true
			}
			p.providerRestaurants[pc.Name] = restaurants
		}
	}

	for _, ms := range cfg.MethodSettings {
		p.methodSettings[settingKey(datamodel.Method(ms.Method), ms.RestaurantID)] = feeconfig.PaymentMethodSetting{
			CustomerPaysProcessorFeeByDefault:  ms.CustomerPaysProcessorFeeByDefault,
			AllowToggleByMerchant:              ms.AllowToggleByMerchant,
			IncludeProcessorFeeInServiceCharge: ms.IncludeProcessorFeeInServiceCharge,
		}
	}

	return p, nil
}

func parseProviderRate(pc internal.ProviderConfig) (*feeconfig.ProviderRate, error) {
	rate := &feeconfig.ProviderRate{Currency: pc.Currency}

	var err error
	if rate.Percentage, err = parseDecimalOrZero(pc.Percentage); err != nil {
		return nil, fmt.Errorf("percentage: %w", err)
	}
	if rate.FixedFee, err = parseDecimalOrZero(pc.FixedFee); err != nil {
		return nil, fmt.Errorf("fixed_fee: %w", err)
	}

	for i, tc := range pc.VolumeTiers {
		tier := feeconfig.VolumeTier{}
		if tier.MinMonthlyVolume, err = parseDecimalOrZero(tc.MinMonthlyVolume); err != nil {
			return nil, fmt.Errorf("volume_tiers[%d].min_monthly_volume: %w", i, err)
		}
		if tier.Percentage, err = parseDecimalOrZero(tc.Percentage); err != nil {
			return nil, fmt.Errorf("volume_tiers[%d].percentage: %w", i, err)
		}
		if tier.FixedFee, err = parseDecimalOrZero(tc.FixedFee); err != nil {
			return nil, fmt.Errorf("volume_tiers[%d].fixed_fee: %w", i, err)
		}
		rate.VolumeTiers = append(rate.VolumeTiers, tier)
	}
	return rate, nil
}

func parseDecimalOrZero(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func settingKey(method datamodel.Method, restaurantID string) string {
	return string(method) + "|" + restaurantID
}

func (p *StaticProvider) GetPaymentMethodSetting(_ context.Context, method datamodel.Method, restaurantID string) (*feeconfig.PaymentMethodSetting, error) {
	if restaurantID != "" {
		if setting, ok := p.methodSettings[settingKey(method, restaurantID)]; ok {
			s := setting
			return &s, nil
		}
	}
	if setting, ok := p.methodSettings[settingKey(method, "")]; ok {
		s := setting
		return &s, nil
	}
	return nil, nil
}

func (p *StaticProvider) GetProviderRate(_ context.Context, provider string) (*feeconfig.ProviderRate, error) {
	rate, ok := p.providerRates[provider]
	if !ok {
		return nil, fmt.Errorf("no rate configured for provider %q", provider)
	}
	return rate, nil
}

// GetMethodRate picks the cheapest configured provider that supports the
// method and is enabled for the restaurant, mirroring how the selector
// would rank a unit amount.
func (p *StaticProvider) GetMethodRate(ctx context.Context, method datamodel.Method, restaurantID string) (*feeconfig.ProviderRate, bool) {
	if method == datamodel.MethodCash {
		return nil, false
	}
	var best *feeconfig.ProviderRate
	var bestName string
	for name, methods := range p.providerMethods {
		if !methods[method] || !p.ProviderEnabled(ctx, name, restaurantID) {
			continue
		}
		rate := p.providerRates[name]
		if rate == nil {
			continue
		}
		if best == nil {
			best, bestName = rate, name
			continue
		}
		unit := decimal.NewFromInt(1)
		better := rate.EffectiveFee(unit, nil).Cmp(best.EffectiveFee(unit, nil))
		if better < 0 || (better == 0 && name < bestName) {
			best, bestName = rate, name
		}
	}
	return best, best != nil
}

func (p *StaticProvider) GetServiceChargeRate(_ context.Context, restaurantID string) (decimal.Decimal, bool) {
	if restaurantID != "" {
		if rate, ok := p.restaurantRates[restaurantID]; ok {
			return rate, true
		}
	}
	if p.serviceChargeRate != nil {
		return *p.serviceChargeRate, true
	}
	return decimal.Zero, false
}

func (p *StaticProvider) ServiceChargeEnabled(_ context.Context, restaurantID string) bool {
	if !p.serviceChargeEnabled {
		return false
	}
	return !p.disabledRestaurants[restaurantID]
}

func (p *StaticProvider) GetPlatformFeeRate(_ context.Context) (decimal.Decimal, bool) {
	if p.platformFeeRate == nil {
		return decimal.Zero, false
	}
	return *p.platformFeeRate, true
}

// ProviderEnabled reports whether a provider serves a restaurant. A
// provider with no restaurant list serves all of them.
func (p *StaticProvider) ProviderEnabled(_ context.Context, provider, restaurantID string) bool {
	if _, ok := p.providerRates[provider]; !ok {
		return false
	}
	restaurants, restricted := p.providerRestaurants[provider]
	if !restricted {
		return true
	}
	return restaurants[restaurantID]
}
