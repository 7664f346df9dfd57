package fees

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pos-payments/internal"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// fallbackServiceChargeRate applies when neither a restaurant rate nor a
// platform rate is configured.
var fallbackServiceChargeRate = decimal.RequireFromString("0.125")

// ServiceChargeBreakdown is the computed service charge for an order; it is
// not persisted here, persistence is the caller's concern.
type ServiceChargeBreakdown struct {
	OriginalServiceCharge    decimal.Decimal `json:"original_service_charge"`
	ProcessorFeeIncluded     decimal.Decimal `json:"processor_fee_included"`
	FinalServiceChargeAmount decimal.Decimal `json:"final_service_charge_amount"`
	RateApplied              decimal.Decimal `json:"rate_applied"`
	FeeInclusionActive       bool            `json:"fee_inclusion_active"`
}

// CustomerTotalBreakdown is what the customer is actually charged. The
// processor fee appears either folded into the service charge or itemized,
// never both.
type CustomerTotalBreakdown struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	VAT           decimal.Decimal `json:"vat"`
	ServiceCharge decimal.Decimal `json:"service_charge"`
	ProcessorFee  decimal.Decimal `json:"processor_fee"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// FeeCalculation is the combined result of the CalculateFees operation.
type FeeCalculation struct {
	ServiceCharge            ServiceChargeBreakdown `json:"service_charge"`
	Totals                   CustomerTotalBreakdown `json:"totals"`
	CustomerPaysProcessorFee bool                   `json:"customer_pays_processor_fee"`
}

// CalculateFeesInput carries the inbound fee computation request.
type CalculateFeesInput struct {
	Subtotal                       decimal.Decimal
	VATAmount                      decimal.Decimal
	ServiceChargeRate              *decimal.Decimal
	PaymentMethod                  datamodel.Method
	RestaurantID                   string
	MonthlyVolume                  *decimal.Decimal
	ForceCustomerPaysProcessorFees *bool
}

// Engine derives processor fees, service charges and customer totals from
// configuration. It is a pure function of its inputs plus configuration
// lookups; it owns no state and performs no writes.
type Engine struct {
	config ConfigProvider
	logger *slog.Logger
}

func NewEngine(config ConfigProvider, logger *slog.Logger) *Engine {
	return &Engine{
		config: config,
		logger: logger,
	}
}

// CalculateProcessorFee applies the method's rate entry (percentage + fixed
// fee, volume-tiered where configured) to the transaction amount. Cash
// always yields zero. Result is rounded half-up to 2 decimals.
func (e *Engine) CalculateProcessorFee(ctx context.Context, transactionAmount decimal.Decimal, method datamodel.Method, restaurantID string, monthlyVolume *decimal.Decimal) decimal.Decimal {
	if method == datamodel.MethodCash {
		return decimal.Zero
	}
	rate, ok := e.config.GetMethodRate(ctx, method, restaurantID)
	if !ok {
		e.logger.Debug("no rate entry for payment method, fee is zero",
			"payment_method", method,
			"restaurant_id", restaurantID)
		return decimal.Zero
	}
	return rate.EffectiveFee(transactionAmount, monthlyVolume).Round(2)
}

// CalculateProviderFee applies a specific provider's rate table, used when
// a charge succeeded but the provider did not report its fee.
func (e *Engine) CalculateProviderFee(ctx context.Context, transactionAmount decimal.Decimal, provider string, monthlyVolume *decimal.Decimal) (decimal.Decimal, error) {
	rate, err := e.config.GetProviderRate(ctx, provider)
	if err != nil {
		return decimal.Zero, err
	}
	return rate.EffectiveFee(transactionAmount, monthlyVolume).Round(2), nil
}

// CalculateServiceCharge computes the service charge on an order subtotal.
// When fee folding is active for the method, the processor fee is computed
// on the amount that will actually be processed, subtotal + vat + the
// original service charge, and added into the displayed charge. Every money
// value is rounded half-up to 2 decimals once, at the point it is derived.
func (e *Engine) CalculateServiceCharge(ctx context.Context, subtotal, vatAmount decimal.Decimal, method datamodel.Method, restaurantID string, monthlyVolume *decimal.Decimal, rateOverride *decimal.Decimal) ServiceChargeBreakdown {
	if !e.config.ServiceChargeEnabled(ctx, restaurantID) {
		return ServiceChargeBreakdown{
			OriginalServiceCharge:    decimal.Zero,
			ProcessorFeeIncluded:     decimal.Zero,
			FinalServiceChargeAmount: decimal.Zero,
			RateApplied:              decimal.Zero,
		}
	}

	rate := e.resolveServiceChargeRate(ctx, restaurantID, rateOverride)
	originalServiceCharge := subtotal.Mul(rate).Round(2)

	breakdown := ServiceChargeBreakdown{
		OriginalServiceCharge:    originalServiceCharge,
		ProcessorFeeIncluded:     decimal.Zero,
		FinalServiceChargeAmount: originalServiceCharge,
		RateApplied:              rate,
	}

	if method == datamodel.MethodCash || !e.resolveFeeInclusion(ctx, method, restaurantID) {
		return breakdown
	}

	// fee on the inclusive amount: the charge being processed contains the
	// service charge itself
	feeBase := subtotal.Add(vatAmount).Add(originalServiceCharge)
	processorFee := e.CalculateProcessorFee(ctx, feeBase, method, restaurantID, monthlyVolume)

	breakdown.ProcessorFeeIncluded = processorFee
	breakdown.FinalServiceChargeAmount = originalServiceCharge.Add(processorFee)
	breakdown.FeeInclusionActive = true
	return breakdown
}

// CalculateCustomerTotal assembles the final amounts. The processor fee is
// itemized as its own line only when the customer bears it and folding was
// not already applied in the service charge; the two are mutually exclusive
// so the fee can never be applied twice.
func (e *Engine) CalculateCustomerTotal(ctx context.Context, subtotal, vat, serviceChargeFinalAmount decimal.Decimal, method datamodel.Method, customerPaysProcessorFee bool, restaurantID string, monthlyVolume *decimal.Decimal) CustomerTotalBreakdown {
	breakdown := CustomerTotalBreakdown{
		Subtotal:      subtotal,
		VAT:           vat,
		ServiceCharge: serviceChargeFinalAmount,
		ProcessorFee:  decimal.Zero,
		PlatformFee:   decimal.Zero,
	}

	feeAlreadyFolded := method != datamodel.MethodCash && e.resolveFeeInclusion(ctx, method, restaurantID)
	if customerPaysProcessorFee && !feeAlreadyFolded {
		chargedAmount := subtotal.Add(vat).Add(serviceChargeFinalAmount)
		breakdown.ProcessorFee = e.CalculateProcessorFee(ctx, chargedAmount, method, restaurantID, monthlyVolume)
	}

	if platformRate, ok := e.config.GetPlatformFeeRate(ctx); ok {
		breakdown.PlatformFee = subtotal.Mul(platformRate).Round(2)
	}

	breakdown.GrandTotal = subtotal.Add(vat).Add(serviceChargeFinalAmount).Add(breakdown.ProcessorFee)
	return breakdown
}

// CalculateFees is the inbound fee computation operation. A request to
// override who pays the processor fee is honored only when the resolved
// method setting allows merchant toggling.
func (e *Engine) CalculateFees(ctx context.Context, input CalculateFeesInput) (*FeeCalculation, error) {
	setting, err := e.config.GetPaymentMethodSetting(ctx, input.PaymentMethod, input.RestaurantID)
	if err != nil {
		return nil, err
	}

	customerPays := false
	if setting != nil {
		customerPays = setting.CustomerPaysProcessorFeeByDefault
	}
	if input.ForceCustomerPaysProcessorFees != nil {
		if setting == nil || !setting.AllowToggleByMerchant {
			return nil, internal.ErrFeeToggleNotAllowed
		}
		customerPays = *input.ForceCustomerPaysProcessorFees
	}

	serviceCharge := e.CalculateServiceCharge(ctx, input.Subtotal, input.VATAmount, input.PaymentMethod, input.RestaurantID, input.MonthlyVolume, input.ServiceChargeRate)
	totals := e.CalculateCustomerTotal(ctx, input.Subtotal, input.VATAmount, serviceCharge.FinalServiceChargeAmount, input.PaymentMethod, customerPays, input.RestaurantID, input.MonthlyVolume)

	return &FeeCalculation{
		ServiceCharge:            serviceCharge,
		Totals:                   totals,
		CustomerPaysProcessorFee: customerPays,
	}, nil
}

func (e *Engine) resolveServiceChargeRate(ctx context.Context, restaurantID string, rateOverride *decimal.Decimal) decimal.Decimal {
	if rateOverride != nil {
		return *rateOverride
	}
	if rate, ok := e.config.GetServiceChargeRate(ctx, restaurantID); ok {
		return rate
	}
	return fallbackServiceChargeRate
}

// resolveFeeInclusion decides whether processor fees fold into the service
// charge: restaurant or platform setting when present, otherwise the
// heuristic default of "yes for everything except cash".
func (e *Engine) resolveFeeInclusion(ctx context.Context, method datamodel.Method, restaurantID string) bool {
	setting, err := e.config.GetPaymentMethodSetting(ctx, method, restaurantID)
	if err != nil {
		e.logger.Error("failed to resolve payment method setting",
			"payment_method", method,
			"restaurant_id", restaurantID,
			"error", err)
		return method != datamodel.MethodCash
	}
	if setting != nil {
		return setting.IncludeProcessorFeeInServiceCharge
	}
	return method != datamodel.MethodCash
}
