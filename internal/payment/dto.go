package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pos-payments/internal"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/pos-payments/internal/fees"
)

// ProcessPaymentRequest is the inbound payload for creating a payment.
// Monetary values travel as decimal strings so no precision is lost on the
// wire.
type ProcessPaymentRequest struct {
	OrderID        string                 `json:"order_id"`
	Amount         string                 `json:"amount"`
	PaymentMethod  string                 `json:"payment_method"`
	RestaurantID   string                 `json:"restaurant_id"`
	PaymentDetails map[string]interface{} `json:"payment_details,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	MonthlyVolume  *string                `json:"monthly_volume,omitempty"`
}

// ToInput parses and validates the wire payload into orchestrator input.
func (r *ProcessPaymentRequest) ToInput(userID, clientIP, userAgent string) (ProcessPaymentInput, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return ProcessPaymentInput{}, internal.NewValidationFieldError("amount", "must be a decimal number", internal.ErrCodeInvalidAmount)
	}

	input := ProcessPaymentInput{
		OrderID:        r.OrderID,
		Amount:         amount,
		Method:         datamodel.Method(r.PaymentMethod),
		PaymentDetails: r.PaymentDetails,
		UserID:         userID,
		RestaurantID:   r.RestaurantID,
		Metadata:       r.Metadata,
		ClientIP:       clientIP,
		UserAgent:      userAgent,
	}

	if r.MonthlyVolume != nil {
		volume, err := decimal.NewFromString(*r.MonthlyVolume)
		if err != nil {
			return ProcessPaymentInput{}, internal.NewValidationFieldError("monthly_volume", "must be a decimal number", internal.ErrCodeInvalidAmount)
		}
		input.MonthlyVolume = &volume
	}
	return input, nil
}

// CalculateFeesRequest is the inbound payload for fee quoting.
type CalculateFeesRequest struct {
	Subtotal                       string  `json:"subtotal"`
	VATAmount                      string  `json:"vat_amount"`
	PaymentMethod                  string  `json:"payment_method"`
	RestaurantID                   string  `json:"restaurant_id"`
	ServiceChargeRate              *string `json:"service_charge_rate,omitempty"`
	MonthlyVolume                  *string `json:"monthly_volume,omitempty"`
	ForceCustomerPaysProcessorFees *bool   `json:"customer_pays_processor_fees,omitempty"`
}

func (r *CalculateFeesRequest) ToInput() (fees.CalculateFeesInput, error) {
	subtotal, err := decimal.NewFromString(r.Subtotal)
	if err != nil {
		return fees.CalculateFeesInput{}, internal.NewValidationFieldError("subtotal", "must be a decimal number", internal.ErrCodeInvalidAmount)
	}
	if !subtotal.IsPositive() {
		return fees.CalculateFeesInput{}, internal.NewValidationFieldError("subtotal", "must be greater than zero", internal.ErrCodeInvalidAmount)
	}

	vat := decimal.Zero
	if r.VATAmount != "" {
		vat, err = decimal.NewFromString(r.VATAmount)
		if err != nil {
			return fees.CalculateFeesInput{}, internal.NewValidationFieldError("vat_amount", "must be a decimal number", internal.ErrCodeInvalidAmount)
		}
		if vat.IsNegative() {
			return fees.CalculateFeesInput{}, internal.NewValidationFieldError("vat_amount", "must not be negative", internal.ErrCodeInvalidAmount)
		}
	}

	method := datamodel.Method(r.PaymentMethod)
	if !method.IsValid() {
		return fees.CalculateFeesInput{}, internal.NewValidationFieldError("payment_method", "unsupported payment method", internal.ErrCodeInvalidPaymentMethod)
	}

	input := fees.CalculateFeesInput{
		Subtotal:                       subtotal,
		VATAmount:                      vat,
		PaymentMethod:                  method,
		RestaurantID:                   r.RestaurantID,
		ForceCustomerPaysProcessorFees: r.ForceCustomerPaysProcessorFees,
	}

	if r.ServiceChargeRate != nil {
		rate, err := decimal.NewFromString(*r.ServiceChargeRate)
		if err != nil || rate.IsNegative() {
			return fees.CalculateFeesInput{}, internal.NewValidationFieldError("service_charge_rate", "must be a non-negative decimal", internal.ErrCodeInvalidAmount)
		}
		input.ServiceChargeRate = &rate
	}
	if r.MonthlyVolume != nil {
		volume, err := decimal.NewFromString(*r.MonthlyVolume)
		if err != nil {
			return fees.CalculateFeesInput{}, internal.NewValidationFieldError("monthly_volume", "must be a decimal number", internal.ErrCodeInvalidAmount)
		}
		input.MonthlyVolume = &volume
	}
	return input, nil
}

// ProcessPaymentResponse mirrors PaymentResult on the wire.
type ProcessPaymentResponse struct {
	PaymentID   string        `json:"payment_id"`
	Status      string        `json:"status"`
	Provider    string        `json:"provider,omitempty"`
	Amount      string        `json:"amount"`
	Currency    string        `json:"currency"`
	Fees        FeeSummaryDTO `json:"fees"`
	NetAmount   string        `json:"net_amount"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

type FeeSummaryDTO struct {
	TotalFee       string `json:"total_fee"`
	RatePercentage string `json:"rate_percentage"`
}

func NewProcessPaymentResponse(result *PaymentResult) ProcessPaymentResponse {
	return ProcessPaymentResponse{
		PaymentID: result.PaymentID,
		Status:    string(result.Status),
		Provider:  result.Provider,
		Amount:    result.Amount.StringFixed(2),
		Currency:  result.Currency,
		Fees: FeeSummaryDTO{
			TotalFee:       result.Fees.TotalFee.StringFixed(2),
			RatePercentage: result.Fees.RatePercentage.String(),
		},
		NetAmount:   result.NetAmount.StringFixed(2),
		CompletedAt: result.CompletedAt,
	}
}

// PaymentDetailResponse is the read-side view of a payment with its audit
// trail.
type PaymentDetailResponse struct {
	PaymentID    string          `json:"payment_id"`
	OrderID      string          `json:"order_id"`
	RestaurantID string          `json:"restaurant_id"`
	Status       string          `json:"status"`
	Provider     *string         `json:"provider,omitempty"`
	Amount       string          `json:"amount"`
	FeeAmount    string          `json:"fee_amount"`
	NetAmount    string          `json:"net_amount"`
	Currency     string          `json:"currency"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	AuditTrail   []AuditEntryDTO `json:"audit_trail"`
}

type AuditEntryDTO struct {
	Action       string    `json:"action"`
	Provider     *string   `json:"provider,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewPaymentDetailResponse(p *datamodel.Payment, trail []*datamodel.AuditLog) PaymentDetailResponse {
	resp := PaymentDetailResponse{
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		RestaurantID: p.RestaurantID,
		Status:       string(p.Status),
		Provider:     p.Provider,
		Amount:       p.Amount.StringFixed(2),
		FeeAmount:    p.FeeAmount.StringFixed(2),
		NetAmount:    p.NetAmount.StringFixed(2),
		Currency:     p.Currency,
		ErrorMessage: p.ErrorMessage,
		CreatedAt:    p.CreatedAt,
		CompletedAt:  p.CompletedAt,
		AuditTrail:   make([]AuditEntryDTO, 0, len(trail)),
	}
	for _, entry := range trail {
		resp.AuditTrail = append(resp.AuditTrail, AuditEntryDTO{
			Action:       string(entry.Action),
			Provider:     entry.Provider,
			ErrorMessage: entry.ErrorMessage,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return resp
}
