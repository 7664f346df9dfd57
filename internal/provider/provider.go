package provider

import (
	"context"

	"github.com/shopspring/decimal"

	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// FailureKind tags why a charge attempt did not succeed. Attempt failures
// are expected-to-happen-sometimes outcomes, not errors: the orchestrator
// pattern-matches on the tag to drive fallback.
type FailureKind string

const (
	FailureDeclined        FailureKind = "declined"
	FailureTimeout         FailureKind = "timeout"
	FailureConnectivity    FailureKind = "connectivity"
	FailureInvalidResponse FailureKind = "invalid_response"
)

// ChargeRequest is the provider-agnostic charge input. PaymentDetails and
// Metadata are provider-specific and opaque; they are sanitized before any
// of them reaches the audit trail.
type ChargeRequest struct {
	PaymentID      string
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	CustomerInfo   map[string]interface{}
	PaymentDetails map[string]interface{}
	Metadata       map[string]interface{}
}

// ChargeResult is the tagged outcome of one charge attempt.
type ChargeResult struct {
	Succeeded     bool
	TransactionID string
	// Fee and NetAmount are the provider-reported amounts when it declares
	// them; nil means the caller computes the fee itself.
	Fee           *decimal.Decimal
	NetAmount     *decimal.Decimal
	RawResponse   map[string]interface{}
	FailureKind   FailureKind
	FailureDetail string
}

func Succeeded(transactionID string, raw map[string]interface{}) ChargeResult {
	return ChargeResult{
		Succeeded:     true,
		TransactionID: transactionID,
		RawResponse:   raw,
	}
}

func Failed(kind FailureKind, detail string) ChargeResult {
	return ChargeResult{
		FailureKind:   kind,
		FailureDetail: detail,
	}
}

// Client is the outbound provider capability. Implementations wrap one
// external payment provider; declines and transport failures come back as
// tagged results, never as Go errors.
type Client interface {
	Name() string
	Supports(method datamodel.Method) bool
	Charge(ctx context.Context, req ChargeRequest) ChargeResult
	TestConnection(ctx context.Context) error
	// CalculateFee is the provider's own declared rate, used as a fallback
	// when the caller does not compute the fee itself.
	CalculateFee(amount decimal.Decimal) decimal.Decimal
}
