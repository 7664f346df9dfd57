package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// CashClient is the deterministic local "provider" for cash payments:
// always available, zero fee, never part of a fallback chain.
type CashClient struct{}

func NewCashClient() *CashClient {
	return &CashClient{}
}

func (c *CashClient) Name() string {
	return "cash"
}

func (c *CashClient) Supports(method datamodel.Method) bool {
	return method == datamodel.MethodCash
}

func (c *CashClient) Charge(_ context.Context, req ChargeRequest) ChargeResult {
	return Succeeded(fmt.Sprintf("cash_%s", uuid.New().String()), map[string]interface{}{
		"status":   "succeeded",
		"order_id": req.OrderID,
		"amount":   req.Amount.StringFixed(2),
		"currency": req.Currency,
	})
}

func (c *CashClient) TestConnection(_ context.Context) error {
	return nil
}

func (c *CashClient) CalculateFee(_ decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
