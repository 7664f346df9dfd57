package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// RepositoryAPI is the durable store for payments and their audit trail.
// FinalizeStatus must be guarded by the row version so concurrent writers
// surface as version conflicts rather than lost updates.
type RepositoryAPI interface {
	// WithTx returns a repository bound to the given transaction handle so
	// multi-statement writes share one boundary.
	WithTx(tx *gorm.DB) RepositoryAPI
	Create(ctx context.Context, p *datamodel.Payment) error
	GetByID(ctx context.Context, id string) (*datamodel.Payment, error)
	// FinalizeStatus moves a pending payment to its terminal state. The
	// update is conditional on the version and status the caller read.
	FinalizeStatus(ctx context.Context, p *datamodel.Payment) error
	AppendAuditLog(ctx context.Context, entry *datamodel.AuditLog) error
	ListAuditLogs(ctx context.Context, paymentID string) ([]*datamodel.AuditLog, error)
}

// ProcessPaymentInput is the orchestration request. MonthlyVolume, when the
// caller knows it, selects discounted volume tiers during provider ranking
// and fee computation.
type ProcessPaymentInput struct {
	OrderID        string
	Amount         decimal.Decimal
	Method         datamodel.Method
	PaymentDetails map[string]interface{}
	UserID         string
	RestaurantID   string
	Metadata       map[string]interface{}
	MonthlyVolume  *decimal.Decimal
	ClientIP       string
	UserAgent      string
}

type FeeSummary struct {
	TotalFee       decimal.Decimal `json:"total_fee"`
	RatePercentage decimal.Decimal `json:"rate_percentage"`
}

// PaymentResult is what the caller gets back for a completed payment.
type PaymentResult struct {
	PaymentID   string           `json:"payment_id"`
	Status      datamodel.Status `json:"status"`
	Provider    string           `json:"provider"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Fees        FeeSummary       `json:"fees"`
	NetAmount   decimal.Decimal  `json:"net_amount"`
	CompletedAt *time.Time       `json:"completed_at"`
}
