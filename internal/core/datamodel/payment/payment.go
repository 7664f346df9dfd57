package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Method string

const (
	MethodCard      Method = "card"
	MethodCash      Method = "cash"
	MethodQRCode    Method = "qr_code"
	MethodApplePay  Method = "apple_pay"
	MethodGooglePay Method = "google_pay"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodCard, MethodCash, MethodQRCode, MethodApplePay, MethodGooglePay:
		return true
	}
	return false
}

// Payment is the financial record of one orchestration call. Rows are
// created pending before any provider is contacted, moved to exactly one
// terminal status, and never deleted.
type Payment struct {
	ID                    string          `gorm:"primaryKey;size:36"`
	OrderID               string          `gorm:"column:order_id;not null;index"`
	RestaurantID          string          `gorm:"column:restaurant_id;not null;index"`
	UserID                string          `gorm:"column:user_id;not null"`
	Amount                decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	Currency              string          `gorm:"column:currency;size:3;not null"`
	FeeAmount             decimal.Decimal `gorm:"column:fee_amount;type:decimal(20,2);not null"`
	NetAmount             decimal.Decimal `gorm:"column:net_amount;type:decimal(20,2);not null"`
	Status                Status          `gorm:"column:status;default:pending;index"`
	Provider              *string         `gorm:"column:provider"`
	ProviderTransactionID *string         `gorm:"column:provider_transaction_id"`
	ProviderResponse      json.RawMessage `gorm:"column:provider_response;type:jsonb"`
	ErrorMessage          *string         `gorm:"column:error_message"`
	Version               int             `gorm:"column:version;not null;default:0"`
	CreatedAt             time.Time       `gorm:"column:created_at;default:now()"`
	CompletedAt           *time.Time      `gorm:"column:completed_at"`
}

func (Payment) TableName() string {
	return "payments"
}

type AuditAction string

const (
	AuditActionAttempt         AuditAction = "attempt"
	AuditActionProviderAttempt AuditAction = "provider_attempt"
	AuditActionProviderFailure AuditAction = "provider_failure"
	AuditActionSuccess         AuditAction = "success"
	AuditActionFailure         AuditAction = "failure"
)

// AuditLog is one append-only row per discrete orchestration action.
// Request and response snapshots are sanitized before they get here.
type AuditLog struct {
	ID           int64           `gorm:"primaryKey"`
	PaymentID    string          `gorm:"column:payment_id;not null;index"`
	Action       AuditAction     `gorm:"column:action;not null"`
	Provider     *string         `gorm:"column:provider"`
	UserID       string          `gorm:"column:user_id"`
	IPAddress    string          `gorm:"column:ip_address"`
	UserAgent    string          `gorm:"column:user_agent"`
	RequestData  json.RawMessage `gorm:"column:request_data;type:jsonb"`
	ResponseData json.RawMessage `gorm:"column:response_data;type:jsonb"`
	ErrorMessage *string         `gorm:"column:error_message"`
	CreatedAt    time.Time       `gorm:"column:created_at;default:now()"`
}

func (AuditLog) TableName() string {
	return "payment_audit_logs"
}
