package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/pos-payments/internal/payment"
	"github.com/frahmantamala/pos-payments/internal/transaction"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FinalizeStatus performs the guarded terminal-status write. The update
// only lands when the row still carries the version and pending status the
// caller read; zero affected rows means another writer got there first and
// is reported as a version conflict.
func (r *PaymentRepository) FinalizeStatus(ctx context.Context, p *payment.Payment) error {
	updates := map[string]interface{}{
		"status":  p.Status,
		"version": p.Version + 1,
	}
	if p.Provider != nil {
		updates["provider"] = *p.Provider
	}
	if p.ProviderTransactionID != nil {
		updates["provider_transaction_id"] = *p.ProviderTransactionID
	}
	if p.ProviderResponse != nil {
		updates["provider_response"] = p.ProviderResponse
	}
	if p.ErrorMessage != nil {
		updates["error_message"] = *p.ErrorMessage
	}
	if p.CompletedAt != nil {
		updates["completed_at"] = *p.CompletedAt
	}
	updates["fee_amount"] = p.FeeAmount
	updates["net_amount"] = p.NetAmount

	result := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ? AND version = ? AND status = ?", p.ID, p.Version, payment.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return transaction.NewConstraintError(
			fmt.Errorf("version conflict finalizing payment %s: row changed since read", p.ID))
	}
	p.Version++
	return nil
}

func (r *PaymentRepository) AppendAuditLog(ctx context.Context, entry *payment.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *PaymentRepository) ListAuditLogs(ctx context.Context, paymentID string) ([]*payment.AuditLog, error) {
	var logs []*payment.AuditLog
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
