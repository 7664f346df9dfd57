package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// AuditEntry is one discrete orchestration action before sanitization.
type AuditEntry struct {
	PaymentID    string
	Action       datamodel.AuditAction
	Provider     string
	UserID       string
	ClientIP     string
	UserAgent    string
	Request      map[string]interface{}
	Response     map[string]interface{}
	ErrorMessage string
}

// AuditLogger turns orchestration actions into append-only audit rows.
// Request and response snapshots are sanitized here, so nothing sensitive
// can reach the store regardless of the caller.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Record appends one entry through the given repository handle, which may
// be transaction-bound so the entry commits with the writes it describes.
func (a *AuditLogger) Record(ctx context.Context, repo RepositoryAPI, entry AuditEntry) error {
	row := &datamodel.AuditLog{
		PaymentID: entry.PaymentID,
		Action:    entry.Action,
		UserID:    entry.UserID,
		IPAddress: entry.ClientIP,
		UserAgent: entry.UserAgent,
	}
	if entry.Provider != "" {
		provider := entry.Provider
		row.Provider = &provider
	}
	if entry.ErrorMessage != "" {
		msg := entry.ErrorMessage
		row.ErrorMessage = &msg
	}

	var err error
	if row.RequestData, err = marshalSanitized(entry.Request); err != nil {
		return fmt.Errorf("marshal audit request snapshot: %w", err)
	}
	if row.ResponseData, err = marshalSanitized(entry.Response); err != nil {
		return fmt.Errorf("marshal audit response snapshot: %w", err)
	}

	if err := repo.AppendAuditLog(ctx, row); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}

	a.logger.Debug("audit entry recorded",
		"payment_id", entry.PaymentID,
		"action", entry.Action,
		"provider", entry.Provider)
	return nil
}

func marshalSanitized(snapshot map[string]interface{}) (json.RawMessage, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(SanitizeMap(snapshot))
}
