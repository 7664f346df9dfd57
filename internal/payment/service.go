package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	"github.com/frahmantamala/pos-payments/internal/core/common/validation"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/fees"
	"github.com/frahmantamala/pos-payments/internal/provider"
	"github.com/frahmantamala/pos-payments/internal/transaction"
)

const (
	finalizeMaxRetries   = 3
	finalizeTimeout      = 5 * time.Second
	versionColumn        = "version"
	persistRetries       = 2
	persistRetryBaseWait = 100 * time.Millisecond
)

// SelectorAPI returns the ordered provider fallback chain for a payment.
type SelectorAPI interface {
	Rank(ctx context.Context, amount decimal.Decimal, method datamodel.Method, restaurantID string, monthlyVolume *decimal.Decimal) []provider.Client
}

// FeeEngineAPI is the slice of the fee engine the orchestrator needs.
type FeeEngineAPI interface {
	CalculateProviderFee(ctx context.Context, amount decimal.Decimal, providerName string, monthlyVolume *decimal.Decimal) (decimal.Decimal, error)
	CalculateFees(ctx context.Context, input fees.CalculateFeesInput) (*fees.FeeCalculation, error)
}

// ServiceConfig carries the orchestration limits resolved from application
// configuration.
type ServiceConfig struct {
	MaxAmount      decimal.Decimal
	Currency       string
	AttemptTimeout time.Duration
}

// Service owns the payment lifecycle: it is the only component that creates
// Payment rows and the only one that moves them to a terminal status. Every
// branch of the orchestration leaves an audit trail behind it.
type Service struct {
	repo     RepositoryAPI
	txm      *transaction.Manager
	selector SelectorAPI
	fees     FeeEngineAPI
	audit    *AuditLogger
	eventBus *events.EventBus
	logger   *slog.Logger
	cfg      ServiceConfig
}

func NewService(repo RepositoryAPI, txm *transaction.Manager, selector SelectorAPI, feeEngine FeeEngineAPI, audit *AuditLogger, eventBus *events.EventBus, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	return &Service{
		repo:     repo,
		txm:      txm,
		selector: selector,
		fees:     feeEngine,
		audit:    audit,
		eventBus: eventBus,
		logger:   logger,
		cfg:      cfg,
	}
}

// ProcessPayment runs one payment orchestration: validate, create the
// pending record, try each eligible provider in fee order, and finalize the
// record as completed or failed. By the time it returns or errors, the
// payment row is never left pending.
func (s *Service) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*PaymentResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	p := &datamodel.Payment{
		ID:           uuid.New().String(),
		OrderID:      input.OrderID,
		RestaurantID: input.RestaurantID,
		UserID:       input.UserID,
		Amount:       input.Amount,
		Currency:     s.cfg.Currency,
		FeeAmount:    decimal.Zero,
		NetAmount:    input.Amount,
		Status:       datamodel.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	requestSnapshot := map[string]interface{}{
		"order_id":        input.OrderID,
		"amount":          input.Amount.StringFixed(2),
		"currency":        s.cfg.Currency,
		"payment_method":  string(input.Method),
		"restaurant_id":   input.RestaurantID,
		"payment_details": input.PaymentDetails,
		"metadata":        input.Metadata,
	}

	err := s.txm.RunAtomic(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, repo, AuditEntry{
			PaymentID: p.ID,
			Action:    datamodel.AuditActionAttempt,
			UserID:    input.UserID,
			ClientIP:  input.ClientIP,
			UserAgent: input.UserAgent,
			Request:   requestSnapshot,
		})
	})
	if err != nil {
		s.logger.Error("failed to create payment record",
			"order_id", input.OrderID,
			"error", err)
		return nil, internal.NewInternalError("failed to create payment record", err)
	}

	result, procErr := s.runProviderChain(ctx, p, input)
	if procErr != nil && p.Status == datamodel.StatusPending {
		// unexpected failure path: the record must still reach a terminal
		// state before the error propagates. Detached context: the caller's
		// may already be done.
		failCtx, cancel := internal.WithTimeout(context.Background(), finalizeTimeout)
		s.finalizeFailed(failCtx, p, input, procErr.Error(), "orchestration aborted unexpectedly")
		cancel()
	}
	return result, procErr
}

// CalculateFees exposes the fee engine's inbound computation.
func (s *Service) CalculateFees(ctx context.Context, input fees.CalculateFeesInput) (*fees.FeeCalculation, error) {
	return s.fees.CalculateFees(ctx, input)
}

// GetPayment returns a payment with its ordered audit trail.
func (s *Service) GetPayment(ctx context.Context, id string) (*datamodel.Payment, []*datamodel.AuditLog, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, internal.ErrPaymentNotFound
		}
		return nil, nil, internal.NewInternalError("failed to load payment", err)
	}
	trail, err := s.repo.ListAuditLogs(ctx, id)
	if err != nil {
		return nil, nil, internal.NewInternalError("failed to load audit trail", err)
	}
	return p, trail, nil
}

func (s *Service) runProviderChain(ctx context.Context, p *datamodel.Payment, input ProcessPaymentInput) (*PaymentResult, error) {
	clients := s.selector.Rank(ctx, input.Amount, input.Method, input.RestaurantID, input.MonthlyVolume)
	if len(clients) == 0 {
		s.finalizeFailed(ctx, p, input, "no payment provider available", "no eligible provider for method "+string(input.Method))
		return nil, internal.NewNoProviderAvailableError(string(input.Method), input.RestaurantID)
	}

	chargeReq := provider.ChargeRequest{
		PaymentID:      p.ID,
		OrderID:        input.OrderID,
		Amount:         input.Amount,
		Currency:       s.cfg.Currency,
		PaymentDetails: input.PaymentDetails,
		Metadata:       input.Metadata,
	}

	var lastFailure string
	for _, client := range clients {
		if ctx.Err() != nil {
			return nil, s.finalizeCanceled(ctx, p, input, ctx.Err())
		}

		if err := s.recordAudit(ctx, AuditEntry{
			PaymentID: p.ID,
			Action:    datamodel.AuditActionProviderAttempt,
			Provider:  client.Name(),
			UserID:    input.UserID,
			ClientIP:  input.ClientIP,
			UserAgent: input.UserAgent,
			Request: map[string]interface{}{
				"amount":   input.Amount.StringFixed(2),
				"currency": s.cfg.Currency,
				"order_id": input.OrderID,
			},
		}); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		result := client.Charge(attemptCtx, chargeReq)
		cancel()

		if result.Succeeded {
			return s.finalizeCompleted(p, input, client, result)
		}

		// a timed-out or canceled orchestration stops here: the in-flight
		// attempt is already abandoned and no further provider is tried
		if ctx.Err() != nil {
			return nil, s.finalizeCanceled(ctx, p, input, ctx.Err())
		}

		lastFailure = fmt.Sprintf("%s: %s", client.Name(), result.FailureDetail)
		s.logger.Warn("provider attempt failed, falling back",
			"payment_id", p.ID,
			"provider", client.Name(),
			"failure_kind", result.FailureKind,
			"detail", result.FailureDetail)

		if err := s.recordAudit(ctx, AuditEntry{
			PaymentID: p.ID,
			Action:    datamodel.AuditActionProviderFailure,
			Provider:  client.Name(),
			UserID:    input.UserID,
			ClientIP:  input.ClientIP,
			UserAgent: input.UserAgent,
			Response: map[string]interface{}{
				"failure_kind": string(result.FailureKind),
				"detail":       result.FailureDetail,
			},
			ErrorMessage: result.FailureDetail,
		}); err != nil {
			return nil, err
		}
	}

	if lastFailure == "" {
		lastFailure = "all payment providers failed"
	}
	s.finalizeFailed(ctx, p, input, lastFailure, "all payment providers failed")

	s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(p.ID, p.OrderID, p.RestaurantID, p.Amount, lastFailure))
	return nil, internal.NewPaymentProcessingError(p.ID, errors.New(lastFailure))
}

func (s *Service) finalizeCompleted(p *datamodel.Payment, input ProcessPaymentInput, client provider.Client, result provider.ChargeResult) (*PaymentResult, error) {
	// the provider has charged: finalization runs on its own context so a
	// caller deadline or cancellation cannot leave the row pending
	ctx, cancel := internal.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	fee := s.resolveFee(ctx, p, input, client, result)
	netAmount := p.Amount.Sub(fee)
	completedAt := time.Now().UTC()
	providerName := client.Name()

	responseSnapshot := result.RawResponse
	if responseSnapshot == nil {
		responseSnapshot = map[string]interface{}{"transaction_id": result.TransactionID}
	}

	err := s.txm.OptimisticLockRetry(ctx, func() error {
		return s.txm.RunAtomic(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.GetByID(ctx, p.ID)
			if err != nil {
				return err
			}

			// audit entry first so a terminal status is never visible
			// without its matching trail
			if err := s.audit.Record(ctx, repo, AuditEntry{
				PaymentID: p.ID,
				Action:    datamodel.AuditActionSuccess,
				Provider:  providerName,
				UserID:    input.UserID,
				ClientIP:  input.ClientIP,
				UserAgent: input.UserAgent,
				Response:  responseSnapshot,
			}); err != nil {
				return err
			}

			current.Status = datamodel.StatusCompleted
			current.Provider = &providerName
			current.FeeAmount = fee
			current.NetAmount = netAmount
			current.CompletedAt = &completedAt
			if result.TransactionID != "" {
				txnID := result.TransactionID
				current.ProviderTransactionID = &txnID
			}
			if data, err := marshalSanitized(responseSnapshot); err == nil {
				current.ProviderResponse = data
			}
			if err := repo.FinalizeStatus(ctx, current); err != nil {
				return err
			}
			*p = *current
			return nil
		})
	}, versionColumn, finalizeMaxRetries)
	if err != nil {
		s.logger.Error("failed to finalize completed payment",
			"payment_id", p.ID,
			"provider", providerName,
			"error", err)
		return nil, internal.NewInternalError("failed to record payment completion", err)
	}

	s.logger.Info("payment completed",
		"payment_id", p.ID,
		"order_id", p.OrderID,
		"provider", providerName,
		"amount", p.Amount.StringFixed(2),
		"fee", fee.StringFixed(2))

	s.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(p.ID, p.OrderID, p.RestaurantID, providerName, p.Amount, fee, p.Currency))

	return &PaymentResult{
		PaymentID: p.ID,
		Status:    datamodel.StatusCompleted,
		Provider:  providerName,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Fees: FeeSummary{
			TotalFee:       fee,
			RatePercentage: s.effectiveRate(fee, p.Amount),
		},
		NetAmount:   netAmount,
		CompletedAt: &completedAt,
	}, nil
}

// resolveFee prefers the provider-reported fee; otherwise the engine
// computes it from the provider's configured rate, with the client's own
// declared rate as the last resort. The fee is clamped non-negative so the
// net-amount invariant holds for any provider response.
func (s *Service) resolveFee(ctx context.Context, p *datamodel.Payment, input ProcessPaymentInput, client provider.Client, result provider.ChargeResult) decimal.Decimal {
	var fee decimal.Decimal
	switch {
	case result.Fee != nil:
		fee = *result.Fee
	default:
		computed, err := s.fees.CalculateProviderFee(ctx, p.Amount, client.Name(), input.MonthlyVolume)
		if err != nil {
			s.logger.Warn("no configured rate for provider, using client declared rate",
				"provider", client.Name(),
				"error", err)
			computed = client.CalculateFee(p.Amount)
		}
		fee = computed
	}
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	return fee.Round(2)
}

func (s *Service) finalizeFailed(ctx context.Context, p *datamodel.Payment, input ProcessPaymentInput, errorMessage, auditMessage string) {
	err := s.txm.OptimisticLockRetry(ctx, func() error {
		return s.txm.RunAtomic(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.GetByID(ctx, p.ID)
			if err != nil {
				return err
			}

			if err := s.audit.Record(ctx, repo, AuditEntry{
				PaymentID:    p.ID,
				Action:       datamodel.AuditActionFailure,
				UserID:       input.UserID,
				ClientIP:     input.ClientIP,
				UserAgent:    input.UserAgent,
				ErrorMessage: auditMessage,
			}); err != nil {
				return err
			}

			current.Status = datamodel.StatusFailed
			msg := errorMessage
			current.ErrorMessage = &msg
			if err := repo.FinalizeStatus(ctx, current); err != nil {
				return err
			}
			*p = *current
			return nil
		})
	}, versionColumn, finalizeMaxRetries)
	if err != nil {
		// the payment may be observably stuck pending here; loud log so
		// reconciliation picks it up
		s.logger.Error("failed to finalize failed payment",
			"payment_id", p.ID,
			"error", err)
	}
}

func (s *Service) finalizeCanceled(ctx context.Context, p *datamodel.Payment, input ProcessPaymentInput, cause error) error {
	// use a fresh context: the caller's is already done
	finalizeCtx, cancel := internal.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	reason := fmt.Sprintf("payment canceled: %v", cause)
	s.finalizeFailed(finalizeCtx, p, input, reason, reason)

	s.eventBus.Publish(finalizeCtx, events.NewPaymentFailedEvent(p.ID, p.OrderID, p.RestaurantID, p.Amount, reason))
	return internal.NewPaymentCanceledError(p.ID, cause)
}

// recordAudit appends a single audit entry in its own transaction with a
// small retry budget for transient store failures.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) error {
	err := s.txm.ExecuteWithRetry(ctx, func() error {
		return s.txm.RunAtomic(ctx, func(tx *gorm.DB) error {
			return s.audit.Record(ctx, s.repo.WithTx(tx), entry)
		})
	}, persistRetries, persistRetryBaseWait)
	if err != nil {
		s.logger.Error("failed to record audit entry",
			"payment_id", entry.PaymentID,
			"action", entry.Action,
			"error", err)
		return internal.NewInternalError("failed to record audit trail", err)
	}
	return nil
}

func (s *Service) effectiveRate(fee, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return fee.Div(amount).Mul(decimal.NewFromInt(100)).Round(2)
}

func (s *Service) validateInput(input ProcessPaymentInput) error {
	validator := validation.NewValidator()
	validator.Field("order_id", input.OrderID).Required()
	validator.Field("restaurant_id", input.RestaurantID).Required()
	validator.Field("user_id", input.UserID).Required()
	validator.Field("amount", input.Amount).
		PositiveDecimal(internal.ErrCodeInvalidAmount).
		MaxFractionDigits(2, internal.ErrCodeInvalidAmount).
		MaxDecimal(s.cfg.MaxAmount, internal.ErrCodeAmountTooHigh)
	validator.Field("payment_method", string(input.Method)).
		Required().
		OneOf([]string{
			string(datamodel.MethodCard),
			string(datamodel.MethodCash),
			string(datamodel.MethodQRCode),
			string(datamodel.MethodApplePay),
			string(datamodel.MethodGooglePay),
		}, internal.ErrCodeInvalidPaymentMethod)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
