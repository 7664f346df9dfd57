package payment_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/fees"
	"github.com/frahmantamala/pos-payments/internal/payment"
	"github.com/frahmantamala/pos-payments/internal/provider"
	"github.com/frahmantamala/pos-payments/internal/transaction"
)

// MockRepository is an in-memory RepositoryAPI that records writes verbatim
type MockRepository struct {
	payments map[string]*datamodel.Payment
	audits   []*datamodel.AuditLog
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		payments: make(map[string]*datamodel.Payment),
	}
}

func (m *MockRepository) WithTx(tx *gorm.DB) payment.RepositoryAPI { return m }

func (m *MockRepository) Create(_ context.Context, p *datamodel.Payment) error {
	copied := *p
	m.payments[p.ID] = &copied
	return nil
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*datamodel.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MockRepository) FinalizeStatus(_ context.Context, p *datamodel.Payment) error {
	stored, ok := m.payments[p.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != p.Version || stored.Status != datamodel.StatusPending {
		return transaction.NewConstraintError(
			fmt.Errorf("version conflict finalizing payment %s", p.ID))
	}
	copied := *p
	copied.Version = p.Version + 1
	m.payments[p.ID] = &copied
	p.Version++
	return nil
}

func (m *MockRepository) AppendAuditLog(_ context.Context, entry *datamodel.AuditLog) error {
	copied := *entry
	copied.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, &copied)
	return nil
}

func (m *MockRepository) ListAuditLogs(_ context.Context, paymentID string) ([]*datamodel.AuditLog, error) {
	var out []*datamodel.AuditLog
	for _, entry := range m.audits {
		if entry.PaymentID == paymentID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *MockRepository) actions() []datamodel.AuditAction {
	out := make([]datamodel.AuditAction, len(m.audits))
	for i, entry := range m.audits {
		out[i] = entry.Action
	}
	return out
}

// scriptedClient returns canned charge results in order
type scriptedClient struct {
	name    string
	results []provider.ChargeResult
	calls   int
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Supports(datamodel.Method) bool { return true }

func (c *scriptedClient) Charge(_ context.Context, _ provider.ChargeRequest) provider.ChargeResult {
	idx := c.calls
	if idx >= len(c.results) {
		idx = len(c.results) - 1
	}
	c.calls++
	return c.results[idx]
}

func (c *scriptedClient) TestConnection(context.Context) error { return nil }

func (c *scriptedClient) CalculateFee(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// cancelingClient cancels the caller's context mid-charge and then reports
// success, simulating a caller that gives up while the provider call is
// already in flight.
type cancelingClient struct {
	name   string
	cancel context.CancelFunc
	result provider.ChargeResult
}

func (c *cancelingClient) Name() string { return c.name }

func (c *cancelingClient) Supports(datamodel.Method) bool { return true }

func (c *cancelingClient) Charge(_ context.Context, _ provider.ChargeRequest) provider.ChargeResult {
	c.cancel()
	return c.result
}

func (c *cancelingClient) TestConnection(context.Context) error { return nil }

func (c *cancelingClient) CalculateFee(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// stubSelector returns a fixed fallback chain
type stubSelector struct {
	chain []provider.Client
}

func (s *stubSelector) Rank(_ context.Context, _ decimal.Decimal, _ datamodel.Method, _ string, _ *decimal.Decimal) []provider.Client {
	return s.chain
}

// stubFeeEngine returns one configured fee per provider
type stubFeeEngine struct {
	providerFees map[string]decimal.Decimal
}

func (s *stubFeeEngine) CalculateProviderFee(_ context.Context, _ decimal.Decimal, name string, _ *decimal.Decimal) (decimal.Decimal, error) {
	fee, ok := s.providerFees[name]
	if !ok {
		return decimal.Zero, errors.New("no rate configured")
	}
	return fee, nil
}

func (s *stubFeeEngine) CalculateFees(context.Context, fees.CalculateFeesInput) (*fees.FeeCalculation, error) {
	return &fees.FeeCalculation{}, nil
}

var _ = Describe("Service", func() {
	var (
		repo      *MockRepository
		selector  *stubSelector
		feeEngine *stubFeeEngine
		service   *payment.Service
		ctx       context.Context
		input     payment.ProcessPaymentInput
	)

	newService := func() *payment.Service {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).ToNot(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		txManager := transaction.NewManager(db, logger)
		auditLogger := payment.NewAuditLogger(logger)
		eventBus := events.NewEventBus(logger)

		return payment.NewService(repo, txManager, selector, feeEngine, auditLogger, eventBus, logger, payment.ServiceConfig{
			MaxAmount:      decimal.RequireFromString("10000"),
			Currency:       "GBP",
			AttemptTimeout: 2 * time.Second,
		})
	}

	BeforeEach(func() {
		repo = NewMockRepository()
		selector = &stubSelector{}
		feeEngine = &stubFeeEngine{providerFees: map[string]decimal.Decimal{
			"provider_a": decimal.RequireFromString("2.90"),
			"provider_b": decimal.RequireFromString("2.50"),
		}}
		ctx = context.Background()
		input = payment.ProcessPaymentInput{
			OrderID:      "ord-123",
			Amount:       decimal.RequireFromString("100.00"),
			Method:       datamodel.MethodCard,
			UserID:       "user-1",
			RestaurantID: "rest-1",
			PaymentDetails: map[string]interface{}{
				"card_number": "4111111111111111",
			},
		}
	})

	Describe("ProcessPayment", func() {
		Context("when the cheapest provider succeeds", func() {
			BeforeEach(func() {
				selector.chain = []provider.Client{
					&scriptedClient{name: "provider_b", results: []provider.ChargeResult{
						provider.Succeeded("txn-b-1", map[string]interface{}{"status": "succeeded"}),
					}},
					&scriptedClient{name: "provider_a", results: []provider.ChargeResult{
						provider.Succeeded("txn-a-1", nil),
					}},
				}
				service = newService()
			})

			It("completes through it and never touches the fallback", func() {
				result, err := service.ProcessPayment(ctx, input)

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Status).To(Equal(datamodel.StatusCompleted))
				Expect(result.Provider).To(Equal("provider_b"))
				Expect(result.Fees.TotalFee.StringFixed(2)).To(Equal("2.50"))
				Expect(result.NetAmount.StringFixed(2)).To(Equal("97.50"))
				Expect(result.CompletedAt).ToNot(BeNil())

				fallback := selector.chain[1].(*scriptedClient)
				Expect(fallback.calls).To(Equal(0))
			})

			It("leaves a completed row with the audit trail in order", func() {
				result, err := service.ProcessPayment(ctx, input)
				Expect(err).ToNot(HaveOccurred())

				stored := repo.payments[result.PaymentID]
				Expect(stored.Status).To(Equal(datamodel.StatusCompleted))
				Expect(stored.Version).To(Equal(1))
				Expect(stored.FeeAmount.StringFixed(2)).To(Equal("2.50"))
				Expect(stored.NetAmount.StringFixed(2)).To(Equal("97.50"))
				Expect(*stored.ProviderTransactionID).To(Equal("txn-b-1"))

				Expect(repo.actions()).To(Equal([]datamodel.AuditAction{
					datamodel.AuditActionAttempt,
					datamodel.AuditActionProviderAttempt,
					datamodel.AuditActionSuccess,
				}))
			})

			It("sanitizes card data out of the audit request snapshot", func() {
				result, err := service.ProcessPayment(ctx, input)
				Expect(err).ToNot(HaveOccurred())

				trail, err := repo.ListAuditLogs(ctx, result.PaymentID)
				Expect(err).ToNot(HaveOccurred())
				Expect(string(trail[0].RequestData)).To(ContainSubstring(payment.RedactedValue))
				Expect(string(trail[0].RequestData)).ToNot(ContainSubstring("4111111111111111"))
			})
		})

		Context("when the caller cancels while a charge is succeeding", func() {
			var (
				callerCtx context.Context
				cancel    context.CancelFunc
			)

			BeforeEach(func() {
				callerCtx, cancel = context.WithCancel(context.Background())
				selector.chain = []provider.Client{
					&cancelingClient{
						name:   "provider_b",
						cancel: cancel,
						result: provider.Succeeded("txn-b-9", map[string]interface{}{"status": "succeeded"}),
					},
				}
				service = newService()
			})

			It("finalizes the row as completed, never leaving it pending", func() {
				result, err := service.ProcessPayment(callerCtx, input)

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Status).To(Equal(datamodel.StatusCompleted))

				stored := repo.payments[result.PaymentID]
				Expect(stored.Status).To(Equal(datamodel.StatusCompleted))
				Expect(stored.Version).To(Equal(1))
				Expect(*stored.ProviderTransactionID).To(Equal("txn-b-9"))

				Expect(repo.actions()).To(Equal([]datamodel.AuditAction{
					datamodel.AuditActionAttempt,
					datamodel.AuditActionProviderAttempt,
					datamodel.AuditActionSuccess,
				}))
			})
		})

		Context("when the cheapest provider declines", func() {
			BeforeEach(func() {
				selector.chain = []provider.Client{
					&scriptedClient{name: "provider_b", results: []provider.ChargeResult{
						provider.Failed(provider.FailureDeclined, "insufficient funds"),
					}},
					&scriptedClient{name: "provider_a", results: []provider.ChargeResult{
						provider.Succeeded("txn-a-1", nil),
					}},
				}
				service = newService()
			})

			It("falls back to the next provider and records both attempts", func() {
				result, err := service.ProcessPayment(ctx, input)

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Provider).To(Equal("provider_a"))
				Expect(result.Fees.TotalFee.StringFixed(2)).To(Equal("2.90"))

				Expect(repo.actions()).To(Equal([]datamodel.AuditAction{
					datamodel.AuditActionAttempt,
					datamodel.AuditActionProviderAttempt,
					datamodel.AuditActionProviderFailure,
					datamodel.AuditActionProviderAttempt,
					datamodel.AuditActionSuccess,
				}))
			})
		})

		Context("when every provider fails", func() {
			BeforeEach(func() {
				selector.chain = []provider.Client{
					&scriptedClient{name: "provider_b", results: []provider.ChargeResult{
						provider.Failed(provider.FailureDeclined, "insufficient funds"),
					}},
					&scriptedClient{name: "provider_a", results: []provider.ChargeResult{
						provider.Failed(provider.FailureConnectivity, "connection refused"),
					}},
				}
				service = newService()
			})

			It("finalizes the payment as failed, never pending", func() {
				_, err := service.ProcessPayment(ctx, input)

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodePaymentProcessing))

				Expect(repo.payments).To(HaveLen(1))
				for _, stored := range repo.payments {
					Expect(stored.Status).To(Equal(datamodel.StatusFailed))
					Expect(*stored.ErrorMessage).To(ContainSubstring("provider_a"))
				}

				actions := repo.actions()
				Expect(actions[len(actions)-1]).To(Equal(datamodel.AuditActionFailure))
			})
		})

		Context("when no provider is eligible", func() {
			BeforeEach(func() {
				selector.chain = nil
				service = newService()
			})

			It("fails fast with a no-provider error and a failed row", func() {
				_, err := service.ProcessPayment(ctx, input)

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeNoProviderAvailable))

				for _, stored := range repo.payments {
					Expect(stored.Status).To(Equal(datamodel.StatusFailed))
				}
			})
		})

		Context("when the provider reports its own fee", func() {
			BeforeEach(func() {
				reportedFee := decimal.RequireFromString("1.75")
				selector.chain = []provider.Client{
					&scriptedClient{name: "provider_b", results: []provider.ChargeResult{
						{Succeeded: true, TransactionID: "txn-b-1", Fee: &reportedFee},
					}},
				}
				service = newService()
			})

			It("prefers the reported fee and keeps net = amount - fee", func() {
				result, err := service.ProcessPayment(ctx, input)

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Fees.TotalFee.StringFixed(2)).To(Equal("1.75"))
				Expect(result.NetAmount.StringFixed(2)).To(Equal("98.25"))
			})
		})

		Context("input validation", func() {
			BeforeEach(func() {
				selector.chain = []provider.Client{
					&scriptedClient{name: "provider_b", results: []provider.ChargeResult{
						provider.Succeeded("txn-b-1", nil),
					}},
				}
				service = newService()
			})

			It("rejects a non-positive amount before touching the store", func() {
				input.Amount = decimal.RequireFromString("-5.00")

				_, err := service.ProcessPayment(ctx, input)

				Expect(err).To(HaveOccurred())
				Expect(repo.payments).To(BeEmpty())
				Expect(repo.audits).To(BeEmpty())
			})

			It("rejects more than two fraction digits", func() {
				input.Amount = decimal.RequireFromString("10.005")

				_, err := service.ProcessPayment(ctx, input)

				Expect(err).To(HaveOccurred())
				Expect(repo.payments).To(BeEmpty())
			})

			It("rejects amounts above the configured ceiling", func() {
				input.Amount = decimal.RequireFromString("10000.01")

				_, err := service.ProcessPayment(ctx, input)

				Expect(err).To(HaveOccurred())
				Expect(repo.payments).To(BeEmpty())
			})

			It("rejects unsupported payment methods", func() {
				input.Method = datamodel.Method("crypto")

				_, err := service.ProcessPayment(ctx, input)

				Expect(err).To(HaveOccurred())
				Expect(repo.payments).To(BeEmpty())
			})
		})
	})

	Describe("GetPayment", func() {
		BeforeEach(func() {
			selector.chain = []provider.Client{
				&scriptedClient{name: "provider_b", results: []provider.ChargeResult{
					provider.Succeeded("txn-b-1", nil),
				}},
			}
			service = newService()
		})

		It("returns the payment with its ordered trail", func() {
			result, err := service.ProcessPayment(ctx, input)
			Expect(err).ToNot(HaveOccurred())

			p, trail, err := service.GetPayment(ctx, result.PaymentID)

			Expect(err).ToNot(HaveOccurred())
			Expect(p.ID).To(Equal(result.PaymentID))
			Expect(trail).To(HaveLen(3))
			Expect(trail[0].Action).To(Equal(datamodel.AuditActionAttempt))
		})

		It("reports not found for an unknown id", func() {
			_, _, err := service.GetPayment(ctx, "missing-id")

			Expect(errors.Is(err, internal.ErrPaymentNotFound)).To(BeTrue())
		})
	})
})
