package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pos-payments/internal"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/pos-payments/internal/fees"
	"github.com/frahmantamala/pos-payments/internal/payment"
)

type mockPaymentService struct {
	processError   error
	feesError      error
	getError       error
	result         *payment.PaymentResult
	calculation    *fees.FeeCalculation
	storedPayment  *datamodel.Payment
	storedTrail    []*datamodel.AuditLog
	processedInput payment.ProcessPaymentInput
}

func (m *mockPaymentService) ProcessPayment(_ context.Context, input payment.ProcessPaymentInput) (*payment.PaymentResult, error) {
	m.processedInput = input
	if m.processError != nil {
		return nil, m.processError
	}
	return m.result, nil
}

func (m *mockPaymentService) CalculateFees(_ context.Context, _ fees.CalculateFeesInput) (*fees.FeeCalculation, error) {
	if m.feesError != nil {
		return nil, m.feesError
	}
	return m.calculation, nil
}

func (m *mockPaymentService) GetPayment(_ context.Context, _ string) (*datamodel.Payment, []*datamodel.AuditLog, error) {
	if m.getError != nil {
		return nil, nil, m.getError
	}
	return m.storedPayment, m.storedTrail, nil
}

var _ = Describe("Handler", func() {
	var (
		service *mockPaymentService
		handler *payment.Handler
		router  *chi.Mux
	)

	BeforeEach(func() {
		service = &mockPaymentService{}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		handler = payment.NewHandler(logger, service)

		router = chi.NewRouter()
		router.Post("/api/v1/payments", handler.ProcessPayment)
		router.Post("/api/v1/payments/fees/calculate", handler.CalculateFees)
		router.Get("/api/v1/payments/{id}", handler.GetPayment)
	})

	Describe("ProcessPayment", func() {
		It("returns 201 with the payment result", func() {
			completedAt := time.Now().UTC()
			service.result = &payment.PaymentResult{
				PaymentID: "pay-1",
				Status:    datamodel.StatusCompleted,
				Provider:  "provider_b",
				Amount:    decimal.RequireFromString("100.00"),
				Currency:  "GBP",
				Fees: payment.FeeSummary{
					TotalFee:       decimal.RequireFromString("2.50"),
					RatePercentage: decimal.RequireFromString("2.5"),
				},
				NetAmount:   decimal.RequireFromString("97.50"),
				CompletedAt: &completedAt,
			}

			body, _ := json.Marshal(map[string]interface{}{
				"order_id":       "ord-123",
				"amount":         "100.00",
				"payment_method": "card",
				"restaurant_id":  "rest-1",
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))

			var resp payment.ProcessPaymentResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.PaymentID).To(Equal("pay-1"))
			Expect(resp.Provider).To(Equal("provider_b"))
			Expect(resp.NetAmount).To(Equal("97.50"))

			Expect(service.processedInput.Amount.StringFixed(2)).To(Equal("100.00"))
			Expect(service.processedInput.Method).To(Equal(datamodel.MethodCard))
		})

		It("returns 400 for a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte("{not json")))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for a non-decimal amount", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"order_id":       "ord-123",
				"amount":         "a lot",
				"payment_method": "card",
				"restaurant_id":  "rest-1",
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps a no-provider error to 422", func() {
			service.processError = internal.NewNoProviderAvailableError("card", "rest-1")

			body, _ := json.Marshal(map[string]interface{}{
				"order_id":       "ord-123",
				"amount":         "100.00",
				"payment_method": "card",
				"restaurant_id":  "rest-1",
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		})

		It("maps provider exhaustion to 502", func() {
			service.processError = internal.NewPaymentProcessingError("pay-1", nil)

			body, _ := json.Marshal(map[string]interface{}{
				"order_id":       "ord-123",
				"amount":         "100.00",
				"payment_method": "card",
				"restaurant_id":  "rest-1",
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("CalculateFees", func() {
		It("returns 200 with the fee breakdown", func() {
			service.calculation = &fees.FeeCalculation{
				CustomerPaysProcessorFee: true,
			}

			body, _ := json.Marshal(map[string]interface{}{
				"subtotal":       "100.00",
				"vat_amount":     "20.00",
				"payment_method": "card",
				"restaurant_id":  "rest-1",
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/fees/calculate", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("rejects a zero subtotal", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"subtotal":       "0",
				"payment_method": "card",
				"restaurant_id":  "rest-1",
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/fees/calculate", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GetPayment", func() {
		It("returns the payment with its audit trail", func() {
			providerName := "provider_b"
			service.storedPayment = &datamodel.Payment{
				ID:           "pay-1",
				OrderID:      "ord-123",
				RestaurantID: "rest-1",
				Amount:       decimal.RequireFromString("100.00"),
				FeeAmount:    decimal.RequireFromString("2.50"),
				NetAmount:    decimal.RequireFromString("97.50"),
				Currency:     "GBP",
				Status:       datamodel.StatusCompleted,
				Provider:     &providerName,
			}
			service.storedTrail = []*datamodel.AuditLog{
				{PaymentID: "pay-1", Action: datamodel.AuditActionAttempt},
				{PaymentID: "pay-1", Action: datamodel.AuditActionSuccess},
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/pay-1", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp payment.PaymentDetailResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.PaymentID).To(Equal("pay-1"))
			Expect(resp.AuditTrail).To(HaveLen(2))
		})

		It("returns 404 for an unknown payment", func() {
			service.getError = internal.ErrPaymentNotFound

			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/missing", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})
