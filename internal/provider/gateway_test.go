package provider_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/pos-payments/internal/provider"
)

var _ = Describe("GatewayClient", func() {
	var (
		logger *slog.Logger
		ctx    context.Context
		req    provider.ChargeRequest
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		ctx = context.Background()
		req = provider.ChargeRequest{
			PaymentID: "pay-1",
			OrderID:   "ord-123",
			Amount:    decimal.RequireFromString("100.00"),
			Currency:  "GBP",
		}
	})

	newClient := func(baseURL string, timeout time.Duration) *provider.GatewayClient {
		return provider.NewGatewayClient(provider.GatewayConfig{
			Name:       "provider_test",
			BaseURL:    baseURL,
			APIKey:     "test-key",
			Timeout:    timeout,
			Percentage: decimal.RequireFromString("0.029"),
			Methods:    []datamodel.Method{datamodel.MethodCard},
		}, logger)
	}

	Describe("Charge", func() {
		It("returns a success with the gateway-reported fee", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/charges"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))

				var payload map[string]interface{}
				Expect(json.NewDecoder(r.Body).Decode(&payload)).To(Succeed())
				Expect(payload["amount"]).To(Equal("100.00"))
				Expect(payload["reference"]).To(Equal("pay-1"))

				json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{
						"transaction_id": "txn-1",
						"status":         "succeeded",
						"fee":            "2.90",
					},
				})
			}))
			defer server.Close()

			result := newClient(server.URL, time.Second).Charge(ctx, req)

			Expect(result.Succeeded).To(BeTrue())
			Expect(result.TransactionID).To(Equal("txn-1"))
			Expect(result.Fee).ToNot(BeNil())
			Expect(result.Fee.StringFixed(2)).To(Equal("2.90"))
		})

		It("tags a 402 as a decline with the gateway's reason", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{
						"decline_reason": "insufficient funds",
					},
				})
			}))
			defer server.Close()

			result := newClient(server.URL, time.Second).Charge(ctx, req)

			Expect(result.Succeeded).To(BeFalse())
			Expect(result.FailureKind).To(Equal(provider.FailureDeclined))
			Expect(result.FailureDetail).To(Equal("insufficient funds"))
		})

		It("tags a non-succeeded status as a decline", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{
						"transaction_id": "txn-1",
						"status":         "pending_review",
					},
				})
			}))
			defer server.Close()

			result := newClient(server.URL, time.Second).Charge(ctx, req)

			Expect(result.Succeeded).To(BeFalse())
			Expect(result.FailureKind).To(Equal(provider.FailureDeclined))
		})

		It("tags a server error as an invalid response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer server.Close()

			result := newClient(server.URL, time.Second).Charge(ctx, req)

			Expect(result.FailureKind).To(Equal(provider.FailureInvalidResponse))
		})

		It("tags a slow gateway as a timeout", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			}))
			defer server.Close()

			result := newClient(server.URL, 50*time.Millisecond).Charge(ctx, req)

			Expect(result.Succeeded).To(BeFalse())
			Expect(result.FailureKind).To(Equal(provider.FailureTimeout))
		})

		It("tags an unreachable gateway as a connectivity failure", func() {
			result := newClient("http://127.0.0.1:1", time.Second).Charge(ctx, req)

			Expect(result.Succeeded).To(BeFalse())
			Expect(result.FailureKind).To(Equal(provider.FailureConnectivity))
		})
	})

	Describe("TestConnection", func() {
		It("accepts a healthy gateway", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/health"))
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			Expect(newClient(server.URL, time.Second).TestConnection(ctx)).To(Succeed())
		})

		It("rejects a gateway that reports unhealthy", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			Expect(newClient(server.URL, time.Second).TestConnection(ctx)).ToNot(Succeed())
		})
	})

	Describe("CalculateFee", func() {
		It("applies the declared rate rounded to two decimals", func() {
			fee := newClient("http://unused", time.Second).CalculateFee(decimal.RequireFromString("112.50"))

			// 112.50 * 2.9% = 3.2625 -> 3.26
			Expect(fee.StringFixed(2)).To(Equal("3.26"))
		})
	})
})

var _ = Describe("CashClient", func() {
	It("charges deterministically with zero fee", func() {
		cash := provider.NewCashClient()

		Expect(cash.Supports(datamodel.MethodCash)).To(BeTrue())
		Expect(cash.Supports(datamodel.MethodCard)).To(BeFalse())
		Expect(cash.CalculateFee(decimal.RequireFromString("100.00")).IsZero()).To(BeTrue())

		result := cash.Charge(context.Background(), provider.ChargeRequest{
			PaymentID: "pay-1",
			Amount:    decimal.RequireFromString("100.00"),
		})

		Expect(result.Succeeded).To(BeTrue())
		Expect(result.TransactionID).To(HavePrefix("cash_"))
	})
})
