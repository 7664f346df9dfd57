package payment_test

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/payment"
)

var _ = Describe("EventHandler", func() {
	var (
		handler *payment.EventHandler
		bus     *events.EventBus
		ctx     context.Context
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		handler = payment.NewEventHandler(logger)
		bus = events.NewEventBus(logger)
		handler.RegisterEventHandlers(bus)
		ctx = context.Background()
	})

	It("handles a completed payment published on the bus", func() {
		event := events.NewPaymentCompletedEvent(
			"pay-1", "ord-1", "rest-1", "provider_b",
			decimal.RequireFromString("100.00"), decimal.RequireFromString("2.50"), "GBP")

		Expect(bus.PublishSync(ctx, event)).To(Succeed())
	})

	It("handles a failed payment published on the bus", func() {
		event := events.NewPaymentFailedEvent(
			"pay-2", "ord-2", "rest-1",
			decimal.RequireFromString("50.00"), "provider_a: insufficient funds")

		Expect(bus.PublishSync(ctx, event)).To(Succeed())
	})

	It("rejects an event of the wrong type", func() {
		wrong := events.NewPaymentFailedEvent(
			"pay-3", "ord-3", "rest-1", decimal.RequireFromString("10.00"), "declined")

		err := handler.HandlePaymentCompleted(ctx, wrong)
		Expect(err).To(MatchError(ContainSubstring("expected PaymentCompletedEvent")))
	})
})
