package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/pos-payments/internal/core/events"
)

// EventHandler reacts to payment lifecycle events in-process: completed
// payments produce a settlement log line for receipt generation, failed
// ones a reconciliation warning.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.logger.Info("payment settled",
		"payment_id", completed.PaymentID,
		"order_id", completed.OrderID,
		"restaurant_id", completed.RestaurantID,
		"provider", completed.Provider,
		"amount", completed.Amount.StringFixed(2),
		"fee_amount", completed.FeeAmount.StringFixed(2),
		"currency", completed.Currency,
		"event_id", completed.EventID())

	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.logger.Warn("payment failed, flagged for reconciliation",
		"payment_id", failed.PaymentID,
		"order_id", failed.OrderID,
		"restaurant_id", failed.RestaurantID,
		"amount", failed.Amount.StringFixed(2),
		"failure_reason", failed.FailureReason,
		"event_id", failed.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypePaymentCompleted, events.EventTypePaymentFailed})
}
