package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID    string          `json:"payment_id"`
	OrderID      string          `json:"order_id"`
	RestaurantID string          `json:"restaurant_id"`
	Provider     string          `json:"provider"`
	Amount       decimal.Decimal `json:"amount"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	Currency     string          `json:"currency"`
}

func NewPaymentCompletedEvent(paymentID, orderID, restaurantID, provider string, amount, feeAmount decimal.Decimal, currency string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":    paymentID,
				"order_id":      orderID,
				"restaurant_id": restaurantID,
				"provider":      provider,
				"amount":        amount.StringFixed(2),
				"fee_amount":    feeAmount.StringFixed(2),
				"currency":      currency,
			},
		},
		PaymentID:    paymentID,
		OrderID:      orderID,
		RestaurantID: restaurantID,
		Provider:     provider,
		Amount:       amount,
		FeeAmount:    feeAmount,
		Currency:     currency,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     string          `json:"payment_id"`
	OrderID       string          `json:"order_id"`
	RestaurantID  string          `json:"restaurant_id"`
	Amount        decimal.Decimal `json:"amount"`
	FailureReason string          `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID, orderID, restaurantID string, amount decimal.Decimal, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"order_id":       orderID,
				"restaurant_id":  restaurantID,
				"amount":         amount.StringFixed(2),
				"failure_reason": failureReason,
			},
		},
		PaymentID:     paymentID,
		OrderID:       orderID,
		RestaurantID:  restaurantID,
		Amount:        amount,
		FailureReason: failureReason,
	}
}
