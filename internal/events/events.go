// Package events defines the domain events published after committed money
// movement. Delivery is fire-and-forget: downstream kiosk and notification
// consumers react to them, but the financial outcome never depends on them.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventPaymentCompleted = "PaymentCompleted"
	EventOrderCancelled   = "OrderCancelled"
	EventBalanceCharged   = "BalanceCharged"
)

const (
	TopicPaymentCompleted = "payment.completed"
	TopicOrderCancelled   = "order.cancelled"
	TopicBalanceCharged   = "balance.charged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type PaymentCompletedPayload struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	BoothID     uuid.UUID `json:"booth_id"`
	TotalAmount int       `json:"total_amount"`
	OrderNumber int       `json:"order_number"`
}

type OrderCancelledPayload struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	BoothID     uuid.UUID `json:"booth_id"`
	TotalAmount int       `json:"total_amount"`
	OrderNumber int       `json:"order_number"`
}

type BalanceChargedPayload struct {
	UserID       uuid.UUID `json:"user_id"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
}

// PartitionKey keys messages by order so every event for one order stays in
// partition order.
func PartitionKey(id uuid.UUID) []byte { return []byte(id.String()) }
