package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/jbj338033/flick-api/internal/catalog"
	"github.com/jbj338033/flick-api/internal/orders"
)

// Reservation is a code-addressable, time-boxed claim on a not-yet-paid
// order. Confirmed is monotonic: once true it never reverts, and flipping it
// is the only transition that also confirms the order.
type Reservation struct {
	ID        uuid.UUID
	Code      string
	OrderID   uuid.UUID
	ExpiresAt time.Time
	Confirmed bool
}

// ItemInput is one requested line: a product, how many, and the add-on
// selections.
type ItemInput struct {
	ProductID uuid.UUID                `json:"product_id"`
	Quantity  int                      `json:"quantity"`
	Options   []catalog.SelectedOption `json:"options,omitempty"`
}

type ReservationResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	Code        string    `json:"code"`
	OrderNumber int       `json:"order_number"`
	TotalAmount int       `json:"total_amount"`
}

type ConfirmResult struct {
	OrderID      uuid.UUID `json:"order_id"`
	OrderNumber  int       `json:"order_number"`
	TotalAmount  int       `json:"total_amount"`
	BalanceAfter int       `json:"balance_after"`
}

type ReservationDetail struct {
	OrderID     uuid.UUID         `json:"order_id"`
	Code        string            `json:"code"`
	OrderNumber int               `json:"order_number"`
	TotalAmount int               `json:"total_amount"`
	BoothID     uuid.UUID         `json:"booth_id"`
	BoothName   string            `json:"booth_name"`
	Confirmed   bool              `json:"confirmed"`
	Expired     bool              `json:"expired"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Items       []ReservationItem `json:"items"`
}

type ReservationItem struct {
	ProductID   uuid.UUID           `json:"product_id"`
	ProductName string              `json:"product_name"`
	Quantity    int                 `json:"quantity"`
	Price       int                 `json:"price"`
	Options     []orders.LineOption `json:"options,omitempty"`
}
