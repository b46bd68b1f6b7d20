package orders

import (
	"time"

	"github.com/google/uuid"
)

// Order is immutable after creation except for Status and the buyer binding
// that happens at confirmation. TotalAmount is a frozen snapshot equal to the
// sum of line totals at creation; it is never recomputed.
type Order struct {
	ID          uuid.UUID  `json:"id"`
	OrderNumber int        `json:"order_number"`
	TotalAmount int        `json:"total_amount"`
	Status      Status     `json:"status"`
	BuyerID     *uuid.UUID `json:"buyer_id,omitempty"`
	BoothID     uuid.UUID  `json:"booth_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Line carries a unit price that already includes the chosen add-on
// surcharge, frozen at creation time.
type Line struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"-"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     int       `json:"price"`
}

// LineWithProduct joins the product's current name for display surfaces.
type LineWithProduct struct {
	Line
	ProductName string `json:"product_name"`
}

// LineOption is a by-value snapshot of a selected product option.
type LineOption struct {
	ID         uuid.UUID `json:"id"`
	LineID     uuid.UUID `json:"-"`
	GroupName  string    `json:"group_name"`
	OptionName string    `json:"option_name"`
	UnitPrice  int       `json:"unit_price"`
	Quantity   int       `json:"quantity"`
}
