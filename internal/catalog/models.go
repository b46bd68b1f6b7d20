package catalog

import "github.com/google/uuid"

type Booth struct {
	ID      uuid.UUID
	Name    string
	OwnerID uuid.UUID
}

// Product is a booth's sellable item. Stock == nil means unlimited;
// PurchaseLimit == nil means no per-buyer cap.
type Product struct {
	ID            uuid.UUID
	BoothID       uuid.UUID
	Name          string
	Price         int
	Stock         *int
	IsSoldOut     bool
	PurchaseLimit *int
}

type OptionGroup struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	Name          string
	IsRequired    bool
	MaxSelections int
	SortOrder     int
}

type Option struct {
	ID                   uuid.UUID
	GroupID              uuid.UUID
	Name                 string
	Price                int
	IsQuantitySelectable bool
	SortOrder            int
}

// SelectedOption is a buyer's add-on choice on one line item.
type SelectedOption struct {
	OptionID uuid.UUID `json:"option_id"`
	Quantity int       `json:"quantity"`
}

// OptionSnapshot is the priced copy frozen onto the order line, so later
// catalog edits cannot change a placed order.
type OptionSnapshot struct {
	GroupName  string
	OptionName string
	UnitPrice  int
	Quantity   int
}
