package catalog

import (
	"github.com/google/uuid"

	"github.com/jbj338033/flick-api/internal/apperr"
)

// ResolveOptions validates a buyer's add-on selections against the product's
// option catalog and returns priced snapshots in selection order. Pure
// validation over already-loaded rows; safe to run outside any lock.
//
// groups must be the target product's option groups; options must contain at
// least the selected option rows (keyed by id).
func ResolveOptions(productID uuid.UUID, groups []OptionGroup, options map[uuid.UUID]Option, sels []SelectedOption) ([]OptionSnapshot, error) {
	if len(sels) == 0 {
		for _, g := range groups {
			if g.IsRequired {
				return nil, apperr.ErrRequiredOptionMissing
			}
		}
		return nil, nil
	}

	groupsByID := make(map[uuid.UUID]OptionGroup, len(groups))
	for _, g := range groups {
		groupsByID[g.ID] = g
	}

	selCountByGroup := make(map[uuid.UUID]int)
	for _, sel := range sels {
		opt, ok := options[sel.OptionID]
		if !ok {
			return nil, apperr.ErrOptionNotFound
		}
		if _, ok := groupsByID[opt.GroupID]; !ok {
			// The option's group belongs to some other product.
			return nil, apperr.ErrOptionNotInProduct
		}
		if sel.Quantity < 0 {
			return nil, apperr.ErrInvalidQuantity
		}
		selCountByGroup[opt.GroupID]++
	}

	for _, g := range groups {
		if g.IsRequired && selCountByGroup[g.ID] == 0 {
			return nil, apperr.ErrRequiredOptionMissing
		}
	}
	for groupID, n := range selCountByGroup {
		if n > groupsByID[groupID].MaxSelections {
			return nil, apperr.ErrMaxSelectionsExceeded
		}
	}

	snapshots := make([]OptionSnapshot, 0, len(sels))
	for _, sel := range sels {
		opt := options[sel.OptionID]
		qty := sel.Quantity
		if qty == 0 {
			qty = 1 // quantity defaults to 1 when omitted
		}
		if qty > 1 && !opt.IsQuantitySelectable {
			return nil, apperr.ErrQuantityNotAllowed
		}
		snapshots = append(snapshots, OptionSnapshot{
			GroupName:  groupsByID[opt.GroupID].Name,
			OptionName: opt.Name,
			UnitPrice:  opt.Price,
			Quantity:   qty,
		})
	}
	return snapshots, nil
}

// LinePrice is the frozen unit price of one order line: product base price
// plus the full add-on surcharge.
func LinePrice(product Product, snapshots []OptionSnapshot) int {
	price := product.Price
	for _, s := range snapshots {
		price += s.UnitPrice * s.Quantity
	}
	return price
}
