package catalog

import (
	"bytes"
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jbj338033/flick-api/internal/apperr"
	"github.com/jbj338033/flick-api/internal/postgres"
)

// Repo reads the booth/product catalog. Construct one per transaction when
// queries must share locks with other writes.
type Repo struct{ DB postgres.DBTX }

func (r Repo) GetBooth(ctx context.Context, id uuid.UUID) (Booth, error) {
	var b Booth
	err := r.DB.QueryRow(ctx, `SELECT id, name, owner_id FROM booths WHERE id=$1`, id).
		Scan(&b.ID, &b.Name, &b.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booth{}, apperr.ErrBoothNotFound
	}
	return b, err
}

// LockBooth takes the booth row lock that serializes order numbering for one
// booth without blocking creation on unrelated booths.
func (r Repo) LockBooth(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := r.DB.QueryRow(ctx, `SELECT id FROM booths WHERE id=$1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrBoothNotFound
	}
	return err
}

func (r Repo) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, booth_id, name, price, stock, is_sold_out, purchase_limit
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.BoothID, &p.Name, &p.Price, &p.Stock, &p.IsSoldOut, &p.PurchaseLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.ErrProductNotFound
	}
	return p, err
}

func (r Repo) ListOptionGroups(ctx context.Context, productID uuid.UUID) ([]OptionGroup, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, name, is_required, max_selections, sort_order
		FROM product_option_groups WHERE product_id=$1 ORDER BY sort_order`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OptionGroup
	for rows.Next() {
		var g OptionGroup
		if err := rows.Scan(&g.ID, &g.ProductID, &g.Name, &g.IsRequired, &g.MaxSelections, &g.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetOptions loads the given option rows keyed by id. Callers detect unknown
// ids by a missing map entry.
func (r Repo) GetOptions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Option, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]Option{}, nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, option_group_id, name, price, is_quantity_selectable, sort_order
		FROM product_options WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]Option, len(ids))
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.GroupID, &o.Name, &o.Price, &o.IsQuantitySelectable, &o.SortOrder); err != nil {
			return nil, err
		}
		out[o.ID] = o
	}
	return out, rows.Err()
}

// GetProducts loads product rows keyed by id, without locks.
func (r Repo) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]Product{}, nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, booth_id, name, price, stock, is_sold_out, purchase_limit
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.BoothID, &p.Name, &p.Price, &p.Stock, &p.IsSoldOut, &p.PurchaseLimit); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// LockProducts acquires FOR UPDATE locks on all given products in a stable
// order (sorted by id) so concurrent confirmations over overlapping product
// sets cannot deadlock. Returns the locked rows keyed by id.
func (r Repo) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	sorted = slices.Compact(sorted)

	rows, err := r.DB.Query(ctx, `
		SELECT id, booth_id, name, price, stock, is_sold_out, purchase_limit
		FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]Product, len(sorted))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.BoothID, &p.Name, &p.Price, &p.Stock, &p.IsSoldOut, &p.PurchaseLimit); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// AdjustStock moves a locked product's stock by delta (negative to commit a
// sale, positive to restore on cancellation). No-op for unlimited stock.
func (r Repo) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id=$1 AND stock IS NOT NULL`,
		productID, delta)
	return err
}
