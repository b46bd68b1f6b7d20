package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jbj338033/flick-api/internal/apperr"
	"github.com/jbj338033/flick-api/internal/postgres"
)

type Repo struct{ DB postgres.DBTX }

// Create inserts a PENDING order, numbering it max(order_number)+1 within the
// booth. The caller must already hold the booth row lock in the same
// transaction, which is what keeps numbers contiguous under concurrency.
func (r Repo) Create(ctx context.Context, boothID uuid.UUID, totalAmount int) (Order, error) {
	var next int
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(MAX(order_number), 0) + 1 FROM orders WHERE booth_id=$1`, boothID).
		Scan(&next)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		ID:          uuid.New(),
		OrderNumber: next,
		TotalAmount: totalAmount,
		Status:      StatusPending,
		BoothID:     boothID,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders(id, booth_id, order_number, total_amount, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.BoothID, o.OrderNumber, o.TotalAmount, o.Status, o.CreatedAt)
	return o, err
}

func (r Repo) InsertLine(ctx context.Context, orderID, productID uuid.UUID, quantity, price int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_lines(id, order_id, product_id, quantity, price)
		VALUES ($1,$2,$3,$4,$5)`, id, orderID, productID, quantity, price)
	return id, err
}

func (r Repo) InsertLineOption(ctx context.Context, lineID uuid.UUID, groupName, optionName string, unitPrice, quantity int) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_line_options(id, order_line_id, group_name, option_name, unit_price, quantity)
		VALUES ($1,$2,$3,$4,$5,$6)`, uuid.New(), lineID, groupName, optionName, unitPrice, quantity)
	return err
}

func (r Repo) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate takes the order row lock that makes confirmation and
// cancellation of one order mutually exclusive.
func (r Repo) GetForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r Repo) get(ctx context.Context, id uuid.UUID, suffix string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, booth_id, order_number, total_amount, status, buyer_id, created_at
		FROM orders WHERE id=$1`+suffix, id).
		Scan(&o.ID, &o.BoothID, &o.OrderNumber, &o.TotalAmount, &o.Status, &o.BuyerID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.ErrOrderNotFound
	}
	return o, err
}

func (r Repo) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, id, status)
	return err
}

// BindBuyer records the confirming user; the first and only write of the
// buyer identity.
func (r Repo) BindBuyer(ctx context.Context, orderID, buyerID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET buyer_id=$2 WHERE id=$1`, orderID, buyerID)
	return err
}

func (r Repo) ListLines(ctx context.Context, orderID uuid.UUID) ([]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_lines WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r Repo) ListLinesWithProduct(ctx context.Context, orderID uuid.UUID) ([]LineWithProduct, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT l.id, l.order_id, l.product_id, l.quantity, l.price, p.name
		FROM order_lines l JOIN products p ON p.id = l.product_id
		WHERE l.order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineWithProduct
	for rows.Next() {
		var l LineWithProduct
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.Price, &l.ProductName); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r Repo) ListLineOptions(ctx context.Context, lineID uuid.UUID) ([]LineOption, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_line_id, group_name, option_name, unit_price, quantity
		FROM order_line_options WHERE order_line_id=$1`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineOption
	for rows.Next() {
		var o LineOption
		if err := rows.Scan(&o.ID, &o.LineID, &o.GroupName, &o.OptionName, &o.UnitPrice, &o.Quantity); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SumConfirmedQuantities returns, per product, the buyer's cumulative
// confirmed quantity. Feeds purchase-limit enforcement at confirmation time.
func (r Repo) SumConfirmedQuantities(ctx context.Context, buyerID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT l.product_id, COALESCE(SUM(l.quantity), 0)
		FROM order_lines l JOIN orders o ON o.id = l.order_id
		WHERE o.buyer_id=$1 AND o.status='CONFIRMED' AND l.product_id = ANY($2)
		GROUP BY l.product_id`, buyerID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// CancelExpired flips every PENDING order whose reservation is unconfirmed
// and past expiry to CANCELLED in one set-based update. A confirmation that
// won the race is excluded by the PENDING precondition.
func (r Repo) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status='CANCELLED'
		WHERE status='PENDING' AND id IN (
			SELECT order_id FROM payment_reservations
			WHERE confirmed = FALSE AND expires_at < $1)`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r Repo) ListByBooth(ctx context.Context, boothID uuid.UUID) ([]Order, error) {
	return r.list(ctx, `booth_id`, boothID)
}

func (r Repo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]Order, error) {
	return r.list(ctx, `buyer_id`, buyerID)
}

func (r Repo) list(ctx context.Context, column string, id uuid.UUID) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, booth_id, order_number, total_amount, status, buyer_id, created_at
		FROM orders WHERE `+column+`=$1 ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BoothID, &o.OrderNumber, &o.TotalAmount, &o.Status, &o.BuyerID, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
