package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jbj338033/flick-api/internal/apperr"
	"github.com/jbj338033/flick-api/internal/postgres"
)

// Repo persists payment reservations.
type Repo struct{ DB postgres.DBTX }

func (r Repo) Insert(ctx context.Context, res Reservation) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payment_reservations(id, code, order_id, expires_at, confirmed)
		VALUES ($1,$2,$3,$4,$5)`,
		res.ID, res.Code, res.OrderID, res.ExpiresAt, res.Confirmed)
	return err
}

func (r Repo) GetByCode(ctx context.Context, code string) (Reservation, error) {
	var res Reservation
	err := r.DB.QueryRow(ctx, `
		SELECT id, code, order_id, expires_at, confirmed
		FROM payment_reservations WHERE code=$1`, code).
		Scan(&res.ID, &res.Code, &res.OrderID, &res.ExpiresAt, &res.Confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, apperr.ErrReservationNotFound
	}
	return res, err
}

// GetByOrderForUpdate takes the reservation row lock, the first lock in the
// confirmation ordering (reservation -> order -> buyer -> products).
func (r Repo) GetByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (Reservation, error) {
	var res Reservation
	err := r.DB.QueryRow(ctx, `
		SELECT id, code, order_id, expires_at, confirmed
		FROM payment_reservations WHERE order_id=$1 FOR UPDATE`, orderID).
		Scan(&res.ID, &res.Code, &res.OrderID, &res.ExpiresAt, &res.Confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, apperr.ErrReservationNotFound
	}
	return res, err
}

func (r Repo) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `UPDATE payment_reservations SET confirmed=TRUE WHERE id=$1`, id)
	return err
}

// ListExpiredCodes returns the codes of expired, unconfirmed reservations
// whose order has not been swept yet. The PENDING join keeps already-swept
// reservations out of later passes.
func (r Repo) ListExpiredCodes(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT r.code FROM payment_reservations r
		JOIN orders o ON o.id = r.order_id
		WHERE r.confirmed = FALSE AND r.expires_at < $1 AND o.status = 'PENDING'`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}
