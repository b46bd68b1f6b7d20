package users

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

func (r Repo) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate locks the balance row; every debit and credit goes through
// this lock.
func (r Repo) GetForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r Repo) get(ctx context.Context, id uuid.UUID, suffix string) (User, error) {
	var u User
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, role, balance, grant_claimed FROM users WHERE id=$1`+suffix, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.Balance, &u.GrantClaimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.ErrUserNotFound
	}
	return u, err
}

func (r Repo) SetBalance(ctx context.Context, id uuid.UUID, balance int) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET balance=$2 WHERE id=$1`, id, balance)
	return err
}

func (r Repo) MarkGrantClaimed(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET grant_claimed=TRUE WHERE id=$1`, id)
	return err
}

func (r Repo) InsertLedgerEntry(ctx context.Context, e LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO ledger_entries(id, type, amount, balance_before, balance_after, user_id, order_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.Type, e.Amount, e.BalanceBefore, e.BalanceAfter, e.UserID, e.OrderID, e.CreatedAt)
	return err
}
