package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jbj338033/flick-api/internal/apperr"
	"github.com/jbj338033/flick-api/internal/events"
	"github.com/jbj338033/flick-api/internal/orders"
	"github.com/jbj338033/flick-api/internal/users"
)

// CancelOrder reverses a confirmed order in one transaction: refund the
// buyer, restore stock, flip the order to CANCELLED, and append a REFUND
// ledger entry. Only the booth owner or an admin may cancel.
func (e *Engine) CancelOrder(ctx context.Context, orderID, requesterID uuid.UUID) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := e.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != orders.StatusConfirmed {
		return apperr.ErrNotCancellable
	}
	if order.BuyerID == nil {
		return apperr.ErrNotCancellable
	}

	requester, err := store.GetUser(ctx, requesterID)
	if err != nil {
		return err
	}
	if requester.Role != users.RoleAdmin {
		booth, err := store.GetBooth(ctx, order.BoothID)
		if err != nil {
			return err
		}
		if booth.OwnerID != requesterID {
			return apperr.ErrCancelForbidden
		}
	}

	if err := store.SetOrderStatus(ctx, orderID, orders.StatusCancelled); err != nil {
		return err
	}

	buyer, err := store.GetUserForUpdate(ctx, *order.BuyerID)
	if err != nil {
		return err
	}
	balanceAfter := buyer.Balance + order.TotalAmount
	if err := store.SetBalance(ctx, buyer.ID, balanceAfter); err != nil {
		return err
	}

	lines, err := store.ListLines(ctx, orderID)
	if err != nil {
		return err
	}
	productIDs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		productIDs = append(productIDs, l.ProductID)
	}
	locked, err := store.LockProducts(ctx, productIDs)
	if err != nil {
		return err
	}
	for _, l := range lines {
		product, ok := locked[l.ProductID]
		if !ok {
			return apperr.ErrProductNotFound
		}
		if product.Stock == nil {
			continue
		}
		if err := store.AdjustStock(ctx, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}

	if err := store.InsertLedgerEntry(ctx, users.LedgerEntry{
		Type:          users.EntryRefund,
		Amount:        order.TotalAmount,
		BalanceBefore: buyer.Balance,
		BalanceAfter:  balanceAfter,
		UserID:        buyer.ID,
		OrderID:       &orderID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	e.publish(e.cancelled, events.EventOrderCancelled, orderID, events.OrderCancelledPayload{
		OrderID:     orderID,
		BuyerID:     buyer.ID,
		BoothID:     order.BoothID,
		TotalAmount: order.TotalAmount,
		OrderNumber: order.OrderNumber,
	})
	return nil
}
