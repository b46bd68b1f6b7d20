// Package payment implements the payment and order transaction engine:
// code-addressed reservations, the exactly-once confirmation transaction,
// compensating cancellation, and the expiry sweep.
package payment

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jbj338033/flick-api/internal/apperr"
	"github.com/jbj338033/flick-api/internal/catalog"
	"github.com/jbj338033/flick-api/internal/events"
	kafkax "github.com/jbj338033/flick-api/internal/kafka"
	"github.com/jbj338033/flick-api/internal/orders"
	"github.com/jbj338033/flick-api/internal/postgres"
	"github.com/jbj338033/flick-api/internal/users"
)

// codeAttempts bounds the random-draw retries on code collision; exhaustion
// is surfaced, never silently retried past the bound.
const codeAttempts = 10

type Engine struct {
	pool      TxBeginner
	db        postgres.DBTX
	newStore  NewStore
	codes     CodeRegistry
	completed Publisher // payment.completed
	cancelled Publisher // order.cancelled
	service   string
	ttl       time.Duration
	now       func() time.Time
}

func NewEngine(pool TxBeginner, db postgres.DBTX, newStore NewStore, codes CodeRegistry, completed, cancelled Publisher, serviceName string, ttl time.Duration) *Engine {
	return &Engine{
		pool:      pool,
		db:        db,
		newStore:  newStore,
		codes:     codes,
		completed: completed,
		cancelled: cancelled,
		service:   serviceName,
		ttl:       ttl,
		now:       time.Now,
	}
}

// CreateReservation prices the requested items, creates the PENDING order
// with frozen option snapshots, and issues a payment code. Stock is only
// soft-checked here; the authoritative check happens under lock at
// confirmation.
func (e *Engine) CreateReservation(ctx context.Context, boothID uuid.UUID, items []ItemInput) (*ReservationResult, error) {
	if len(items) == 0 {
		return nil, apperr.ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, apperr.ErrInvalidQuantity
		}
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := e.newStore(tx)

	// Booth row lock: serializes order numbering for this booth only.
	if err := store.LockBooth(ctx, boothID); err != nil {
		return nil, err
	}

	type pricedItem struct {
		productID uuid.UUID
		quantity  int
		price     int
		snapshots []catalog.OptionSnapshot
	}
	var (
		priced []pricedItem
		total  int
	)
	for _, it := range items {
		product, err := store.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if product.BoothID != boothID {
			return nil, apperr.ErrProductNotInBooth
		}
		if product.IsSoldOut {
			return nil, apperr.ErrProductSoldOut
		}
		if product.Stock != nil && *product.Stock < it.Quantity {
			return nil, apperr.ErrStockInsufficient
		}

		groups, err := store.ListOptionGroups(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		optionIDs := make([]uuid.UUID, 0, len(it.Options))
		for _, sel := range it.Options {
			optionIDs = append(optionIDs, sel.OptionID)
		}
		options, err := store.GetOptions(ctx, optionIDs)
		if err != nil {
			return nil, err
		}
		snapshots, err := catalog.ResolveOptions(it.ProductID, groups, options, it.Options)
		if err != nil {
			return nil, err
		}

		price := catalog.LinePrice(product, snapshots)
		total += price * it.Quantity
		priced = append(priced, pricedItem{
			productID: it.ProductID,
			quantity:  it.Quantity,
			price:     price,
			snapshots: snapshots,
		})
	}

	order, err := store.CreateOrder(ctx, boothID, total)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	for _, it := range priced {
		lineID, err := store.InsertLine(ctx, order.ID, it.productID, it.quantity, it.price)
		if err != nil {
			return nil, fmt.Errorf("insert line: %w", err)
		}
		for _, snap := range it.snapshots {
			if err := store.InsertLineOption(ctx, lineID, snap.GroupName, snap.OptionName, snap.UnitPrice, snap.Quantity); err != nil {
				return nil, fmt.Errorf("insert line option: %w", err)
			}
		}
	}

	code, err := e.generateCode(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if err := store.InsertReservation(ctx, Reservation{
		ID:        uuid.New(),
		Code:      code,
		OrderID:   order.ID,
		ExpiresAt: e.now().Add(e.ttl),
	}); err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ReservationResult{
		OrderID:     order.ID,
		Code:        code,
		OrderNumber: order.OrderNumber,
		TotalAmount: total,
	}, nil
}

// generateCode draws random 6-digit codes until the registry accepts one.
// A lost transaction after acceptance leaves only a TTL-bounded orphan key.
func (e *Engine) generateCode(ctx context.Context, orderID uuid.UUID) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := fmt.Sprintf("%06d", rand.IntN(900000)+100000)
		ok, err := e.codes.SaveIfAbsent(ctx, code, orderID)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", apperr.ErrCodeGenerationFailed
}

// GetReservation returns the full reservation detail for a code, looked up
// in the durable store so it works even after the registry entry expired.
func (e *Engine) GetReservation(ctx context.Context, code string) (*ReservationDetail, error) {
	store := e.newStore(e.db)

	res, err := store.GetReservationByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	order, err := store.GetOrder(ctx, res.OrderID)
	if err != nil {
		return nil, err
	}
	booth, err := store.GetBooth(ctx, order.BoothID)
	if err != nil {
		return nil, err
	}
	lines, err := store.ListLinesWithProduct(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	items := make([]ReservationItem, 0, len(lines))
	for _, l := range lines {
		opts, err := store.ListLineOptions(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, ReservationItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.Price,
			Options:     opts,
		})
	}
	return &ReservationDetail{
		OrderID:     order.ID,
		Code:        res.Code,
		OrderNumber: order.OrderNumber,
		TotalAmount: order.TotalAmount,
		BoothID:     booth.ID,
		BoothName:   booth.Name,
		Confirmed:   res.Confirmed,
		Expired:     res.ExpiresAt.Before(e.now()),
		ExpiresAt:   res.ExpiresAt,
		Items:       items,
	}, nil
}

// ConfirmPayment performs the multi-entity locked transaction that moves
// balance and stock and consumes the reservation exactly once. Lock order:
// reservation -> order -> buyer -> products (sorted by id). The code is
// released from the registry only after the commit succeeds.
func (e *Engine) ConfirmPayment(ctx context.Context, code string, buyerID uuid.UUID) (*ConfirmResult, error) {
	orderID, ok, err := e.codes.Resolve(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("resolve code: %w", err)
	}
	if !ok {
		return nil, apperr.ErrInvalidCode
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := e.newStore(tx)

	res, err := store.GetReservationForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if res.Confirmed {
		return nil, apperr.ErrAlreadyConfirmed
	}
	if res.ExpiresAt.Before(e.now()) {
		return nil, apperr.ErrCodeExpired
	}

	// Order row lock: a sweep that races this confirmation serializes here,
	// so exactly one of them commits its transition.
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == orders.StatusCancelled {
		// Swept before we got the lock.
		return nil, apperr.ErrCodeExpired
	}
	if !orders.CanTransition(order.Status, orders.StatusConfirmed) {
		return nil, apperr.ErrAlreadyConfirmed
	}
	buyer, err := store.GetUserForUpdate(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if err := store.BindBuyer(ctx, orderID, buyerID); err != nil {
		return nil, err
	}

	lines, err := store.ListLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	productIDs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		productIDs = append(productIDs, l.ProductID)
	}

	if err := e.checkPurchaseLimits(ctx, store, buyerID, lines, productIDs); err != nil {
		return nil, err
	}

	// Hard check: authoritative stock validation and decrement under the
	// sorted product locks. Quantities are summed per product first; the same
	// product may appear on several lines with different option sets.
	needed := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		needed[l.ProductID] += l.Quantity
	}
	locked, err := store.LockProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	for productID, qty := range needed {
		product, ok := locked[productID]
		if !ok {
			return nil, apperr.ErrProductNotFound
		}
		if product.IsSoldOut {
			return nil, apperr.ErrProductSoldOut
		}
		if product.Stock != nil {
			if *product.Stock < qty {
				return nil, apperr.ErrStockInsufficient
			}
			if err := store.AdjustStock(ctx, productID, -qty); err != nil {
				return nil, err
			}
		}
	}

	if buyer.Balance < order.TotalAmount {
		return nil, apperr.ErrInsufficientBalance
	}
	balanceAfter := buyer.Balance - order.TotalAmount
	if err := store.SetBalance(ctx, buyerID, balanceAfter); err != nil {
		return nil, err
	}
	if err := store.SetOrderStatus(ctx, orderID, orders.StatusConfirmed); err != nil {
		return nil, err
	}
	if err := store.MarkConfirmed(ctx, res.ID); err != nil {
		return nil, err
	}
	if err := store.InsertLedgerEntry(ctx, users.LedgerEntry{
		Type:          users.EntryPayment,
		Amount:        order.TotalAmount,
		BalanceBefore: buyer.Balance,
		BalanceAfter:  balanceAfter,
		UserID:        buyerID,
		OrderID:       &orderID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// After commit only. A crash here leaves an unresolvable-but-consumed
	// code, never a resolvable code on a confirmed order.
	if err := e.codes.Delete(ctx, code); err != nil {
		log.Printf("release payment code %s: %v", code, err)
	}

	e.publish(e.completed, events.EventPaymentCompleted, orderID, events.PaymentCompletedPayload{
		OrderID:     orderID,
		BuyerID:     buyerID,
		BoothID:     order.BoothID,
		TotalAmount: order.TotalAmount,
		OrderNumber: order.OrderNumber,
	})

	return &ConfirmResult{
		OrderID:      orderID,
		OrderNumber:  order.OrderNumber,
		TotalAmount:  order.TotalAmount,
		BalanceAfter: balanceAfter,
	}, nil
}

// checkPurchaseLimits enforces the per-product cumulative confirmed cap for
// this buyer across all capped products in the order.
func (e *Engine) checkPurchaseLimits(ctx context.Context, store Store, buyerID uuid.UUID, lines []orders.Line, productIDs []uuid.UUID) error {
	products, err := store.GetProducts(ctx, productIDs)
	if err != nil {
		return err
	}
	// Summed per product: the cap is on the order's combined quantity, not
	// per line.
	limited := make(map[uuid.UUID]int)
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return apperr.ErrProductNotFound
		}
		if p.PurchaseLimit != nil {
			limited[l.ProductID] += l.Quantity
		}
	}
	if len(limited) == 0 {
		return nil
	}

	limitedIDs := make([]uuid.UUID, 0, len(limited))
	for id := range limited {
		limitedIDs = append(limitedIDs, id)
	}
	purchased, err := store.SumConfirmedQuantities(ctx, buyerID, limitedIDs)
	if err != nil {
		return err
	}
	for productID, qty := range limited {
		if purchased[productID]+qty > *products[productID].PurchaseLimit {
			return apperr.ErrPurchaseLimitExceeded
		}
	}
	return nil
}

func (e *Engine) publish(p Publisher, eventType string, orderID uuid.UUID, payload any) {
	if p == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.service,
		CorrelationID: orderID.String(),
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(events.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
