package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jbj338033/flick-api/internal/catalog"
	"github.com/jbj338033/flick-api/internal/orders"
	"github.com/jbj338033/flick-api/internal/postgres"
	"github.com/jbj338033/flick-api/internal/users"
)

// pgStore glues the per-domain repositories into one Store, all sharing the
// same DBTX so every operation participates in the caller's transaction.
type pgStore struct {
	catalog      catalog.Repo
	orders       orders.Repo
	users        users.Repo
	reservations Repo
}

// NewPgStore is the production NewStore.
func NewPgStore(db postgres.DBTX) Store {
	return pgStore{
		catalog:      catalog.Repo{DB: db},
		orders:       orders.Repo{DB: db},
		users:        users.Repo{DB: db},
		reservations: Repo{DB: db},
	}
}

func (s pgStore) GetBooth(ctx context.Context, id uuid.UUID) (catalog.Booth, error) {
	return s.catalog.GetBooth(ctx, id)
}

func (s pgStore) LockBooth(ctx context.Context, id uuid.UUID) error {
	return s.catalog.LockBooth(ctx, id)
}

func (s pgStore) GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	return s.catalog.GetProduct(ctx, id)
}

func (s pgStore) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	return s.catalog.GetProducts(ctx, ids)
}

func (s pgStore) ListOptionGroups(ctx context.Context, productID uuid.UUID) ([]catalog.OptionGroup, error) {
	return s.catalog.ListOptionGroups(ctx, productID)
}

func (s pgStore) GetOptions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Option, error) {
	return s.catalog.GetOptions(ctx, ids)
}

func (s pgStore) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	return s.catalog.LockProducts(ctx, ids)
}

func (s pgStore) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	return s.catalog.AdjustStock(ctx, productID, delta)
}

func (s pgStore) CreateOrder(ctx context.Context, boothID uuid.UUID, totalAmount int) (orders.Order, error) {
	return s.orders.Create(ctx, boothID, totalAmount)
}

func (s pgStore) InsertLine(ctx context.Context, orderID, productID uuid.UUID, quantity, price int) (uuid.UUID, error) {
	return s.orders.InsertLine(ctx, orderID, productID, quantity, price)
}

func (s pgStore) InsertLineOption(ctx context.Context, lineID uuid.UUID, groupName, optionName string, unitPrice, quantity int) error {
	return s.orders.InsertLineOption(ctx, lineID, groupName, optionName, unitPrice, quantity)
}

func (s pgStore) GetOrder(ctx context.Context, id uuid.UUID) (orders.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s pgStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (orders.Order, error) {
	return s.orders.GetForUpdate(ctx, id)
}

func (s pgStore) SetOrderStatus(ctx context.Context, id uuid.UUID, status orders.Status) error {
	return s.orders.SetStatus(ctx, id, status)
}

func (s pgStore) BindBuyer(ctx context.Context, orderID, buyerID uuid.UUID) error {
	return s.orders.BindBuyer(ctx, orderID, buyerID)
}

func (s pgStore) ListLines(ctx context.Context, orderID uuid.UUID) ([]orders.Line, error) {
	return s.orders.ListLines(ctx, orderID)
}

func (s pgStore) ListLinesWithProduct(ctx context.Context, orderID uuid.UUID) ([]orders.LineWithProduct, error) {
	return s.orders.ListLinesWithProduct(ctx, orderID)
}

func (s pgStore) ListLineOptions(ctx context.Context, lineID uuid.UUID) ([]orders.LineOption, error) {
	return s.orders.ListLineOptions(ctx, lineID)
}

func (s pgStore) SumConfirmedQuantities(ctx context.Context, buyerID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	return s.orders.SumConfirmedQuantities(ctx, buyerID, productIDs)
}

func (s pgStore) CancelExpiredOrders(ctx context.Context, now time.Time) (int64, error) {
	return s.orders.CancelExpired(ctx, now)
}

func (s pgStore) InsertReservation(ctx context.Context, res Reservation) error {
	return s.reservations.Insert(ctx, res)
}

func (s pgStore) GetReservationByCode(ctx context.Context, code string) (Reservation, error) {
	return s.reservations.GetByCode(ctx, code)
}

func (s pgStore) GetReservationForUpdate(ctx context.Context, orderID uuid.UUID) (Reservation, error) {
	return s.reservations.GetByOrderForUpdate(ctx, orderID)
}

func (s pgStore) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	return s.reservations.MarkConfirmed(ctx, id)
}

func (s pgStore) ListExpiredCodes(ctx context.Context, now time.Time) ([]string, error) {
	return s.reservations.ListExpiredCodes(ctx, now)
}

func (s pgStore) GetUser(ctx context.Context, id uuid.UUID) (users.User, error) {
	return s.users.Get(ctx, id)
}

func (s pgStore) GetUserForUpdate(ctx context.Context, id uuid.UUID) (users.User, error) {
	return s.users.GetForUpdate(ctx, id)
}

func (s pgStore) SetBalance(ctx context.Context, id uuid.UUID, balance int) error {
	return s.users.SetBalance(ctx, id, balance)
}

func (s pgStore) InsertLedgerEntry(ctx context.Context, e users.LedgerEntry) error {
	return s.users.InsertLedgerEntry(ctx, e)
}
