package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jbj338033/flick-api/internal/catalog"
	"github.com/jbj338033/flick-api/internal/orders"
	"github.com/jbj338033/flick-api/internal/postgres"
	"github.com/jbj338033/flick-api/internal/users"
)

// TxBeginner starts a database transaction. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CodeRegistry is the contract over the external TTL key/value store that
// maps a live payment code to its order. SaveIfAbsent must be an atomic
// compare-and-insert.
type CodeRegistry interface {
	SaveIfAbsent(ctx context.Context, code string, orderID uuid.UUID) (bool, error)
	Resolve(ctx context.Context, code string) (uuid.UUID, bool, error)
	Delete(ctx context.Context, code string) error
}

// Publisher is the fire-and-forget event sink.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Store is every data operation the engine runs, scoped to whatever DBTX it
// was built from. Production code backs it with pgStore; tests mock it.
type Store interface {
	// catalog
	GetBooth(ctx context.Context, id uuid.UUID) (catalog.Booth, error)
	LockBooth(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error)
	ListOptionGroups(ctx context.Context, productID uuid.UUID) ([]catalog.OptionGroup, error)
	GetOptions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Option, error)
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error

	// orders
	CreateOrder(ctx context.Context, boothID uuid.UUID, totalAmount int) (orders.Order, error)
	InsertLine(ctx context.Context, orderID, productID uuid.UUID, quantity, price int) (uuid.UUID, error)
	InsertLineOption(ctx context.Context, lineID uuid.UUID, groupName, optionName string, unitPrice, quantity int) error
	GetOrder(ctx context.Context, id uuid.UUID) (orders.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (orders.Order, error)
	SetOrderStatus(ctx context.Context, id uuid.UUID, status orders.Status) error
	BindBuyer(ctx context.Context, orderID, buyerID uuid.UUID) error
	ListLines(ctx context.Context, orderID uuid.UUID) ([]orders.Line, error)
	ListLinesWithProduct(ctx context.Context, orderID uuid.UUID) ([]orders.LineWithProduct, error)
	ListLineOptions(ctx context.Context, lineID uuid.UUID) ([]orders.LineOption, error)
	SumConfirmedQuantities(ctx context.Context, buyerID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int, error)
	CancelExpiredOrders(ctx context.Context, now time.Time) (int64, error)

	// reservations
	InsertReservation(ctx context.Context, res Reservation) error
	GetReservationByCode(ctx context.Context, code string) (Reservation, error)
	GetReservationForUpdate(ctx context.Context, orderID uuid.UUID) (Reservation, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID) error
	ListExpiredCodes(ctx context.Context, now time.Time) ([]string, error)

	// users
	GetUser(ctx context.Context, id uuid.UUID) (users.User, error)
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (users.User, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance int) error
	InsertLedgerEntry(ctx context.Context, e users.LedgerEntry) error
}

// NewStore builds a Store over a pool or an open transaction.
type NewStore func(db postgres.DBTX) Store
