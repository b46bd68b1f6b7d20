package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jbj338033/flick-api/internal/apperr"
	"github.com/jbj338033/flick-api/internal/catalog"
	"github.com/jbj338033/flick-api/internal/events"
	kafkax "github.com/jbj338033/flick-api/internal/kafka"
	"github.com/jbj338033/flick-api/internal/orders"
	"github.com/jbj338033/flick-api/internal/postgres"
	"github.com/jbj338033/flick-api/internal/users"
)

// --- Mock TxBeginner ---

type mockTx struct {
	committed bool
}

func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error { return nil }

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (m *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Conn() *pgx.Conn { return nil }

type mockPool struct {
	last *mockTx
}

func (m *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	m.last = &mockTx{}
	return m.last, nil
}

// --- Mock CodeRegistry ---

type mockCodes struct {
	m           map[string]uuid.UUID
	alwaysTaken bool
	deleted     []string
}

func newMockCodes() *mockCodes { return &mockCodes{m: make(map[string]uuid.UUID)} }

func (c *mockCodes) SaveIfAbsent(_ context.Context, code string, orderID uuid.UUID) (bool, error) {
	if c.alwaysTaken {
		return false, nil
	}
	if _, ok := c.m[code]; ok {
		return false, nil
	}
	c.m[code] = orderID
	return true, nil
}

func (c *mockCodes) Resolve(_ context.Context, code string) (uuid.UUID, bool, error) {
	id, ok := c.m[code]
	return id, ok, nil
}

func (c *mockCodes) Delete(_ context.Context, code string) error {
	delete(c.m, code)
	c.deleted = append(c.deleted, code)
	return nil
}

// --- Capture Publisher ---

type capturePub struct {
	published [][]byte
}

func (p *capturePub) Publish(key, value []byte, headers ...kafkago.Header) {
	p.published = append(p.published, value)
}

// --- Mock Store ---

// mockStore is an in-memory Store with just enough SQL semantics for the
// engine: per-booth numbering, stock math, confirmed-quantity sums.
type mockStore struct {
	booths       map[uuid.UUID]catalog.Booth
	products     map[uuid.UUID]catalog.Product
	groups       map[uuid.UUID][]catalog.OptionGroup
	options      map[uuid.UUID]catalog.Option
	orders       map[uuid.UUID]orders.Order
	lines        map[uuid.UUID][]orders.Line
	lineOpts     map[uuid.UUID][]orders.LineOption
	reservations map[uuid.UUID]*Reservation // keyed by order id
	users        map[uuid.UUID]users.User
	ledger       []users.LedgerEntry
	confirmedQty map[uuid.UUID]map[uuid.UUID]int // buyer -> product -> qty
}

func newMockStore() *mockStore {
	return &mockStore{
		booths:       make(map[uuid.UUID]catalog.Booth),
		products:     make(map[uuid.UUID]catalog.Product),
		groups:       make(map[uuid.UUID][]catalog.OptionGroup),
		options:      make(map[uuid.UUID]catalog.Option),
		orders:       make(map[uuid.UUID]orders.Order),
		lines:        make(map[uuid.UUID][]orders.Line),
		lineOpts:     make(map[uuid.UUID][]orders.LineOption),
		reservations: make(map[uuid.UUID]*Reservation),
		users:        make(map[uuid.UUID]users.User),
		confirmedQty: make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

func (s *mockStore) GetBooth(_ context.Context, id uuid.UUID) (catalog.Booth, error) {
	b, ok := s.booths[id]
	if !ok {
		return catalog.Booth{}, apperr.ErrBoothNotFound
	}
	return b, nil
}

func (s *mockStore) LockBooth(_ context.Context, id uuid.UUID) error {
	if _, ok := s.booths[id]; !ok {
		return apperr.ErrBoothNotFound
	}
	return nil
}

func (s *mockStore) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, apperr.ErrProductNotFound
	}
	return p, nil
}

func (s *mockStore) GetProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	out := make(map[uuid.UUID]catalog.Product)
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *mockStore) ListOptionGroups(_ context.Context, productID uuid.UUID) ([]catalog.OptionGroup, error) {
	return s.groups[productID], nil
}

func (s *mockStore) GetOptions(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Option, error) {
	out := make(map[uuid.UUID]catalog.Option)
	for _, id := range ids {
		if o, ok := s.options[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (s *mockStore) LockProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	return s.GetProducts(context.Background(), ids)
}

func (s *mockStore) AdjustStock(_ context.Context, productID uuid.UUID, delta int) error {
	p := s.products[productID]
	if p.Stock != nil {
		n := *p.Stock + delta
		p.Stock = &n
		s.products[productID] = p
	}
	return nil
}

func (s *mockStore) CreateOrder(_ context.Context, boothID uuid.UUID, totalAmount int) (orders.Order, error) {
	next := 1
	for _, o := range s.orders {
		if o.BoothID == boothID && o.OrderNumber >= next {
			next = o.OrderNumber + 1
		}
	}
	o := orders.Order{
		ID:          uuid.New(),
		OrderNumber: next,
		TotalAmount: totalAmount,
		Status:      orders.StatusPending,
		BoothID:     boothID,
		CreatedAt:   time.Now(),
	}
	s.orders[o.ID] = o
	return o, nil
}

func (s *mockStore) InsertLine(_ context.Context, orderID, productID uuid.UUID, quantity, price int) (uuid.UUID, error) {
	id := uuid.New()
	s.lines[orderID] = append(s.lines[orderID], orders.Line{
		ID: id, OrderID: orderID, ProductID: productID, Quantity: quantity, Price: price,
	})
	return id, nil
}

func (s *mockStore) InsertLineOption(_ context.Context, lineID uuid.UUID, groupName, optionName string, unitPrice, quantity int) error {
	s.lineOpts[lineID] = append(s.lineOpts[lineID], orders.LineOption{
		ID: uuid.New(), LineID: lineID, GroupName: groupName, OptionName: optionName,
		UnitPrice: unitPrice, Quantity: quantity,
	})
	return nil
}

func (s *mockStore) GetOrder(_ context.Context, id uuid.UUID) (orders.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.ErrOrderNotFound
	}
	return o, nil
}

func (s *mockStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (orders.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *mockStore) SetOrderStatus(_ context.Context, id uuid.UUID, status orders.Status) error {
	o := s.orders[id]
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *mockStore) BindBuyer(_ context.Context, orderID, buyerID uuid.UUID) error {
	o := s.orders[orderID]
	o.BuyerID = &buyerID
	s.orders[orderID] = o
	return nil
}

func (s *mockStore) ListLines(_ context.Context, orderID uuid.UUID) ([]orders.Line, error) {
	return s.lines[orderID], nil
}

func (s *mockStore) ListLineOptions(_ context.Context, lineID uuid.UUID) ([]orders.LineOption, error) {
	return s.lineOpts[lineID], nil
}

func (s *mockStore) ListLinesWithProduct(_ context.Context, orderID uuid.UUID) ([]orders.LineWithProduct, error) {
	var out []orders.LineWithProduct
	for _, l := range s.lines[orderID] {
		out = append(out, orders.LineWithProduct{Line: l, ProductName: s.products[l.ProductID].Name})
	}
	return out, nil
}

func (s *mockStore) SumConfirmedQuantities(_ context.Context, buyerID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int)
	for _, id := range productIDs {
		if n := s.confirmedQty[buyerID][id]; n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (s *mockStore) CancelExpiredOrders(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for orderID, res := range s.reservations {
		if res.Confirmed || !res.ExpiresAt.Before(now) {
			continue
		}
		o := s.orders[orderID]
		if o.Status != orders.StatusPending {
			continue
		}
		o.Status = orders.StatusCancelled
		s.orders[orderID] = o
		n++
	}
	return n, nil
}

func (s *mockStore) InsertReservation(_ context.Context, res Reservation) error {
	s.reservations[res.OrderID] = &res
	return nil
}

func (s *mockStore) GetReservationByCode(_ context.Context, code string) (Reservation, error) {
	for _, res := range s.reservations {
		if res.Code == code {
			return *res, nil
		}
	}
	return Reservation{}, apperr.ErrReservationNotFound
}

func (s *mockStore) GetReservationForUpdate(_ context.Context, orderID uuid.UUID) (Reservation, error) {
	res, ok := s.reservations[orderID]
	if !ok {
		return Reservation{}, apperr.ErrReservationNotFound
	}
	return *res, nil
}

func (s *mockStore) MarkConfirmed(_ context.Context, id uuid.UUID) error {
	for _, res := range s.reservations {
		if res.ID == id {
			res.Confirmed = true
		}
	}
	return nil
}

func (s *mockStore) ListExpiredCodes(_ context.Context, now time.Time) ([]string, error) {
	var out []string
	for orderID, res := range s.reservations {
		if !res.Confirmed && res.ExpiresAt.Before(now) && s.orders[orderID].Status == orders.StatusPending {
			out = append(out, res.Code)
		}
	}
	return out, nil
}

func (s *mockStore) GetUser(_ context.Context, id uuid.UUID) (users.User, error) {
	u, ok := s.users[id]
	if !ok {
		return users.User{}, apperr.ErrUserNotFound
	}
	return u, nil
}

func (s *mockStore) GetUserForUpdate(ctx context.Context, id uuid.UUID) (users.User, error) {
	return s.GetUser(ctx, id)
}

func (s *mockStore) SetBalance(_ context.Context, id uuid.UUID, balance int) error {
	u := s.users[id]
	u.Balance = balance
	s.users[id] = u
	return nil
}

func (s *mockStore) InsertLedgerEntry(_ context.Context, e users.LedgerEntry) error {
	s.ledger = append(s.ledger, e)
	return nil
}

// --- Fixtures ---

type fixture struct {
	engine  *Engine
	store   *mockStore
	codes   *mockCodes
	events  *capturePub
	now     time.Time
	boothID uuid.UUID
	ownerID uuid.UUID
	buyerID uuid.UUID
	adminID uuid.UUID
}

func intp(n int) *int { return &n }

func newFixture() *fixture {
	store := newMockStore()
	codes := newMockCodes()
	pub := &capturePub{}
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

	f := &fixture{
		store:   store,
		codes:   codes,
		events:  pub,
		now:     now,
		boothID: uuid.New(),
		ownerID: uuid.New(),
		buyerID: uuid.New(),
		adminID: uuid.New(),
	}
	store.users[f.ownerID] = users.User{ID: f.ownerID, Name: "owner", Role: users.RoleStudent, Balance: 0}
	store.users[f.buyerID] = users.User{ID: f.buyerID, Name: "buyer", Role: users.RoleStudent, Balance: 10000}
	store.users[f.adminID] = users.User{ID: f.adminID, Name: "admin", Role: users.RoleAdmin, Balance: 0}
	store.booths[f.boothID] = catalog.Booth{ID: f.boothID, Name: "tteokbokki", OwnerID: f.ownerID}

	eng := NewEngine(&mockPool{}, nil, func(db postgres.DBTX) Store { return store }, codes, pub, pub, "test", 3*time.Minute)
	eng.now = func() time.Time { return f.now }
	f.engine = eng
	return f
}

func (f *fixture) addProduct(name string, price int, stock *int) uuid.UUID {
	id := uuid.New()
	f.store.products[id] = catalog.Product{ID: id, BoothID: f.boothID, Name: name, Price: price, Stock: stock}
	return id
}

func (f *fixture) reserve(t *testing.T, items []ItemInput) *ReservationResult {
	t.Helper()
	res, err := f.engine.CreateReservation(context.Background(), f.boothID, items)
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return res
}

// --- CreateReservation ---

func TestCreateReservationPricesOptions(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("ramyeon", 2000, nil)

	groupID := uuid.New()
	f.store.groups[productID] = []catalog.OptionGroup{
		{ID: groupID, ProductID: productID, Name: "toppings", MaxSelections: 3},
	}
	cheeseID := uuid.New()
	f.store.options[cheeseID] = catalog.Option{ID: cheeseID, GroupID: groupID, Name: "cheese", Price: 500}

	res := f.reserve(t, []ItemInput{{
		ProductID: productID,
		Quantity:  1,
		Options:   []catalog.SelectedOption{{OptionID: cheeseID}},
	}})

	if res.TotalAmount != 2500 {
		t.Fatalf("total = %d, want 2500", res.TotalAmount)
	}
	if res.OrderNumber != 1 {
		t.Fatalf("order number = %d, want 1", res.OrderNumber)
	}
	if len(res.Code) != 6 {
		t.Fatalf("code %q is not 6 digits", res.Code)
	}
	if got, ok := f.codes.m[res.Code]; !ok || got != res.OrderID {
		t.Fatalf("code registry maps %q to %v, want %v", res.Code, got, res.OrderID)
	}

	order := f.store.orders[res.OrderID]
	if order.Status != orders.StatusPending {
		t.Fatalf("status = %s, want PENDING", order.Status)
	}
	lines := f.store.lines[res.OrderID]
	if len(lines) != 1 || lines[0].Price != 2500 {
		t.Fatalf("lines = %+v, want one line priced 2500", lines)
	}
	opts := f.store.lineOpts[lines[0].ID]
	if len(opts) != 1 || opts[0].OptionName != "cheese" || opts[0].UnitPrice != 500 {
		t.Fatalf("line options = %+v", opts)
	}

	detail, err := f.engine.GetReservation(context.Background(), res.Code)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if len(detail.Items) != 1 || len(detail.Items[0].Options) != 1 || detail.Items[0].Options[0].OptionName != "cheese" {
		t.Fatalf("detail items = %+v", detail.Items)
	}
}

func TestCreateReservationQuantityMultipliesLinePrice(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("hotdog", 1500, intp(10))

	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 3}})
	if res.TotalAmount != 4500 {
		t.Fatalf("total = %d, want 4500", res.TotalAmount)
	}
	// Creation never touches stock.
	if *f.store.products[productID].Stock != 10 {
		t.Fatalf("stock changed at reservation time")
	}
}

func TestCreateReservationOrderNumbersArePerBooth(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("cola", 1000, nil)

	first := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})
	second := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})
	if first.OrderNumber != 1 || second.OrderNumber != 2 {
		t.Fatalf("order numbers = %d, %d; want 1, 2", first.OrderNumber, second.OrderNumber)
	}
}

func TestCreateReservationValidation(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("cola", 1000, intp(2))
	otherBooth := uuid.New()
	f.store.booths[otherBooth] = catalog.Booth{ID: otherBooth, Name: "other", OwnerID: f.ownerID}

	soldOutID := uuid.New()
	f.store.products[soldOutID] = catalog.Product{ID: soldOutID, BoothID: f.boothID, Name: "gone", Price: 100, IsSoldOut: true}

	cases := []struct {
		name    string
		boothID uuid.UUID
		items   []ItemInput
		want    error
	}{
		{"empty items", f.boothID, nil, apperr.ErrEmptyItems},
		{"zero quantity", f.boothID, []ItemInput{{ProductID: productID, Quantity: 0}}, apperr.ErrInvalidQuantity},
		{"negative quantity", f.boothID, []ItemInput{{ProductID: productID, Quantity: -1}}, apperr.ErrInvalidQuantity},
		{"unknown booth", uuid.New(), []ItemInput{{ProductID: productID, Quantity: 1}}, apperr.ErrBoothNotFound},
		{"unknown product", f.boothID, []ItemInput{{ProductID: uuid.New(), Quantity: 1}}, apperr.ErrProductNotFound},
		{"foreign product", otherBooth, []ItemInput{{ProductID: productID, Quantity: 1}}, apperr.ErrProductNotInBooth},
		{"sold out", f.boothID, []ItemInput{{ProductID: soldOutID, Quantity: 1}}, apperr.ErrProductSoldOut},
		{"soft stock check", f.boothID, []ItemInput{{ProductID: productID, Quantity: 5}}, apperr.ErrStockInsufficient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateReservation(context.Background(), tc.boothID, tc.items)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateReservationCodeExhaustion(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("cola", 1000, nil)
	f.codes.alwaysTaken = true

	_, err := f.engine.CreateReservation(context.Background(), f.boothID, []ItemInput{{ProductID: productID, Quantity: 1}})
	if !errors.Is(err, apperr.ErrCodeGenerationFailed) {
		t.Fatalf("err = %v, want ErrCodeGenerationFailed", err)
	}
}

// --- GetReservation ---

func TestGetReservationDetail(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("ramyeon", 2000, nil)
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 2}})

	detail, err := f.engine.GetReservation(context.Background(), res.Code)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if detail.BoothName != "tteokbokki" || detail.TotalAmount != 4000 || detail.Confirmed || detail.Expired {
		t.Fatalf("detail = %+v", detail)
	}
	if len(detail.Items) != 1 || detail.Items[0].ProductName != "ramyeon" {
		t.Fatalf("items = %+v", detail.Items)
	}

	// Past expiry the detail is still served, flagged expired.
	f.now = f.now.Add(5 * time.Minute)
	detail, err = f.engine.GetReservation(context.Background(), res.Code)
	if err != nil {
		t.Fatalf("get reservation after expiry: %v", err)
	}
	if !detail.Expired {
		t.Fatal("expected expired flag")
	}

	if _, err := f.engine.GetReservation(context.Background(), "000000"); !errors.Is(err, apperr.ErrReservationNotFound) {
		t.Fatalf("unknown code err = %v", err)
	}
}

// --- ConfirmPayment ---

func TestConfirmPaymentDebitsAndDecrements(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("hotdog", 1500, intp(10))
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 2}})

	out, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if out.BalanceAfter != 7000 {
		t.Fatalf("balance after = %d, want 7000", out.BalanceAfter)
	}
	if f.store.users[f.buyerID].Balance != 7000 {
		t.Fatalf("stored balance = %d", f.store.users[f.buyerID].Balance)
	}
	if *f.store.products[productID].Stock != 8 {
		t.Fatalf("stock = %d, want 8", *f.store.products[productID].Stock)
	}

	order := f.store.orders[res.OrderID]
	if order.Status != orders.StatusConfirmed {
		t.Fatalf("order status = %s", order.Status)
	}
	if order.BuyerID == nil || *order.BuyerID != f.buyerID {
		t.Fatal("buyer not bound")
	}
	if !f.store.reservations[res.OrderID].Confirmed {
		t.Fatal("reservation not marked confirmed")
	}
	if len(f.store.ledger) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(f.store.ledger))
	}
	entry := f.store.ledger[0]
	if entry.Type != users.EntryPayment || entry.Amount != 3000 || entry.BalanceBefore != 10000 || entry.BalanceAfter != 7000 {
		t.Fatalf("ledger entry = %+v", entry)
	}
	if len(f.codes.deleted) != 1 || f.codes.deleted[0] != res.Code {
		t.Fatalf("code not released: %v", f.codes.deleted)
	}
	if len(f.events.published) != 1 {
		t.Fatalf("events published = %d, want 1", len(f.events.published))
	}
	var env events.Envelope
	if err := json.Unmarshal(f.events.published[0], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != events.EventPaymentCompleted {
		t.Fatalf("event type = %s", env.EventType)
	}
	payload, err := kafkax.UnwrapPayload[events.PaymentCompletedPayload](env.Payload)
	if err != nil {
		t.Fatalf("unwrap payload: %v", err)
	}
	if payload.OrderID != res.OrderID || payload.BuyerID != f.buyerID || payload.TotalAmount != 3000 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("hotdog", 1500, intp(10))
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})

	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	// Code already consumed from the registry.
	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID); !errors.Is(err, apperr.ErrInvalidCode) {
		t.Fatalf("second confirm err = %v, want ErrInvalidCode", err)
	}
	// Even with a stale registry entry the reservation row refuses a replay.
	f.codes.m[res.Code] = res.OrderID
	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID); !errors.Is(err, apperr.ErrAlreadyConfirmed) {
		t.Fatalf("replay err = %v, want ErrAlreadyConfirmed", err)
	}
	if f.store.users[f.buyerID].Balance != 8500 {
		t.Fatalf("balance charged more than once: %d", f.store.users[f.buyerID].Balance)
	}
	if *f.store.products[productID].Stock != 9 {
		t.Fatalf("stock decremented more than once: %d", *f.store.products[productID].Stock)
	}
}

func TestConfirmPaymentRejectsExpiredCode(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("cola", 1000, nil)
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})

	f.now = f.now.Add(4 * time.Minute)
	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID); !errors.Is(err, apperr.ErrCodeExpired) {
		t.Fatalf("err = %v, want ErrCodeExpired", err)
	}
	if f.store.users[f.buyerID].Balance != 10000 {
		t.Fatal("balance moved on expired code")
	}
}

func TestConfirmPaymentInsufficientBalance(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("premium", 20000, intp(5))
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})

	_, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID)
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	// The whole transaction rolls back, mock state aside the order stays pending.
	if f.store.orders[res.OrderID].Status == orders.StatusConfirmed {
		t.Fatal("order confirmed without funds")
	}
	if len(f.codes.deleted) != 0 {
		t.Fatal("code released on failed confirm")
	}
}

func TestConfirmPaymentInsufficientStock(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("hotdog", 1500, intp(3))
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 2}})

	// Stock drained between reservation and confirmation.
	f.store.products[productID] = catalog.Product{
		ID: productID, BoothID: f.boothID, Name: "hotdog", Price: 1500, Stock: intp(1),
	}
	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID); !errors.Is(err, apperr.ErrStockInsufficient) {
		t.Fatalf("err = %v, want ErrStockInsufficient", err)
	}
}

func TestConfirmPaymentPurchaseLimit(t *testing.T) {
	f := newFixture()
	productID := uuid.New()
	f.store.products[productID] = catalog.Product{
		ID: productID, BoothID: f.boothID, Name: "limited", Price: 1000, PurchaseLimit: intp(3),
	}
	f.store.confirmedQty[f.buyerID] = map[uuid.UUID]int{productID: 2}

	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 2}})
	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID); !errors.Is(err, apperr.ErrPurchaseLimitExceeded) {
		t.Fatalf("err = %v, want ErrPurchaseLimitExceeded", err)
	}

	// Exactly at the cap passes.
	res2 := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})
	if _, err := f.engine.ConfirmPayment(context.Background(), res2.Code, f.buyerID); err != nil {
		t.Fatalf("confirm at cap: %v", err)
	}
}

func TestConfirmPaymentSumsDuplicateProductLines(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("hotdog", 1000, intp(3))

	// Same product on two lines with different option sets is legal; the
	// hard check must validate the combined quantity, not each line against
	// the original stock.
	res := f.reserve(t, []ItemInput{
		{ProductID: productID, Quantity: 2},
		{ProductID: productID, Quantity: 2},
	})
	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, f.buyerID); !errors.Is(err, apperr.ErrStockInsufficient) {
		t.Fatalf("err = %v, want ErrStockInsufficient", err)
	}
	if *f.store.products[productID].Stock < 0 {
		t.Fatalf("oversold: stock = %d", *f.store.products[productID].Stock)
	}

	// Within stock the combined decrement applies exactly once.
	f2 := newFixture()
	productID2 := f2.addProduct("hotdog", 1000, intp(5))
	res2 := f2.reserve(t, []ItemInput{
		{ProductID: productID2, Quantity: 2},
		{ProductID: productID2, Quantity: 2},
	})
	out, err := f2.engine.ConfirmPayment(context.Background(), res2.Code, f2.buyerID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if out.TotalAmount != 4000 || out.BalanceAfter != 6000 {
		t.Fatalf("result = %+v", out)
	}
	if *f2.store.products[productID2].Stock != 1 {
		t.Fatalf("stock = %d, want 1", *f2.store.products[productID2].Stock)
	}
}

// sweptStore commits an expiry sweep at the moment the order row lock is
// granted, modeling a sweep transaction that wins the race.
type sweptStore struct {
	*mockStore
	sweepAt time.Time
	swept   int64
}

func (s *sweptStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (orders.Order, error) {
	n, err := s.mockStore.CancelExpiredOrders(ctx, s.sweepAt)
	if err != nil {
		return orders.Order{}, err
	}
	s.swept += n
	return s.mockStore.GetOrderForUpdate(ctx, id)
}

func TestConfirmPaymentLosesToSweep(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("hotdog", 1500, intp(10))
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})

	// The confirm side still sees the code as valid; the sweep side has
	// crossed the expiry boundary.
	ss := &sweptStore{mockStore: f.store, sweepAt: f.now.Add(4 * time.Minute)}
	eng := NewEngine(&mockPool{}, nil, func(db postgres.DBTX) Store { return ss }, f.codes, f.events, f.events, "test", 3*time.Minute)
	eng.now = func() time.Time { return f.now }

	_, err := eng.ConfirmPayment(context.Background(), res.Code, f.buyerID)
	if !errors.Is(err, apperr.ErrCodeExpired) {
		t.Fatalf("err = %v, want ErrCodeExpired", err)
	}
	if ss.swept != 1 {
		t.Fatalf("swept = %d, want 1", ss.swept)
	}
	// The sweep's cancellation stands; the confirmation must not resurrect
	// the order or move any money.
	if f.store.orders[res.OrderID].Status != orders.StatusCancelled {
		t.Fatalf("order status = %s, want CANCELLED", f.store.orders[res.OrderID].Status)
	}
	if f.store.users[f.buyerID].Balance != 10000 {
		t.Fatalf("balance = %d, want untouched 10000", f.store.users[f.buyerID].Balance)
	}
	if len(f.store.ledger) != 0 {
		t.Fatalf("ledger entries = %d, want 0", len(f.store.ledger))
	}
	if len(f.events.published) != 0 {
		t.Fatalf("events published = %d, want 0", len(f.events.published))
	}
}

func TestConfirmPaymentUnknownBuyer(t *testing.T) {
	f := newFixture()
	productID := f.addProduct("cola", 1000, nil)
	res := f.reserve(t, []ItemInput{{ProductID: productID, Quantity: 1}})

	if _, err := f.engine.ConfirmPayment(context.Background(), res.Code, uuid.New()); !errors.Is(err, apperr.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestConfirmPaymentInvalidCode(t *testing.T) {
	f := newFixture()
	if _, err := f.engine.ConfirmPayment(context.Background(), "123456", f.buyerID); !errors.Is(err, apperr.ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
}
