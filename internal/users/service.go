package users

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jbj338033/flick-api/internal/apperr"
	"github.com/jbj338033/flick-api/internal/events"
	kafkax "github.com/jbj338033/flick-api/internal/kafka"
	"github.com/jbj338033/flick-api/internal/postgres"
)

// TxBeginner starts a database transaction. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Publisher is the fire-and-forget event sink for balance events.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Store is the transactional surface the service needs. Repo satisfies it.
type Store interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance int) error
	MarkGrantClaimed(ctx context.Context, id uuid.UUID) error
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) error
}

type NewStore func(db postgres.DBTX) Store

// Service owns balance movements that are not tied to an order: admin
// charges and the one-time grant claim.
type Service struct {
	pool     TxBeginner
	newStore NewStore
	producer Publisher
	service  string
}

func NewService(pool TxBeginner, newStore NewStore, producer Publisher, serviceName string) *Service {
	return &Service{pool: pool, newStore: newStore, producer: producer, service: serviceName}
}

// Charge credits amount to the user's balance under the balance row lock.
func (s *Service) Charge(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperr.ErrInvalidAmount
	}
	after, err := s.credit(ctx, userID, amount, EntryCharge, nil)
	if err != nil {
		return 0, err
	}
	s.publishCharged(userID, amount, after)
	return after, nil
}

// ClaimGrant credits the initial balance exactly once per user. The
// grant_claimed flag is monotonic; a second claim is a conflict.
func (s *Service) ClaimGrant(ctx context.Context, userID uuid.UUID) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	u, err := store.GetForUpdate(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.GrantClaimed {
		return 0, apperr.ErrGrantAlreadyClaimed
	}

	after := u.Balance + InitialBalance
	if err := store.SetBalance(ctx, userID, after); err != nil {
		return 0, err
	}
	if err := store.MarkGrantClaimed(ctx, userID); err != nil {
		return 0, err
	}
	if err := store.InsertLedgerEntry(ctx, LedgerEntry{
		Type:          EntryGrant,
		Amount:        InitialBalance,
		BalanceBefore: u.Balance,
		BalanceAfter:  after,
		UserID:        userID,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	s.publishCharged(userID, InitialBalance, after)
	return after, nil
}

func (s *Service) credit(ctx context.Context, userID uuid.UUID, amount int, typ EntryType, orderID *uuid.UUID) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	u, err := store.GetForUpdate(ctx, userID)
	if err != nil {
		return 0, err
	}
	after := u.Balance + amount
	if err := store.SetBalance(ctx, userID, after); err != nil {
		return 0, err
	}
	if err := store.InsertLedgerEntry(ctx, LedgerEntry{
		Type:          typ,
		Amount:        amount,
		BalanceBefore: u.Balance,
		BalanceAfter:  after,
		UserID:        userID,
		OrderID:       orderID,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return after, nil
}

func (s *Service) publishCharged(userID uuid.UUID, amount, balanceAfter int) {
	if s.producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventBalanceCharged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.service,
		CorrelationID: userID.String(),
		Payload: kafkax.MustMarshal(events.BalanceChargedPayload{
			UserID:       userID,
			Amount:       amount,
			BalanceAfter: balanceAfter,
		}),
	}
	s.producer.Publish(events.PartitionKey(userID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventBalanceCharged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
