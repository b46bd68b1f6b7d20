package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPaymentCode = "payment:code:%s"

// PaymentCodes maps a live 6-digit payment code to its order id. Keys expire
// with the reservation window, so an abandoned code disappears on its own
// even if the sweeper never touches it.
type PaymentCodes struct {
	RDB *redis.Client
	TTL time.Duration
}

// SaveIfAbsent inserts code -> orderID only when the code is not taken.
// Returns false when another live reservation already holds the code.
func (c *PaymentCodes) SaveIfAbsent(ctx context.Context, code string, orderID uuid.UUID) (bool, error) {
	return c.RDB.SetNX(ctx, fmt.Sprintf(keyPaymentCode, code), orderID.String(), c.TTL).Result()
}

// Resolve returns the order id a code points at, or uuid.Nil and false when
// the code is unknown or already expired.
func (c *PaymentCodes) Resolve(ctx context.Context, code string) (uuid.UUID, bool, error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(keyPaymentCode, code)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt code mapping %q: %w", code, err)
	}
	return id, true, nil
}

// Delete releases a code. Deleting an absent key is not an error.
func (c *PaymentCodes) Delete(ctx context.Context, code string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(keyPaymentCode, code)).Err()
}
