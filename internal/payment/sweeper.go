package payment

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically cancels PENDING orders whose reservations ran out and
// releases their codes from the registry. Expired PENDING orders hold no
// stock or balance, so the sweep is a pure status flip plus code cleanup.
type Sweeper struct {
	pool     TxBeginner
	newStore NewStore
	codes    CodeRegistry
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(pool TxBeginner, newStore NewStore, codes CodeRegistry, interval time.Duration) *Sweeper {
	return &Sweeper{
		pool:     pool,
		newStore: newStore,
		codes:    codes,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper stopped")
			return
		case <-t.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("swept %d expired reservations", n)
			}
		}
	}
}

// RunOnce cancels every expired unconfirmed reservation's order and returns
// how many were cancelled. Registry deletes happen after commit and are
// best-effort since the keys expire on their own anyway.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	codes, err := store.ListExpiredCodes(ctx, now)
	if err != nil {
		return 0, err
	}
	n, err := store.CancelExpiredOrders(ctx, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	for _, code := range codes {
		if err := s.codes.Delete(ctx, code); err != nil {
			log.Printf("release payment code %s: %v", code, err)
		}
	}
	return n, nil
}
