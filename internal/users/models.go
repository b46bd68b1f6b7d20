package users

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// InitialBalance is credited once per user via the grant claim.
const InitialBalance = 1000

type User struct {
	ID           uuid.UUID
	Name         string
	Role         Role
	Balance      int
	GrantClaimed bool
}

type EntryType string

const (
	EntryPayment EntryType = "PAYMENT"
	EntryRefund  EntryType = "REFUND"
	EntryCharge  EntryType = "CHARGE"
	EntryGrant   EntryType = "GRANT"
)

// LedgerEntry is the immutable record of one balance movement. Rows are only
// ever appended; cancellation writes a compensating REFUND entry instead of
// touching the PAYMENT one.
type LedgerEntry struct {
	ID            uuid.UUID
	Type          EntryType
	Amount        int
	BalanceBefore int
	BalanceAfter  int
	UserID        uuid.UUID
	OrderID       *uuid.UUID
	CreatedAt     time.Time
}
