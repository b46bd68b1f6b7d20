// Package apperr defines the domain error taxonomy. Every business failure
// carries a stable machine-readable code plus a kind that the HTTP layer maps
// to a status; financial rejections stay distinguishable from system errors.
package apperr

import "fmt"

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindBusinessRule
	KindForbidden
	KindUnavailable
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is lets errors.Is match by identity only; each var below is a singleton.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t == e
}

var (
	// NotFound
	ErrBoothNotFound       = &Error{KindNotFound, "BOOTH_NOT_FOUND", "booth not found"}
	ErrProductNotFound     = &Error{KindNotFound, "PRODUCT_NOT_FOUND", "product not found"}
	ErrOrderNotFound       = &Error{KindNotFound, "ORDER_NOT_FOUND", "order not found"}
	ErrReservationNotFound = &Error{KindNotFound, "RESERVATION_NOT_FOUND", "payment reservation not found"}
	ErrOptionGroupNotFound = &Error{KindNotFound, "OPTION_GROUP_NOT_FOUND", "option group not found"}
	ErrOptionNotFound      = &Error{KindNotFound, "OPTION_NOT_FOUND", "product option not found"}
	ErrUserNotFound        = &Error{KindNotFound, "USER_NOT_FOUND", "user not found"}

	// Conflict
	ErrAlreadyConfirmed    = &Error{KindConflict, "ALREADY_CONFIRMED", "reservation is already confirmed"}
	ErrNotCancellable      = &Error{KindConflict, "NOT_CANCELLABLE", "order is not cancellable"}
	ErrGrantAlreadyClaimed = &Error{KindConflict, "GRANT_ALREADY_CLAIMED", "grant already claimed"}

	// Validation
	ErrRequiredOptionMissing = &Error{KindValidation, "REQUIRED_OPTION_MISSING", "required option group is missing"}
	ErrMaxSelectionsExceeded = &Error{KindValidation, "MAX_SELECTIONS_EXCEEDED", "max selections exceeded for option group"}
	ErrQuantityNotAllowed    = &Error{KindValidation, "QUANTITY_NOT_ALLOWED", "quantity selection not allowed for this option"}
	ErrOptionNotInProduct    = &Error{KindValidation, "OPTION_NOT_IN_PRODUCT", "option does not belong to this product"}
	ErrProductNotInBooth     = &Error{KindValidation, "PRODUCT_NOT_IN_BOOTH", "product does not belong to this booth"}
	ErrInvalidQuantity       = &Error{KindValidation, "INVALID_QUANTITY", "quantity must be positive"}
	ErrInvalidAmount         = &Error{KindValidation, "INVALID_AMOUNT", "amount must be positive"}
	ErrEmptyItems            = &Error{KindValidation, "EMPTY_ITEMS", "items are required"}

	// BusinessRule
	ErrProductSoldOut        = &Error{KindBusinessRule, "PRODUCT_SOLD_OUT", "product is sold out"}
	ErrStockInsufficient     = &Error{KindBusinessRule, "STOCK_INSUFFICIENT", "insufficient product stock"}
	ErrPurchaseLimitExceeded = &Error{KindBusinessRule, "PURCHASE_LIMIT_EXCEEDED", "purchase limit exceeded"}
	ErrInsufficientBalance   = &Error{KindBusinessRule, "INSUFFICIENT_BALANCE", "insufficient balance"}
	ErrCodeExpired           = &Error{KindBusinessRule, "CODE_EXPIRED", "payment code has expired"}
	ErrInvalidCode           = &Error{KindBusinessRule, "INVALID_CODE", "invalid payment code"}

	// Forbidden
	ErrCancelForbidden = &Error{KindForbidden, "CANCEL_FORBIDDEN", "not allowed to cancel this order"}
	ErrForbidden       = &Error{KindForbidden, "FORBIDDEN", "access denied"}

	// Unavailable
	ErrCodeGenerationFailed = &Error{KindUnavailable, "CODE_GENERATION_FAILED", "failed to generate payment code"}
)
