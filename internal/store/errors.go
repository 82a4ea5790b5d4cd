package store

import (
	"errors"
	"fmt"
)

// Error is a guard failure. A call that returns an *Error left the store
// unchanged.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return e.Code + ": " + e.Reason }

var (
	ErrUnauthorized        = &Error{Code: "Unauthorized", Reason: "caller is not the owner"}
	ErrEmptyName           = &Error{Code: "EmptyName", Reason: "product name is required"}
	ErrZeroPrice           = &Error{Code: "ZeroPrice", Reason: "product price must be greater than zero"}
	ErrZeroQuantity        = &Error{Code: "ZeroQuantity", Reason: "product quantity must be greater than zero"}
	ErrDuplicateProduct    = &Error{Code: "DuplicateProduct", Reason: "a product with this name already exists"}
	ErrProductNotFound     = &Error{Code: "ProductNotFound", Reason: "product does not exist"}
	ErrIncorrectPayment    = &Error{Code: "IncorrectPayment", Reason: "payment must equal the product price"}
	ErrOutOfStock          = &Error{Code: "OutOfStock", Reason: "product is out of stock"}
	ErrAlreadyPurchased    = &Error{Code: "AlreadyPurchased", Reason: "caller already holds this product"}
	ErrRefundedCannotRebuy = &Error{Code: "RefundedCannotRebuy", Reason: "caller returned this product and cannot buy it again"}
	ErrNotPurchased        = &Error{Code: "NotPurchased", Reason: "caller has not bought this product"}
	ErrReturnWindowExpired = &Error{Code: "ReturnWindowExpired", Reason: "return window has closed"}
	ErrRefundFailed        = &Error{Code: "RefundFailed", Reason: "refund transfer could not be completed"}
	ErrEscrowOverflow      = &Error{Code: "EscrowOverflow", Reason: "escrow balance would overflow"}
)

var errNoBank = errors.New("no value transfer available")

// refundError keeps the transfer cause reachable through errors.Is/As while
// still matching ErrRefundFailed.
type refundError struct {
	cause error
}

func (e *refundError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRefundFailed.Error(), e.cause)
}

func (e *refundError) Unwrap() []error { return []error{ErrRefundFailed, e.cause} }

// Code returns the guard code carried by err, or "" when err is not a store
// guard failure.
func Code(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
