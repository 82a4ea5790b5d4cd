package api

import (
	"errors"
	"net/http"

	"MiniMarket/internal/chain"
	"MiniMarket/internal/store"
)

var statusByCode = map[string]int{
	store.ErrUnauthorized.Code:        http.StatusForbidden,
	store.ErrEmptyName.Code:           http.StatusBadRequest,
	store.ErrZeroPrice.Code:           http.StatusBadRequest,
	store.ErrZeroQuantity.Code:        http.StatusBadRequest,
	store.ErrDuplicateProduct.Code:    http.StatusConflict,
	store.ErrProductNotFound.Code:     http.StatusNotFound,
	store.ErrIncorrectPayment.Code:    http.StatusPaymentRequired,
	store.ErrOutOfStock.Code:          http.StatusConflict,
	store.ErrAlreadyPurchased.Code:    http.StatusConflict,
	store.ErrRefundedCannotRebuy.Code: http.StatusConflict,
	store.ErrNotPurchased.Code:        http.StatusConflict,
	store.ErrReturnWindowExpired.Code: http.StatusConflict,
	store.ErrRefundFailed.Code:        http.StatusBadGateway,
	store.ErrEscrowOverflow.Code:      http.StatusConflict,
}

type callError struct {
	status int
	code   string
	reason string
}

// classify maps a failed call to a response. ok is false for errors the
// caller cannot have caused.
func classify(err error) (callError, bool) {
	if errors.Is(err, chain.ErrInsufficientFunds) {
		return callError{status: http.StatusPaymentRequired, code: "InsufficientFunds", reason: err.Error()}, true
	}

	var se *store.Error
	if !errors.As(err, &se) {
		return callError{}, false
	}
	status, ok := statusByCode[se.Code]
	if !ok {
		return callError{}, false
	}

	reason := se.Reason
	if errors.Is(err, store.ErrRefundFailed) {
		reason = err.Error()
	}
	return callError{status: status, code: se.Code, reason: reason}, true
}
