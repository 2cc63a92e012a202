// Package apperr holds the error taxonomy shared by the stores, the order
// engine and the HTTP layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Classes.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrAuthorization     = errors.New("not authorized")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrGateway           = errors.New("payment gateway error")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrInternal          = errors.New("internal error")
)

// Specific errors wrap their class so errors.Is matches both.
var (
	ErrEmptyCart          = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidTransition  = fmt.Errorf("%w: invalid status transition", ErrValidation)
	ErrInvalidQuantity    = fmt.Errorf("%w: quantity must be positive", ErrValidation)
	ErrInvalidSignature   = fmt.Errorf("%w: invalid notification signature", ErrValidation)
	ErrNotAllowed         = fmt.Errorf("%w: action not allowed", ErrAuthorization)
	ErrWindowExpired      = fmt.Errorf("%w: cancellation window expired", ErrAuthorization)
	ErrNoPaymentReference = fmt.Errorf("%w: order has no payment reference", ErrValidation)
	ErrRefundFailed       = fmt.Errorf("%w: refund failed", ErrGateway)
)

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TxFailed marks err as an aborted transaction. Errors that already carry a
// domain class are returned unchanged so callers keep the precise reason.
func TxFailed(err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrAuthorization):
		return "authorization"

	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"

	case errors.Is(err, ErrGateway):
		return "gateway"

	case errors.Is(err, ErrTransactionFailed):
		return "transaction_failed"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "authorization":
		return http.StatusForbidden
	case "insufficient_stock":
		return http.StatusConflict
	case "gateway":
		return http.StatusBadGateway
	case "timeout":
		return http.StatusGatewayTimeout
	case "canceled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
