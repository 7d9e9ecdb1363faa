package services

import "errors"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrInsufficientStock indicates a requested line exceeds the available stock.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderWriteFailed indicates the order transaction aborted; nothing was committed.
	ErrOrderWriteFailed = errors.New("order: write failed")
	// ErrStockReconcileFailed indicates a cancellation could not restore stock;
	// the order keeps its previous status and the failure is logged for repair.
	ErrStockReconcileFailed = errors.New("order: stock reconciliation failed")
)
