package repositories

import "fmt"

// StockErrorCode enumerates failure reasons for stock adjustments.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInvalidInput indicates the caller supplied invalid arguments.
	StockErrorInvalidInput StockErrorCode = "stock_invalid_input"
	// StockErrorInsufficient indicates the requested decrement exceeds the available quantity.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorVariantMissing indicates the product has no variant for the requested size.
	StockErrorVariantMissing StockErrorCode = "stock_variant_missing"
)

// StockError wraps stock-specific failures with machine readable codes.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Size      string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID, size, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:      code,
		ProductID: productID,
		Size:      size,
		Message:   message,
		Err:       err,
	}
}
