package repositories

import "fmt"

// VoucherErrorCode enumerates failure reasons for voucher operations.
type VoucherErrorCode string

const (
	// VoucherErrorUnknown represents an unspecified failure.
	VoucherErrorUnknown VoucherErrorCode = "voucher_unknown"
	// VoucherErrorInvalidInput indicates the caller supplied invalid arguments.
	VoucherErrorInvalidInput VoucherErrorCode = "voucher_invalid_input"
	// VoucherErrorUsageExceeded indicates a global or per-user usage limit was hit during claim.
	VoucherErrorUsageExceeded VoucherErrorCode = "voucher_usage_exceeded"
)

// VoucherError wraps voucher-specific failures with machine readable codes.
type VoucherError struct {
	Op        string
	Code      VoucherErrorCode
	VoucherID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *VoucherError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *VoucherError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewVoucherError constructs a typed voucher error.
func NewVoucherError(code VoucherErrorCode, voucherID, message string, err error) *VoucherError {
	if message == "" {
		message = string(code)
	}
	return &VoucherError{
		Code:      code,
		VoucherID: voucherID,
		Message:   message,
		Err:       err,
	}
}
