package services

import "errors"

var (
	// ErrVoucherInvalid indicates the voucher is missing, inactive, expired, or deleted.
	ErrVoucherInvalid = errors.New("voucher: invalid")
	// ErrVoucherUsageExceeded indicates a global or per-user usage limit was reached.
	ErrVoucherUsageExceeded = errors.New("voucher: usage limit exceeded")
	// ErrVoucherDiscountExceedsMax indicates the proposed discount exceeds the voucher cap.
	ErrVoucherDiscountExceedsMax = errors.New("voucher: discount exceeds maximum")
	// ErrVoucherMinOrderNotMet indicates the order subtotal is below the voucher minimum.
	ErrVoucherMinOrderNotMet = errors.New("voucher: minimum order value not met")
	// ErrVoucherNotFound indicates the voucher could not be located.
	ErrVoucherNotFound = errors.New("voucher: not found")
	// ErrVoucherCodeTaken indicates another voucher already uses the code.
	ErrVoucherCodeTaken = errors.New("voucher: code already in use")
	// ErrVoucherInvalidInput signals the caller provided invalid voucher data.
	ErrVoucherInvalidInput = errors.New("voucher: invalid input")
)
