package services

import (
	"fmt"

	domain "github.com/hdshop/api/internal/domain"
)

// PriceOrder derives the order totals from its lines, applied vouchers, and
// shipping fee. The function is pure and deterministic: the same inputs always
// produce the same totals, so stored totals can be re-derived for audit.
//
//	total = max(0, subtotal - discount + shipping)
func PriceOrder(details []domain.OrderDetail, vouchersUsed []domain.VoucherUsed, shippingFee int64) (domain.OrderTotals, error) {
	if len(details) == 0 {
		return domain.OrderTotals{}, fmt.Errorf("%w: order must contain at least one line", ErrOrderInvalidInput)
	}
	if shippingFee < 0 {
		return domain.OrderTotals{}, fmt.Errorf("%w: shipping fee must not be negative", ErrOrderInvalidInput)
	}

	var subtotal int64
	for i, detail := range details {
		if detail.Quantity < 1 {
			return domain.OrderTotals{}, fmt.Errorf("%w: line %d quantity must be at least 1", ErrOrderInvalidInput, i)
		}
		if detail.Price < 0 {
			return domain.OrderTotals{}, fmt.Errorf("%w: line %d price must not be negative", ErrOrderInvalidInput, i)
		}
		if detail.Total != detail.Quantity*detail.Price {
			return domain.OrderTotals{}, fmt.Errorf("%w: line %d total %d does not equal quantity %d x price %d", ErrOrderInvalidInput, i, detail.Total, detail.Quantity, detail.Price)
		}
		subtotal += detail.Total
	}

	var discount int64
	for _, voucher := range vouchersUsed {
		if voucher.DiscountAmount < 0 {
			return domain.OrderTotals{}, fmt.Errorf("%w: voucher %s discount must not be negative", ErrOrderInvalidInput, voucher.VoucherID)
		}
		discount += voucher.DiscountAmount
	}

	total := subtotal - discount + shippingFee
	if total < 0 {
		total = 0
	}

	return domain.OrderTotals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shippingFee,
		Total:    total,
	}, nil
}
