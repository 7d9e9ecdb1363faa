package services

import (
	"errors"
	"testing"

	domain "github.com/hdshop/api/internal/domain"
)

func TestPriceOrder(t *testing.T) {
	cases := []struct {
		name        string
		details     []domain.OrderDetail
		vouchers    []domain.VoucherUsed
		shippingFee int64
		want        domain.OrderTotals
	}{
		{
			name: "round trip with voucher and shipping",
			details: []domain.OrderDetail{
				{ProductID: "prod-1", Quantity: 2, Price: 500000, Total: 1000000},
			},
			vouchers:    []domain.VoucherUsed{{VoucherID: "vch-1", DiscountAmount: 100000}},
			shippingFee: 20000,
			want:        domain.OrderTotals{Subtotal: 1000000, Discount: 100000, Shipping: 20000, Total: 920000},
		},
		{
			name: "no vouchers",
			details: []domain.OrderDetail{
				{ProductID: "prod-1", Quantity: 1, Price: 150000, Total: 150000},
				{ProductID: "prod-2", Quantity: 3, Price: 90000, Total: 270000},
			},
			shippingFee: 30000,
			want:        domain.OrderTotals{Subtotal: 420000, Shipping: 30000, Total: 450000},
		},
		{
			name: "discount larger than subtotal clamps at zero",
			details: []domain.OrderDetail{
				{ProductID: "prod-1", Quantity: 1, Price: 50000, Total: 50000},
			},
			vouchers: []domain.VoucherUsed{{VoucherID: "vch-1", DiscountAmount: 200000}},
			want:     domain.OrderTotals{Subtotal: 50000, Discount: 200000, Total: 0},
		},
		{
			name: "free order with shipping still pays shipping",
			details: []domain.OrderDetail{
				{ProductID: "prod-1", Quantity: 1, Price: 50000, Total: 50000},
			},
			vouchers:    []domain.VoucherUsed{{VoucherID: "vch-1", DiscountAmount: 50000}},
			shippingFee: 20000,
			want:        domain.OrderTotals{Subtotal: 50000, Discount: 50000, Shipping: 20000, Total: 20000},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PriceOrder(tc.details, tc.vouchers, tc.shippingFee)
			if err != nil {
				t.Fatalf("PriceOrder: %v", err)
			}
			if got != tc.want {
				t.Errorf("totals = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestPriceOrderRejectsBadInput(t *testing.T) {
	line := domain.OrderDetail{ProductID: "prod-1", Quantity: 2, Price: 500000, Total: 1000000}

	cases := []struct {
		name        string
		details     []domain.OrderDetail
		vouchers    []domain.VoucherUsed
		shippingFee int64
	}{
		{name: "no lines"},
		{name: "negative shipping", details: []domain.OrderDetail{line}, shippingFee: -1},
		{name: "zero quantity", details: []domain.OrderDetail{{ProductID: "p", Quantity: 0, Price: 100, Total: 0}}},
		{name: "negative price", details: []domain.OrderDetail{{ProductID: "p", Quantity: 1, Price: -100, Total: -100}}},
		{name: "line total mismatch", details: []domain.OrderDetail{{ProductID: "p", Quantity: 2, Price: 100, Total: 150}}},
		{
			name:     "negative voucher discount",
			details:  []domain.OrderDetail{line},
			vouchers: []domain.VoucherUsed{{VoucherID: "vch-1", DiscountAmount: -1}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PriceOrder(tc.details, tc.vouchers, tc.shippingFee); !errors.Is(err, ErrOrderInvalidInput) {
				t.Errorf("error = %v, want ErrOrderInvalidInput", err)
			}
		})
	}
}
