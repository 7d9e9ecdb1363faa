package domain

import (
	"time"
)

// Page packages offset-paginated list results together with the total match count.
type Page[T any] struct {
	Items []T
	Total int64
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed and awaits handling.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPrepare indicates the order is being picked and packed.
	OrderStatusPrepare OrderStatus = "prepare"
	// OrderStatusShipping indicates the order has been handed to the carrier.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted indicates the order has been delivered and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancel indicates the order was canceled; stock is restored.
	OrderStatusCancel OrderStatus = "cancel"
	// OrderStatusRefund indicates the order was refunded after payment.
	OrderStatusRefund OrderStatus = "refund"
)

// PaymentStatus enumerates payment states tracked on an order.
type PaymentStatus string

const (
	// PaymentStatusUnpaid indicates no successful payment has been recorded.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid indicates the order has been paid in full.
	PaymentStatusPaid PaymentStatus = "paid"
)

// DiscountType distinguishes percentage vouchers from fixed-amount vouchers.
type DiscountType string

const (
	// DiscountTypePercent discounts a percentage of the eligible amount.
	DiscountTypePercent DiscountType = "percent"
	// DiscountTypeFixed discounts a fixed amount.
	DiscountTypeFixed DiscountType = "fixed"
)

// SizeVariant carries the independent stock counter and price for one size of a product.
// Size labels are unique within a product; stock never drops below zero.
type SizeVariant struct {
	Size  string
	Stock int64
	Price int64
}

// Product is the catalog record consumed by the order path. Only the per-size
// stock counters are ever mutated here, and only through stock reconciliation.
type Product struct {
	ID        string
	Title     string
	Sizes     []SizeVariant
	Destroy   bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Voucher describes a discount voucher with its eligibility rules.
// Usable only while IsActive and ExpirationDate is in the future.
type Voucher struct {
	ID                   string
	Code                 string
	Description          string
	DiscountType         DiscountType
	DiscountValue        int64
	MinOrderValue        int64
	MaxDiscount          *int64
	ExpirationDate       time.Time
	IsActive             bool
	UsageLimit           *int
	UsageLimitPerUser    int
	UsageCount           int
	ApplicableProducts   []string
	ApplicableCategories []string
	Destroy              bool
	CreatedAt            time.Time
	UpdatedAt            *time.Time
}

// VoucherUsage aggregates how often one user has redeemed one voucher.
type VoucherUsage struct {
	VoucherID string
	UserID    string
	Times     int
	LastUsed  time.Time
}

// OrderDetail is a single line item of an order, snapshotted at placement time.
type OrderDetail struct {
	ProductID string
	Title     string
	Quantity  int64
	Price     int64
	Total     int64
	Size      string
	Note      string
}

// AppliedDiscount records the portion of a voucher's discount attributed to one product.
type AppliedDiscount struct {
	ProductID string
	Discount  int64
}

// VoucherUsed snapshots one voucher application on an order. The code and max
// discount are denormalised so the order stays auditable after voucher edits.
type VoucherUsed struct {
	VoucherID       string
	Code            string
	DiscountAmount  int64
	MaxDiscount     *int64
	ProductsApplied []AppliedDiscount
}

// OrderTotals holds the rolled-up monetary fields derived by the pricing engine.
// Total = max(0, Subtotal - Discount + Shipping).
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// Order is the immutable order record. After creation only Status, PaymentStatus,
// TrackingNumber, and their timestamps may change.
type Order struct {
	ID             string
	OrderID        string
	FullName       string
	Address        string
	Email          string
	PhoneNumber    string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	Total          int64
	ShippingFee    int64
	ShippingMethod string
	PaymentMethod  string
	TrackingNumber string
	UserID         string
	Details        []OrderDetail
	VouchersUsed   []VoucherUsed
	OrderDate      time.Time
	PaymentDate    *time.Time
	ShippingDate   *time.Time
	Destroy        bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// UserSummary is the trimmed user projection joined onto order listings.
type UserSummary struct {
	ID          string
	DisplayName string
	Email       string
	Avatar      string
}

// OrderWithUser pairs an order with the trimmed projection of its owner.
type OrderWithUser struct {
	Order
	User *UserSummary
}

// StockDirection selects between decrementing stock on order creation and
// restoring it on cancellation.
type StockDirection string

const (
	// StockDecrement subtracts ordered quantities from per-size stock.
	StockDecrement StockDirection = "decrement"
	// StockRestore adds ordered quantities back to per-size stock.
	StockRestore StockDirection = "restore"
)

// ValidOrderStatus reports whether the value names a known order status.
func ValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusPrepare, OrderStatusShipping,
		OrderStatusCompleted, OrderStatusCancel, OrderStatusRefund:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether the value names a known payment status.
func ValidPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusUnpaid, PaymentStatusPaid:
		return true
	}
	return false
}
