package services

import (
	"context"
	"time"

	domain "github.com/hdshop/api/internal/domain"
)

// OrderDetailInput is a single requested order line. Title and unit price are
// resolved server-side from the product's size variant.
type OrderDetailInput struct {
	ProductID string
	Quantity  int64
	Size      string
	Note      string
}

// VoucherUsedInput is the client's proposed voucher application; the validator
// verifies every figure against the stored voucher before it is accepted.
type VoucherUsedInput struct {
	VoucherID       string
	DiscountAmount  int64
	ProductsApplied []domain.AppliedDiscount
}

// CreateOrderCommand carries everything needed to place an order.
type CreateOrderCommand struct {
	UserID         string
	FullName       string
	Address        string
	Email          string
	PhoneNumber    string
	ShippingFee    int64
	ShippingMethod string
	PaymentMethod  string
	Details        []OrderDetailInput
	VouchersUsed   []VoucherUsedInput
}

// OrderListQuery filters and paginates order listings. Non-admin requesters are
// pinned to their own orders regardless of the UserID filter.
type OrderListQuery struct {
	Page             int
	Limit            int
	Query            string
	UserID           string
	Status           domain.OrderStatus
	RequesterID      string
	RequesterIsAdmin bool
}

// StockChangeInput identifies one size variant adjustment for operator repair.
type StockChangeInput struct {
	ProductID string
	Size      string
	Quantity  int64
}

// ReconcileStockCommand replays stock adjustments outside the order flow,
// repairing drift left behind by removed variants or failed restores.
type ReconcileStockCommand struct {
	Changes   []StockChangeInput
	Direction domain.StockDirection
	ActorID   string
}

// UpdateOrderStatusCommand transitions an order through the status machine.
type UpdateOrderStatusCommand struct {
	OrderID        string
	NewStatus      domain.OrderStatus
	PaymentStatus  *domain.PaymentStatus
	TrackingNumber *string
	ActorID        string
}

// OrderService orchestrates order placement, listing, and lifecycle transitions.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	List(ctx context.Context, query OrderListQuery) (domain.Page[domain.OrderWithUser], error)
	Get(ctx context.Context, orderID string, requesterID string, requesterIsAdmin bool) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	ReconcileStock(ctx context.Context, cmd ReconcileStockCommand) error
}

// CreateVoucherCommand carries the fields for a new voucher.
type CreateVoucherCommand struct {
	Code                 string
	Description          string
	DiscountType         domain.DiscountType
	DiscountValue        int64
	MinOrderValue        int64
	MaxDiscount          *int64
	ExpirationDate       time.Time
	UsageLimit           *int
	UsageLimitPerUser    int
	ApplicableProducts   []string
	ApplicableCategories []string
}

// UpdateVoucherCommand mutates an existing voucher. Nil fields are left unchanged.
type UpdateVoucherCommand struct {
	VoucherID            string
	Description          *string
	DiscountValue        *int64
	MinOrderValue        *int64
	MaxDiscount          *int64
	ExpirationDate       *time.Time
	IsActive             *bool
	UsageLimit           *int
	UsageLimitPerUser    *int
	ApplicableProducts   []string
	ApplicableCategories []string
}

// VoucherService manages voucher administration and checkout lookups.
type VoucherService interface {
	Create(ctx context.Context, cmd CreateVoucherCommand) (domain.Voucher, error)
	Update(ctx context.Context, cmd UpdateVoucherCommand) (domain.Voucher, error)
	Delete(ctx context.Context, voucherID string) error
	List(ctx context.Context, page, limit int) (domain.Page[domain.Voucher], error)
	GetByCode(ctx context.Context, code string) (domain.Voucher, error)
}

// OrderEventMessage is the payload published for order lifecycle events.
type OrderEventMessage struct {
	EventType      string    `json:"eventType"`
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	UserID         string    `json:"userId,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Total          int64     `json:"total"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}
