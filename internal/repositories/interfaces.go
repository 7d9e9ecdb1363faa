package repositories

import (
	"context"
	"time"

	domain "github.com/hdshop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Vouchers() VoucherRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

// StockChange identifies a single size variant adjustment on a product.
type StockChange struct {
	ProductID string
	Size      string
	Quantity  int64
}

// VoucherClaim records one voucher redemption attempt for a user, carrying the
// limits the repository must enforce atomically.
type VoucherClaim struct {
	VoucherID         string
	UserID            string
	UsageLimit        *int
	UsageLimitPerUser int
}

// OrderWriteRequest bundles the order document with the stock decrements and
// voucher claims that must commit in the same transaction.
type OrderWriteRequest struct {
	Order         domain.Order
	StockChanges  []StockChange
	VoucherClaims []VoucherClaim
	Now           time.Time
}

// OrderStatusUpdateRequest carries a status transition plus optional side effects.
// When RestoreStock or ReleaseVouchers are set the repository reverses the order's
// stock decrements and voucher claims inside the transition transaction.
type OrderStatusUpdateRequest struct {
	Status          domain.OrderStatus
	PaymentStatus   *domain.PaymentStatus
	TrackingNumber  *string
	RestoreStock    bool
	ReleaseVouchers bool
	// ExpectedStatus, when set, makes the transaction abort with a conflict
	// unless the stored status still matches. This keeps a transition decided
	// from a stale read (and its restore side effects) from committing twice.
	ExpectedStatus domain.OrderStatus
	Now            time.Time
}

// OrderListFilter controls pagination and filtering for order listings.
type OrderListFilter struct {
	Page   int
	Limit  int
	Query  string
	UserID string
	Status domain.OrderStatus
}

// OrderRepository persists orders together with their transactional side effects.
type OrderRepository interface {
	Insert(ctx context.Context, req OrderWriteRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	UpdateStatus(ctx context.Context, orderID string, req OrderStatusUpdateRequest) (domain.Order, error)
}

// ProductRepository reads product documents and repairs stock levels.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	ReconcileStock(ctx context.Context, changes []StockChange, direction domain.StockDirection) error
}

// VoucherListFilter controls pagination and filtering for voucher listings.
type VoucherListFilter struct {
	Page       int
	Limit      int
	ActiveOnly bool
}

// VoucherRepository persists voucher documents and per-user usage counters.
type VoucherRepository interface {
	Insert(ctx context.Context, voucher domain.Voucher) (domain.Voucher, error)
	Update(ctx context.Context, voucher domain.Voucher) (domain.Voucher, error)
	SoftDelete(ctx context.Context, voucherID string, deletedAt time.Time) error
	FindByID(ctx context.Context, voucherID string) (domain.Voucher, error)
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	List(ctx context.Context, filter VoucherListFilter) (domain.Page[domain.Voucher], error)
	FindUsage(ctx context.Context, voucherID string, userID string) (domain.VoucherUsage, error)
}

// UserRepository resolves user summaries for order listings.
type UserRepository interface {
	FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.UserSummary, error)
}

// HealthRepository verifies backend connectivity for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) error
}
