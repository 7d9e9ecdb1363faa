package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/hdshop/api/internal/platform/firestore"
	"github.com/hdshop/api/internal/repositories"
)

// Registry bundles the Firestore-backed repository implementations behind
// the repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider

	orders   *OrderRepository
	products *ProductRepository
	vouchers *VoucherRepository
	users    *UserRepository
	counters *CounterRepository
	health   *HealthRepository
}

// NewRegistry constructs every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	vouchers, err := NewVoucherRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := NewHealthRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		products: products,
		vouchers: vouchers,
		users:    users,
		counters: counters,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Products returns the product repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Vouchers returns the voucher repository.
func (r *Registry) Vouchers() repositories.VoucherRepository { return r.vouchers }

// Users returns the user repository.
func (r *Registry) Users() repositories.UserRepository { return r.users }

// Counters returns the counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Health returns the health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }
