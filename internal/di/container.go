package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hdshop/api/internal/platform/auth"
	"github.com/hdshop/api/internal/platform/config"
	"github.com/hdshop/api/internal/repositories"
	"github.com/hdshop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Vouchers services.VoucherService
}

// Container wires repositories, services, and authentication for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Authenticator *auth.Authenticator
}

// Options carry optional collaborators the container cannot build on its own.
type Options struct {
	Events services.OrderEventPublisher
	Logger *zap.Logger
}

// NewContainer constructs the runtime dependencies. Production wiring provides a
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts Options) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, opts)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("build token verifier: %w", err)
	}

	return &Container{
		Config:        cfg,
		Repositories:  reg,
		Services:      svc,
		Authenticator: auth.NewAuthenticator(verifier),
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, opts Options) (Services, error) {
	var svc Services

	vouchersRepo := reg.Vouchers()
	if vouchersRepo == nil {
		return Services{}, errors.New("voucher repository is required")
	}

	validator, err := services.NewVoucherValidator(vouchersRepo)
	if err != nil {
		return Services{}, fmt.Errorf("build voucher validator: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    reg.Orders(),
		Products:  reg.Products(),
		Users:     reg.Users(),
		Counters:  reg.Counters(),
		Validator: validator,
		Clock:     time.Now,
		Events:    opts.Events,
		Logger:    eventLogger(opts.Logger),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	voucherSvc, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers: vouchersRepo,
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build voucher service: %w", err)
	}
	svc.Vouchers = voucherSvc

	return svc, nil
}

func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		return nil
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Warn(event, zapFields...)
	}
}
