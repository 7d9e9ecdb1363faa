package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hdshop/api/internal/domain"
	"github.com/hdshop/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:  {domain.OrderStatusPrepare, domain.OrderStatusCancel, domain.OrderStatusRefund},
	domain.OrderStatusPrepare:  {domain.OrderStatusShipping, domain.OrderStatusCancel, domain.OrderStatusRefund},
	domain.OrderStatusShipping: {domain.OrderStatusCompleted, domain.OrderStatusCancel, domain.OrderStatusRefund},
}

// restockStatuses release held stock and voucher claims when transitioned into.
var restockStatuses = []domain.OrderStatus{domain.OrderStatusCancel, domain.OrderStatusRefund}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Users       repositories.UserRepository
	Counters    repositories.CounterRepository
	Validator   *VoucherValidator
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	users     repositories.UserRepository
	counters  repositories.CounterRepository
	validator *VoucherValidator
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("order service: voucher validator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		products:  deps.Products,
		users:     deps.Users,
		counters:  deps.Counters,
		validator: deps.Validator,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if err := validateCreateCommand(cmd); err != nil {
		return domain.Order{}, err
	}

	now := s.now()

	details, stockChanges, err := s.resolveDetails(ctx, cmd.Details)
	if err != nil {
		return domain.Order{}, err
	}

	productIDs := make(map[string]struct{}, len(details))
	for _, detail := range details {
		productIDs[detail.ProductID] = struct{}{}
	}

	var subtotal int64
	for _, detail := range details {
		subtotal += detail.Total
	}

	validated, err := s.validator.Validate(ctx, cmd.UserID, subtotal, productIDs, cmd.VouchersUsed, now)
	if err != nil {
		return domain.Order{}, err
	}

	vouchersUsed := make([]domain.VoucherUsed, 0, len(validated))
	claims := make([]repositories.VoucherClaim, 0, len(validated))
	for _, v := range validated {
		vouchersUsed = append(vouchersUsed, v.Used)
		claims = append(claims, v.Claim)
	}

	totals, err := PriceOrder(details, vouchersUsed, cmd.ShippingFee)
	if err != nil {
		return domain.Order{}, err
	}

	number, err := s.generateOrderNumber(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderWriteFailed, err)
	}

	order := domain.Order{
		ID:             orderIDPrefix + s.newID(),
		OrderID:        number,
		FullName:       strings.TrimSpace(cmd.FullName),
		Address:        strings.TrimSpace(cmd.Address),
		Email:          strings.TrimSpace(cmd.Email),
		PhoneNumber:    strings.TrimSpace(cmd.PhoneNumber),
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusUnpaid,
		Total:          totals.Total,
		ShippingFee:    cmd.ShippingFee,
		ShippingMethod: strings.TrimSpace(cmd.ShippingMethod),
		PaymentMethod:  strings.TrimSpace(cmd.PaymentMethod),
		UserID:         strings.TrimSpace(cmd.UserID),
		Details:        details,
		VouchersUsed:   vouchersUsed,
		OrderDate:      now,
		CreatedAt:      now,
	}

	saved, err := s.orders.Insert(ctx, repositories.OrderWriteRequest{
		Order:         order,
		StockChanges:  stockChanges,
		VoucherClaims: claims,
		Now:           now,
	})
	if err != nil {
		return domain.Order{}, s.mapWriteError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:   orderEventCreated,
		OrderID:     saved.ID,
		OrderNumber: saved.OrderID,
		UserID:      saved.UserID,
		Status:      string(saved.Status),
		Total:       saved.Total,
		OccurredAt:  now,
	})

	return saved, nil
}

// resolveDetails loads the referenced products and builds priced order lines.
// Unit price and title come from the stored size variant, never the client.
func (s *orderService) resolveDetails(ctx context.Context, inputs []OrderDetailInput) ([]domain.OrderDetail, []repositories.StockChange, error) {
	ids := make([]string, 0, len(inputs))
	for _, input := range inputs {
		ids = append(ids, input.ProductID)
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, s.mapRepositoryError(err)
	}

	details := make([]domain.OrderDetail, 0, len(inputs))
	changes := make([]repositories.StockChange, 0, len(inputs))
	for i, input := range inputs {
		product, ok := products[input.ProductID]
		if !ok || product.Destroy {
			return nil, nil, fmt.Errorf("%w: line %d product %s not found", ErrOrderInvalidInput, i, input.ProductID)
		}

		variant, ok := findVariant(product.Sizes, input.Size)
		if !ok {
			return nil, nil, fmt.Errorf("%w: line %d product %s has no size %q", ErrOrderInvalidInput, i, input.ProductID, input.Size)
		}
		if variant.Stock < input.Quantity {
			return nil, nil, fmt.Errorf("%w: product %s size %q has %d left", ErrInsufficientStock, input.ProductID, input.Size, variant.Stock)
		}

		details = append(details, domain.OrderDetail{
			ProductID: input.ProductID,
			Title:     product.Title,
			Quantity:  input.Quantity,
			Price:     variant.Price,
			Total:     input.Quantity * variant.Price,
			Size:      input.Size,
			Note:      strings.TrimSpace(input.Note),
		})
		changes = append(changes, repositories.StockChange{
			ProductID: input.ProductID,
			Size:      input.Size,
			Quantity:  input.Quantity,
		})
	}
	return details, changes, nil
}

// findVariant returns the first variant with a matching size label.
func findVariant(sizes []domain.SizeVariant, size string) (domain.SizeVariant, bool) {
	for _, variant := range sizes {
		if variant.Size == size {
			return variant, true
		}
	}
	return domain.SizeVariant{}, false
}

func (s *orderService) List(ctx context.Context, query OrderListQuery) (domain.Page[domain.OrderWithUser], error) {
	userID := strings.TrimSpace(query.UserID)
	if !query.RequesterIsAdmin {
		// Non-admins only ever see their own orders.
		userID = strings.TrimSpace(query.RequesterID)
	}
	if query.Status != "" && !domain.ValidOrderStatus(query.Status) {
		return domain.Page[domain.OrderWithUser]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, query.Status)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		Page:   query.Page,
		Limit:  query.Limit,
		Query:  strings.TrimSpace(query.Query),
		UserID: userID,
		Status: query.Status,
	})
	if err != nil {
		return domain.Page[domain.OrderWithUser]{}, s.mapRepositoryError(err)
	}

	users, err := s.lookupUsers(ctx, page.Items)
	if err != nil {
		return domain.Page[domain.OrderWithUser]{}, err
	}

	items := make([]domain.OrderWithUser, 0, len(page.Items))
	for _, order := range page.Items {
		entry := domain.OrderWithUser{Order: order}
		if summary, ok := users[order.UserID]; ok {
			entry.User = &summary
		}
		items = append(items, entry)
	}
	return domain.Page[domain.OrderWithUser]{Items: items, Total: page.Total}, nil
}

func (s *orderService) lookupUsers(ctx context.Context, orders []domain.Order) (map[string]domain.UserSummary, error) {
	if s.users == nil {
		return map[string]domain.UserSummary{}, nil
	}
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		if order.UserID != "" {
			ids = append(ids, order.UserID)
		}
	}
	if len(ids) == 0 {
		return map[string]domain.UserSummary{}, nil
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return users, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, requesterID string, requesterIsAdmin bool) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !requesterIsAdmin && order.UserID != strings.TrimSpace(requesterID) {
		// Hide other users' orders entirely rather than acknowledging them.
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.NewStatus) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.NewStatus)
	}
	if cmd.PaymentStatus != nil && !domain.ValidPaymentStatus(*cmd.PaymentStatus) {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, *cmd.PaymentStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status != cmd.NewStatus && !canTransition(order.Status, cmd.NewStatus) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, cmd.NewStatus)
	}

	now := s.now()
	releasing := order.Status != cmd.NewStatus && slices.Contains(restockStatuses, cmd.NewStatus)

	updated, err := s.orders.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdateRequest{
		Status:          cmd.NewStatus,
		PaymentStatus:   cmd.PaymentStatus,
		TrackingNumber:  cmd.TrackingNumber,
		RestoreStock:    releasing,
		ReleaseVouchers: releasing,
		ExpectedStatus:  order.Status,
		Now:             now,
	})
	if err != nil {
		if isConflict(err) {
			// The order moved on between our read and the transaction commit.
			return domain.Order{}, fmt.Errorf("%w: order %s changed concurrently", ErrOrderInvalidState, orderID)
		}
		if releasing {
			s.logger(ctx, "order.stock.reconcile.failed", map[string]any{
				"order":  orderID,
				"status": string(cmd.NewStatus),
				"error":  err.Error(),
			})
			return domain.Order{}, fmt.Errorf("%w: %v", ErrStockReconcileFailed, err)
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if updated.Status != order.Status {
		s.publishEvent(ctx, OrderEventMessage{
			EventType:      orderEventStatusChanged,
			OrderID:        updated.ID,
			OrderNumber:    updated.OrderID,
			UserID:         updated.UserID,
			Status:         string(updated.Status),
			PreviousStatus: string(order.Status),
			Total:          updated.Total,
			OccurredAt:     now,
		})
	}

	return updated, nil
}

func (s *orderService) ReconcileStock(ctx context.Context, cmd ReconcileStockCommand) error {
	if cmd.Direction != domain.StockDecrement && cmd.Direction != domain.StockRestore {
		return fmt.Errorf("%w: unknown stock direction %q", ErrOrderInvalidInput, cmd.Direction)
	}
	if len(cmd.Changes) == 0 {
		return fmt.Errorf("%w: at least one stock change is required", ErrOrderInvalidInput)
	}

	changes := make([]repositories.StockChange, 0, len(cmd.Changes))
	for i, change := range cmd.Changes {
		if strings.TrimSpace(change.ProductID) == "" {
			return fmt.Errorf("%w: change %d product id is required", ErrOrderInvalidInput, i)
		}
		if strings.TrimSpace(change.Size) == "" {
			return fmt.Errorf("%w: change %d size is required", ErrOrderInvalidInput, i)
		}
		if change.Quantity <= 0 {
			return fmt.Errorf("%w: change %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		changes = append(changes, repositories.StockChange{
			ProductID: strings.TrimSpace(change.ProductID),
			Size:      strings.TrimSpace(change.Size),
			Quantity:  change.Quantity,
		})
	}

	if err := s.products.ReconcileStock(ctx, changes, cmd.Direction); err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			switch stockErr.Code {
			case repositories.StockErrorVariantMissing, repositories.StockErrorInvalidInput:
				return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
			}
		}
		s.logger(ctx, "order.stock.reconcile.failed", map[string]any{
			"actor":     cmd.ActorID,
			"direction": string(cmd.Direction),
			"error":     err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrStockReconcileFailed, err)
	}

	s.logger(ctx, "order.stock.reconcile.applied", map[string]any{
		"actor":     cmd.ActorID,
		"direction": string(cmd.Direction),
		"changes":   len(changes),
	})
	return nil
}

func validateCreateCommand(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone number is required", ErrOrderInvalidInput)
	}
	if cmd.ShippingFee < 0 {
		return fmt.Errorf("%w: shipping fee must not be negative", ErrOrderInvalidInput)
	}
	if len(cmd.Details) == 0 {
		return fmt.Errorf("%w: order must contain at least one line", ErrOrderInvalidInput)
	}
	for i, detail := range cmd.Details {
		if strings.TrimSpace(detail.ProductID) == "" {
			return fmt.Errorf("%w: line %d product id is required", ErrOrderInvalidInput, i)
		}
		if strings.TrimSpace(detail.Size) == "" {
			return fmt.Errorf("%w: line %d size is required", ErrOrderInvalidInput, i)
		}
		if detail.Quantity < 1 {
			return fmt.Errorf("%w: line %d quantity must be at least 1", ErrOrderInvalidInput, i)
		}
	}
	return nil
}

// generateOrderNumber formats the next sequence value as an HD-prefixed,
// zero-padded ten digit number. Width grows past ten digits rather than wrapping.
func (s *orderService) generateOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("HD%010d", seq), nil
}

func (s *orderService) mapWriteError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
		case repositories.StockErrorVariantMissing, repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}
	var voucherErr *repositories.VoucherError
	if errors.As(err, &voucherErr) {
		switch voucherErr.Code {
		case repositories.VoucherErrorUsageExceeded:
			return fmt.Errorf("%w: %v", ErrVoucherUsageExceeded, err)
		case repositories.VoucherErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrVoucherInvalid, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderWriteFailed, err)
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   message.EventType,
			"order":  message.OrderID,
			"error":  err.Error(),
			"status": message.Status,
		})
	}
}
