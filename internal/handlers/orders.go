package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/hdshop/api/internal/domain"
	"github.com/hdshop/api/internal/platform/auth"
	"github.com/hdshop/api/internal/platform/httpx"
	"github.com/hdshop/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// OrderHandlers exposes order placement, listing, and status management.
type OrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	sanitizer *bluemonday.Policy
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:     authn,
		orders:    orders,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	if h.authn != nil {
		r.With(h.authn.RequireAdmin()).Put("/{orderID}/status", h.updateOrderStatus)
	} else {
		r.Put("/{orderID}/status", h.updateOrderStatus)
	}
}

// AdminRoutes registers maintenance endpoints mounted under the admin group.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stock/reconcile", h.reconcileStock)
}

type orderDetailRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
	Size      string `json:"size"`
	Note      string `json:"note"`
}

type appliedDiscountRequest struct {
	ProductID string `json:"productId"`
	Discount  int64  `json:"discount"`
}

type voucherUsedRequest struct {
	VoucherID       string                   `json:"voucherId"`
	DiscountAmount  int64                    `json:"discountAmount"`
	ProductsApplied []appliedDiscountRequest `json:"productsApplied"`
}

type createOrderRequest struct {
	FullName       string               `json:"fullName"`
	Address        string               `json:"address"`
	Email          string               `json:"email"`
	PhoneNumber    string               `json:"phoneNumber"`
	ShippingFee    int64                `json:"shippingFee"`
	ShippingMethod string               `json:"shippingMethod"`
	PaymentMethod  string               `json:"paymentMethod"`
	OrderDetails   []orderDetailRequest `json:"orderDetails"`
	VouchersUsed   []voucherUsedRequest `json:"vouchersUsed"`
}

type updateOrderStatusRequest struct {
	Status         string  `json:"status"`
	PaymentStatus  *string `json:"paymentStatus"`
	TrackingNumber *string `json:"trackingNumber"`
}

type stockChangeRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
}

type reconcileStockRequest struct {
	Direction string               `json:"direction"`
	Changes   []stockChangeRequest `json:"changes"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:         identity.UserID,
		FullName:       h.clean(req.FullName),
		Address:        h.clean(req.Address),
		Email:          h.clean(req.Email),
		PhoneNumber:    h.clean(req.PhoneNumber),
		ShippingFee:    req.ShippingFee,
		ShippingMethod: h.clean(req.ShippingMethod),
		PaymentMethod:  h.clean(req.PaymentMethod),
	}
	for _, line := range req.OrderDetails {
		cmd.Details = append(cmd.Details, services.OrderDetailInput{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
			Size:      strings.TrimSpace(line.Size),
			Note:      h.clean(line.Note),
		})
	}
	for _, voucher := range req.VouchersUsed {
		input := services.VoucherUsedInput{
			VoucherID:      strings.TrimSpace(voucher.VoucherID),
			DiscountAmount: voucher.DiscountAmount,
		}
		for _, applied := range voucher.ProductsApplied {
			input.ProductsApplied = append(input.ProductsApplied, domain.AppliedDiscount{
				ProductID: strings.TrimSpace(applied.ProductID),
				Discount:  applied.Discount,
			})
		}
		cmd.VouchersUsed = append(cmd.VouchersUsed, input)
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order, nil)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()
	page, err := parsePositiveInt(query.Get("page"), 1)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page must be a positive integer", http.StatusBadRequest))
		return
	}
	limit, err := parsePositiveInt(query.Get("limit"), defaultOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
		return
	}
	if limit > maxOrderPageSize {
		limit = maxOrderPageSize
	}

	result, err := h.orders.List(ctx, services.OrderListQuery{
		Page:             page,
		Limit:            limit,
		Query:            strings.TrimSpace(query.Get("q")),
		UserID:           strings.TrimSpace(query.Get("userId")),
		Status:           domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		RequesterID:      identity.UserID,
		RequesterIsAdmin: isAdmin(identity),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(result.Items))
	for _, entry := range result.Items {
		items = append(items, buildOrderPayload(entry.Order, entry.User))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items: items,
		Total: result.Total,
		Page:  page,
		Limit: limit,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID, identity.UserID, isAdmin(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, nil)})
}

func (h *OrderHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateOrderStatusCommand{
		OrderID:        orderID,
		NewStatus:      domain.OrderStatus(strings.TrimSpace(req.Status)),
		TrackingNumber: req.TrackingNumber,
	}
	if identity != nil {
		cmd.ActorID = identity.UserID
	}
	if req.PaymentStatus != nil {
		status := domain.PaymentStatus(strings.TrimSpace(*req.PaymentStatus))
		cmd.PaymentStatus = &status
	}

	order, err := h.orders.UpdateStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, nil)})
}

func (h *OrderHandlers) reconcileStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req reconcileStockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.ReconcileStockCommand{
		Direction: domain.StockDirection(strings.TrimSpace(req.Direction)),
	}
	if identity != nil {
		cmd.ActorID = identity.UserID
	}
	for _, change := range req.Changes {
		cmd.Changes = append(cmd.Changes, services.StockChangeInput{
			ProductID: change.ProductID,
			Size:      change.Size,
			Quantity:  change.Quantity,
		})
	}

	if err := h.orders.ReconcileStock(ctx, cmd); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) clean(value string) string {
	if h.sanitizer == nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(h.sanitizer.Sanitize(value))
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID             string                `json:"id"`
	OrderNumber    string                `json:"orderId"`
	FullName       string                `json:"fullName"`
	Address        string                `json:"address"`
	Email          string                `json:"email,omitempty"`
	PhoneNumber    string                `json:"phoneNumber"`
	Status         string                `json:"status"`
	PaymentStatus  string                `json:"paymentStatus"`
	Total          int64                 `json:"total"`
	ShippingFee    int64                 `json:"shippingFee"`
	ShippingMethod string                `json:"shippingMethod,omitempty"`
	PaymentMethod  string                `json:"paymentMethod,omitempty"`
	TrackingNumber string                `json:"trackingNumber,omitempty"`
	UserID         string                `json:"userId"`
	OrderDetails   []orderDetailPayload  `json:"orderDetails"`
	VouchersUsed   []voucherUsedPayload  `json:"vouchersUsed,omitempty"`
	User           *orderUserPayload     `json:"user,omitempty"`
	OrderDate      string                `json:"orderDate"`
	PaymentDate    string                `json:"paymentDate,omitempty"`
	ShippingDate   string                `json:"shippingDate,omitempty"`
	CreatedAt      string                `json:"createdAt"`
	UpdatedAt      string                `json:"updatedAt,omitempty"`
}

type orderDetailPayload struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
	Total     int64  `json:"total"`
	Size      string `json:"size"`
	Note      string `json:"note,omitempty"`
}

type voucherUsedPayload struct {
	VoucherID       string                   `json:"voucherId"`
	Code            string                   `json:"code"`
	DiscountAmount  int64                    `json:"discountAmount"`
	MaxDiscount     *int64                   `json:"maxDiscount,omitempty"`
	ProductsApplied []appliedDiscountRequest `json:"productsApplied,omitempty"`
}

type orderUserPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

func buildOrderPayload(order domain.Order, user *domain.UserSummary) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderID,
		FullName:       order.FullName,
		Address:        order.Address,
		Email:          order.Email,
		PhoneNumber:    order.PhoneNumber,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		Total:          order.Total,
		ShippingFee:    order.ShippingFee,
		ShippingMethod: order.ShippingMethod,
		PaymentMethod:  order.PaymentMethod,
		TrackingNumber: order.TrackingNumber,
		UserID:         order.UserID,
		OrderDetails:   make([]orderDetailPayload, 0, len(order.Details)),
		OrderDate:      formatTime(order.OrderDate),
		PaymentDate:    formatTimePointer(order.PaymentDate),
		ShippingDate:   formatTimePointer(order.ShippingDate),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTimePointer(order.UpdatedAt),
	}

	for _, detail := range order.Details {
		payload.OrderDetails = append(payload.OrderDetails, orderDetailPayload{
			ProductID: detail.ProductID,
			Title:     detail.Title,
			Quantity:  detail.Quantity,
			Price:     detail.Price,
			Total:     detail.Total,
			Size:      detail.Size,
			Note:      detail.Note,
		})
	}
	for _, voucher := range order.VouchersUsed {
		entry := voucherUsedPayload{
			VoucherID:      voucher.VoucherID,
			Code:           voucher.Code,
			DiscountAmount: voucher.DiscountAmount,
			MaxDiscount:    voucher.MaxDiscount,
		}
		for _, applied := range voucher.ProductsApplied {
			entry.ProductsApplied = append(entry.ProductsApplied, appliedDiscountRequest{
				ProductID: applied.ProductID,
				Discount:  applied.Discount,
			})
		}
		payload.VouchersUsed = append(payload.VouchersUsed, entry)
	}
	if user != nil {
		payload.User = &orderUserPayload{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Email:       user.Email,
			Avatar:      user.Avatar,
		}
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrVoucherInvalid),
		errors.Is(err, services.ErrVoucherMinOrderNotMet),
		errors.Is(err, services.ErrVoucherDiscountExceedsMax),
		errors.Is(err, services.ErrVoucherUsageExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderWriteFailed):
		httpx.WriteError(ctx, w, httpx.NewError("order_write_failed", "failed to store order", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func isAdmin(identity *auth.Identity) bool {
	return identity != nil && identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin)
}

func parsePositiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, errors.New("must be a positive integer")
	}
	return value, nil
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
