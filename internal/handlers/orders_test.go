package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hdshop/api/internal/domain"
	"github.com/hdshop/api/internal/platform/auth"
	"github.com/hdshop/api/internal/services"
)

type stubOrderService struct {
	createFn    func(context.Context, services.CreateOrderCommand) (domain.Order, error)
	listFn      func(context.Context, services.OrderListQuery) (domain.Page[domain.OrderWithUser], error)
	getFn       func(context.Context, string, string, bool) (domain.Order, error)
	updateFn    func(context.Context, services.UpdateOrderStatusCommand) (domain.Order, error)
	reconcileFn func(context.Context, services.ReconcileStockCommand) error
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) List(ctx context.Context, query services.OrderListQuery) (domain.Page[domain.OrderWithUser], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.Page[domain.OrderWithUser]{}, nil
}

func (s *stubOrderService) Get(ctx context.Context, orderID string, requesterID string, requesterIsAdmin bool) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, requesterID, requesterIsAdmin)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ReconcileStock(ctx context.Context, cmd services.ReconcileStockCommand) error {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func newOrderRouter(service services.OrderService) chi.Router {
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	router.Route("/admin/orders", handler.AdminRoutes)
	return router
}

func withUser(r *http.Request, userID string, roles ...string) *http.Request {
	if len(roles) == 0 {
		roles = []string{auth.RoleUser}
	}
	identity := &auth.Identity{UserID: userID, Roles: roles}
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}

func TestOrderHandlersCreateSuccess(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{
				ID:            "ord_1",
				OrderID:       "HD0000000001",
				FullName:      cmd.FullName,
				Status:        domain.OrderStatusPending,
				PaymentStatus: domain.PaymentStatusUnpaid,
				Total:         920000,
				UserID:        cmd.UserID,
				Details: []domain.OrderDetail{
					{ProductID: "prod-1", Title: "Basic Tee", Quantity: 2, Price: 500000, Total: 1000000, Size: "M"},
				},
				OrderDate: now,
				CreatedAt: now,
			}, nil
		},
	}
	router := newOrderRouter(service)

	body := `{
		"fullName": "Nguyễn Văn A<script>alert(1)</script>",
		"address": "1 Lê Lợi, Q1",
		"phoneNumber": "0900000000",
		"shippingFee": 20000,
		"orderDetails": [{"productId": "prod-1", "quantity": 2, "size": "M"}],
		"vouchersUsed": [{"voucherId": "vch-1", "discountAmount": 100000, "productsApplied": [{"productId": "prod-1", "discount": 100000}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(body))
	req = withUser(req, "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Errorf("UserID = %q, must come from the token", captured.UserID)
	}
	if strings.Contains(captured.FullName, "<script>") {
		t.Errorf("FullName = %q, markup must be stripped", captured.FullName)
	}
	if len(captured.Details) != 1 || captured.Details[0].Quantity != 2 {
		t.Errorf("Details = %+v", captured.Details)
	}
	if len(captured.VouchersUsed) != 1 || captured.VouchersUsed[0].DiscountAmount != 100000 {
		t.Errorf("VouchersUsed = %+v", captured.VouchersUsed)
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.OrderNumber != "HD0000000001" || resp.Order.Total != 920000 {
		t.Errorf("payload = %+v", resp.Order)
	}
}

func TestOrderHandlersCreateErrors(t *testing.T) {
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", services.ErrOrderInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"voucher rejected", services.ErrVoucherMinOrderNotMet, http.StatusUnprocessableEntity, "voucher_rejected"},
		{"voucher exceeded", services.ErrVoucherUsageExceeded, http.StatusUnprocessableEntity, "voucher_rejected"},
		{"insufficient stock", services.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{"write failed", services.ErrOrderWriteFailed, http.StatusBadGateway, "order_write_failed"},
		{"reconcile failed", services.ErrStockReconcileFailed, http.StatusInternalServerError, "order_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
					return domain.Order{}, tc.serviceErr
				},
			}
			router := newOrderRouter(service)

			req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(`{"orderDetails":[{"productId":"p","quantity":1,"size":"M"}],"fullName":"a","address":"b","phoneNumber":"c"}`))
			req = withUser(req, "user-1")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if payload["error"] != tc.wantCode {
				t.Errorf("error code = %v, want %s", payload["error"], tc.wantCode)
			}
		})
	}
}

func TestOrderHandlersCreateRequiresIdentity(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestOrderHandlersCreateRejectsBadJSON(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(`{not json`))
	req = withUser(req, "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestOrderHandlersListPassesQuery(t *testing.T) {
	var captured services.OrderListQuery
	service := &stubOrderService{
		listFn: func(_ context.Context, query services.OrderListQuery) (domain.Page[domain.OrderWithUser], error) {
			captured = query
			return domain.Page[domain.OrderWithUser]{
				Items: []domain.OrderWithUser{
					{
						Order: domain.Order{ID: "ord_1", OrderID: "HD0000000001", UserID: "user-1", Total: 100000},
						User:  &domain.UserSummary{ID: "user-1", DisplayName: "A"},
					},
				},
				Total: 1,
			}, nil
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/orders/?page=2&limit=10&q=nguyen&status=pending", nil)
	req = withUser(req, "user-1", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if captured.Page != 2 || captured.Limit != 10 || captured.Query != "nguyen" || captured.Status != domain.OrderStatusPending {
		t.Errorf("query = %+v", captured)
	}
	if !captured.RequesterIsAdmin {
		t.Error("admin role must set RequesterIsAdmin")
	}

	var resp orderListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 || resp.Items[0].User == nil {
		t.Errorf("payload = %+v", resp)
	}
}

func TestOrderHandlersListRejectsBadPaging(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/orders/?page=zero", nil)
	req = withUser(req, "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestOrderHandlersGetNotFound(t *testing.T) {
	service := &stubOrderService{
		getFn: func(context.Context, string, string, bool) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_x", nil)
	req = withUser(req, "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	service := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: cmd.OrderID, Status: cmd.NewStatus}, nil
		},
	}
	router := newOrderRouter(service)

	body := `{"status": "prepare", "paymentStatus": "paid", "trackingNumber": "VN123"}`
	req := httptest.NewRequest(http.MethodPut, "/orders/ord_1/status", bytes.NewBufferString(body))
	req = withUser(req, "admin-1", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.NewStatus != domain.OrderStatusPrepare {
		t.Errorf("cmd = %+v", captured)
	}
	if captured.PaymentStatus == nil || *captured.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("PaymentStatus = %v", captured.PaymentStatus)
	}
	if captured.TrackingNumber == nil || *captured.TrackingNumber != "VN123" {
		t.Errorf("TrackingNumber = %v", captured.TrackingNumber)
	}
	if captured.ActorID != "admin-1" {
		t.Errorf("ActorID = %q", captured.ActorID)
	}
}

func TestOrderHandlersUpdateStatusInvalidState(t *testing.T) {
	service := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderStatusCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodPut, "/orders/ord_1/status", bytes.NewBufferString(`{"status": "completed"}`))
	req = withUser(req, "admin-1", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestOrderHandlersReconcileStock(t *testing.T) {
	var captured services.ReconcileStockCommand
	service := &stubOrderService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileStockCommand) error {
			captured = cmd
			return nil
		},
	}
	router := newOrderRouter(service)

	body := `{"direction": "restore", "changes": [{"productId": "prod-1", "size": "M", "quantity": 2}]}`
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/stock/reconcile", bytes.NewBufferString(body))
	req = withUser(req, "admin-1", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if captured.Direction != domain.StockRestore {
		t.Errorf("direction = %q", captured.Direction)
	}
	if len(captured.Changes) != 1 || captured.Changes[0] != (services.StockChangeInput{ProductID: "prod-1", Size: "M", Quantity: 2}) {
		t.Errorf("changes = %+v", captured.Changes)
	}
	if captured.ActorID != "admin-1" {
		t.Errorf("ActorID = %q", captured.ActorID)
	}
}

func TestOrderHandlersReconcileStockInvalidInput(t *testing.T) {
	service := &stubOrderService{
		reconcileFn: func(context.Context, services.ReconcileStockCommand) error {
			return services.ErrOrderInvalidInput
		},
	}
	router := newOrderRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/stock/reconcile", bytes.NewBufferString(`{"direction": "sideways"}`))
	req = withUser(req, "admin-1", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
