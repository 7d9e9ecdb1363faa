package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hdshop/api/internal/domain"
	"github.com/hdshop/api/internal/platform/auth"
	"github.com/hdshop/api/internal/platform/httpx"
	"github.com/hdshop/api/internal/services"
)

const (
	defaultVoucherPageSize = 20
	maxVoucherPageSize     = 100
	maxVoucherBodySize     = 16 * 1024
)

// VoucherHandlers exposes voucher lookup for checkout and admin CRUD.
type VoucherHandlers struct {
	authn    *auth.Authenticator
	vouchers services.VoucherService
}

// NewVoucherHandlers constructs a new VoucherHandlers instance.
func NewVoucherHandlers(authn *auth.Authenticator, vouchers services.VoucherService) *VoucherHandlers {
	return &VoucherHandlers{
		authn:    authn,
		vouchers: vouchers,
	}
}

// Routes registers the checkout-facing /vouchers endpoints.
func (h *VoucherHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/code/{code}", h.getVoucherByCode)
}

// AdminRoutes registers the voucher management endpoints.
func (h *VoucherHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createVoucher)
	r.Get("/", h.listVouchers)
	r.Put("/{voucherID}", h.updateVoucher)
	r.Delete("/{voucherID}", h.deleteVoucher)
}

type createVoucherRequest struct {
	Code                 string   `json:"code"`
	Description          string   `json:"description"`
	DiscountType         string   `json:"discountType"`
	DiscountValue        int64    `json:"discountValue"`
	MinOrderValue        int64    `json:"minOrderValue"`
	MaxDiscount          *int64   `json:"maxDiscount"`
	ExpirationDate       string   `json:"expirationDate"`
	UsageLimit           *int     `json:"usageLimit"`
	UsageLimitPerUser    int      `json:"usageLimitPerUser"`
	ApplicableProducts   []string `json:"applicableProducts"`
	ApplicableCategories []string `json:"applicableCategories"`
}

type updateVoucherRequest struct {
	Description          *string  `json:"description"`
	DiscountValue        *int64   `json:"discountValue"`
	MinOrderValue        *int64   `json:"minOrderValue"`
	MaxDiscount          *int64   `json:"maxDiscount"`
	ExpirationDate       *string  `json:"expirationDate"`
	IsActive             *bool    `json:"isActive"`
	UsageLimit           *int     `json:"usageLimit"`
	UsageLimitPerUser    *int     `json:"usageLimitPerUser"`
	ApplicableProducts   []string `json:"applicableProducts"`
	ApplicableCategories []string `json:"applicableCategories"`
}

func (h *VoucherHandlers) getVoucherByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher code is required", http.StatusBadRequest))
		return
	}

	voucher, err := h.vouchers.GetByCode(ctx, code)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, voucherResponse{Voucher: buildVoucherPayload(voucher)})
}

func (h *VoucherHandlers) createVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxVoucherBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createVoucherRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateVoucherCommand{
		Code:                 req.Code,
		Description:          req.Description,
		DiscountType:         domain.DiscountType(strings.TrimSpace(req.DiscountType)),
		DiscountValue:        req.DiscountValue,
		MinOrderValue:        req.MinOrderValue,
		MaxDiscount:          req.MaxDiscount,
		UsageLimit:           req.UsageLimit,
		UsageLimitPerUser:    req.UsageLimitPerUser,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: req.ApplicableCategories,
	}
	if raw := strings.TrimSpace(req.ExpirationDate); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expirationDate must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.ExpirationDate = ts
	}

	voucher, err := h.vouchers.Create(ctx, cmd)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, voucherResponse{Voucher: buildVoucherPayload(voucher)})
}

func (h *VoucherHandlers) listVouchers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	page, err := parsePositiveInt(query.Get("page"), 1)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page must be a positive integer", http.StatusBadRequest))
		return
	}
	limit, err := parsePositiveInt(query.Get("limit"), defaultVoucherPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
		return
	}
	if limit > maxVoucherPageSize {
		limit = maxVoucherPageSize
	}

	result, err := h.vouchers.List(ctx, page, limit)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	items := make([]voucherPayload, 0, len(result.Items))
	for _, voucher := range result.Items {
		items = append(items, buildVoucherPayload(voucher))
	}
	writeJSONResponse(w, http.StatusOK, voucherListResponse{
		Items: items,
		Total: result.Total,
		Page:  page,
		Limit: limit,
	})
}

func (h *VoucherHandlers) updateVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	voucherID := strings.TrimSpace(chi.URLParam(r, "voucherID"))
	if voucherID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxVoucherBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateVoucherRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateVoucherCommand{
		VoucherID:            voucherID,
		Description:          req.Description,
		DiscountValue:        req.DiscountValue,
		MinOrderValue:        req.MinOrderValue,
		MaxDiscount:          req.MaxDiscount,
		IsActive:             req.IsActive,
		UsageLimit:           req.UsageLimit,
		UsageLimitPerUser:    req.UsageLimitPerUser,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: req.ApplicableCategories,
	}
	if req.ExpirationDate != nil {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ExpirationDate))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expirationDate must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.ExpirationDate = &ts
	}

	voucher, err := h.vouchers.Update(ctx, cmd)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, voucherResponse{Voucher: buildVoucherPayload(voucher)})
}

func (h *VoucherHandlers) deleteVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	voucherID := strings.TrimSpace(chi.URLParam(r, "voucherID"))
	if voucherID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher id is required", http.StatusBadRequest))
		return
	}

	if err := h.vouchers.Delete(ctx, voucherID); err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type voucherListResponse struct {
	Items []voucherPayload `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

type voucherResponse struct {
	Voucher voucherPayload `json:"voucher"`
}

type voucherPayload struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Description          string   `json:"description,omitempty"`
	DiscountType         string   `json:"discountType"`
	DiscountValue        int64    `json:"discountValue"`
	MinOrderValue        int64    `json:"minOrderValue"`
	MaxDiscount          *int64   `json:"maxDiscount,omitempty"`
	ExpirationDate       string   `json:"expirationDate,omitempty"`
	IsActive             bool     `json:"isActive"`
	UsageLimit           *int     `json:"usageLimit,omitempty"`
	UsageLimitPerUser    int      `json:"usageLimitPerUser"`
	UsageCount           int      `json:"usageCount"`
	ApplicableProducts   []string `json:"applicableProducts,omitempty"`
	ApplicableCategories []string `json:"applicableCategories,omitempty"`
	CreatedAt            string   `json:"createdAt"`
	UpdatedAt            string   `json:"updatedAt,omitempty"`
}

func buildVoucherPayload(voucher domain.Voucher) voucherPayload {
	return voucherPayload{
		ID:                   voucher.ID,
		Code:                 voucher.Code,
		Description:          voucher.Description,
		DiscountType:         string(voucher.DiscountType),
		DiscountValue:        voucher.DiscountValue,
		MinOrderValue:        voucher.MinOrderValue,
		MaxDiscount:          voucher.MaxDiscount,
		ExpirationDate:       formatTime(voucher.ExpirationDate),
		IsActive:             voucher.IsActive,
		UsageLimit:           voucher.UsageLimit,
		UsageLimitPerUser:    voucher.UsageLimitPerUser,
		UsageCount:           voucher.UsageCount,
		ApplicableProducts:   voucher.ApplicableProducts,
		ApplicableCategories: voucher.ApplicableCategories,
		CreatedAt:            formatTime(voucher.CreatedAt),
		UpdatedAt:            formatTimePointer(voucher.UpdatedAt),
	}
}

func writeVoucherError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrVoucherInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrVoucherCodeTaken):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_code_taken", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("voucher_error", "failed to process voucher request", http.StatusInternalServerError))
	}
}
