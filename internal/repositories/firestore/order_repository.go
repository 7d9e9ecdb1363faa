package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hdshop/api/internal/domain"
	pfirestore "github.com/hdshop/api/internal/platform/firestore"
	"github.com/hdshop/api/internal/platform/search"
	"github.com/hdshop/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

type orderDetailDocument struct {
	ProductID string `firestore:"productId"`
	Title     string `firestore:"title"`
	Quantity  int64  `firestore:"quantity"`
	Price     int64  `firestore:"price"`
	Total     int64  `firestore:"total"`
	Size      string `firestore:"size"`
	Note      string `firestore:"note,omitempty"`
}

type appliedDiscountDocument struct {
	ProductID string `firestore:"productId"`
	Discount  int64  `firestore:"discount"`
}

type voucherUsedDocument struct {
	VoucherID       string                    `firestore:"voucherId"`
	Code            string                    `firestore:"code"`
	DiscountAmount  int64                     `firestore:"discountAmount"`
	MaxDiscount     *int64                    `firestore:"maxDiscount,omitempty"`
	ProductsApplied []appliedDiscountDocument `firestore:"productsApplied,omitempty"`
}

type orderDocument struct {
	OrderNumber    string                `firestore:"orderId"`
	FullName       string                `firestore:"fullName"`
	SearchName     string                `firestore:"searchName"`
	Address        string                `firestore:"address"`
	Email          string                `firestore:"email,omitempty"`
	PhoneNumber    string                `firestore:"phoneNumber"`
	Status         string                `firestore:"status"`
	PaymentStatus  string                `firestore:"paymentStatus"`
	Total          int64                 `firestore:"total"`
	ShippingFee    int64                 `firestore:"shippingFee"`
	ShippingMethod string                `firestore:"shippingMethod,omitempty"`
	PaymentMethod  string                `firestore:"paymentMethod,omitempty"`
	TrackingNumber string                `firestore:"trackingNumber,omitempty"`
	UserID         string                `firestore:"userId,omitempty"`
	Details        []orderDetailDocument `firestore:"details"`
	VouchersUsed   []voucherUsedDocument `firestore:"vouchersUsed,omitempty"`
	OrderDate      time.Time             `firestore:"orderDate"`
	PaymentDate    *time.Time            `firestore:"paymentDate,omitempty"`
	ShippingDate   *time.Time            `firestore:"shippingDate,omitempty"`
	Destroy        bool                  `firestore:"destroy"`
	CreatedAt      time.Time             `firestore:"createdAt"`
	UpdatedAt      *time.Time            `firestore:"updatedAt,omitempty"`
}

func orderToDocument(order domain.Order) orderDocument {
	details := make([]orderDetailDocument, 0, len(order.Details))
	for _, d := range order.Details {
		details = append(details, orderDetailDocument{
			ProductID: d.ProductID,
			Title:     d.Title,
			Quantity:  d.Quantity,
			Price:     d.Price,
			Total:     d.Total,
			Size:      d.Size,
			Note:      d.Note,
		})
	}
	vouchers := make([]voucherUsedDocument, 0, len(order.VouchersUsed))
	for _, v := range order.VouchersUsed {
		applied := make([]appliedDiscountDocument, 0, len(v.ProductsApplied))
		for _, a := range v.ProductsApplied {
			applied = append(applied, appliedDiscountDocument{ProductID: a.ProductID, Discount: a.Discount})
		}
		vouchers = append(vouchers, voucherUsedDocument{
			VoucherID:       v.VoucherID,
			Code:            v.Code,
			DiscountAmount:  v.DiscountAmount,
			MaxDiscount:     v.MaxDiscount,
			ProductsApplied: applied,
		})
	}
	return orderDocument{
		OrderNumber:    order.OrderID,
		FullName:       order.FullName,
		SearchName:     search.Fold(order.FullName),
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
		Details:        details,
		VouchersUsed:   vouchers,
		OrderDate:      order.OrderDate,
		PaymentDate:    order.PaymentDate,
		ShippingDate:   order.ShippingDate,
		Destroy:        order.Destroy,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

func orderFromDocument(id string, doc orderDocument) domain.Order {
	details := make([]domain.OrderDetail, 0, len(doc.Details))
	for _, d := range doc.Details {
		details = append(details, domain.OrderDetail{
			ProductID: d.ProductID,
			Title:     d.Title,
			Quantity:  d.Quantity,
			Price:     d.Price,
			Total:     d.Total,
			Size:      d.Size,
			Note:      d.Note,
		})
	}
	vouchers := make([]domain.VoucherUsed, 0, len(doc.VouchersUsed))
	for _, v := range doc.VouchersUsed {
		applied := make([]domain.AppliedDiscount, 0, len(v.ProductsApplied))
		for _, a := range v.ProductsApplied {
			applied = append(applied, domain.AppliedDiscount{ProductID: a.ProductID, Discount: a.Discount})
		}
		vouchers = append(vouchers, domain.VoucherUsed{
			VoucherID:       v.VoucherID,
			Code:            v.Code,
			DiscountAmount:  v.DiscountAmount,
			MaxDiscount:     v.MaxDiscount,
			ProductsApplied: applied,
		})
	}
	return domain.Order{
		ID:             id,
		OrderID:        doc.OrderNumber,
		FullName:       doc.FullName,
		Address:        doc.Address,
		Email:          doc.Email,
		PhoneNumber:    doc.PhoneNumber,
		Status:         domain.OrderStatus(doc.Status),
		PaymentStatus:  domain.PaymentStatus(doc.PaymentStatus),
		Total:          doc.Total,
		ShippingFee:    doc.ShippingFee,
		ShippingMethod: doc.ShippingMethod,
		PaymentMethod:  doc.PaymentMethod,
		TrackingNumber: doc.TrackingNumber,
		UserID:         doc.UserID,
		Details:        details,
		VouchersUsed:   vouchers,
		OrderDate:      doc.OrderDate,
		PaymentDate:    doc.PaymentDate,
		ShippingDate:   doc.ShippingDate,
		Destroy:        doc.Destroy,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
// Order writes span the orders, products, vouchers, and voucherUsages
// collections inside a single transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	vouchers *pfirestore.BaseRepository[voucherDocument]
	usages   *pfirestore.BaseRepository[voucherUsageDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		vouchers: pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil),
		usages:   pfirestore.NewBaseRepository[voucherUsageDocument](provider, voucherUsagesCollection, nil, nil),
	}, nil
}

// Insert persists the order and, in the same transaction, decrements the
// referenced stock variants and claims the supplied vouchers. Either every
// write commits or none do.
func (r *OrderRepository) Insert(ctx context.Context, req repositories.OrderWriteRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.Order.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	for _, change := range req.StockChanges {
		if change.Quantity <= 0 {
			return domain.Order{}, repositories.NewStockError(repositories.StockErrorInvalidInput, change.ProductID, change.Size, fmt.Sprintf("quantity must be positive, got %d", change.Quantity), nil)
		}
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore requires all reads before the first write.
		productDocs, productRefs, err := readProductsForUpdate(ctx, tx, r.products, req.StockChanges)
		if err != nil {
			return err
		}
		claimReads, err := r.readVoucherClaims(ctx, tx, req.VoucherClaims)
		if err != nil {
			return err
		}

		for _, change := range req.StockChanges {
			doc := productDocs[change.ProductID]
			idx := findSizeVariant(doc.Sizes, change.Size)
			if idx < 0 {
				return repositories.NewStockError(repositories.StockErrorVariantMissing, change.ProductID, change.Size, fmt.Sprintf("product %s has no size %q", change.ProductID, change.Size), nil)
			}
			if doc.Sizes[idx].Stock < change.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficient, change.ProductID, change.Size, fmt.Sprintf("product %s size %q has %d in stock, need %d", change.ProductID, change.Size, doc.Sizes[idx].Stock, change.Quantity), nil)
			}
			doc.Sizes[idx].Stock -= change.Quantity
			productDocs[change.ProductID] = doc
		}

		for i, claim := range req.VoucherClaims {
			read := claimReads[i]
			if claim.UsageLimit != nil && read.voucher.UsageCount >= *claim.UsageLimit {
				return repositories.NewVoucherError(repositories.VoucherErrorUsageExceeded, claim.VoucherID, fmt.Sprintf("voucher %s reached its usage limit", claim.VoucherID), nil)
			}
			if claim.UsageLimitPerUser > 0 && read.usage.Times >= claim.UsageLimitPerUser {
				return repositories.NewVoucherError(repositories.VoucherErrorUsageExceeded, claim.VoucherID, fmt.Sprintf("voucher %s reached its per-user limit for %s", claim.VoucherID, claim.UserID), nil)
			}
		}

		for id, doc := range productDocs {
			doc.UpdatedAt = &now
			if err := tx.Set(productRefs[id], doc); err != nil {
				return err
			}
		}
		for i, claim := range req.VoucherClaims {
			read := claimReads[i]
			read.voucher.UsageCount++
			read.voucher.UpdatedAt = &now
			if err := tx.Set(read.voucherRef, read.voucher); err != nil {
				return err
			}
			read.usage.VoucherID = claim.VoucherID
			read.usage.UserID = claim.UserID
			read.usage.Times++
			read.usage.LastUsed = now
			if err := tx.Set(read.usageRef, read.usage); err != nil {
				return err
			}
		}

		orderRef, err := r.orders.DocumentRef(ctx, req.Order.ID)
		if err != nil {
			return err
		}
		return tx.Create(orderRef, orderToDocument(req.Order))
	})
	if err != nil {
		return domain.Order{}, passthroughTypedError("orders.insert", err)
	}
	return req.Order, nil
}

type voucherClaimRead struct {
	voucher    voucherDocument
	voucherRef *firestore.DocumentRef
	usage      voucherUsageDocument
	usageRef   *firestore.DocumentRef
}

func (r *OrderRepository) readVoucherClaims(ctx context.Context, tx *firestore.Transaction, claims []repositories.VoucherClaim) ([]voucherClaimRead, error) {
	reads := make([]voucherClaimRead, 0, len(claims))
	for _, claim := range claims {
		if strings.TrimSpace(claim.VoucherID) == "" || strings.TrimSpace(claim.UserID) == "" {
			return nil, repositories.NewVoucherError(repositories.VoucherErrorInvalidInput, claim.VoucherID, "voucher id and user id are required", nil)
		}

		voucherRef, err := r.vouchers.DocumentRef(ctx, claim.VoucherID)
		if err != nil {
			return nil, err
		}
		snapshot, err := tx.Get(voucherRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, repositories.NewVoucherError(repositories.VoucherErrorInvalidInput, claim.VoucherID, fmt.Sprintf("voucher %s not found", claim.VoucherID), err)
			}
			return nil, err
		}
		var voucherDoc voucherDocument
		if err := snapshot.DataTo(&voucherDoc); err != nil {
			return nil, fmt.Errorf("firestore vouchers decode %s: %w", claim.VoucherID, err)
		}

		usageRef, err := r.usages.DocumentRef(ctx, voucherUsageID(claim.VoucherID, claim.UserID))
		if err != nil {
			return nil, err
		}
		var usageDoc voucherUsageDocument
		usageSnap, err := tx.Get(usageRef)
		switch status.Code(err) {
		case codes.NotFound:
			// first redemption for this user
		case codes.OK:
			if err := usageSnap.DataTo(&usageDoc); err != nil {
				return nil, fmt.Errorf("firestore voucher usages decode %s: %w", usageRef.ID, err)
			}
		default:
			return nil, err
		}

		reads = append(reads, voucherClaimRead{
			voucher:    voucherDoc,
			voucherRef: voucherRef,
			usage:      usageDoc,
			usageRef:   usageRef,
		})
	}
	return reads, nil
}

// FindByID fetches a single order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data), nil
}

// FindByOrderNumber looks an order up by its human-facing number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.New("order number is required")
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_number", notFoundErr(fmt.Sprintf("order %s not found", orderNumber)))
	}
	return orderFromDocument(docs[0].ID, docs[0].Data), nil
}

// List returns a page of orders ordered by creation time descending. The free
// text query matches order numbers exactly or folded customer names by prefix.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	page, limit := normalisePage(filter.Page, filter.Limit, defaultOrderPageSize, maxOrderPageSize)
	term := strings.TrimSpace(filter.Query)

	build := func(q firestore.Query) firestore.Query {
		q = q.Where("destroy", "==", false)
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if term != "" {
			if looksLikeOrderNumber(term) {
				q = q.Where("orderId", "==", strings.ToUpper(term))
			} else {
				folded := search.Fold(term)
				q = q.Where("searchName", ">=", folded).Where("searchName", "<", folded+"")
			}
		}
		return q
	}

	total, err := r.orders.Count(ctx, build)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	ordered := func(q firestore.Query) firestore.Query {
		q = build(q)
		if term != "" && !looksLikeOrderNumber(term) {
			// Range filters require ordering on the filtered field first.
			q = q.OrderBy("searchName", firestore.Asc)
		}
		return q.OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit)
	}

	docs, err := r.orders.Query(ctx, ordered)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, orderFromDocument(doc.ID, doc.Data))
	}
	return domain.Page[domain.Order]{Items: items, Total: total}, nil
}

// UpdateStatus applies a status transition and its side effects in one
// transaction: restoring stock and releasing voucher claims when requested.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, req repositories.OrderStatusUpdateRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}
		order := orderFromDocument(orderID, doc)

		if req.ExpectedStatus != "" && order.Status != req.ExpectedStatus {
			return status.Errorf(codes.FailedPrecondition,
				"order %s is %s, expected %s", orderID, order.Status, req.ExpectedStatus)
		}

		var restock []repositories.StockChange
		if req.RestoreStock {
			for _, detail := range order.Details {
				restock = append(restock, repositories.StockChange{
					ProductID: detail.ProductID,
					Size:      detail.Size,
					Quantity:  detail.Quantity,
				})
			}
		}
		productDocs, productRefs, err := readProductsForUpdate(ctx, tx, r.products, restock)
		if err != nil {
			return err
		}

		var releases []voucherClaimRead
		if req.ReleaseVouchers {
			claims := make([]repositories.VoucherClaim, 0, len(order.VouchersUsed))
			for _, used := range order.VouchersUsed {
				claims = append(claims, repositories.VoucherClaim{VoucherID: used.VoucherID, UserID: order.UserID})
			}
			releases, err = r.readVoucherClaims(ctx, tx, claims)
			if err != nil {
				return err
			}
		}

		for _, change := range restock {
			pdoc := productDocs[change.ProductID]
			idx := findSizeVariant(pdoc.Sizes, change.Size)
			if idx < 0 {
				// Variant was removed since the order was placed. Skip rather
				// than block the transition; ReconcileStock can repair later.
				continue
			}
			pdoc.Sizes[idx].Stock += change.Quantity
			productDocs[change.ProductID] = pdoc
		}

		doc.Status = string(req.Status)
		doc.UpdatedAt = &now
		if req.PaymentStatus != nil {
			doc.PaymentStatus = string(*req.PaymentStatus)
			if *req.PaymentStatus == domain.PaymentStatusPaid && doc.PaymentDate == nil {
				doc.PaymentDate = &now
			}
		}
		if req.TrackingNumber != nil {
			doc.TrackingNumber = strings.TrimSpace(*req.TrackingNumber)
		}
		if req.Status == domain.OrderStatusShipping && doc.ShippingDate == nil {
			doc.ShippingDate = &now
		}

		for id, pdoc := range productDocs {
			pdoc.UpdatedAt = &now
			if err := tx.Set(productRefs[id], pdoc); err != nil {
				return err
			}
		}
		for _, release := range releases {
			if release.voucher.UsageCount > 0 {
				release.voucher.UsageCount--
			}
			release.voucher.UpdatedAt = &now
			if err := tx.Set(release.voucherRef, release.voucher); err != nil {
				return err
			}
			if release.usage.Times > 0 {
				release.usage.Times--
			}
			release.usage.LastUsed = now
			if err := tx.Set(release.usageRef, release.usage); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		updated = orderFromDocument(orderID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, passthroughTypedError("orders.update_status", err)
	}
	return updated, nil
}

// looksLikeOrderNumber reports whether the term matches the HD-prefixed numeric format.
func looksLikeOrderNumber(term string) bool {
	upper := strings.ToUpper(term)
	if !strings.HasPrefix(upper, "HD") || len(upper) < 3 {
		return false
	}
	for _, r := range upper[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// passthroughTypedError keeps typed stock/voucher errors intact and wraps the rest.
func passthroughTypedError(op string, err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return stockErr
	}
	var voucherErr *repositories.VoucherError
	if errors.As(err, &voucherErr) {
		return voucherErr
	}
	return pfirestore.WrapError(op, err)
}
