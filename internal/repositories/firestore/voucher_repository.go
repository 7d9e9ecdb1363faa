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
	"github.com/hdshop/api/internal/repositories"
)

const (
	vouchersCollection      = "vouchers"
	voucherUsagesCollection = "voucherUsages"

	defaultVoucherPageSize = 20
	maxVoucherPageSize     = 100
)

type voucherDocument struct {
	Code                 string     `firestore:"code"`
	Description          string     `firestore:"description,omitempty"`
	DiscountType         string     `firestore:"discountType"`
	DiscountValue        int64      `firestore:"discountValue"`
	MinOrderValue        int64      `firestore:"minOrderValue"`
	MaxDiscount          *int64     `firestore:"maxDiscount,omitempty"`
	ExpirationDate       time.Time  `firestore:"expirationDate"`
	IsActive             bool       `firestore:"isActive"`
	UsageLimit           *int       `firestore:"usageLimit,omitempty"`
	UsageLimitPerUser    int        `firestore:"usageLimitPerUser"`
	UsageCount           int        `firestore:"usageCount"`
	ApplicableProducts   []string   `firestore:"applicableProducts,omitempty"`
	ApplicableCategories []string   `firestore:"applicableCategories,omitempty"`
	Destroy              bool       `firestore:"destroy"`
	CreatedAt            time.Time  `firestore:"createdAt"`
	UpdatedAt            *time.Time `firestore:"updatedAt,omitempty"`
}

type voucherUsageDocument struct {
	VoucherID string    `firestore:"voucherId"`
	UserID    string    `firestore:"userId"`
	Times     int       `firestore:"times"`
	LastUsed  time.Time `firestore:"lastUsed"`
}

// voucherUsageID builds the deterministic document ID for a per-user usage counter.
func voucherUsageID(voucherID, userID string) string {
	return voucherID + "_" + userID
}

func voucherFromDocument(id string, doc voucherDocument) domain.Voucher {
	return domain.Voucher{
		ID:                   id,
		Code:                 doc.Code,
		Description:          doc.Description,
		DiscountType:         domain.DiscountType(doc.DiscountType),
		DiscountValue:        doc.DiscountValue,
		MinOrderValue:        doc.MinOrderValue,
		MaxDiscount:          doc.MaxDiscount,
		ExpirationDate:       doc.ExpirationDate,
		IsActive:             doc.IsActive,
		UsageLimit:           doc.UsageLimit,
		UsageLimitPerUser:    doc.UsageLimitPerUser,
		UsageCount:           doc.UsageCount,
		ApplicableProducts:   doc.ApplicableProducts,
		ApplicableCategories: doc.ApplicableCategories,
		Destroy:              doc.Destroy,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

func voucherToDocument(voucher domain.Voucher) voucherDocument {
	return voucherDocument{
		Code:                 voucher.Code,
		Description:          voucher.Description,
		DiscountType:         string(voucher.DiscountType),
		DiscountValue:        voucher.DiscountValue,
		MinOrderValue:        voucher.MinOrderValue,
		MaxDiscount:          voucher.MaxDiscount,
		ExpirationDate:       voucher.ExpirationDate,
		IsActive:             voucher.IsActive,
		UsageLimit:           voucher.UsageLimit,
		UsageLimitPerUser:    voucher.UsageLimitPerUser,
		UsageCount:           voucher.UsageCount,
		ApplicableProducts:   voucher.ApplicableProducts,
		ApplicableCategories: voucher.ApplicableCategories,
		Destroy:              voucher.Destroy,
		CreatedAt:            voucher.CreatedAt,
		UpdatedAt:            voucher.UpdatedAt,
	}
}

// VoucherRepository implements repositories.VoucherRepository backed by Firestore.
type VoucherRepository struct {
	provider *pfirestore.Provider
	vouchers *pfirestore.BaseRepository[voucherDocument]
	usages   *pfirestore.BaseRepository[voucherUsageDocument]
}

// NewVoucherRepository constructs a Firestore-backed voucher repository.
func NewVoucherRepository(provider *pfirestore.Provider) (*VoucherRepository, error) {
	if provider == nil {
		return nil, errors.New("voucher repository requires firestore provider")
	}
	return &VoucherRepository{
		provider: provider,
		vouchers: pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil),
		usages:   pfirestore.NewBaseRepository[voucherUsageDocument](provider, voucherUsagesCollection, nil, nil),
	}, nil
}

// Insert stores a new voucher document, failing when the ID already exists.
func (r *VoucherRepository) Insert(ctx context.Context, voucher domain.Voucher) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	if strings.TrimSpace(voucher.ID) == "" {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorInvalidInput, "", "voucher id is required", nil)
	}
	if _, err := r.vouchers.Create(ctx, voucher.ID, voucherToDocument(voucher)); err != nil {
		return domain.Voucher{}, err
	}
	return voucher, nil
}

// Update replaces an existing voucher document.
func (r *VoucherRepository) Update(ctx context.Context, voucher domain.Voucher) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	if strings.TrimSpace(voucher.ID) == "" {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorInvalidInput, "", "voucher id is required", nil)
	}
	if _, err := r.vouchers.Set(ctx, voucher.ID, voucherToDocument(voucher)); err != nil {
		return domain.Voucher{}, err
	}
	return voucher, nil
}

// SoftDelete flags the voucher as destroyed without removing the document.
func (r *VoucherRepository) SoftDelete(ctx context.Context, voucherID string, deletedAt time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("voucher repository not initialised")
	}
	_, err := r.vouchers.Update(ctx, voucherID, []firestore.Update{
		{Path: "destroy", Value: true},
		{Path: "isActive", Value: false},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
	return err
}

// FindByID fetches a voucher document by ID.
func (r *VoucherRepository) FindByID(ctx context.Context, voucherID string) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	doc, err := r.vouchers.Get(ctx, voucherID)
	if err != nil {
		return domain.Voucher{}, err
	}
	return voucherFromDocument(doc.ID, doc.Data), nil
}

// FindByCode looks up a voucher by its redemption code. Codes are stored uppercase.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorInvalidInput, "", "voucher code is required", nil)
	}

	docs, err := r.vouchers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Where("destroy", "==", false).Limit(1)
	})
	if err != nil {
		return domain.Voucher{}, err
	}
	if len(docs) == 0 {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.find_by_code", notFoundErr(fmt.Sprintf("voucher with code %s not found", code)))
	}
	return voucherFromDocument(docs[0].ID, docs[0].Data), nil
}

// List returns a page of vouchers ordered by creation time descending.
func (r *VoucherRepository) List(ctx context.Context, filter repositories.VoucherListFilter) (domain.Page[domain.Voucher], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Voucher]{}, errors.New("voucher repository not initialised")
	}

	page, limit := normalisePage(filter.Page, filter.Limit, defaultVoucherPageSize, maxVoucherPageSize)

	build := func(q firestore.Query) firestore.Query {
		q = q.Where("destroy", "==", false)
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		return q
	}

	total, err := r.vouchers.Count(ctx, build)
	if err != nil {
		return domain.Page[domain.Voucher]{}, err
	}

	docs, err := r.vouchers.Query(ctx, func(q firestore.Query) firestore.Query {
		return build(q).OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit)
	})
	if err != nil {
		return domain.Page[domain.Voucher]{}, err
	}

	items := make([]domain.Voucher, 0, len(docs))
	for _, doc := range docs {
		items = append(items, voucherFromDocument(doc.ID, doc.Data))
	}
	return domain.Page[domain.Voucher]{Items: items, Total: total}, nil
}

// FindUsage returns the per-user usage counter. A missing document means zero usage.
func (r *VoucherRepository) FindUsage(ctx context.Context, voucherID string, userID string) (domain.VoucherUsage, error) {
	if r == nil || r.provider == nil {
		return domain.VoucherUsage{}, errors.New("voucher repository not initialised")
	}
	if strings.TrimSpace(voucherID) == "" || strings.TrimSpace(userID) == "" {
		return domain.VoucherUsage{}, repositories.NewVoucherError(repositories.VoucherErrorInvalidInput, voucherID, "voucher id and user id are required", nil)
	}

	doc, err := r.usages.Get(ctx, voucherUsageID(voucherID, userID))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.VoucherUsage{VoucherID: voucherID, UserID: userID}, nil
		}
		return domain.VoucherUsage{}, err
	}
	return domain.VoucherUsage{
		VoucherID: doc.Data.VoucherID,
		UserID:    doc.Data.UserID,
		Times:     doc.Data.Times,
		LastUsed:  doc.Data.LastUsed,
	}, nil
}

// notFoundErr produces an error that WrapError classifies as not-found.
func notFoundErr(msg string) error {
	return status.Error(codes.NotFound, msg)
}

func normalisePage(page, limit, defaultLimit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
