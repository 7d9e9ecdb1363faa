package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hdshop/api/internal/domain"
	"github.com/hdshop/api/internal/repositories"
)

const voucherIDPrefix = "vch_"

// VoucherServiceDeps bundles collaborators required to construct the voucher service.
type VoucherServiceDeps struct {
	Vouchers    repositories.VoucherRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type voucherService struct {
	vouchers repositories.VoucherRepository
	clock    func() time.Time
	newID    func() string
}

// NewVoucherService wires dependencies into a concrete VoucherService implementation.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, errors.New("voucher service: voucher repository is required")
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

	return &voucherService{
		vouchers: deps.Vouchers,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *voucherService) Create(ctx context.Context, cmd CreateVoucherCommand) (domain.Voucher, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return domain.Voucher{}, fmt.Errorf("%w: code is required", ErrVoucherInvalidInput)
	}
	if cmd.DiscountType != domain.DiscountTypePercent && cmd.DiscountType != domain.DiscountTypeFixed {
		return domain.Voucher{}, fmt.Errorf("%w: unknown discount type %q", ErrVoucherInvalidInput, cmd.DiscountType)
	}
	if cmd.DiscountValue < 0 {
		return domain.Voucher{}, fmt.Errorf("%w: discount value must not be negative", ErrVoucherInvalidInput)
	}
	if cmd.DiscountType == domain.DiscountTypePercent && cmd.DiscountValue > 100 {
		return domain.Voucher{}, fmt.Errorf("%w: percent discount cannot exceed 100", ErrVoucherInvalidInput)
	}
	if cmd.MinOrderValue < 0 {
		return domain.Voucher{}, fmt.Errorf("%w: minimum order value must not be negative", ErrVoucherInvalidInput)
	}
	if cmd.MaxDiscount != nil && *cmd.MaxDiscount < 0 {
		return domain.Voucher{}, fmt.Errorf("%w: max discount must not be negative", ErrVoucherInvalidInput)
	}
	if cmd.UsageLimitPerUser < 0 || (cmd.UsageLimit != nil && *cmd.UsageLimit < 0) {
		return domain.Voucher{}, fmt.Errorf("%w: usage limits must not be negative", ErrVoucherInvalidInput)
	}

	if _, err := s.vouchers.FindByCode(ctx, code); err == nil {
		return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherCodeTaken, code)
	} else if !isNotFound(err) {
		return domain.Voucher{}, err
	}

	now := s.clock()
	voucher := domain.Voucher{
		ID:                   voucherIDPrefix + s.newID(),
		Code:                 code,
		Description:          strings.TrimSpace(cmd.Description),
		DiscountType:         cmd.DiscountType,
		DiscountValue:        cmd.DiscountValue,
		MinOrderValue:        cmd.MinOrderValue,
		MaxDiscount:          cmd.MaxDiscount,
		ExpirationDate:       cmd.ExpirationDate,
		IsActive:             true,
		UsageLimit:           cmd.UsageLimit,
		UsageLimitPerUser:    cmd.UsageLimitPerUser,
		ApplicableProducts:   cmd.ApplicableProducts,
		ApplicableCategories: cmd.ApplicableCategories,
		CreatedAt:            now,
	}

	saved, err := s.vouchers.Insert(ctx, voucher)
	if err != nil {
		return domain.Voucher{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

func (s *voucherService) Update(ctx context.Context, cmd UpdateVoucherCommand) (domain.Voucher, error) {
	voucherID := strings.TrimSpace(cmd.VoucherID)
	if voucherID == "" {
		return domain.Voucher{}, fmt.Errorf("%w: voucher id is required", ErrVoucherInvalidInput)
	}

	voucher, err := s.vouchers.FindByID(ctx, voucherID)
	if err != nil {
		return domain.Voucher{}, s.mapRepositoryError(err)
	}
	if voucher.Destroy {
		return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, voucherID)
	}

	if cmd.Description != nil {
		voucher.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.DiscountValue != nil {
		if *cmd.DiscountValue < 0 {
			return domain.Voucher{}, fmt.Errorf("%w: discount value must not be negative", ErrVoucherInvalidInput)
		}
		voucher.DiscountValue = *cmd.DiscountValue
	}
	if cmd.MinOrderValue != nil {
		if *cmd.MinOrderValue < 0 {
			return domain.Voucher{}, fmt.Errorf("%w: minimum order value must not be negative", ErrVoucherInvalidInput)
		}
		voucher.MinOrderValue = *cmd.MinOrderValue
	}
	if cmd.MaxDiscount != nil {
		if *cmd.MaxDiscount < 0 {
			return domain.Voucher{}, fmt.Errorf("%w: max discount must not be negative", ErrVoucherInvalidInput)
		}
		voucher.MaxDiscount = cmd.MaxDiscount
	}
	if cmd.ExpirationDate != nil {
		voucher.ExpirationDate = *cmd.ExpirationDate
	}
	if cmd.IsActive != nil {
		voucher.IsActive = *cmd.IsActive
	}
	if cmd.UsageLimit != nil {
		if *cmd.UsageLimit < 0 {
			return domain.Voucher{}, fmt.Errorf("%w: usage limit must not be negative", ErrVoucherInvalidInput)
		}
		voucher.UsageLimit = cmd.UsageLimit
	}
	if cmd.UsageLimitPerUser != nil {
		if *cmd.UsageLimitPerUser < 0 {
			return domain.Voucher{}, fmt.Errorf("%w: per-user usage limit must not be negative", ErrVoucherInvalidInput)
		}
		voucher.UsageLimitPerUser = *cmd.UsageLimitPerUser
	}
	if cmd.ApplicableProducts != nil {
		voucher.ApplicableProducts = cmd.ApplicableProducts
	}
	if cmd.ApplicableCategories != nil {
		voucher.ApplicableCategories = cmd.ApplicableCategories
	}

	now := s.clock()
	voucher.UpdatedAt = &now

	saved, err := s.vouchers.Update(ctx, voucher)
	if err != nil {
		return domain.Voucher{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

func (s *voucherService) Delete(ctx context.Context, voucherID string) error {
	voucherID = strings.TrimSpace(voucherID)
	if voucherID == "" {
		return fmt.Errorf("%w: voucher id is required", ErrVoucherInvalidInput)
	}
	if err := s.vouchers.SoftDelete(ctx, voucherID, s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *voucherService) List(ctx context.Context, page, limit int) (domain.Page[domain.Voucher], error) {
	result, err := s.vouchers.List(ctx, repositories.VoucherListFilter{Page: page, Limit: limit})
	if err != nil {
		return domain.Page[domain.Voucher]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

// GetByCode looks up a voucher for the checkout UI. Inactive or expired
// vouchers behave as if they do not exist.
func (s *voucherService) GetByCode(ctx context.Context, code string) (domain.Voucher, error) {
	voucher, err := s.vouchers.FindByCode(ctx, code)
	if err != nil {
		return domain.Voucher{}, s.mapRepositoryError(err)
	}
	if voucher.Destroy || !voucher.IsActive {
		return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, code)
	}
	if !voucher.ExpirationDate.IsZero() && s.clock().After(voucher.ExpirationDate) {
		return domain.Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, code)
	}
	return voucher, nil
}

func (s *voucherService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrVoucherNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrVoucherCodeTaken, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("voucher: repository unavailable: %w", err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
