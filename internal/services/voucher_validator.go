package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hdshop/api/internal/domain"
	"github.com/hdshop/api/internal/repositories"
)

// VoucherValidator checks proposed voucher applications against the stored
// vouchers. It is the fast rejection path; the same limits are re-checked
// atomically inside the order transaction, which is the correctness guarantee
// under concurrency.
type VoucherValidator struct {
	vouchers repositories.VoucherRepository
}

// NewVoucherValidator constructs a validator over the voucher repository.
func NewVoucherValidator(vouchers repositories.VoucherRepository) (*VoucherValidator, error) {
	if vouchers == nil {
		return nil, errors.New("voucher validator: voucher repository is required")
	}
	return &VoucherValidator{vouchers: vouchers}, nil
}

// ValidatedVoucher pairs the accepted application with the claim the order
// transaction must enforce.
type ValidatedVoucher struct {
	Used  domain.VoucherUsed
	Claim repositories.VoucherClaim
}

// Validate verifies every proposed voucher for the given user and subtotal.
// Any failure rejects the whole set: an order either applies all of its
// vouchers or none.
func (v *VoucherValidator) Validate(ctx context.Context, userID string, subtotal int64, orderProductIDs map[string]struct{}, proposed []VoucherUsedInput, now time.Time) ([]ValidatedVoucher, error) {
	if v == nil || v.vouchers == nil {
		return nil, errors.New("voucher validator not initialised")
	}

	seen := make(map[string]struct{}, len(proposed))
	out := make([]ValidatedVoucher, 0, len(proposed))

	for _, input := range proposed {
		voucherID := strings.TrimSpace(input.VoucherID)
		if voucherID == "" {
			return nil, fmt.Errorf("%w: voucher id is required", ErrVoucherInvalid)
		}
		if _, dup := seen[voucherID]; dup {
			return nil, fmt.Errorf("%w: voucher %s listed twice", ErrVoucherInvalid, voucherID)
		}
		seen[voucherID] = struct{}{}

		voucher, err := v.vouchers.FindByID(ctx, voucherID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, fmt.Errorf("%w: voucher %s not found", ErrVoucherInvalid, voucherID)
			}
			return nil, err
		}

		if err := checkVoucherApplicable(voucher, subtotal, now); err != nil {
			return nil, err
		}
		if err := checkDiscountConsistency(voucher, input, orderProductIDs); err != nil {
			return nil, err
		}

		if voucher.UsageLimitPerUser > 0 {
			usage, err := v.vouchers.FindUsage(ctx, voucherID, userID)
			if err != nil {
				return nil, err
			}
			if usage.Times >= voucher.UsageLimitPerUser {
				return nil, fmt.Errorf("%w: voucher %s already used %d of %d times", ErrVoucherUsageExceeded, voucher.Code, usage.Times, voucher.UsageLimitPerUser)
			}
		}
		if voucher.UsageLimit != nil && voucher.UsageCount >= *voucher.UsageLimit {
			return nil, fmt.Errorf("%w: voucher %s has no redemptions left", ErrVoucherUsageExceeded, voucher.Code)
		}

		out = append(out, ValidatedVoucher{
			Used: domain.VoucherUsed{
				VoucherID:       voucher.ID,
				Code:            voucher.Code,
				DiscountAmount:  input.DiscountAmount,
				MaxDiscount:     voucher.MaxDiscount,
				ProductsApplied: input.ProductsApplied,
			},
			Claim: repositories.VoucherClaim{
				VoucherID:         voucher.ID,
				UserID:            userID,
				UsageLimit:        voucher.UsageLimit,
				UsageLimitPerUser: voucher.UsageLimitPerUser,
			},
		})
	}

	return out, nil
}

func checkVoucherApplicable(voucher domain.Voucher, subtotal int64, now time.Time) error {
	if voucher.Destroy || !voucher.IsActive {
		return fmt.Errorf("%w: voucher %s is not active", ErrVoucherInvalid, voucher.Code)
	}
	if !voucher.ExpirationDate.IsZero() && now.After(voucher.ExpirationDate) {
		return fmt.Errorf("%w: voucher %s expired at %s", ErrVoucherInvalid, voucher.Code, voucher.ExpirationDate.Format(time.RFC3339))
	}
	if subtotal < voucher.MinOrderValue {
		return fmt.Errorf("%w: voucher %s requires a subtotal of at least %d, got %d", ErrVoucherMinOrderNotMet, voucher.Code, voucher.MinOrderValue, subtotal)
	}
	return nil
}

func checkDiscountConsistency(voucher domain.Voucher, input VoucherUsedInput, orderProductIDs map[string]struct{}) error {
	if input.DiscountAmount < 0 {
		return fmt.Errorf("%w: voucher %s discount must not be negative", ErrVoucherInvalid, voucher.Code)
	}
	if voucher.MaxDiscount != nil && input.DiscountAmount > *voucher.MaxDiscount {
		return fmt.Errorf("%w: voucher %s discount %d exceeds cap %d", ErrVoucherDiscountExceedsMax, voucher.Code, input.DiscountAmount, *voucher.MaxDiscount)
	}

	applicable := make(map[string]struct{}, len(voucher.ApplicableProducts))
	for _, id := range voucher.ApplicableProducts {
		applicable[id] = struct{}{}
	}

	var sum int64
	for _, applied := range input.ProductsApplied {
		if applied.Discount < 0 {
			return fmt.Errorf("%w: voucher %s per-product discount must not be negative", ErrVoucherInvalid, voucher.Code)
		}
		if _, inOrder := orderProductIDs[applied.ProductID]; !inOrder {
			return fmt.Errorf("%w: voucher %s applies to product %s which is not in the order", ErrVoucherInvalid, voucher.Code, applied.ProductID)
		}
		if len(applicable) > 0 {
			if _, ok := applicable[applied.ProductID]; !ok {
				return fmt.Errorf("%w: voucher %s does not apply to product %s", ErrVoucherInvalid, voucher.Code, applied.ProductID)
			}
		}
		sum += applied.Discount
	}
	if len(input.ProductsApplied) > 0 && sum != input.DiscountAmount {
		return fmt.Errorf("%w: voucher %s discount %d does not match per-product sum %d", ErrVoucherInvalid, voucher.Code, input.DiscountAmount, sum)
	}
	return nil
}
