package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hdshop/api/internal/domain"
)

func validatorVoucher(mutate func(*domain.Voucher)) domain.Voucher {
	max := int64(150000)
	limit := 100
	voucher := domain.Voucher{
		ID:                "vch-1",
		Code:              "SALE10",
		DiscountType:      domain.DiscountTypeFixed,
		DiscountValue:     100000,
		MinOrderValue:     500000,
		MaxDiscount:       &max,
		ExpirationDate:    fixedTime.Add(24 * time.Hour),
		IsActive:          true,
		UsageLimit:        &limit,
		UsageLimitPerUser: 2,
	}
	if mutate != nil {
		mutate(&voucher)
	}
	return voucher
}

func validatorRepo(voucher domain.Voucher) *stubVoucherRepo {
	return &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return voucher, nil
		},
	}
}

func proposedInput() []VoucherUsedInput {
	return []VoucherUsedInput{
		{
			VoucherID:       "vch-1",
			DiscountAmount:  100000,
			ProductsApplied: []domain.AppliedDiscount{{ProductID: "prod-1", Discount: 100000}},
		},
	}
}

var orderProducts = map[string]struct{}{"prod-1": {}}

func TestValidateAcceptsValidVoucher(t *testing.T) {
	validator, err := NewVoucherValidator(validatorRepo(validatorVoucher(nil)))
	if err != nil {
		t.Fatalf("NewVoucherValidator: %v", err)
	}

	out, err := validator.Validate(context.Background(), "user-1", 1000000, orderProducts, proposedInput(), fixedTime)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d validated vouchers, want 1", len(out))
	}
	if out[0].Used.Code != "SALE10" || out[0].Used.DiscountAmount != 100000 {
		t.Errorf("Used = %+v", out[0].Used)
	}
	claim := out[0].Claim
	if claim.VoucherID != "vch-1" || claim.UserID != "user-1" || claim.UsageLimitPerUser != 2 {
		t.Errorf("Claim = %+v", claim)
	}
	if claim.UsageLimit == nil || *claim.UsageLimit != 100 {
		t.Errorf("Claim.UsageLimit = %v, want 100", claim.UsageLimit)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name     string
		voucher  domain.Voucher
		subtotal int64
		input    []VoucherUsedInput
		want     error
	}{
		{
			name:     "inactive",
			voucher:  validatorVoucher(func(v *domain.Voucher) { v.IsActive = false }),
			subtotal: 1000000,
			input:    proposedInput(),
			want:     ErrVoucherInvalid,
		},
		{
			name:     "soft deleted",
			voucher:  validatorVoucher(func(v *domain.Voucher) { v.Destroy = true }),
			subtotal: 1000000,
			input:    proposedInput(),
			want:     ErrVoucherInvalid,
		},
		{
			name:     "expired",
			voucher:  validatorVoucher(func(v *domain.Voucher) { v.ExpirationDate = fixedTime.Add(-time.Minute) }),
			subtotal: 1000000,
			input:    proposedInput(),
			want:     ErrVoucherInvalid,
		},
		{
			name:     "below minimum order value",
			voucher:  validatorVoucher(nil),
			subtotal: 499999,
			input:    proposedInput(),
			want:     ErrVoucherMinOrderNotMet,
		},
		{
			name:     "discount over cap",
			voucher:  validatorVoucher(nil),
			subtotal: 1000000,
			input: []VoucherUsedInput{{
				VoucherID:       "vch-1",
				DiscountAmount:  150001,
				ProductsApplied: []domain.AppliedDiscount{{ProductID: "prod-1", Discount: 150001}},
			}},
			want: ErrVoucherDiscountExceedsMax,
		},
		{
			name:     "applied product not in order",
			voucher:  validatorVoucher(nil),
			subtotal: 1000000,
			input: []VoucherUsedInput{{
				VoucherID:       "vch-1",
				DiscountAmount:  100000,
				ProductsApplied: []domain.AppliedDiscount{{ProductID: "prod-9", Discount: 100000}},
			}},
			want: ErrVoucherInvalid,
		},
		{
			name: "applied product outside applicable list",
			voucher: validatorVoucher(func(v *domain.Voucher) {
				v.ApplicableProducts = []string{"prod-2"}
			}),
			subtotal: 1000000,
			input:    proposedInput(),
			want:     ErrVoucherInvalid,
		},
		{
			name:     "per product sum mismatch",
			voucher:  validatorVoucher(nil),
			subtotal: 1000000,
			input: []VoucherUsedInput{{
				VoucherID:       "vch-1",
				DiscountAmount:  100000,
				ProductsApplied: []domain.AppliedDiscount{{ProductID: "prod-1", Discount: 60000}},
			}},
			want: ErrVoucherInvalid,
		},
		{
			name:     "global usage exhausted",
			voucher:  validatorVoucher(func(v *domain.Voucher) { v.UsageCount = 100 }),
			subtotal: 1000000,
			input:    proposedInput(),
			want:     ErrVoucherUsageExceeded,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator, err := NewVoucherValidator(validatorRepo(tc.voucher))
			if err != nil {
				t.Fatalf("NewVoucherValidator: %v", err)
			}
			_, err = validator.Validate(context.Background(), "user-1", tc.subtotal, orderProducts, tc.input, fixedTime)
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidatePerUserCeiling(t *testing.T) {
	times := 0
	repo := validatorRepo(validatorVoucher(nil))
	repo.findUsageFn = func(_ context.Context, voucherID, userID string) (domain.VoucherUsage, error) {
		return domain.VoucherUsage{VoucherID: voucherID, UserID: userID, Times: times}, nil
	}
	validator, err := NewVoucherValidator(repo)
	if err != nil {
		t.Fatalf("NewVoucherValidator: %v", err)
	}

	// Limit is 2: one prior use passes, two prior uses is the ceiling.
	times = 1
	if _, err := validator.Validate(context.Background(), "user-1", 1000000, orderProducts, proposedInput(), fixedTime); err != nil {
		t.Fatalf("Validate at one prior use: %v", err)
	}
	times = 2
	if _, err := validator.Validate(context.Background(), "user-1", 1000000, orderProducts, proposedInput(), fixedTime); !errors.Is(err, ErrVoucherUsageExceeded) {
		t.Errorf("Validate at the limit: error = %v, want ErrVoucherUsageExceeded", err)
	}
}

func TestValidateUnknownAndDuplicateVouchers(t *testing.T) {
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return domain.Voucher{}, &stubNotFoundError{msg: "missing"}
		},
	}
	validator, err := NewVoucherValidator(repo)
	if err != nil {
		t.Fatalf("NewVoucherValidator: %v", err)
	}

	if _, err := validator.Validate(context.Background(), "user-1", 1000000, orderProducts, proposedInput(), fixedTime); !errors.Is(err, ErrVoucherInvalid) {
		t.Errorf("unknown voucher error = %v, want ErrVoucherInvalid", err)
	}

	dup := append(proposedInput(), proposedInput()...)
	validator, _ = NewVoucherValidator(validatorRepo(validatorVoucher(nil)))
	if _, err := validator.Validate(context.Background(), "user-1", 1000000, orderProducts, dup, fixedTime); !errors.Is(err, ErrVoucherInvalid) {
		t.Errorf("duplicate voucher error = %v, want ErrVoucherInvalid", err)
	}
}
