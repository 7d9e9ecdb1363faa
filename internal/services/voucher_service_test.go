package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hdshop/api/internal/domain"
)

func newTestVoucherService(t *testing.T, vouchers *stubVoucherRepo) VoucherService {
	t.Helper()
	svc, err := NewVoucherService(VoucherServiceDeps{
		Vouchers:    vouchers,
		Clock:       fixedClock,
		IDGenerator: seqIDGen(),
	})
	if err != nil {
		t.Fatalf("NewVoucherService: %v", err)
	}
	return svc
}

func freeCodeRepo() *stubVoucherRepo {
	return &stubVoucherRepo{
		findByCodeFn: func(context.Context, string) (domain.Voucher, error) {
			return domain.Voucher{}, &stubNotFoundError{msg: "no such code"}
		},
	}
}

func TestVoucherCreate(t *testing.T) {
	var saved domain.Voucher
	repo := freeCodeRepo()
	repo.insertFn = func(_ context.Context, voucher domain.Voucher) (domain.Voucher, error) {
		saved = voucher
		return voucher, nil
	}
	svc := newTestVoucherService(t, repo)

	got, err := svc.Create(context.Background(), CreateVoucherCommand{
		Code:              "  sale10 ",
		Description:       "10k off",
		DiscountType:      domain.DiscountTypeFixed,
		DiscountValue:     10000,
		MinOrderValue:     100000,
		ExpirationDate:    fixedTime.Add(48 * time.Hour),
		UsageLimitPerUser: 1,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Code != "SALE10" {
		t.Errorf("Code = %q, want upper-cased SALE10", got.Code)
	}
	if !got.IsActive {
		t.Error("new vouchers must start active")
	}
	if saved.ID == "" || saved.CreatedAt != fixedTime {
		t.Errorf("saved = %+v, want generated id and clock timestamp", saved)
	}
}

func TestVoucherCreateCodeTaken(t *testing.T) {
	repo := &stubVoucherRepo{
		findByCodeFn: func(context.Context, string) (domain.Voucher, error) {
			return domain.Voucher{ID: "vch-existing", Code: "SALE10"}, nil
		},
	}
	svc := newTestVoucherService(t, repo)

	_, err := svc.Create(context.Background(), CreateVoucherCommand{
		Code:          "SALE10",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 10000,
	})
	if !errors.Is(err, ErrVoucherCodeTaken) {
		t.Errorf("Create error = %v, want ErrVoucherCodeTaken", err)
	}
}

func TestVoucherCreateValidation(t *testing.T) {
	svc := newTestVoucherService(t, freeCodeRepo())

	cases := []struct {
		name string
		cmd  CreateVoucherCommand
	}{
		{"empty code", CreateVoucherCommand{DiscountType: domain.DiscountTypeFixed, DiscountValue: 1}},
		{"unknown discount type", CreateVoucherCommand{Code: "X", DiscountType: "bogus", DiscountValue: 1}},
		{"negative value", CreateVoucherCommand{Code: "X", DiscountType: domain.DiscountTypeFixed, DiscountValue: -1}},
		{"percent over 100", CreateVoucherCommand{Code: "X", DiscountType: domain.DiscountTypePercent, DiscountValue: 101}},
		{"negative min order", CreateVoucherCommand{Code: "X", DiscountType: domain.DiscountTypeFixed, DiscountValue: 1, MinOrderValue: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.cmd); !errors.Is(err, ErrVoucherInvalidInput) {
				t.Errorf("error = %v, want ErrVoucherInvalidInput", err)
			}
		})
	}
}

func TestVoucherUpdatePartialFields(t *testing.T) {
	stored := validatorVoucher(nil)
	var updated domain.Voucher
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) { return stored, nil },
		updateFn: func(_ context.Context, voucher domain.Voucher) (domain.Voucher, error) {
			updated = voucher
			return voucher, nil
		},
	}
	svc := newTestVoucherService(t, repo)

	newValue := int64(50000)
	inactive := false
	_, err := svc.Update(context.Background(), UpdateVoucherCommand{
		VoucherID:     "vch-1",
		DiscountValue: &newValue,
		IsActive:      &inactive,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.DiscountValue != 50000 || updated.IsActive {
		t.Errorf("updated = %+v, want new discount value and inactive", updated)
	}
	if updated.Code != stored.Code || updated.MinOrderValue != stored.MinOrderValue {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if updated.UpdatedAt == nil || !updated.UpdatedAt.Equal(fixedTime) {
		t.Errorf("UpdatedAt = %v, want clock timestamp", updated.UpdatedAt)
	}
}

func TestVoucherUpdateDeletedVoucher(t *testing.T) {
	repo := &stubVoucherRepo{
		findFn: func(context.Context, string) (domain.Voucher, error) {
			return validatorVoucher(func(v *domain.Voucher) { v.Destroy = true }), nil
		},
	}
	svc := newTestVoucherService(t, repo)

	if _, err := svc.Update(context.Background(), UpdateVoucherCommand{VoucherID: "vch-1"}); !errors.Is(err, ErrVoucherNotFound) {
		t.Errorf("Update error = %v, want ErrVoucherNotFound", err)
	}
}

func TestVoucherDelete(t *testing.T) {
	var deletedID string
	var deletedAt time.Time
	repo := &stubVoucherRepo{
		softDeleteFn: func(_ context.Context, voucherID string, at time.Time) error {
			deletedID = voucherID
			deletedAt = at
			return nil
		},
	}
	svc := newTestVoucherService(t, repo)

	if err := svc.Delete(context.Background(), "vch-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deletedID != "vch-1" || !deletedAt.Equal(fixedTime) {
		t.Errorf("SoftDelete(%q, %v)", deletedID, deletedAt)
	}
	if err := svc.Delete(context.Background(), "  "); !errors.Is(err, ErrVoucherInvalidInput) {
		t.Errorf("Delete blank id error = %v, want ErrVoucherInvalidInput", err)
	}
}

func TestVoucherGetByCode(t *testing.T) {
	active := validatorVoucher(nil)
	repo := &stubVoucherRepo{
		findByCodeFn: func(context.Context, string) (domain.Voucher, error) { return active, nil },
	}
	svc := newTestVoucherService(t, repo)

	got, err := svc.GetByCode(context.Background(), "SALE10")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if got.ID != active.ID {
		t.Errorf("got %+v", got)
	}

	for _, tc := range []struct {
		name    string
		voucher domain.Voucher
	}{
		{"inactive", validatorVoucher(func(v *domain.Voucher) { v.IsActive = false })},
		{"expired", validatorVoucher(func(v *domain.Voucher) { v.ExpirationDate = fixedTime.Add(-time.Hour) })},
		{"soft deleted", validatorVoucher(func(v *domain.Voucher) { v.Destroy = true })},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubVoucherRepo{
				findByCodeFn: func(context.Context, string) (domain.Voucher, error) { return tc.voucher, nil },
			}
			svc := newTestVoucherService(t, repo)
			if _, err := svc.GetByCode(context.Background(), "SALE10"); !errors.Is(err, ErrVoucherNotFound) {
				t.Errorf("GetByCode error = %v, want ErrVoucherNotFound", err)
			}
		})
	}
}
