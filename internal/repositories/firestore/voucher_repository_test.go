package firestore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hdshop/api/internal/domain"
	pconfig "github.com/hdshop/api/internal/platform/config"
	pfirestore "github.com/hdshop/api/internal/platform/firestore"
)

// The Firestore client validates writes before issuing any RPC, and it
// rejects merge options combined with struct payloads outright. Update must
// therefore stage a plain full-document replace: with a cancelled context a
// correct write fails with context.Canceled, while a struct-plus-merge write
// would surface the client-side rejection instead of ever reaching the wire.
func TestVoucherRepositoryUpdateStagesFullReplace(t *testing.T) {
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "voucher-write-test",
		EmulatorHost: "127.0.0.1:1",
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	if _, err := provider.Client(context.Background()); err != nil {
		t.Fatalf("provider client: %v", err)
	}

	repo, err := NewVoucherRepository(provider)
	if err != nil {
		t.Fatalf("new voucher repository: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = repo.Update(ctx, domain.Voucher{
		ID:             "vch-1",
		Code:           "SALE10",
		DiscountType:   domain.DiscountTypeFixed,
		DiscountValue:  100000,
		ExpirationDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
	})
	if err == nil {
		t.Fatal("expected the cancelled context to abort the write")
	}
	if strings.Contains(err.Error(), "MergeAll") {
		t.Fatalf("write rejected client-side before the RPC: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
