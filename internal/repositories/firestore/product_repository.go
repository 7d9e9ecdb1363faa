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

const productsCollection = "products"

type sizeVariantDocument struct {
	Size  string `firestore:"size"`
	Stock int64  `firestore:"stock"`
	Price int64  `firestore:"price"`
}

type productDocument struct {
	Title     string                `firestore:"title"`
	Sizes     []sizeVariantDocument `firestore:"sizes"`
	Destroy   bool                  `firestore:"destroy"`
	CreatedAt time.Time             `firestore:"createdAt"`
	UpdatedAt *time.Time            `firestore:"updatedAt,omitempty"`
}

func productFromDocument(id string, doc productDocument) domain.Product {
	sizes := make([]domain.SizeVariant, 0, len(doc.Sizes))
	for _, s := range doc.Sizes {
		sizes = append(sizes, domain.SizeVariant{Size: s.Size, Stock: s.Stock, Price: s.Price})
	}
	return domain.Product{
		ID:        id,
		Title:     doc.Title,
		Sizes:     sizes,
		Destroy:   doc.Destroy,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

// FindByID fetches a single product document.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return productFromDocument(doc.ID, doc.Data), nil
}

// FindByIDs fetches the given products in a single batch read. Missing IDs are
// simply absent from the result map.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return map[string]domain.Product{}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.get_all", err)
	}

	out := make(map[string]domain.Product, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Exists() {
			continue
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore products decode %s: %w", snapshot.Ref.ID, err)
		}
		out[snapshot.Ref.ID] = productFromDocument(snapshot.Ref.ID, doc)
	}
	return out, nil
}

// ReconcileStock applies the stock changes in a single transaction outside the
// order flow, for operator-driven repair. Decrements clamp at zero instead of
// failing so a repair can always complete.
func (r *ProductRepository) ReconcileStock(ctx context.Context, changes []repositories.StockChange, direction domain.StockDirection) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if len(changes) == 0 {
		return nil
	}
	for _, change := range changes {
		if strings.TrimSpace(change.ProductID) == "" || strings.TrimSpace(change.Size) == "" {
			return repositories.NewStockError(repositories.StockErrorInvalidInput, change.ProductID, change.Size, "product id and size are required", nil)
		}
		if change.Quantity <= 0 {
			return repositories.NewStockError(repositories.StockErrorInvalidInput, change.ProductID, change.Size, fmt.Sprintf("quantity must be positive, got %d", change.Quantity), nil)
		}
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, refs, err := readProductsForUpdate(ctx, tx, r.products, changes)
		if err != nil {
			return err
		}
		for _, change := range changes {
			doc := docs[change.ProductID]
			idx := findSizeVariant(doc.Sizes, change.Size)
			if idx < 0 {
				return repositories.NewStockError(repositories.StockErrorVariantMissing, change.ProductID, change.Size, fmt.Sprintf("product %s has no size %q", change.ProductID, change.Size), nil)
			}
			switch direction {
			case domain.StockRestore:
				doc.Sizes[idx].Stock += change.Quantity
			default:
				doc.Sizes[idx].Stock -= change.Quantity
				if doc.Sizes[idx].Stock < 0 {
					doc.Sizes[idx].Stock = 0
				}
			}
			docs[change.ProductID] = doc
		}
		now := time.Now().UTC()
		for id, doc := range docs {
			doc.UpdatedAt = &now
			if err := tx.Set(refs[id], doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return stockErr
		}
		return pfirestore.WrapError("products.reconcile_stock", err)
	}
	return nil
}

// readProductsForUpdate loads each distinct product referenced by the changes inside the transaction.
func readProductsForUpdate(ctx context.Context, tx *firestore.Transaction, products *pfirestore.BaseRepository[productDocument], changes []repositories.StockChange) (map[string]productDocument, map[string]*firestore.DocumentRef, error) {
	docs := make(map[string]productDocument)
	refs := make(map[string]*firestore.DocumentRef)
	for _, change := range changes {
		if _, seen := docs[change.ProductID]; seen {
			continue
		}
		ref, err := products.DocumentRef(ctx, change.ProductID)
		if err != nil {
			return nil, nil, err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil, repositories.NewStockError(repositories.StockErrorInvalidInput, change.ProductID, change.Size, fmt.Sprintf("product %s not found", change.ProductID), err)
			}
			return nil, nil, err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, nil, fmt.Errorf("firestore products decode %s: %w", change.ProductID, err)
		}
		docs[change.ProductID] = doc
		refs[change.ProductID] = ref
	}
	return docs, refs, nil
}

// findSizeVariant returns the index of the first variant whose label matches.
// Duplicate labels resolve to the first entry, matching how order lines were
// recorded when the variant list was last edited.
func findSizeVariant(sizes []sizeVariantDocument, size string) int {
	for i, s := range sizes {
		if s.Size == size {
			return i
		}
	}
	return -1
}
