package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

// Document is a decoded Firestore document together with its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
	ReadTime   time.Time
}

// MutationResult captures the update timestamp returned by Firestore mutations.
type MutationResult struct {
	UpdateTime time.Time
}

// Encoder serialises the typed entity prior to persistence.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder hydrates the typed entity from a snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises a collection query before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository wraps one collection with typed reads, writes, and queries.
// Pass nil encode/decode to use the Firestore struct codec directly.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository constructs a BaseRepository bound to a collection.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = func(_ context.Context, value T) (any, error) { return value, nil }
	}
	if decode == nil {
		decode = func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
			var target T
			err := snap.DataTo(&target)
			return target, err
		}
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) (MutationResult, error) {
	doc, payload, err := r.prepareWrite(ctx, id, value)
	if err != nil {
		return MutationResult{}, err
	}
	result, err := doc.Set(ctx, payload, opts...)
	if err != nil {
		return MutationResult{}, WrapError(r.op("set"), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

// Create inserts the value under the provided document ID, failing when the document exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) (MutationResult, error) {
	doc, payload, err := r.prepareWrite(ctx, id, value)
	if err != nil {
		return MutationResult{}, err
	}
	result, err := doc.Create(ctx, payload)
	if err != nil {
		return MutationResult{}, WrapError(r.op("create"), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

// Update applies partial updates to the document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, opts ...firestore.Precondition) (MutationResult, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	result, err := doc.Update(ctx, updates, opts...)
	if err != nil {
		return MutationResult{}, WrapError(r.op("update"), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

// Get fetches the document by ID and decodes it into the typed entity.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.toDocument(ctx, snapshot)
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	query, err := r.buildQuery(ctx, build)
	if err != nil {
		return nil, err
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.toDocument(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Count returns the number of documents matching the query using a server-side aggregation.
func (r *BaseRepository[T]) Count(ctx context.Context, build QueryBuilder) (int64, error) {
	query, err := r.buildQuery(ctx, build)
	if err != nil {
		return 0, err
	}

	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, WrapError(r.op("count"), err)
	}
	raw, ok := results["total"]
	if !ok {
		return 0, WrapError(r.op("count"), errors.New("firestore: aggregation result missing"))
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, WrapError(r.op("count"), fmt.Errorf("firestore: unexpected aggregation result type %T", raw))
	}
	return value.GetIntegerValue(), nil
}

// DocumentRef exposes the underlying document reference for transactional reads and writes.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return r.documentRef(ctx, id)
}

func (r *BaseRepository[T]) prepareWrite(ctx context.Context, id string, value T) (*firestore.DocumentRef, any, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	payload, err := r.encode(ctx, value)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	return doc, payload, nil
}

func (r *BaseRepository[T]) buildQuery(ctx context.Context, build QueryBuilder) (firestore.Query, error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	return query, nil
}

func (r *BaseRepository[T]) toDocument(ctx context.Context, snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snapshot)
	if err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
		ReadTime:   snapshot.ReadTime,
	}, nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return name + "." + strings.ToLower(action)
}
