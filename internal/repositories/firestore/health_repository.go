package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hdshop/api/internal/platform/firestore"
)

// HealthRepository verifies Firestore connectivity for readiness probes.
type HealthRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewHealthRepository constructs a Firestore-backed health repository.
func NewHealthRepository(provider *pfirestore.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	return &HealthRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil),
	}, nil
}

// Check issues a cheap read against the counters collection to confirm the
// backend is reachable. An empty collection still succeeds.
func (r *HealthRepository) Check(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return errors.New("health repository not initialised")
	}
	_, err := r.counters.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Limit(1)
	})
	return err
}
