package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hdshop/api/internal/domain"
	pfirestore "github.com/hdshop/api/internal/platform/firestore"
)

const usersCollection = "users"

type userDocument struct {
	DisplayName string `firestore:"displayName,omitempty"`
	Email       string `firestore:"email,omitempty"`
	Avatar      string `firestore:"avatar,omitempty"`
}

// UserRepository resolves user summaries for order listings.
type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		users:    pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil),
	}, nil
}

// FindByIDs fetches user summaries in one batch read. Unknown IDs are absent from the result.
func (r *UserRepository) FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.UserSummary, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("user repository not initialised")
	}

	seen := make(map[string]struct{}, len(userIDs))
	refs := make([]*firestore.DocumentRef, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.users.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return map[string]domain.UserSummary{}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("users.get_all", err)
	}

	out := make(map[string]domain.UserSummary, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Exists() {
			continue
		}
		var doc userDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore users decode %s: %w", snapshot.Ref.ID, err)
		}
		out[snapshot.Ref.ID] = domain.UserSummary{
			ID:          snapshot.Ref.ID,
			DisplayName: doc.DisplayName,
			Email:       doc.Email,
			Avatar:      doc.Avatar,
		}
	}
	return out, nil
}
