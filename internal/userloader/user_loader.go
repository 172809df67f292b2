package userloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/calql/internal/domain"
	"github.com/rpattn/calql/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// UserLoader batches user lookups within a request so that grant and
// history listings resolve editors and grantees in one query.
type UserLoader struct {
	Loader *dataloader.Loader
}

func NewUserLoader(repo repository.UserRepository) *UserLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid UUID: %w", err)}}
			}
			ids[i] = id
		}

		users, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		userMap := make(map[uuid.UUID]domain.User)
		for _, u := range users {
			userMap[u.ID] = u
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if u, ok := userMap[id]; ok {
				results[i] = &dataloader.Result{Data: u}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &UserLoader{Loader: loader}
}

// Load resolves a single user through the batcher.
func (l *UserLoader) Load(ctx context.Context, id uuid.UUID) (domain.User, bool, error) {
	value, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.User{}, false, err
	}
	user, ok := value.(domain.User)
	return user, ok, nil
}
