package store

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCountLimit caps the documents counted per collection.
const DefaultCountLimit = 10000

type CollectionStat struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
	// Truncated is set when the count stopped at the limit.
	Truncated bool `json:"truncated,omitempty"`
}

type Statter interface {
	Collections(ctx context.Context) ([]CollectionStat, error)
}

func New(firestore *firestore.Client) Store {
	return Store{
		firestore: firestore,
		limit:     DefaultCountLimit,
	}
}

type Store struct {
	firestore *firestore.Client
	limit     int
}

// Collections counts the documents of every top level collection.
func (s *Store) Collections(ctx context.Context) ([]CollectionStat, error) {
	var out []CollectionStat

	it := s.firestore.Collections(ctx)
	for {
		col, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, errors.Wrap(err, "list collections")
		}

		stat, err := s.count(ctx, col)
		if err != nil {
			return nil, err
		}
		out = append(out, stat)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) count(ctx context.Context, col *firestore.CollectionRef) (CollectionStat, error) {
	stat := CollectionStat{Name: col.ID}

	refs := col.DocumentRefs(ctx)
	for {
		_, err := refs.Next()
		if errors.Is(err, iterator.Done) {
			return stat, nil
		}
		if err != nil {
			return stat, errors.Wrapf(err, "count %s", col.ID)
		}
		stat.Documents++
		if stat.Documents >= s.limit {
			stat.Truncated = true
			return stat, nil
		}
	}
}
