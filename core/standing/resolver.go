package standing

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core/grading"
)

// Resolver finds the cumulative snapshot a term's standing is seeded from.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Previous returns the cumulative totals of the student's latest standing before key's term,
// or a zero snapshot when there is none.
func (r *Resolver) Previous(ctx context.Context, key grading.Key) (grading.Cumulative, error) {
	term, err := key.Term()
	if err != nil {
		return grading.Cumulative{}, err
	}
	rec, err := r.repo.LatestBefore(ctx, key.StudentID, term)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return grading.Cumulative{}, nil
		}
		return grading.Cumulative{}, errors.Wrap(err, "finding previous standing")
	}
	return rec.Snapshot(), nil
}
