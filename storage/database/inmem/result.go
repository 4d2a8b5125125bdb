package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/result"
)

type resultRepository struct {
	db *DB
}

var _ result.Repository = (*resultRepository)(nil)

func NewResultRepository(db *DB) *resultRepository {
	return &resultRepository{db: db}
}

func (repo *resultRepository) CreateResult(ctx context.Context, r result.Result) (result.Result, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	for _, other := range st.results {
		if other.StudentID == r.StudentID && other.CourseID == r.CourseID &&
			other.Session == r.Session && other.Semester == r.Semester {
			return result.Result{}, result.ErrExists
		}
	}
	st.results[r.ID] = r
	return r, nil
}

func (repo *resultRepository) GetResult(ctx context.Context, id string) (result.Result, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if r, ok := st.results[id]; ok {
		return r, nil
	}
	return result.Result{}, result.ErrNotFound
}

func (repo *resultRepository) QueryResults(ctx context.Context, filter result.Filter) ([]result.Result, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	var students map[string]bool
	if filter.StudentIDs != nil {
		students = make(map[string]bool, len(filter.StudentIDs))
		for _, id := range filter.StudentIDs {
			students[id] = true
		}
	}

	results := make([]result.Result, 0)
	for _, r := range st.results {
		switch {
		case filter.StudentID != "" && r.StudentID != filter.StudentID,
			students != nil && !students[r.StudentID],
			filter.CourseID != "" && r.CourseID != filter.CourseID,
			filter.Session != "" && r.Session != filter.Session,
			filter.Semester != "" && r.Semester != filter.Semester,
			filter.Level != "" && r.Level != filter.Level:
			continue
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	return results, nil
}

func (repo *resultRepository) UpdateScores(ctx context.Context, r result.Result) (result.Result, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	orig, ok := st.results[r.ID]
	if !ok {
		return result.Result{}, result.ErrNotFound
	}
	orig.CA, orig.Exam, orig.Total, orig.Grade = r.CA, r.Exam, r.Total, r.Grade
	orig.Moderation = r.Moderation
	orig.UpdatedAt = r.UpdatedAt
	st.results[r.ID] = orig
	return orig, nil
}

func (repo *resultRepository) UpdateModeration(ctx context.Context, r result.Result) (result.Result, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	orig, ok := st.results[r.ID]
	if !ok {
		return result.Result{}, result.ErrNotFound
	}
	orig.Total, orig.Grade = r.Total, r.Grade
	orig.Moderation = r.Moderation
	orig.UpdatedAt = r.UpdatedAt
	st.results[r.ID] = orig
	return orig, nil
}

func (repo *resultRepository) DeleteResults(ctx context.Context, ids ...string) ([]result.Result, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	deleted := make([]result.Result, 0, len(ids))
	for _, id := range ids {
		if r, ok := st.results[id]; ok {
			deleted = append(deleted, r)
			delete(st.results, id)
		}
	}
	return deleted, nil
}

func (repo *resultRepository) DeleteCourseResults(ctx context.Context, courseID, session string, semester grading.Semester) ([]result.Result, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	deleted := make([]result.Result, 0)
	for id, r := range st.results {
		if r.CourseID == courseID && r.Session == session && r.Semester == semester {
			deleted = append(deleted, r)
			delete(st.results, id)
		}
	}
	return deleted, nil
}
