package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/standing"
)

type standingRepository struct {
	db *DB
}

var _ standing.Repository = (*standingRepository)(nil)

func NewStandingRepository(db *DB) *standingRepository {
	return &standingRepository{db: db}
}

func (repo *standingRepository) GetRecord(ctx context.Context, id string) (standing.Record, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if rec, ok := st.standings[id]; ok {
		return rec, nil
	}
	return standing.Record{}, standing.ErrNotFound
}

func (repo *standingRepository) GetRecordByKey(ctx context.Context, key grading.Key) (standing.Record, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if rec, ok := findByKey(st, key); ok {
		return rec, nil
	}
	return standing.Record{}, standing.ErrNotFound
}

func findByKey(st *state, key grading.Key) (standing.Record, bool) {
	for _, rec := range st.standings {
		if rec.Key == key {
			return rec, true
		}
	}
	return standing.Record{}, false
}

func (repo *standingRepository) LatestBefore(ctx context.Context, studentID string, term grading.Term) (standing.Record, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	var (
		latest standing.Record
		found  bool
	)
	for _, rec := range st.standings {
		if rec.StudentID != studentID || !rec.Term().Before(term) {
			continue
		}
		if !found || laterThan(rec, latest) {
			latest, found = rec, true
		}
	}
	if !found {
		return standing.Record{}, standing.ErrNotFound
	}
	return latest, nil
}

func (repo *standingRepository) ListAfter(ctx context.Context, studentID string, term grading.Term) ([]standing.Record, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	recs := make([]standing.Record, 0)
	for _, rec := range st.standings {
		if rec.StudentID == studentID && term.Before(rec.Term()) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return laterThan(recs[j], recs[i]) })
	return recs, nil
}

// laterThan orders records by (year, semester, level).
func laterThan(a, b standing.Record) bool {
	if a.Term() != b.Term() {
		return b.Term().Before(a.Term())
	}
	return a.Level.Rank() > b.Level.Rank()
}

func (repo *standingRepository) UpsertMetrics(ctx context.Context, rec standing.Record) (standing.Record, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	orig, ok := findByKey(st, rec.Key)
	if !ok {
		rec.Officer, rec.HOD, rec.Dean = standing.ApprovalSnapshot{}, standing.ApprovalSnapshot{}, standing.ApprovalSnapshot{}
		st.standings[rec.ID] = rec
		return rec, nil
	}
	orig.Year = rec.Year
	orig.DepartmentID = rec.DepartmentID
	orig.CollegeID = rec.CollegeID
	orig.Standing = rec.Standing
	orig.Previous = rec.Previous
	orig.UpdatedAt = rec.UpdatedAt
	st.standings[orig.ID] = orig
	return orig, nil
}

func (repo *standingRepository) DeleteByKey(ctx context.Context, key grading.Key) error {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	rec, ok := findByKey(st, key)
	if !ok {
		return standing.ErrNotFound
	}
	delete(st.standings, rec.ID)
	return nil
}

func (repo *standingRepository) UpdateApproval(ctx context.Context, id string, stage standing.Stage, snap standing.ApprovalSnapshot) (standing.Record, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	rec, ok := st.standings[id]
	if !ok {
		return standing.Record{}, standing.ErrNotFound
	}
	rec.SetApproval(stage, snap)
	if snap.UpdatedAt.Valid {
		rec.UpdatedAt = snap.UpdatedAt.Time
	}
	st.standings[id] = rec
	return rec, nil
}

func (repo *standingRepository) QueryPending(ctx context.Context, filter standing.PendingFilter) ([]standing.Record, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	recs := make([]standing.Record, 0)
	for _, rec := range st.standings {
		if filter.Matches(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

func (repo *standingRepository) CountBySession(ctx context.Context, session string) ([]standing.SemesterCount, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	bySemester := make(map[grading.Semester]*standing.SemesterCount)
	for _, rec := range st.standings {
		if rec.Session != session {
			continue
		}
		c, ok := bySemester[rec.Semester]
		if !ok {
			c = &standing.SemesterCount{Semester: rec.Semester}
			bySemester[rec.Semester] = c
		}
		c.Total++
		if rec.FullyApproved() {
			c.Approved++
		}
	}

	counts := make([]standing.SemesterCount, 0, len(bySemester))
	for _, c := range bySemester {
		counts = append(counts, *c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Semester.Ordinal() < counts[j].Semester.Ordinal() })
	return counts, nil
}
