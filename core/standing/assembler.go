package standing

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/student"
)

type (
	RegistrationSource interface {
		QueryRegistrations(ctx context.Context, filter student.RegistrationFilter) ([]student.Registration, error)
		GetCoursesByID(ctx context.Context, ids ...string) ([]student.Course, error)
	}

	ResultSource interface {
		QueryResults(ctx context.Context, filter result.Filter) ([]result.Result, error)
	}
)

// Assembler reconciles registrations and recorded results into the attempted courses of a term.
type Assembler struct {
	registrations RegistrationSource
	results       ResultSource
}

func NewAssembler(registrations RegistrationSource, results ResultSource) *Assembler {
	return &Assembler{registrations: registrations, results: results}
}

// Assemble returns the attempts of key's term:
//   - a registered course with a result counts with the result's unit and grade;
//   - a registered course without a result counts as failed (F) with the course unit;
//   - a result without registration counts only when the term has no registrations at all.
func (a *Assembler) Assemble(ctx context.Context, key grading.Key) ([]grading.Attempt, error) {
	regs, err := a.registrations.QueryRegistrations(ctx, student.KeyFilter(key))
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	results, err := a.results.QueryResults(ctx, result.KeyFilter(key))
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}

	if len(regs) == 0 {
		attempts := make([]grading.Attempt, 0, len(results))
		for _, r := range results {
			attempts = append(attempts, r.Attempt())
		}
		return attempts, nil
	}

	byCourse := make(map[string]result.Result, len(results))
	for _, r := range results {
		byCourse[r.CourseID] = r
	}

	courseIDs := make([]string, 0, len(regs))
	seen := make(map[string]bool, len(regs))
	for _, reg := range regs {
		if !seen[reg.CourseID] {
			seen[reg.CourseID] = true
			courseIDs = append(courseIDs, reg.CourseID)
		}
	}
	sort.Strings(courseIDs)

	var unscored []string
	attempts := make([]grading.Attempt, 0, len(courseIDs))
	for _, id := range courseIDs {
		if r, ok := byCourse[id]; ok {
			attempts = append(attempts, r.Attempt())
		} else {
			unscored = append(unscored, id)
		}
	}
	if len(unscored) == 0 {
		return attempts, nil
	}

	courses, err := a.registrations.GetCoursesByID(ctx, unscored...)
	if err != nil {
		return nil, errors.Wrap(err, "finding registered courses")
	}
	if len(courses) != len(unscored) {
		// an unscored registration counts as a failure; without its unit the term would be understated
		return nil, student.ErrCourseNotFound
	}
	for _, c := range courses {
		attempts = append(attempts, grading.Attempt{Unit: c.Unit, Grade: grading.GradeF})
	}
	return attempts, nil
}
