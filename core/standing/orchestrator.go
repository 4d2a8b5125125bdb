package standing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/student"
)

type (
	StudentSource interface {
		GetStudent(ctx context.Context, id string) (student.Student, error)
	}

	CollegeResolver interface {
		CollegeOf(ctx context.Context, id institution.DepartmentID) (institution.CollegeID, error)
	}
)

// Orchestrator rebuilds standings from source data. Recompute is idempotent:
// re-running it for a key converges to the same record, so it doubles as the repair mechanism.
type Orchestrator struct {
	repo      Repository
	assembler *Assembler
	resolver  *Resolver
	students  StudentSource
	colleges  CollegeResolver
	locker    KeyLocker
	logger    core.Logger
	metrics   *Metrics
}

type OrchestratorDeps struct {
	Repo      Repository
	Assembler *Assembler
	Resolver  *Resolver
	Students  StudentSource
	Colleges  CollegeResolver
	Locker    KeyLocker // defaults to a LocalLocker
	Logger    core.Logger
	Metrics   *Metrics
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Logger == nil {
		deps.Logger = core.NopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Orchestrator{
		repo:      deps.Repo,
		assembler: deps.Assembler,
		resolver:  deps.Resolver,
		students:  deps.Students,
		colleges:  deps.Colleges,
		locker:    deps.Locker,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
}

// Recompute refreshes the standing of every distinct key once, followed by the later
// standings of the same students: each term is seeded from the cumulative totals before it,
// so keys are processed in chronological order.
// A failing key does not stop the others; the first error is returned.
func (o *Orchestrator) Recompute(ctx context.Context, keys ...grading.Key) error {
	var firstErr error
	fail := func(key grading.Key, err error) {
		o.metrics.recomputes.WithLabelValues(outcomeFailed).Inc()
		o.logger.Error("recomputing standing", err, map[string]interface{}{"key": key.String()})
		if firstErr == nil {
			firstErr = errors.Wrapf(err, "recomputing %s", key)
		}
	}
	for _, key := range o.withLaterTerms(ctx, grading.UniqueKeys(keys), fail) {
		if _, err := o.RecomputeKey(ctx, key); err != nil {
			fail(key, err)
		}
	}
	return firstErr
}

// withLaterTerms adds to keys the existing standings that come after each student's earliest key.
// Invalid keys are kept first, RecomputeKey reports them.
func (o *Orchestrator) withLaterTerms(ctx context.Context, keys []grading.Key, fail func(grading.Key, error)) []grading.Key {
	var (
		invalid  []grading.Key
		students []string
		byID     = make(map[string][]grading.Key)
	)
	for _, key := range keys {
		if key.Validate() != nil {
			invalid = append(invalid, key)
			continue
		}
		if _, ok := byID[key.StudentID]; !ok {
			students = append(students, key.StudentID)
		}
		byID[key.StudentID] = append(byID[key.StudentID], key)
	}

	out := invalid
	for _, id := range students {
		own := byID[id]
		sort.SliceStable(own, func(i, j int) bool { return keyBefore(own[i], own[j]) })

		earliest, _ := own[0].Term()
		later, err := o.repo.ListAfter(ctx, id, earliest)
		if err != nil {
			fail(own[0], errors.Wrap(err, "listing later standings"))
		}
		for _, rec := range later {
			own = append(own, rec.Key)
		}
		own = grading.UniqueKeys(own)
		sort.SliceStable(own, func(i, j int) bool { return keyBefore(own[i], own[j]) })
		out = append(out, own...)
	}
	return out
}

// keyBefore orders valid keys by (year, semester, level).
func keyBefore(a, b grading.Key) bool {
	ta, _ := a.Term()
	tb, _ := b.Term()
	if ta != tb {
		return ta.Before(tb)
	}
	return a.Level.Rank() < b.Level.Rank()
}

// RecomputeKey rebuilds the standing of key. It returns the zero Record and no error
// when the key no longer has any attempt and its standing was removed.
func (o *Orchestrator) RecomputeKey(ctx context.Context, key grading.Key) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	unlock, err := o.locker.Lock(ctx, "standing:"+key.String())
	if err != nil {
		return Record{}, errors.Wrap(err, "locking key")
	}
	defer unlock()

	start := time.Now()
	defer func() { o.metrics.recomputeSeconds.Observe(time.Since(start).Seconds()) }()

	attempts, err := o.assembler.Assemble(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if len(attempts) == 0 {
		if err = o.repo.DeleteByKey(ctx, key); err != nil && errors.Cause(err) != ErrNotFound {
			return Record{}, errors.Wrap(err, "deleting standing")
		}
		o.metrics.recomputes.WithLabelValues(outcomeDeleted).Inc()
		return Record{}, nil
	}

	prev, err := o.resolver.Previous(ctx, key)
	if err != nil {
		return Record{}, err
	}
	stud, err := o.students.GetStudent(ctx, key.StudentID)
	if err != nil {
		return Record{}, errors.Wrap(err, "finding student")
	}
	var college institution.CollegeID
	if stud.DepartmentID != 0 {
		if college, err = o.colleges.CollegeOf(ctx, stud.DepartmentID); err != nil {
			return Record{}, errors.Wrap(err, "resolving college")
		}
	}
	term, _ := key.Term()

	rec := Record{
		Key:          key,
		Year:         term.Year,
		DepartmentID: stud.DepartmentID,
		CollegeID:    college,
		Standing:     grading.Compute(attempts, prev),
		Previous:     prev,
	}

	existing, err := o.repo.GetRecordByKey(ctx, key)
	switch {
	case err == nil:
		if existing.SameMetrics(rec) {
			o.metrics.recomputes.WithLabelValues(outcomeUnchanged).Inc()
			return existing, nil
		}
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	case errors.Cause(err) == ErrNotFound:
		rec.ID = uuid.NewString()
		rec.CreatedAt = time.Now().UTC()
	default:
		return Record{}, errors.Wrap(err, "finding standing")
	}
	rec.UpdatedAt = time.Now().UTC()

	if rec, err = o.repo.UpsertMetrics(ctx, rec); err != nil {
		return Record{}, errors.Wrap(err, "saving standing")
	}
	o.metrics.recomputes.WithLabelValues(outcomeUpserted).Inc()
	return rec, nil
}
