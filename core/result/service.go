package result

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/student"
)

var (
	errModerationExists   = errors.New("a moderation is already in progress for this result")
	errNoPendingProposal  = errors.New("no pending moderation to approve")
	errIncompleteProposal = errors.New("pending moderation is missing its proposed total, proof or authorizer")
	errNothingToReject    = errors.New("no moderation to reject")

	NowFunc = time.Now // mockable
)

type (
	// Recomputer refreshes the standings of the given keys.
	Recomputer interface {
		Recompute(ctx context.Context, keys ...grading.Key) error
	}

	// StudentDirectory looks up students and course units.
	StudentDirectory interface {
		GetStudent(ctx context.Context, id string) (student.Student, error)
		GetCourse(ctx context.Context, id string) (student.Course, error)
	}

	Service struct {
		repo       Repository
		students   StudentDirectory
		recomputer Recomputer
		logger     core.Logger
	}
)

func NewService(repo Repository, students StudentDirectory, recomputer Recomputer, logger core.Logger) *Service {
	return &Service{
		repo:       repo,
		students:   students,
		recomputer: recomputer,
		logger:     logger,
	}
}

// recompute refreshes the standings of the results' terms, once per distinct key.
// Failures are logged: the score mutation stands and recompute can be re-run for the same keys.
func (svc *Service) recompute(ctx context.Context, results ...Result) {
	if len(results) == 0 {
		return
	}
	keys := make([]grading.Key, 0, len(results))
	for _, r := range results {
		keys = append(keys, r.Key())
	}
	keys = grading.UniqueKeys(keys)
	if err := svc.recomputer.Recompute(ctx, keys...); err != nil {
		svc.logger.Error("recomputing standings", err, map[string]interface{}{"keys": len(keys)})
	}
}

func (svc *Service) Get(ctx context.Context, id string) (Result, error) {
	return svc.repo.GetResult(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter Filter) ([]Result, error) {
	return svc.repo.QueryResults(ctx, filter)
}

func (svc *Service) Create(ctx context.Context, nr NewResult) (Result, error) {
	nr.Clean()
	key := grading.Key{
		StudentID: nr.StudentID,
		Session:   nr.Session,
		Semester:  grading.Semester(nr.Semester),
		Level:     grading.Level(nr.Level),
	}
	if err := key.Validate(); err != nil {
		return Result{}, err
	}
	ca, exam, total, err := scoreTotal(nr.CA, nr.Exam, nr.Total)
	if err != nil {
		return Result{}, err
	}

	if _, err = svc.students.GetStudent(ctx, nr.StudentID); err != nil {
		return Result{}, err
	}
	course, err := svc.students.GetCourse(ctx, nr.CourseID)
	if err != nil {
		return Result{}, err
	}
	year, _ := grading.ParseSession(key.Session)

	now := NowFunc().UTC()
	res, err := svc.repo.CreateResult(ctx, Result{
		ID:         uuid.NewString(),
		StudentID:  key.StudentID,
		CourseID:   course.ID,
		Session:    key.Session,
		Year:       year,
		Semester:   key.Semester,
		Level:      key.Level,
		Unit:       course.Unit,
		CA:         ca,
		Exam:       exam,
		Total:      total,
		Grade:      grading.GradeFromTotal(total),
		CreatedAt:  now,
		UpdatedAt:  now,
		Moderation: NoModeration(),
	})
	if err != nil {
		return Result{}, err
	}
	svc.recompute(ctx, res)
	return res, nil
}

// Update applies a direct correction. It supersedes any moderation of the result.
func (svc *Service) Update(ctx context.Context, id string, ur UpdateResult) (Result, error) {
	res, err := svc.repo.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ca, exam, total, err := scoreTotal(ur.CA, ur.Exam, ur.Total)
	if err != nil {
		return Result{}, err
	}
	res.CA, res.Exam, res.Total = ca, exam, total
	res.Grade = grading.GradeFromTotal(total)
	res.Moderation = NoModeration()
	res.UpdatedAt = NowFunc().UTC()

	if res, err = svc.repo.UpdateScores(ctx, res); err != nil {
		return Result{}, errors.Wrap(err, "updating scores")
	}
	svc.recompute(ctx, res)
	return res, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetResult(ctx, id); err != nil {
		return err
	}
	return svc.DeleteMany(ctx, id)
}

// DeleteMany deletes the results and recomputes each affected standing once.
func (svc *Service) DeleteMany(ctx context.Context, ids ...string) error {
	deleted, err := svc.repo.DeleteResults(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "deleting results")
	}
	svc.recompute(ctx, deleted...)
	return nil
}

// DeleteByCourse deletes every result of a course in a term and recomputes each affected standing once.
func (svc *Service) DeleteByCourse(ctx context.Context, courseID, session, semester string) (int, error) {
	sem, err := grading.ParseSemester(semester)
	if err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "semester", Error: err.Error()})
	}
	if _, err = grading.ParseSession(session); err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "session", Error: err.Error()})
	}
	if _, err = svc.students.GetCourse(ctx, courseID); err != nil {
		return 0, err
	}

	deleted, err := svc.repo.DeleteCourseResults(ctx, courseID, core.CleanString(session), sem)
	if err != nil {
		return 0, errors.Wrap(err, "deleting course results")
	}
	svc.recompute(ctx, deleted...)
	return len(deleted), nil
}

// RequestModeration moves a result from none to pending. The current score is kept aside.
func (svc *Service) RequestModeration(ctx context.Context, id string, mr ModerationRequest) (Result, error) {
	mr.Clean()
	var flds []core.FieldError
	if mr.ProposedTotal == nil || *mr.ProposedTotal < 0 || *mr.ProposedTotal > 100 {
		flds = append(flds, core.FieldError{Field: "proposed_total", Error: "a total between 0 and 100 is required"})
	}
	if mr.Proof == "" {
		flds = append(flds, core.FieldError{Field: "proof", Error: "this field is required"})
	}
	if mr.AuthorizedBy == "" {
		flds = append(flds, core.FieldError{Field: "authorized_by", Error: "this field is required"})
	}
	if flds != nil {
		return Result{}, core.NewValidationError(nil, flds...)
	}

	res, err := svc.repo.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if res.Moderation.Status != ModerationNone {
		return Result{}, core.NewValidationError(errModerationExists)
	}

	now := NowFunc().UTC()
	res.Moderation = Moderation{
		Status:        ModerationPending,
		ProposedTotal: null.Float64From(grading.Round2(*mr.ProposedTotal)),
		Proof:         null.StringFrom(mr.Proof),
		AuthorizedBy:  null.StringFrom(mr.AuthorizedBy),
		OriginalTotal: null.Float64From(res.Total),
		OriginalGrade: null.StringFrom(string(res.Grade)),
		RequestedAt:   null.TimeFrom(now),
	}
	res.UpdatedAt = now
	return svc.repo.UpdateModeration(ctx, res)
}

// ApproveModeration applies the pending proposal to the score.
func (svc *Service) ApproveModeration(ctx context.Context, id string) (Result, error) {
	res, err := svc.repo.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	mod := res.Moderation
	if mod.Status != ModerationPending {
		return Result{}, core.NewValidationError(errNoPendingProposal)
	}
	if !mod.ProposedTotal.Valid || mod.Proof.String == "" || mod.AuthorizedBy.String == "" {
		return Result{}, core.NewValidationError(errIncompleteProposal)
	}

	now := NowFunc().UTC()
	res.Total = mod.ProposedTotal.Float64
	res.Grade = grading.GradeFromTotal(res.Total)
	res.Moderation.Status = ModerationApproved
	res.Moderation.ApprovedAt = null.TimeFrom(now)
	res.UpdatedAt = now

	if res, err = svc.repo.UpdateModeration(ctx, res); err != nil {
		return Result{}, errors.Wrap(err, "approving moderation")
	}
	svc.recompute(ctx, res)
	return res, nil
}

// RejectModeration clears a pending proposal, or unwinds an approved one by restoring the original score.
func (svc *Service) RejectModeration(ctx context.Context, id string) (Result, error) {
	res, err := svc.repo.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}

	var restored bool
	switch res.Moderation.Status {
	case ModerationPending:
	case ModerationApproved:
		res.Total = res.Moderation.OriginalTotal.Float64
		res.Grade = grading.Grade(res.Moderation.OriginalGrade.String)
		if !res.Grade.Valid() {
			res.Grade = grading.GradeFromTotal(res.Total)
		}
		restored = true
	default:
		return Result{}, core.NewValidationError(errNothingToReject)
	}
	res.Moderation = NoModeration()
	res.UpdatedAt = NowFunc().UTC()

	if res, err = svc.repo.UpdateModeration(ctx, res); err != nil {
		return Result{}, errors.Wrap(err, "rejecting moderation")
	}
	if restored {
		svc.recompute(ctx, res)
	}
	return res, nil
}
