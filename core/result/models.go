// Package result manages recorded course scores and their moderation.
package result

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
)

var (
	ErrNotFound = core.NewNotFoundError("result")
	ErrExists   = core.NewValidationError(nil, core.FieldError{
		Field: "course_id",
		Error: "a result already exists for this student and course in this term",
	})
)

type ModerationStatus string

const (
	ModerationNone     ModerationStatus = "none"
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
)

// Moderation is the correction sub-document of a Result.
// Original* hold the score it replaced, so an approved moderation can be unwound.
type Moderation struct {
	Status        ModerationStatus `json:"status"`
	ProposedTotal null.Float64     `json:"proposed_total"`
	Proof         null.String      `json:"proof"`
	AuthorizedBy  null.String      `json:"authorized_by"`
	OriginalTotal null.Float64     `json:"original_total"`
	OriginalGrade null.String      `json:"original_grade"`
	RequestedAt   null.Time        `json:"requested_at"`
	ApprovedAt    null.Time        `json:"approved_at"`
}

func NoModeration() Moderation {
	return Moderation{Status: ModerationNone}
}

// Result is the recorded score of a student in a course for a term.
type Result struct {
	ID        string           `json:"id"`
	StudentID string           `json:"student_id"`
	CourseID  string           `json:"course_id"`
	Session   string           `json:"session"`
	Year      int              `json:"-"`
	Semester  grading.Semester `json:"semester"`
	Level     grading.Level    `json:"level"`
	Unit      int              `json:"unit"` // course unit when recorded
	CA        null.Float64     `json:"ca"`
	Exam      null.Float64     `json:"exam"`
	Total     float64          `json:"total"`
	Grade     grading.Grade    `json:"grade"`
	CreatedAt time.Time        `json:"created_at"` // UTC
	UpdatedAt time.Time        `json:"updated_at"` // UTC

	Moderation Moderation `json:"moderation"`
}

func (r Result) Key() grading.Key {
	return grading.Key{StudentID: r.StudentID, Session: r.Session, Semester: r.Semester, Level: r.Level}
}

func (r Result) Term() grading.Term {
	return grading.Term{Year: r.Year, Semester: r.Semester}
}

func (r Result) Attempt() grading.Attempt {
	return grading.Attempt{Unit: r.Unit, Grade: r.Grade}
}

// Filter applies AND operation on its set fields.
type Filter struct {
	StudentID  string
	StudentIDs []string
	CourseID   string
	Session    string
	Semester   grading.Semester
	Level      grading.Level
}

func KeyFilter(key grading.Key) Filter {
	return Filter{StudentID: key.StudentID, Session: key.Session, Semester: key.Semester, Level: key.Level}
}

type Repository interface {
	// CreateResult returns ErrExists if the student already has a result for the course in the term.
	CreateResult(ctx context.Context, r Result) (Result, error)
	GetResult(ctx context.Context, id string) (Result, error)
	QueryResults(ctx context.Context, filter Filter) ([]Result, error)
	// UpdateScores writes the score fields and the moderation sub-document.
	UpdateScores(ctx context.Context, r Result) (Result, error)
	// UpdateModeration writes Total, Grade and the moderation sub-document only.
	UpdateModeration(ctx context.Context, r Result) (Result, error)
	// DeleteResults deletes the results matching ids and returns them.
	DeleteResults(ctx context.Context, ids ...string) ([]Result, error)
	// DeleteCourseResults deletes the results of a course in a term and returns them.
	DeleteCourseResults(ctx context.Context, courseID, session string, semester grading.Semester) ([]Result, error)
}

// NewResult contains information needed to record a score.
// Either the components (ca, exam) or a single total are given.
type NewResult struct {
	StudentID string   `json:"student_id" validate:"required"`
	CourseID  string   `json:"course_id" validate:"required"`
	Session   string   `json:"session" validate:"required,session"`
	Semester  string   `json:"semester" validate:"required,semester"`
	Level     string   `json:"level" validate:"required,level"`
	CA        *float64 `json:"ca" validate:"omitempty,min=0,max=30"`
	Exam      *float64 `json:"exam" validate:"omitempty,min=0,max=70"`
	Total     *float64 `json:"total" validate:"omitempty,min=0,max=100"`
}

func (nr *NewResult) Clean() {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.CourseID = core.CleanString(nr.CourseID)
	nr.Session = core.CleanString(nr.Session)
	nr.Semester = core.CleanString(nr.Semester, true /* lower */)
	nr.Level = core.CleanString(nr.Level)
}

// UpdateResult defines the score fields of a direct correction.
type UpdateResult struct {
	CA    *float64 `json:"ca" validate:"omitempty,min=0,max=30"`
	Exam  *float64 `json:"exam" validate:"omitempty,min=0,max=70"`
	Total *float64 `json:"total" validate:"omitempty,min=0,max=100"`
}

// ModerationRequest proposes a corrected total, backed by proof of authorization.
type ModerationRequest struct {
	ProposedTotal *float64 `json:"proposed_total" validate:"required,min=0,max=100"`
	Proof         string   `json:"proof" validate:"required"`
	AuthorizedBy  string   `json:"authorized_by" validate:"required"`
}

func (mr *ModerationRequest) Clean() {
	mr.Proof = core.CleanString(mr.Proof)
	mr.AuthorizedBy = core.CleanString(mr.AuthorizedBy)
}

// scoreTotal resolves the total of a score entry. Components take precedence;
// a total sent along with components must match their sum.
func scoreTotal(ca, exam, total *float64) (null.Float64, null.Float64, float64, error) {
	if ca == nil && exam == nil {
		if total == nil {
			return null.Float64{}, null.Float64{}, 0, core.NewValidationError(nil,
				core.FieldError{Field: "total", Error: "one of ca, exam or total is required"})
		}
		if *total < 0 || *total > 100 {
			return null.Float64{}, null.Float64{}, 0, core.NewValidationError(nil,
				core.FieldError{Field: "total", Error: "total must be between 0 and 100"})
		}
		return null.Float64{}, null.Float64{}, grading.Round2(*total), nil
	}
	if (ca != nil && (*ca < 0 || *ca > 30)) || (exam != nil && (*exam < 0 || *exam > 70)) {
		return null.Float64{}, null.Float64{}, 0, core.NewValidationError(nil,
			core.FieldError{Field: "total", Error: "ca must be between 0 and 30 and exam between 0 and 70"})
	}

	var sum float64
	caN, examN := null.Float64FromPtr(ca), null.Float64FromPtr(exam)
	if ca != nil {
		sum += *ca
	}
	if exam != nil {
		sum += *exam
	}
	sum = grading.Round2(sum)
	if total != nil && grading.Round2(*total) != sum {
		return null.Float64{}, null.Float64{}, 0, core.NewValidationError(nil,
			core.FieldError{Field: "total", Error: "total must equal ca + exam"})
	}
	return caN, examN, sum, nil
}
