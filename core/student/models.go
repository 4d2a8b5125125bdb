// Package student is the student directory: students, courses and course registrations.
package student

import (
	"context"
	"time"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
)

var (
	ErrNotFound         = core.NewNotFoundError("student")
	ErrCourseNotFound   = core.NewNotFoundError("course")
	ErrMatricNoExists   = core.NewValidationError(nil, core.FieldError{Field: "matric_no", Error: "a student with this matric number already exists"})
	ErrCourseCodeExists = core.NewValidationError(nil, core.FieldError{Field: "code", Error: "a course with this code already exists"})
)

type Status string

const (
	StatusUndergraduate Status = "undergraduate"
	StatusGraduated     Status = "graduated"
	StatusExtraYear     Status = "extraYear"
)

type Student struct {
	ID           string                   `json:"id" db:"id"`
	MatricNo     string                   `json:"matric_no" db:"matric_no"`
	Name         string                   `json:"name" db:"name"`
	Level        grading.Level            `json:"level" db:"level"`
	Status       Status                   `json:"status" db:"status"`
	IsActive     bool                     `json:"is_active" db:"is_active"`
	DepartmentID institution.DepartmentID `json:"department_id" db:"department_id"`
	CreatedAt    time.Time                `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time                `json:"updated_at" db:"updated_at"` // UTC
}

// InCohort reports whether the student takes part in promotion at session close.
func (s Student) InCohort() bool {
	return s.IsActive && s.Status != StatusGraduated
}

type Course struct {
	ID           string                   `json:"id" db:"id"`
	Code         string                   `json:"code" db:"code"`
	Title        string                   `json:"title" db:"title"`
	Unit         int                      `json:"unit" db:"unit"`
	DepartmentID institution.DepartmentID `json:"department_id" db:"department_id"`
}

// Registration records that a student is registered for a course in a term.
type Registration struct {
	ID        string           `json:"id" db:"id"`
	StudentID string           `json:"student_id" db:"student_id"`
	CourseID  string           `json:"course_id" db:"course_id"`
	Session   string           `json:"session" db:"session"`
	Semester  grading.Semester `json:"semester" db:"semester"`
	Level     grading.Level    `json:"level" db:"level"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"` // UTC
}

func (r Registration) Key() grading.Key {
	return grading.Key{StudentID: r.StudentID, Session: r.Session, Semester: r.Semester, Level: r.Level}
}

// RegistrationFilter applies AND operation on its set fields.
type RegistrationFilter struct {
	StudentID string
	CourseID  string
	Session   string
	Semester  grading.Semester
	Level     grading.Level
}

func KeyFilter(key grading.Key) RegistrationFilter {
	return RegistrationFilter{StudentID: key.StudentID, Session: key.Session, Semester: key.Semester, Level: key.Level}
}

type Repository interface {
	CreateStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	// QueryCohort returns the ids of the students at level that take part in promotion (see Student.InCohort).
	QueryCohort(ctx context.Context, level grading.Level) ([]string, error)
	SetLevel(ctx context.Context, level grading.Level, ids ...string) (int, error)
	SetStatus(ctx context.Context, status Status, ids ...string) (int, error)

	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	GetCoursesByID(ctx context.Context, ids ...string) ([]Course, error)

	// CreateRegistrations ignores registrations that already exist.
	CreateRegistrations(ctx context.Context, regs ...Registration) ([]Registration, error)
	QueryRegistrations(ctx context.Context, filter RegistrationFilter) ([]Registration, error)
}

// NewRegistration contains the information needed to register a student for courses in a term.
type NewRegistration struct {
	StudentID string   `json:"student_id" validate:"required"`
	CourseIDs []string `json:"course_ids" validate:"required,min=1,dive,required"`
	Session   string   `json:"session" validate:"required,session"`
	Semester  string   `json:"semester" validate:"required,semester"`
	Level     string   `json:"level" validate:"required,level"`
}

func (nr *NewRegistration) Clean() {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.Session = core.CleanString(nr.Session)
	nr.Semester = core.CleanString(nr.Semester, true /* lower */)
	nr.Level = core.CleanString(nr.Level)
	for i, id := range nr.CourseIDs {
		nr.CourseIDs[i] = core.CleanString(id)
	}
}
