package student

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
)

// Recomputer refreshes the standings of the given keys.
type Recomputer interface {
	Recompute(ctx context.Context, keys ...grading.Key) error
}

type Service struct {
	repo       Repository
	recomputer Recomputer
	logger     core.Logger
}

func NewService(repo Repository, recomputer Recomputer, logger core.Logger) *Service {
	return &Service{repo: repo, recomputer: recomputer, logger: logger}
}

func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, core.CleanString(id))
}

// Register records the student's registrations for the term and refreshes the term's standing.
// Registrations that already exist are left untouched.
func (svc *Service) Register(ctx context.Context, nr NewRegistration) ([]Registration, error) {
	nr.Clean()
	key := grading.Key{
		StudentID: nr.StudentID,
		Session:   nr.Session,
		Semester:  grading.Semester(nr.Semester),
		Level:     grading.Level(nr.Level),
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(nr.CourseIDs) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "course_ids", Error: "this field is required"})
	}

	if _, err := svc.repo.GetStudent(ctx, nr.StudentID); err != nil {
		return nil, err
	}
	courses, err := svc.repo.GetCoursesByID(ctx, nr.CourseIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "finding courses")
	}
	found := make(map[string]bool, len(courses))
	for _, c := range courses {
		found[c.ID] = true
	}

	now := time.Now().UTC()
	regs := make([]Registration, 0, len(nr.CourseIDs))
	for _, id := range nr.CourseIDs {
		if !found[id] {
			return nil, ErrCourseNotFound
		}
		regs = append(regs, Registration{
			ID:        uuid.NewString(),
			StudentID: nr.StudentID,
			CourseID:  id,
			Session:   key.Session,
			Semester:  key.Semester,
			Level:     key.Level,
			CreatedAt: now,
		})
	}

	created, err := svc.repo.CreateRegistrations(ctx, regs...)
	if err != nil {
		return nil, errors.Wrap(err, "creating registrations")
	}
	if len(created) > 0 {
		if err := svc.recomputer.Recompute(ctx, key); err != nil {
			svc.logger.Error("recomputing standing after registration", err, map[string]interface{}{"key": key.String()})
		}
	}
	return created, nil
}

// CreateStudent adds a student to the directory. New students are active undergraduates.
func (svc *Service) CreateStudent(ctx context.Context, s Student) (Student, error) {
	s.MatricNo = core.CleanString(s.MatricNo, true /* lower */)
	s.Name = core.CleanString(s.Name)
	if s.MatricNo == "" {
		return Student{}, core.NewValidationError(nil, core.FieldError{Field: "matric_no", Error: "this field is required"})
	}
	if s.Level.Rank() == 0 {
		return Student{}, core.NewValidationError(nil, core.FieldError{Field: "level", Error: grading.ErrInvalidLevel.Error()})
	}
	now := time.Now().UTC()
	s.ID = uuid.NewString()
	if s.Status == "" {
		s.Status = StatusUndergraduate
	}
	s.IsActive = true
	s.CreatedAt, s.UpdatedAt = now, now
	return svc.repo.CreateStudent(ctx, s)
}

func (svc *Service) CreateCourse(ctx context.Context, c Course) (Course, error) {
	c.Code = core.CleanString(c.Code)
	c.Title = core.CleanString(c.Title)
	if c.Code == "" {
		return Course{}, core.NewValidationError(nil, core.FieldError{Field: "code", Error: "this field is required"})
	}
	if c.Unit < 0 {
		return Course{}, core.NewValidationError(nil, core.FieldError{Field: "unit", Error: "unit cannot be negative"})
	}
	c.ID = uuid.NewString()
	return svc.repo.CreateCourse(ctx, c)
}
