package sqlxrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/student"
)

const (
	studentColumns      = `id, matric_no, name, level, status, is_active, department_id, created_at, updated_at`
	courseColumns       = `id, code, title, unit, department_id`
	registrationColumns = `id, student_id, course_id, session, semester, level, created_at`
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	q := `INSERT INTO students (` + studentColumns + `)
		VALUES (:id, :matric_no, :name, :level, :status, :is_active, :department_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, s); err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, student.ErrMatricNoExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var s student.Student
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &s, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return student.Student{}, notFound(err, student.ErrNotFound, "selecting student")
	}
	return s, nil
}

func (repo *studentRepository) QueryCohort(ctx context.Context, level grading.Level) ([]string, error) {
	ids := make([]string, 0)
	q := `SELECT id FROM students WHERE level = $1 AND is_active AND status <> $2 ORDER BY id`
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &ids, q, level, student.StatusGraduated); err != nil {
		return nil, errors.Wrap(err, "selecting cohort")
	}
	return ids, nil
}

func (repo *studentRepository) SetLevel(ctx context.Context, level grading.Level, ids ...string) (int, error) {
	return repo.update(ctx, "level", string(level), ids)
}

func (repo *studentRepository) SetStatus(ctx context.Context, status student.Status, ids ...string) (int, error) {
	return repo.update(ctx, "status", string(status), ids)
}

func (repo *studentRepository) update(ctx context.Context, column, value string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE students SET ` + column + ` = $1, updated_at = $2 WHERE id = ANY($3)`
	res, err := repo.db.exec(ctx).ExecContext(ctx, q, value, time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return 0, errors.Wrapf(err, "updating students %s", column)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "updating students %s", column)
	}
	return int(n), nil
}

func (repo *studentRepository) CreateCourse(ctx context.Context, c student.Course) (student.Course, error) {
	q := `INSERT INTO courses (` + courseColumns + `) VALUES (:id, :code, :title, :unit, :department_id)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, c); err != nil {
		if isUniqueViolation(err) {
			return student.Course{}, student.ErrCourseCodeExists
		}
		return student.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *studentRepository) GetCourse(ctx context.Context, id string) (student.Course, error) {
	var c student.Course
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &c, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id); err != nil {
		return student.Course{}, notFound(err, student.ErrCourseNotFound, "selecting course")
	}
	return c, nil
}

func (repo *studentRepository) GetCoursesByID(ctx context.Context, ids ...string) ([]student.Course, error) {
	courses := make([]student.Course, 0, len(ids))
	q := `SELECT ` + courseColumns + ` FROM courses WHERE id = ANY($1)`
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &courses, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	return courses, nil
}

func (repo *studentRepository) CreateRegistrations(ctx context.Context, regs ...student.Registration) ([]student.Registration, error) {
	created := make([]student.Registration, 0, len(regs))
	q := `INSERT INTO registrations (` + registrationColumns + `)
		VALUES (:id, :student_id, :course_id, :session, :semester, :level, :created_at)
		ON CONFLICT (student_id, course_id, session, semester) DO NOTHING`
	for _, r := range regs {
		res, err := sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, r)
		if err != nil {
			return nil, errors.Wrap(err, "inserting registration")
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, errors.Wrap(err, "inserting registration")
		} else if n > 0 {
			created = append(created, r)
		}
	}
	return created, nil
}

func (repo *studentRepository) QueryRegistrations(ctx context.Context, filter student.RegistrationFilter) ([]student.Registration, error) {
	w := newWhere()
	w.eq("student_id", filter.StudentID)
	w.eq("course_id", filter.CourseID)
	w.eq("session", filter.Session)
	w.eq("semester", string(filter.Semester))
	w.eq("level", string(filter.Level))

	regs := make([]student.Registration, 0)
	q := `SELECT ` + registrationColumns + ` FROM registrations` + w.String() + ` ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &regs, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting registrations")
	}
	return regs, nil
}

// where builds a conjunction of conditions with positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

func newWhere() *where {
	return &where{}
}

// add appends cond, where `?` stands for the next positional argument.
func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1))
}

// eq skips empty values.
func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
