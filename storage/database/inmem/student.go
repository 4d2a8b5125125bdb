package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	for _, other := range st.students {
		if other.MatricNo == s.MatricNo {
			return student.Student{}, student.ErrMatricNoExists
		}
	}
	st.students[s.ID] = s
	return s, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if s, ok := st.students[id]; ok {
		return s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryCohort(ctx context.Context, level grading.Level) ([]string, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	ids := make([]string, 0)
	for _, s := range st.students {
		if s.Level == level && s.InCohort() {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *studentRepository) SetLevel(ctx context.Context, level grading.Level, ids ...string) (int, error) {
	return repo.update(ctx, ids, func(s *student.Student) { s.Level = level })
}

func (repo *studentRepository) SetStatus(ctx context.Context, status student.Status, ids ...string) (int, error) {
	return repo.update(ctx, ids, func(s *student.Student) { s.Status = status })
}

func (repo *studentRepository) update(ctx context.Context, ids []string, set func(s *student.Student)) (int, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	now := time.Now().UTC()
	var n int
	for _, id := range ids {
		s, ok := st.students[id]
		if !ok {
			continue
		}
		set(&s)
		s.UpdatedAt = now
		st.students[id] = s
		n++
	}
	return n, nil
}

func (repo *studentRepository) CreateCourse(ctx context.Context, c student.Course) (student.Course, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	for _, other := range st.courses {
		if other.Code == c.Code {
			return student.Course{}, student.ErrCourseCodeExists
		}
	}
	st.courses[c.ID] = c
	return c, nil
}

func (repo *studentRepository) GetCourse(ctx context.Context, id string) (student.Course, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if c, ok := st.courses[id]; ok {
		return c, nil
	}
	return student.Course{}, student.ErrCourseNotFound
}

func (repo *studentRepository) GetCoursesByID(ctx context.Context, ids ...string) ([]student.Course, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	courses := make([]student.Course, 0, len(ids))
	for _, id := range ids {
		if c, ok := st.courses[id]; ok {
			courses = append(courses, c)
		}
	}
	return courses, nil
}

func (repo *studentRepository) CreateRegistrations(ctx context.Context, regs ...student.Registration) ([]student.Registration, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	existing := make(map[string]bool, len(st.regs))
	for _, r := range st.regs {
		existing[registrationKey(r)] = true
	}
	created := make([]student.Registration, 0, len(regs))
	for _, r := range regs {
		k := registrationKey(r)
		if existing[k] {
			continue
		}
		existing[k] = true
		st.regs[r.ID] = r
		created = append(created, r)
	}
	return created, nil
}

func (repo *studentRepository) QueryRegistrations(ctx context.Context, filter student.RegistrationFilter) ([]student.Registration, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	regs := make([]student.Registration, 0)
	for _, r := range st.regs {
		switch {
		case filter.StudentID != "" && r.StudentID != filter.StudentID,
			filter.CourseID != "" && r.CourseID != filter.CourseID,
			filter.Session != "" && r.Session != filter.Session,
			filter.Semester != "" && r.Semester != filter.Semester,
			filter.Level != "" && r.Level != filter.Level:
			continue
		}
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].CreatedAt.Before(regs[j].CreatedAt) })
	return regs, nil
}

// registrationKey is unique per (student, course, term).
func registrationKey(r student.Registration) string {
	return r.StudentID + "|" + r.CourseID + "|" + r.Session + "|" + string(r.Semester)
}
