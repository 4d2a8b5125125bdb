package student_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/student"
	testutil "github.com/trezcool/examoffice/tests"
)

func TestService_Register(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	c1 := env.Course(t, "PHY101", 3, dep.ID)
	c2 := env.Course(t, "PHY102", 2, dep.ID)

	valid := func() student.NewRegistration {
		return student.NewRegistration{
			StudentID: stud.ID,
			CourseIDs: []string{c1.ID, c2.ID},
			Session:   "2023/2024",
			Semester:  "second",
			Level:     "100",
		}
	}

	tests := []struct {
		name    string
		mutate  func(nr *student.NewRegistration)
		wantErr error
	}{
		{name: "no courses", mutate: func(nr *student.NewRegistration) { nr.CourseIDs = nil }},
		{name: "bad level", mutate: func(nr *student.NewRegistration) { nr.Level = "500" }},
		{name: "bad semester", mutate: func(nr *student.NewRegistration) { nr.Semester = "summer" }},
		{name: "unknown student", mutate: func(nr *student.NewRegistration) { nr.StudentID = "nobody" }, wantErr: student.ErrNotFound},
		{name: "unknown course", mutate: func(nr *student.NewRegistration) { nr.CourseIDs = append(nr.CourseIDs, "nope") }, wantErr: student.ErrCourseNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nr := valid()
			tc.mutate(&nr)
			_, err := env.StudentSvc.Register(ctx, nr)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, errors.Cause(err))
			} else {
				assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
			}
		})
	}

	created, err := env.StudentSvc.Register(ctx, valid())
	require.NoError(t, err)
	assert.Len(t, created, 2)

	k := grading.Key{StudentID: stud.ID, Session: "2023/2024", Semester: grading.SemesterSecond, Level: grading.Level100}
	rec, err := env.StandingSvc.GetByKey(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.TCC)
	assert.Equal(t, 0, rec.TCE)

	created, err = env.StudentSvc.Register(ctx, valid())
	require.NoError(t, err)
	assert.Empty(t, created, "existing registrations are ignored")

	regs, err := env.StudentRepo.QueryRegistrations(ctx, student.KeyFilter(k))
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}

func TestService_CreateStudent(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	stud, err := env.StudentSvc.CreateStudent(ctx, student.Student{MatricNo: " PHY/001 ", Name: "Ada", Level: grading.Level200})
	require.NoError(t, err)
	assert.Equal(t, "phy/001", stud.MatricNo)
	assert.Equal(t, student.StatusUndergraduate, stud.Status)
	assert.True(t, stud.IsActive)
	assert.True(t, stud.InCohort())

	_, err = env.StudentSvc.CreateStudent(ctx, student.Student{MatricNo: "phy/001", Level: grading.Level100})
	assert.Equal(t, student.ErrMatricNoExists, errors.Cause(err))

	_, err = env.StudentSvc.CreateStudent(ctx, student.Student{MatricNo: "phy/002", Level: "500"})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))

	ids, err := env.StudentRepo.QueryCohort(ctx, grading.Level200)
	require.NoError(t, err)
	assert.Equal(t, []string{stud.ID}, ids)

	n, err := env.StudentRepo.SetStatus(ctx, student.StatusGraduated, stud.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ids, err = env.StudentRepo.QueryCohort(ctx, grading.Level200)
	require.NoError(t, err)
	assert.Empty(t, ids, "graduates leave the cohort")
}
