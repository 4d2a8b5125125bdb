package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
	emailsvc "github.com/trezcool/examoffice/services/email"
	testutil "github.com/trezcool/examoffice/tests"
)

const current = "2023/2024"

type closeFixture struct {
	env   *testutil.Env
	sess  session.Session
	admin user.User
	keys  []grading.Key
}

func newCloseFixture(t *testing.T) closeFixture {
	env := testutil.NewEnv()
	sess, err := env.SessionSvc.Create(context.Background(), session.NewSession{Name: " " + current + " "})
	require.NoError(t, err)
	return closeFixture{env: env, sess: sess, admin: env.User(t, "registrar", user.RoleAdmin, 0)}
}

// score records a result in the current session and remembers its standing key.
func (f *closeFixture) score(t *testing.T, stud student.Student, sem grading.Semester, course student.Course, total float64) {
	k := grading.Key{StudentID: stud.ID, Session: current, Semester: sem, Level: stud.Level}
	f.env.Score(t, k, course.ID, total)
	f.keys = append(f.keys, k)
}

func (f *closeFixture) approve(t *testing.T, keys ...grading.Key) {
	for _, k := range keys {
		rec, err := f.env.StandingSvc.GetByKey(context.Background(), k)
		require.NoError(t, err)
		f.env.ApproveAll(t, f.admin, rec.ID)
	}
}

func (f *closeFixture) level(t *testing.T, id string) (grading.Level, student.Status) {
	stud, err := f.env.StudentRepo.GetStudent(context.Background(), id)
	require.NoError(t, err)
	return stud.Level, stud.Status
}

func TestService_Readiness(t *testing.T) {
	f := newCloseFixture(t)
	ctx := context.Background()

	rd, err := f.env.SessionSvc.Readiness(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.False(t, rd.Ready)
	require.Len(t, rd.Reasons, 1)
	assert.Equal(t, session.ReasonNoStandings, rd.Reasons[0].Code)

	dep := f.env.Department(t, "Physics")
	course := f.env.Course(t, "PHY101", 3, dep.ID)
	a := f.env.Student(t, "phy/001", grading.Level100, dep.ID)
	b := f.env.Student(t, "phy/002", grading.Level100, dep.ID)
	f.score(t, a, grading.SemesterFirst, course, 70)
	f.score(t, b, grading.SemesterFirst, course, 50)
	f.score(t, b, grading.SemesterSecond, course, 50)
	f.approve(t, f.keys[0])

	rd, err = f.env.SessionSvc.Readiness(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.False(t, rd.Ready)
	assert.Equal(t, 3, rd.Total)
	assert.Equal(t, 1, rd.Approved)
	assert.Equal(t, []core.BlockingReason{
		{Code: session.ReasonPendingApproval, Message: "1 pending dean approval in first semester", Semester: "first", Count: 1},
		{Code: session.ReasonPendingApproval, Message: "1 pending dean approval in second semester", Semester: "second", Count: 1},
	}, rd.Reasons)

	_, err = f.env.SessionSvc.Readiness(ctx, "unknown")
	assert.Equal(t, session.ErrNotFound, errors.Cause(err))
}

func TestService_Close_gating(t *testing.T) {
	f := newCloseFixture(t)
	ctx := context.Background()
	dep := f.env.Department(t, "Physics")
	course := f.env.Course(t, "PHY301", 3, dep.ID)
	a := f.env.Student(t, "phy/001", grading.Level300, dep.ID)
	b := f.env.Student(t, "phy/002", grading.Level300, dep.ID)
	f.score(t, a, grading.SemesterFirst, course, 70)
	f.score(t, b, grading.SemesterFirst, course, 45)
	f.approve(t, f.keys[0])

	_, err := f.env.SessionSvc.Close(ctx, f.sess.ID, f.admin)
	var cErr *core.ConsistencyError
	require.True(t, errors.As(err, &cErr), "got %v", err)
	require.Len(t, cErr.Reasons, 1)
	assert.Equal(t, "1 pending dean approval in first semester", cErr.Reasons[0].Message)

	lvl, _ := f.level(t, a.ID)
	assert.Equal(t, grading.Level300, lvl, "nothing is promoted while blocked")
	sess, err := f.env.SessionSvc.Get(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, sess.Status)

	_, err = f.env.SessionSvc.Close(ctx, f.sess.ID, f.env.User(t, "officer", user.RoleOfficer, dep.ID))
	assert.IsType(t, &core.AuthorizationError{}, errors.Cause(err))

	f.approve(t, f.keys[1])
	closed, err := f.env.SessionSvc.Close(ctx, f.sess.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, closed.Status)
	assert.False(t, closed.IsCurrent)
	assert.True(t, closed.ClosedAt.Valid)
	assert.Equal(t, "registrar", closed.ClosedBy.String)
	assert.Equal(t, 2, closed.PromotionStats.Promoted300To400)

	_, err = f.env.SessionSvc.Close(ctx, f.sess.ID, f.admin)
	require.True(t, errors.As(err, &cErr), "completed sessions cannot be closed again")
	assert.Equal(t, session.ReasonCompleted, cErr.Reasons[0].Code)

	_, err = f.env.SessionSvc.Current(ctx)
	assert.Equal(t, session.ErrNotFound, errors.Cause(err))
}

func TestService_Close_promotion(t *testing.T) {
	emailsvc.ClearSentMessages()
	f := newCloseFixture(t)
	ctx := context.Background()
	dep := f.env.Department(t, "Physics")
	c1 := f.env.Course(t, "PHY101", 3, dep.ID)
	c2 := f.env.Course(t, "PHY401", 3, dep.ID)
	c3 := f.env.Course(t, "PHY402", 2, dep.ID)

	var first100, first200, first300 []student.Student
	for _, matric := range []string{"a/100", "b/100", "c/100"} {
		first100 = append(first100, f.env.Student(t, matric, grading.Level100, dep.ID))
	}
	first200 = append(first200, f.env.Student(t, "a/200", grading.Level200, dep.ID))
	for _, matric := range []string{"a/300", "b/300"} {
		first300 = append(first300, f.env.Student(t, matric, grading.Level300, dep.ID))
	}
	graduate := f.env.Student(t, "grad/400", grading.Level400, dep.ID)
	failing := f.env.Student(t, "fail/400", grading.Level400, dep.ID)
	retaker := f.env.Student(t, "retake/400", grading.Level400, dep.ID)

	for _, s := range append(append(first100, first200...), first300...) {
		f.score(t, s, grading.SemesterFirst, c1, 60)
	}
	f.score(t, graduate, grading.SemesterFirst, c2, 75)
	f.score(t, failing, grading.SemesterFirst, c2, 75)
	f.score(t, failing, grading.SemesterSecond, c3, 20)

	// the retaker failed PHY401 last session and passed it now
	f.env.Score(t, grading.Key{StudentID: retaker.ID, Session: "2022/2023", Semester: grading.SemesterFirst, Level: grading.Level400}, c2.ID, 30)
	f.score(t, retaker, grading.SemesterFirst, c2, 55)

	f.approve(t, f.keys...)

	closed, err := f.env.SessionSvc.Close(ctx, f.sess.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, session.Stats{
		Promoted100To200: 3,
		Promoted200To300: 1,
		Promoted300To400: 2,
		Graduated:        2,
		ExtraYear:        1,
		TotalProcessed:   9,
	}, *closed.PromotionStats)

	for _, s := range first100 {
		lvl, _ := f.level(t, s.ID)
		assert.Equal(t, grading.Level200, lvl)
	}
	for _, s := range first300 {
		lvl, status := f.level(t, s.ID)
		assert.Equal(t, grading.Level400, lvl)
		assert.Equal(t, student.StatusUndergraduate, status, "promoted to 400 is not classified in the same close")
	}
	_, status := f.level(t, graduate.ID)
	assert.Equal(t, student.StatusGraduated, status)
	_, status = f.level(t, retaker.ID)
	assert.Equal(t, student.StatusGraduated, status)
	lvl, status := f.level(t, failing.ID)
	assert.Equal(t, student.StatusExtraYear, status)
	assert.Equal(t, grading.Level400, lvl)

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Session 2023/2024 closed", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Extra year:          1")
}

type failingCohort struct {
	session.Cohort
}

func (c failingCohort) SetStatus(context.Context, student.Status, ...string) (int, error) {
	return 0, errors.New("connection reset")
}

func TestService_Close_allOrNothing(t *testing.T) {
	f := newCloseFixture(t)
	ctx := context.Background()
	dep := f.env.Department(t, "Physics")
	course := f.env.Course(t, "PHY401", 3, dep.ID)
	junior := f.env.Student(t, "a/100", grading.Level100, dep.ID)
	senior := f.env.Student(t, "a/400", grading.Level400, dep.ID)
	f.score(t, junior, grading.SemesterFirst, course, 60)
	f.score(t, senior, grading.SemesterFirst, course, 60)
	f.approve(t, f.keys...)

	svc := session.NewService(session.Deps{
		Repo:       f.env.SessionRepo,
		Standings:  f.env.StandingRepo,
		Cohort:     failingCohort{Cohort: f.env.StudentRepo},
		History:    f.env.ResultRepo,
		Transactor: f.env.DB,
		Conf:       f.env.Conf,
	})
	_, err := svc.Close(ctx, f.sess.ID, f.admin)
	var txErr *core.TransactionError
	require.True(t, errors.As(err, &txErr), "got %v", err)

	lvl, _ := f.level(t, junior.ID)
	assert.Equal(t, grading.Level100, lvl, "promotion is rolled back")
	sess, err := f.env.SessionRepo.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.Nil(t, sess.PromotionStats)

	closed, err := f.env.SessionSvc.Close(ctx, f.sess.ID, f.admin)
	require.NoError(t, err, "safe to retry")
	assert.Equal(t, 1, closed.PromotionStats.Graduated)
}

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	older, err := env.SessionSvc.Create(ctx, session.NewSession{Name: "2022/2023"})
	require.NoError(t, err)
	assert.True(t, older.IsCurrent)
	assert.Equal(t, 2022, older.Year)

	cur, err := env.SessionSvc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, older.ID, cur.ID)

	newer, err := env.SessionSvc.Create(ctx, session.NewSession{Name: "2023/2024"})
	require.NoError(t, err)

	sessions, err := env.SessionSvc.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.False(t, sessions[1].IsCurrent, "only one session is current")

	cur, err = env.SessionSvc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, cur.ID)

	tests := []struct {
		name string
		in   string
	}{
		{name: "not consecutive", in: "2023/2025"},
		{name: "malformed", in: "2023-2024"},
		{name: "empty", in: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.SessionSvc.Create(ctx, session.NewSession{Name: tc.in})
			assert.IsType(t, &core.ValidationError{}, errors.Cause(err))
		})
	}

	_, err = env.SessionSvc.Create(ctx, session.NewSession{Name: "2023/2024"})
	assert.Equal(t, session.ErrExists, errors.Cause(err))
	sessions, err = env.SessionSvc.List(ctx)
	require.NoError(t, err)
	assert.True(t, sessions[0].IsCurrent, "a failed create leaves the current session alone")
}

func TestLatestAttempts(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []result.Result{
		{ID: "1", StudentID: "s", CourseID: "c1", Year: 2022, Semester: grading.SemesterFirst, Grade: grading.GradeF, CreatedAt: base},
		{ID: "2", StudentID: "s", CourseID: "c1", Year: 2023, Semester: grading.SemesterFirst, Grade: grading.GradeC, CreatedAt: base.Add(time.Hour)},
		{ID: "3", StudentID: "s", CourseID: "c2", Year: 2023, Semester: grading.SemesterSecond, Grade: grading.GradeF, CreatedAt: base},
		{ID: "4", StudentID: "s", CourseID: "c2", Year: 2023, Semester: grading.SemesterFirst, Grade: grading.GradeA, CreatedAt: base},
		{ID: "5", StudentID: "t", CourseID: "c1", Year: 2023, Semester: grading.SemesterFirst, Grade: grading.GradeB, CreatedAt: base},
	}

	latest := session.LatestAttempts(results)
	ids := make([]string, 0, len(latest))
	for _, r := range latest {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"2", "3", "5"}, ids)
}
