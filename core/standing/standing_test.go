package standing_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
	testutil "github.com/trezcool/examoffice/tests"
)

func key(studentID, session string, sem grading.Semester, lvl grading.Level) grading.Key {
	return grading.Key{StudentID: studentID, Session: session, Semester: sem, Level: lvl}
}

func TestOrchestrator_registeredWithoutScore(t *testing.T) {
	env := testutil.NewEnv()
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	course := env.Course(t, "PHY101", 3, dep.ID)
	k := key(stud.ID, "2023/2024", grading.SemesterFirst, grading.Level100)

	env.Register(t, k, course.ID)

	rec, err := env.StandingSvc.GetByKey(context.Background(), k)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TCC)
	assert.Equal(t, 0, rec.TCE)
	assert.Equal(t, 0, rec.TPE)
	assert.Equal(t, 0.0, rec.GPA)
	assert.Equal(t, dep.ID, rec.DepartmentID)
	assert.Equal(t, dep.CollegeID, rec.CollegeID)
}

func TestOrchestrator_registrationsWinOverStrayResults(t *testing.T) {
	env := testutil.NewEnv()
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	registered := env.Course(t, "PHY101", 3, dep.ID)
	stray := env.Course(t, "PHY103", 2, dep.ID)
	k := key(stud.ID, "2023/2024", grading.SemesterFirst, grading.Level100)

	env.Score(t, k, stray.ID, 75)
	rec, err := env.StandingSvc.GetByKey(context.Background(), k)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TCC, "results count while the term has no registrations")

	env.Register(t, k, registered.ID)
	env.Score(t, k, registered.ID, 65)

	rec, err = env.StandingSvc.GetByKey(context.Background(), k)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TCC)
	assert.Equal(t, 3, rec.TCE)
	assert.Equal(t, 12, rec.TPE)
	assert.Equal(t, 4.0, rec.GPA)
}

func TestOrchestrator_idempotent(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	c1 := env.Course(t, "PHY101", 3, dep.ID)
	c2 := env.Course(t, "PHY102", 2, dep.ID)
	k := key(stud.ID, "2023/2024", grading.SemesterFirst, grading.Level100)

	env.Score(t, k, c1.ID, 72)
	env.Score(t, k, c2.ID, 38)
	before, err := env.StandingSvc.GetByKey(ctx, k)
	require.NoError(t, err)

	require.NoError(t, env.StandingSvc.Recompute(ctx, k, k))
	require.NoError(t, env.StandingSvc.Recompute(ctx, k))

	after, err := env.StandingSvc.GetByKey(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 5, after.TCC)
	assert.Equal(t, 3, after.TCE)
	assert.Equal(t, 15, after.TPE)
	assert.Equal(t, 3.0, after.GPA)
}

func TestOrchestrator_chainsPreviousSnapshot(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	c1 := env.Course(t, "PHY101", 3, dep.ID)
	c2 := env.Course(t, "PHY102", 2, dep.ID)
	c3 := env.Course(t, "PHY201", 4, dep.ID)

	first := key(stud.ID, "2009/2010", grading.SemesterFirst, grading.Level100)
	second := key(stud.ID, "2009/2010", grading.SemesterSecond, grading.Level100)
	next := key(stud.ID, "2010/2011", grading.SemesterFirst, grading.Level200)

	env.Score(t, first, c1.ID, 70)  // A: 3 units, 15 points
	env.Score(t, second, c2.ID, 61) // B: 2 units, 8 points
	env.Score(t, next, c3.ID, 42)   // E: 4 units, 4 points

	rec, err := env.StandingSvc.GetByKey(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, grading.Cumulative{CCC: 3, CCE: 3, CPE: 15, CGPA: 5}, rec.Previous)
	assert.Equal(t, 5, rec.CCC)
	assert.Equal(t, 23, rec.CPE)
	assert.Equal(t, 4.6, rec.CGPA)

	rec, err = env.StandingSvc.GetByKey(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Previous.CCC, "seeded from the second semester of the previous session")
	assert.Equal(t, rec.Previous.CCC+rec.TCC, rec.CCC)
	assert.Equal(t, rec.Previous.CCE+rec.TCE, rec.CCE)
	assert.Equal(t, rec.Previous.CPE+rec.TPE, rec.CPE)
	assert.Equal(t, grading.Round2(float64(27)/float64(9)), rec.CGPA)
}

func TestOrchestrator_refreshesLaterTerms(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	c1 := env.Course(t, "PHY101", 3, dep.ID)
	c2 := env.Course(t, "PHY102", 3, dep.ID)
	c3 := env.Course(t, "PHY201", 2, dep.ID)

	first := key(stud.ID, "2023/2024", grading.SemesterFirst, grading.Level100)
	second := key(stud.ID, "2023/2024", grading.SemesterSecond, grading.Level100)
	next := key(stud.ID, "2024/2025", grading.SemesterFirst, grading.Level200)

	failed := env.Score(t, first, c1.ID, 30) // F
	env.Score(t, second, c2.ID, 70)          // A
	env.Score(t, next, c3.ID, 60)            // B

	rec, err := env.StandingSvc.GetByKey(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, grading.Cumulative{CCC: 3}, rec.Previous)
	assert.Equal(t, 2.5, rec.CGPA)

	corrected := 75.0
	_, err = env.ResultSvc.Update(ctx, failed.ID, result.UpdateResult{Total: &corrected})
	require.NoError(t, err)

	rec, err = env.StandingSvc.GetByKey(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, grading.Cumulative{CCC: 3, CCE: 3, CPE: 15, CGPA: 5}, rec.Previous)
	assert.Equal(t, grading.Cumulative{CCC: 6, CCE: 6, CPE: 30, CGPA: 5}, rec.Cumulative)

	rec, err = env.StandingSvc.GetByKey(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, grading.Cumulative{CCC: 6, CCE: 6, CPE: 30, CGPA: 5}, rec.Previous)
	assert.Equal(t, 8, rec.CCC)
	assert.Equal(t, 38, rec.CPE)
	assert.Equal(t, 4.75, rec.CGPA)

	t.Run("deleting the earliest term", func(t *testing.T) {
		require.NoError(t, env.ResultSvc.Delete(ctx, failed.ID))

		rec, err := env.StandingSvc.GetByKey(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, grading.Cumulative{}, rec.Previous)
		assert.Equal(t, 3, rec.CCC)

		rec, err = env.StandingSvc.GetByKey(ctx, next)
		require.NoError(t, err)
		assert.Equal(t, 3, rec.Previous.CCC)
		assert.Equal(t, 5, rec.CCC)
		assert.Equal(t, 4.6, rec.CGPA)
	})
}

// staleCatalog serves registrations whose courses may have left the catalog.
type staleCatalog struct {
	regs    []student.Registration
	courses map[string]student.Course
}

func (c staleCatalog) QueryRegistrations(context.Context, student.RegistrationFilter) ([]student.Registration, error) {
	return c.regs, nil
}

func (c staleCatalog) GetCoursesByID(_ context.Context, ids ...string) ([]student.Course, error) {
	courses := make([]student.Course, 0, len(ids))
	for _, id := range ids {
		if course, ok := c.courses[id]; ok {
			courses = append(courses, course)
		}
	}
	return courses, nil
}

func TestAssembler_unscoredRegistrations(t *testing.T) {
	env := testutil.NewEnv()
	k := key("s1", "2023/2024", grading.SemesterFirst, grading.Level100)
	catalog := staleCatalog{
		regs: []student.Registration{
			{StudentID: "s1", CourseID: "c1", Session: k.Session, Semester: k.Semester, Level: k.Level},
			{StudentID: "s1", CourseID: "c2", Session: k.Session, Semester: k.Semester, Level: k.Level},
		},
		courses: map[string]student.Course{"c1": {ID: "c1", Unit: 3}, "c2": {ID: "c2", Unit: 2}},
	}

	attempts, err := standing.NewAssembler(catalog, env.ResultRepo).Assemble(context.Background(), k)
	require.NoError(t, err)
	assert.ElementsMatch(t, []grading.Attempt{{Unit: 3, Grade: grading.GradeF}, {Unit: 2, Grade: grading.GradeF}}, attempts)

	delete(catalog.courses, "c2")
	_, err = standing.NewAssembler(catalog, env.ResultRepo).Assemble(context.Background(), k)
	assert.Equal(t, student.ErrCourseNotFound, errors.Cause(err))
}

func TestOrchestrator_deletesEmptyStanding(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	course := env.Course(t, "PHY101", 3, dep.ID)
	k := key(stud.ID, "2023/2024", grading.SemesterFirst, grading.Level100)

	res := env.Score(t, k, course.ID, 55)
	_, err := env.StandingSvc.GetByKey(ctx, k)
	require.NoError(t, err)

	require.NoError(t, env.ResultSvc.Delete(ctx, res.ID))

	_, err = env.StandingSvc.GetByKey(ctx, k)
	assert.Equal(t, standing.ErrNotFound, errors.Cause(err))
}

type approvalFixture struct {
	env *testutil.Env
	rec standing.Record

	officer, hod, dean, admin user.User
	strangerOfficer           user.User
}

func newApprovalFixture(t *testing.T) approvalFixture {
	env := testutil.NewEnv()
	dep := env.Department(t, "Physics")
	other := env.Department(t, "Chemistry")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	course := env.Course(t, "PHY101", 3, dep.ID)
	k := key(stud.ID, "2023/2024", grading.SemesterFirst, grading.Level100)
	env.Score(t, k, course.ID, 66)

	rec, err := env.StandingSvc.GetByKey(context.Background(), k)
	require.NoError(t, err)
	return approvalFixture{
		env:             env,
		rec:             rec,
		officer:         env.User(t, "officer", user.RoleOfficer, dep.ID),
		hod:             env.User(t, "hod", user.RoleHOD, dep.ID),
		dean:            env.User(t, "dean", user.RoleDean, dep.ID),
		admin:           env.User(t, "admin", user.RoleAdmin, 0),
		strangerOfficer: env.User(t, "stranger", user.RoleOfficer, other.ID),
	}
}

func (f approvalFixture) pendingIDs(t *testing.T, actor user.User) []string {
	t.Helper()
	recs, err := f.env.StandingSvc.Pending(context.Background(), actor, standing.PendingQuery{})
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func (f approvalFixture) decide(actor user.User, stage standing.Stage, approve bool) (standing.Record, error) {
	return f.env.StandingSvc.Decide(context.Background(), f.rec.ID, actor, standing.Decision{Stage: string(stage), Approve: &approve, Note: " ok "})
}

func TestService_approvalQueues(t *testing.T) {
	f := newApprovalFixture(t)
	id := f.rec.ID

	assert.Equal(t, []string{id}, f.pendingIDs(t, f.officer))
	assert.Empty(t, f.pendingIDs(t, f.hod))
	assert.Empty(t, f.pendingIDs(t, f.dean))
	assert.Empty(t, f.pendingIDs(t, f.strangerOfficer))

	rec, err := f.decide(f.officer, standing.StageOfficer, true)
	require.NoError(t, err)
	assert.True(t, rec.Officer.Approved)
	assert.Equal(t, f.officer.ID, rec.Officer.Approver.ID)
	assert.Equal(t, "ok", rec.Officer.Note)
	assert.Empty(t, f.pendingIDs(t, f.officer))
	assert.Equal(t, []string{id}, f.pendingIDs(t, f.hod))
	assert.Empty(t, f.pendingIDs(t, f.dean))

	_, err = f.decide(f.hod, standing.StageHOD, true)
	require.NoError(t, err)
	assert.Empty(t, f.pendingIDs(t, f.hod))
	assert.Equal(t, []string{id}, f.pendingIDs(t, f.dean))

	rec, err = f.decide(f.dean, standing.StageDean, true)
	require.NoError(t, err)
	assert.True(t, rec.FullyApproved())
	assert.Equal(t, f.dean.CollegeID, rec.Dean.Approver.CollegeID)
	assert.Empty(t, f.pendingIDs(t, f.officer))
	assert.Empty(t, f.pendingIDs(t, f.hod))
	assert.Empty(t, f.pendingIDs(t, f.dean))
}

func TestService_Decide_guards(t *testing.T) {
	f := newApprovalFixture(t)

	_, err := f.decide(f.hod, standing.StageHOD, true)
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err), "hod approval before the officer's")

	_, err = f.decide(f.hod, standing.StageOfficer, true)
	assert.IsType(t, &core.AuthorizationError{}, errors.Cause(err), "role must match the stage")

	_, err = f.decide(f.strangerOfficer, standing.StageOfficer, true)
	assert.IsType(t, &core.AuthorizationError{}, errors.Cause(err), "outside the department")

	_, err = f.env.StandingSvc.Decide(context.Background(), f.rec.ID, f.officer, standing.Decision{Stage: "registrar"})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))

	_, err = f.decide(f.officer, standing.StageOfficer, true)
	require.NoError(t, err)
	_, err = f.decide(f.hod, standing.StageHOD, true)
	require.NoError(t, err)

	_, err = f.decide(f.officer, standing.StageOfficer, false)
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err), "officer decline after hod approval")

	rec, err := f.decide(f.hod, standing.StageHOD, false)
	require.NoError(t, err)
	assert.False(t, rec.HOD.Approved)
	rec, err = f.decide(f.officer, standing.StageOfficer, false)
	require.NoError(t, err)
	assert.False(t, rec.Officer.Approved)

	_, err = f.env.StandingSvc.Decide(context.Background(), "unknown", f.admin, standing.Decision{Stage: "officer", Approve: new(bool)})
	assert.Equal(t, standing.ErrNotFound, errors.Cause(err))
}

func TestService_Flag(t *testing.T) {
	f := newApprovalFixture(t)
	_, err := f.decide(f.officer, standing.StageOfficer, true)
	require.NoError(t, err)

	flagged := true
	rec, err := f.env.StandingSvc.Flag(context.Background(), f.rec.ID, f.officer, standing.FlagRequest{
		Stage:   "officer",
		Flagged: &flagged,
		Note:    "missing CA for PHY101",
	})
	require.NoError(t, err)
	assert.True(t, rec.Officer.Flagged)
	assert.True(t, rec.Officer.Approved, "flags leave the approval as is")
	assert.Equal(t, "missing CA for PHY101", rec.Officer.Note)

	flagged = false
	rec, err = f.env.StandingSvc.Flag(context.Background(), f.rec.ID, f.officer, standing.FlagRequest{Stage: "officer", Flagged: &flagged})
	require.NoError(t, err)
	assert.False(t, rec.Officer.Flagged)
	assert.Equal(t, "missing CA for PHY101", rec.Officer.Note)
}

func TestService_Flag_keepsApprover(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	colleague := f.env.User(t, "officer2", user.RoleOfficer, f.rec.DepartmentID)
	flag := func(flagged bool) standing.Record {
		rec, err := f.env.StandingSvc.Flag(ctx, f.rec.ID, colleague, standing.FlagRequest{Stage: "officer", Flagged: &flagged})
		require.NoError(t, err)
		return rec
	}

	rec := flag(true)
	assert.Equal(t, colleague.ID, rec.Officer.Approver.ID, "nobody approved yet, the flagger is recorded")

	_, err := f.decide(f.officer, standing.StageOfficer, true)
	require.NoError(t, err)

	rec = flag(false)
	assert.False(t, rec.Officer.Flagged)
	assert.True(t, rec.Officer.Approved)
	assert.Equal(t, f.officer.ID, rec.Officer.Approver.ID)
	assert.Equal(t, f.officer.Name, rec.Officer.Approver.Name)
}

func TestService_recomputeKeepsApprovals(t *testing.T) {
	f := newApprovalFixture(t)
	_, err := f.decide(f.officer, standing.StageOfficer, true)
	require.NoError(t, err)

	course := f.env.Course(t, "PHY102", 2, f.rec.DepartmentID)
	f.env.Score(t, f.rec.Key, course.ID, 80)

	rec, err := f.env.StandingSvc.Get(context.Background(), f.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.TCC)
	assert.True(t, rec.Officer.Approved)
}

func TestService_Pending_access(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	_, err := f.env.StandingSvc.Pending(ctx, f.officer, standing.PendingQuery{Stage: "dean"})
	assert.IsType(t, &core.AuthorizationError{}, errors.Cause(err))

	_, err = f.env.StandingSvc.Pending(ctx, f.admin, standing.PendingQuery{})
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))

	recs, err := f.env.StandingSvc.Pending(ctx, f.admin, standing.PendingQuery{Stage: "officer", Session: "2023/2024", Semester: "first"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = f.env.StandingSvc.Pending(ctx, f.officer, standing.PendingQuery{Semester: "second"})
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = f.env.StandingSvc.Pending(ctx, user.User{Roles: []string{}}, standing.PendingQuery{})
	assert.IsType(t, &core.AuthorizationError{}, errors.Cause(err))
}
