package sqlxrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
	"github.com/trezcool/examoffice/storage/database"
	sqlxrepos "github.com/trezcool/examoffice/storage/database/sqlx"
)

// prepareDB migrates the database at TEST_DATABASE_URL and empties it.
func prepareDB(t *testing.T) *sqlxrepos.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.OpenURL(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB))
	_, err = db.Exec(`TRUNCATE sessions, standings, results, registrations, courses, students, users, departments, colleges RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return sqlxrepos.New(db)
}

func department(t *testing.T, db *sqlxrepos.DB) institution.Department {
	t.Helper()
	ctx := context.Background()
	repo := sqlxrepos.NewInstitutionRepository(db)
	col, err := repo.CreateCollege(ctx, institution.College{Name: "Sciences"})
	require.NoError(t, err)
	dep, err := repo.CreateDepartment(ctx, institution.Department{Name: "Physics", CollegeID: col.ID})
	require.NoError(t, err)
	return dep
}

func newStudent(t *testing.T, db *sqlxrepos.DB, matricNo string, level grading.Level, dep institution.DepartmentID) student.Student {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	s, err := sqlxrepos.NewStudentRepository(db).CreateStudent(context.Background(), student.Student{
		ID:           uuid.NewString(),
		MatricNo:     matricNo,
		Level:        level,
		Status:       student.StatusUndergraduate,
		IsActive:     true,
		DepartmentID: dep,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	return s
}

func TestUserRepository(t *testing.T) {
	db := prepareDB(t)
	ctx := context.Background()
	repo := sqlxrepos.NewUserRepository(db)
	dep := department(t, db)

	now := time.Now().UTC()
	usr, err := repo.CreateUser(ctx, user.User{
		Name:         "Ada",
		Username:     "ada",
		Email:        "ada@example.com",
		IsActive:     true,
		Roles:        []string{user.RoleOfficer},
		DepartmentID: dep.ID,
		CollegeID:    dep.CollegeID,
		PasswordHash: []byte("hash"),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	assert.NotZero(t, usr.ID)

	tests := []struct {
		name     string
		username string
		email    string
		excluded []user.User
		wantErr  error
	}{
		{name: "username taken", username: "ada", email: "other@example.com", wantErr: user.ErrUsernameExists},
		{name: "email taken", username: "other", email: "ada@example.com", wantErr: user.ErrEmailExists},
		{name: "self excluded", username: "ada", email: "ada@example.com", excluded: []user.User{usr}},
		{name: "free", username: "other", email: "other@example.com"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantErr, repo.CheckUsernameUniqueness(ctx, tc.username, tc.email, tc.excluded...))
		})
	}

	got, err := repo.GetUserByUsernameOrEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, dep.ID, got.DepartmentID)
	assert.Equal(t, []string{user.RoleOfficer}, got.Roles)

	got.Roles = nil
	got.Name = "Ada L."
	updated, err := repo.UpdateUser(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.Name)
	assert.Equal(t, []string{user.RoleOfficer}, updated.Roles, "unset roles are kept")

	_, err = repo.GetUserByID(ctx, usr.ID+1)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestStandingRepository(t *testing.T) {
	db := prepareDB(t)
	ctx := context.Background()
	repo := sqlxrepos.NewStandingRepository(db)
	dep := department(t, db)
	stud := newStudent(t, db, "phy/001", grading.Level100, dep.ID)

	now := time.Now().UTC().Truncate(time.Microsecond)
	upsert := func(session string, sem grading.Semester, level grading.Level, tcc int) standing.Record {
		t.Helper()
		year, err := grading.ParseSession(session)
		require.NoError(t, err)
		rec, err := repo.UpsertMetrics(ctx, standing.Record{
			ID:           uuid.NewString(),
			Key:          grading.Key{StudentID: stud.ID, Session: session, Semester: sem, Level: level},
			Year:         year,
			DepartmentID: dep.ID,
			CollegeID:    dep.CollegeID,
			Standing:     grading.Standing{TCC: tcc, TCE: tcc, TPE: tcc * 4, GPA: 4, Cumulative: grading.Cumulative{CCC: tcc}},
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		require.NoError(t, err)
		return rec
	}

	first := upsert("2022/2023", grading.SemesterFirst, grading.Level100, 10)
	upsert("2022/2023", grading.SemesterSecond, grading.Level100, 12)
	current := upsert("2023/2024", grading.SemesterFirst, grading.Level200, 9)

	approved, err := repo.UpdateApproval(ctx, first.ID, standing.StageOfficer, standing.ApprovalSnapshot{
		Approved:  true,
		Approver:  standing.Approver{ID: 7, Name: "Officer", DepartmentID: dep.ID},
		Note:      "ok",
		UpdatedAt: null.TimeFrom(now),
	})
	require.NoError(t, err)
	assert.True(t, approved.Officer.Approved)
	assert.Equal(t, "ok", approved.Officer.Note)
	assert.False(t, approved.HOD.Approved)

	again := upsert("2022/2023", grading.SemesterFirst, grading.Level100, 11)
	assert.Equal(t, first.ID, again.ID, "upsert keeps the identity of the record")
	assert.Equal(t, 11, again.TCC)
	assert.True(t, again.Officer.Approved, "metric writes leave approvals alone")

	prev, err := repo.LatestBefore(ctx, stud.ID, current.Term())
	require.NoError(t, err)
	assert.Equal(t, grading.SemesterSecond, prev.Semester)
	_, err = repo.LatestBefore(ctx, stud.ID, first.Term())
	assert.Equal(t, standing.ErrNotFound, errors.Cause(err))

	hodQueue, err := repo.QueryPending(ctx, standing.PendingFilter{Stage: standing.StageHOD, DepartmentID: dep.ID})
	require.NoError(t, err)
	require.Len(t, hodQueue, 1)
	assert.Equal(t, first.ID, hodQueue[0].ID)

	officerQueue, err := repo.QueryPending(ctx, standing.PendingFilter{Stage: standing.StageOfficer, Session: "2022/2023"})
	require.NoError(t, err)
	assert.Len(t, officerQueue, 1)

	counts, err := repo.CountBySession(ctx, "2022/2023")
	require.NoError(t, err)
	assert.Equal(t, []standing.SemesterCount{
		{Semester: grading.SemesterFirst, Total: 1},
		{Semester: grading.SemesterSecond, Total: 1},
	}, counts)

	require.NoError(t, repo.DeleteByKey(ctx, current.Key))
	assert.Equal(t, standing.ErrNotFound, repo.DeleteByKey(ctx, current.Key))
}

func TestSessionRepository_transaction(t *testing.T) {
	db := prepareDB(t)
	ctx := context.Background()
	repo := sqlxrepos.NewSessionRepository(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	s, err := repo.CreateSession(ctx, session.Session{
		ID: uuid.NewString(), Name: "2023/2024", Year: 2023, IsCurrent: true, Status: session.StatusActive,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = repo.CreateSession(ctx, session.Session{ID: uuid.NewString(), Name: "2023/2024", Year: 2023, CreatedAt: now, UpdatedAt: now})
	assert.Equal(t, session.ErrExists, err)

	rollback := errors.New("rollback")
	err = db.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := repo.GetSessionForUpdate(ctx, s.ID)
		if err != nil {
			return err
		}
		locked.Status = session.StatusCompleted
		locked.PromotionStats = &session.Stats{Graduated: 1, TotalProcessed: 1}
		if err := repo.MarkCompleted(ctx, locked); err != nil {
			return err
		}
		return rollback
	})
	assert.Equal(t, rollback, err)
	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status, "the transaction was rolled back")

	s.Status = session.StatusCompleted
	s.IsCurrent = false
	s.PromotionStats = &session.Stats{Promoted100To200: 3, ExtraYear: 1, TotalProcessed: 4}
	s.ClosedAt = null.TimeFrom(now)
	s.ClosedBy = null.StringFrom("admin")
	require.NoError(t, db.WithinTx(ctx, func(ctx context.Context) error { return repo.MarkCompleted(ctx, s) }))

	got, err = repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed())
	assert.Equal(t, s.PromotionStats, got.PromotionStats)
	assert.Equal(t, "admin", got.ClosedBy.String)
}
