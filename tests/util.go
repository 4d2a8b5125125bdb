// Package testutil wires the services over the in-memory database and creates fixtures.
package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
	emailsvc "github.com/trezcool/examoffice/services/email"
	inmemdb "github.com/trezcool/examoffice/storage/database/inmem"
)

type Env struct {
	Conf *core.Config
	DB   *inmemdb.DB

	UserRepo     user.Repository
	StudentRepo  student.Repository
	ResultRepo   result.Repository
	StandingRepo standing.Repository
	SessionRepo  session.Repository

	Directory    *institution.Directory
	Orchestrator *standing.Orchestrator
	UserSvc      *user.Service
	StudentSvc   *student.Service
	ResultSvc    *result.Service
	StandingSvc  *standing.Service
	SessionSvc   *session.Service
	Mailer       core.EmailService
}

func NewConfig() *core.Config {
	return &core.Config{
		Env:                "TEST",
		AppName:            "Exam Office",
		TestMode:           true,
		SecretKey:          "test-secret",
		JWTExpirationDelta: time.Hour,
		PromotionBatchSize: 2,
		Cache:              core.CacheConfig{SessionTTL: time.Minute, DepartmentTTL: time.Minute, MaxEntries: 64},
		Mail: core.MailConfig{
			DefaultFrom:     mail.Address{Name: "Exam Office", Address: "noreply@example.com"},
			RegistrarEmails: []mail.Address{{Name: "Registrar", Address: "registrar@example.com"}},
		},
	}
}

// NewEnv returns services sharing a fresh in-memory database.
func NewEnv() *Env {
	conf := NewConfig()
	db := inmemdb.Open()
	logger := core.NopLogger{}

	env := &Env{
		Conf:         conf,
		DB:           db,
		UserRepo:     inmemdb.NewUserRepository(db),
		StudentRepo:  inmemdb.NewStudentRepository(db),
		ResultRepo:   inmemdb.NewResultRepository(db),
		StandingRepo: inmemdb.NewStandingRepository(db),
		SessionRepo:  inmemdb.NewSessionRepository(db),
		Directory:    institution.NewDirectory(inmemdb.NewInstitutionRepository(db), conf),
		Mailer:       emailsvc.NewConsoleServiceMock(conf),
	}

	env.Orchestrator = standing.NewOrchestrator(standing.OrchestratorDeps{
		Repo:      env.StandingRepo,
		Assembler: standing.NewAssembler(env.StudentRepo, env.ResultRepo),
		Resolver:  standing.NewResolver(env.StandingRepo),
		Students:  env.StudentRepo,
		Colleges:  env.Directory,
		Logger:    logger,
	})
	env.UserSvc = user.NewService(env.UserRepo)
	env.StudentSvc = student.NewService(env.StudentRepo, env.Orchestrator, logger)
	env.ResultSvc = result.NewService(env.ResultRepo, env.StudentRepo, env.Orchestrator, logger)
	env.StandingSvc = standing.NewService(env.StandingRepo, env.Orchestrator, nil)
	env.SessionSvc = session.NewService(session.Deps{
		Repo:       env.SessionRepo,
		Standings:  env.StandingRepo,
		Cohort:     env.StudentRepo,
		History:    env.ResultRepo,
		Transactor: db,
		Mailer:     env.Mailer,
		Logger:     logger,
		Conf:       conf,
	})
	return env
}

// Department creates a college and one of its departments.
func (env *Env) Department(t *testing.T, name string) institution.Department {
	t.Helper()
	ctx := context.Background()
	col, err := env.Directory.CreateCollege(ctx, "College of "+name)
	if err != nil {
		t.Fatalf("CreateCollege() failed: %v", err)
	}
	dep, err := env.Directory.CreateDepartment(ctx, name, col.ID)
	if err != nil {
		t.Fatalf("CreateDepartment() failed: %v", err)
	}
	return dep
}

func (env *Env) Student(t *testing.T, matricNo string, level grading.Level, dep institution.DepartmentID) student.Student {
	t.Helper()
	now := time.Now().UTC()
	stud, err := env.StudentRepo.CreateStudent(context.Background(), student.Student{
		ID:           uuid.NewString(),
		MatricNo:     matricNo,
		Name:         "Student " + matricNo,
		Level:        level,
		Status:       student.StatusUndergraduate,
		IsActive:     true,
		DepartmentID: dep,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return stud
}

func (env *Env) Course(t *testing.T, code string, unit int, dep institution.DepartmentID) student.Course {
	t.Helper()
	course, err := env.StudentRepo.CreateCourse(context.Background(), student.Course{
		ID:           uuid.NewString(),
		Code:         code,
		Title:        "Course " + code,
		Unit:         unit,
		DepartmentID: dep,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return course
}

// Score records a total for the student in the course through the result service, which recomputes the standing.
func (env *Env) Score(t *testing.T, key grading.Key, courseID string, total float64) result.Result {
	t.Helper()
	res, err := env.ResultSvc.Create(context.Background(), result.NewResult{
		StudentID: key.StudentID,
		CourseID:  courseID,
		Session:   key.Session,
		Semester:  string(key.Semester),
		Level:     string(key.Level),
		Total:     &total,
	})
	if err != nil {
		t.Fatalf("Score() failed: %v", err)
	}
	return res
}

// Register registers the student for the courses through the student service, which recomputes the standing.
func (env *Env) Register(t *testing.T, key grading.Key, courseIDs ...string) {
	t.Helper()
	_, err := env.StudentSvc.Register(context.Background(), student.NewRegistration{
		StudentID: key.StudentID,
		CourseIDs: courseIDs,
		Session:   key.Session,
		Semester:  string(key.Semester),
		Level:     string(key.Level),
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
}

func (env *Env) User(t *testing.T, username string, role string, dep institution.DepartmentID) user.User {
	t.Helper()
	var col institution.CollegeID
	if dep != 0 {
		d, err := env.Directory.Department(context.Background(), dep)
		if err != nil {
			t.Fatalf("Department() failed: %v", err)
		}
		col = d.CollegeID
	}
	now := time.Now().UTC()
	usr := user.User{
		Name:         "User " + username,
		Username:     username,
		Email:        username + "@example.com",
		IsActive:     true,
		Roles:        []string{role},
		DepartmentID: dep,
		CollegeID:    col,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword("Str0ng!pwd"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := env.UserRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// ApproveAll signs off the standing at every stage as admin.
func (env *Env) ApproveAll(t *testing.T, admin user.User, id string) standing.Record {
	t.Helper()
	approve := true
	var rec standing.Record
	for _, stage := range standing.Stages {
		var err error
		rec, err = env.StandingSvc.Decide(context.Background(), id, admin, standing.Decision{Stage: string(stage), Approve: &approve})
		if err != nil {
			t.Fatalf("Decide(%s) failed: %v", stage, err)
		}
	}
	return rec
}
