// Package di wires the application's dependencies over PostgreSQL.
package di

import (
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
	emailsvc "github.com/trezcool/examoffice/services/email"
	locksvc "github.com/trezcool/examoffice/services/lock"
	logsvc "github.com/trezcool/examoffice/services/logger"
	"github.com/trezcool/examoffice/storage/database"
	sqlxrepos "github.com/trezcool/examoffice/storage/database/sqlx"
)

type orchestratorParams struct {
	dig.In

	Repo      standing.Repository
	Students  student.Repository
	Results   result.Repository
	Directory *institution.Directory
	Locker    standing.KeyLocker
	Logger    core.Logger
	Metrics   *standing.Metrics
}

type sessionParams struct {
	dig.In

	Conf       *core.Config
	Repo       session.Repository
	Standings  standing.Repository
	Students   student.Repository
	Results    result.Repository
	Transactor core.Transactor
	Mailer     core.EmailService
	Logger     core.Logger
	Metrics    *session.Metrics
}

// newDB creates the database and its application role when missing, then connects.
// Migrations are left to the caller.
func newDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	return database.Open(conf)
}

func newRegistry(conf *core.Config, db *sqlx.DB) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, conf.Database.Name),
	)
	return reg
}

// newLocker serializes standing recomputes across instances when Redis is configured,
// and within the process otherwise.
func newLocker(conf *core.Config, logger core.Logger) (standing.KeyLocker, error) {
	if conf.Redis.Addr == "" {
		return standing.NewLocalLocker(), nil
	}
	client, err := locksvc.NewRedisClient(conf)
	if err != nil {
		return nil, err
	}
	return locksvc.NewRedisLocker(client, conf.Redis.LockTTL, logger), nil
}

func newOrchestrator(p orchestratorParams) *standing.Orchestrator {
	return standing.NewOrchestrator(standing.OrchestratorDeps{
		Repo:      p.Repo,
		Assembler: standing.NewAssembler(p.Students, p.Results),
		Resolver:  standing.NewResolver(p.Repo),
		Students:  p.Students,
		Colleges:  p.Directory,
		Locker:    p.Locker,
		Logger:    p.Logger,
		Metrics:   p.Metrics,
	})
}

func newStudentService(repo student.Repository, o *standing.Orchestrator, logger core.Logger) *student.Service {
	return student.NewService(repo, o, logger)
}

func newResultService(repo result.Repository, students student.Repository, o *standing.Orchestrator, logger core.Logger) *result.Service {
	return result.NewService(repo, students, o, logger)
}

func newSessionService(p sessionParams) *session.Service {
	return session.NewService(session.Deps{
		Repo:       p.Repo,
		Standings:  p.Standings,
		Cohort:     p.Students,
		History:    p.Results,
		Transactor: p.Transactor,
		Mailer:     p.Mailer,
		Logger:     p.Logger,
		Metrics:    p.Metrics,
		Conf:       p.Conf,
	})
}

// New returns a new dependency injection dig.Container built around conf.
func New(conf *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(func() *core.Config { return conf }))
	must(c.Provide(logsvc.New))
	must(c.Provide(emailsvc.NewService))

	// storage
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.New))
	must(c.Provide(func(db *sqlxrepos.DB) core.Transactor { return db }))
	must(c.Provide(sqlxrepos.NewInstitutionRepository, dig.As(new(institution.Repository))))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(sqlxrepos.NewResultRepository, dig.As(new(result.Repository))))
	must(c.Provide(sqlxrepos.NewStandingRepository, dig.As(new(standing.Repository))))
	must(c.Provide(sqlxrepos.NewSessionRepository, dig.As(new(session.Repository))))

	// metrics
	must(c.Provide(newRegistry))
	must(c.Provide(func(reg *prometheus.Registry) prometheus.Registerer { return reg }))
	must(c.Provide(func(reg *prometheus.Registry) prometheus.Gatherer { return reg }))
	must(c.Provide(standing.NewMetrics))
	must(c.Provide(session.NewMetrics))

	// services
	must(c.Provide(newLocker))
	must(c.Provide(institution.NewDirectory))
	must(c.Provide(newOrchestrator))
	must(c.Provide(user.NewService))
	must(c.Provide(newStudentService))
	must(c.Provide(newResultService))
	must(c.Provide(standing.NewService))
	must(c.Provide(newSessionService))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
