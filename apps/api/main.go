package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/examoffice/apps/api/echo"
	"github.com/trezcool/examoffice/apps/di"
	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
	"github.com/trezcool/examoffice/storage/database"
)

type app struct {
	dig.In

	Conf     *core.Config
	Logger   core.Logger
	DB       *sqlx.DB
	Gatherer prometheus.Gatherer

	Directory   *institution.Directory
	UserSvc     *user.Service
	StudentSvc  *student.Service
	ResultSvc   *result.Service
	StandingSvc *standing.Service
	SessionSvc  *session.Service
}

func main() {
	conf := core.NewConfig()
	if err := di.New(conf).Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "starting: %v\n", err)
		os.Exit(1)
	}
}

func run(a app) {
	logger := a.Logger

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Info(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Error("setting GOMAXPROCS", err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", a.Conf.Build))
	defer logger.Info("Application stopped")

	defer func() {
		if err := a.DB.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	if err := database.Migrate(a.DB.DB); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(a.Conf.Build)
	expvar.NewString("env").Set(a.Conf.Env)

	go func() {
		if err := http.ListenAndServe(a.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(echoapi.Deps{
		Conf:        a.Conf,
		Logger:      logger,
		Directory:   a.Directory,
		UserSvc:     a.UserSvc,
		StudentSvc:  a.StudentSvc,
		ResultSvc:   a.ResultSvc,
		StandingSvc: a.StandingSvc,
		SessionSvc:  a.SessionSvc,
		Gatherer:    a.Gatherer,
		Shutdown:    shutdown,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API listening on " + a.Conf.Server.Host)
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), a.Conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}
