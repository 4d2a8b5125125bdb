package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
)

type (
	Deps struct {
		Conf   *core.Config
		Logger core.Logger

		Directory   *institution.Directory
		UserSvc     *user.Service
		StudentSvc  *student.Service
		ResultSvc   *result.Service
		StandingSvc *standing.Service
		SessionSvc  *session.Service

		// Gatherer backs `GET /metrics`; the route is not registered when nil.
		Gatherer prometheus.Gatherer

		DisableReqLogs bool
		// Shutdown receives SIGTERM when a handler hits a shutdown error.
		Shutdown chan os.Signal
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		deps       Deps
		app        *echo.Echo
		auth       *authenticator
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Server = (*server)(nil)

func NewServer(deps Deps) Server {
	if deps.Logger == nil {
		deps.Logger = core.NopLogger{}
	}
	s := &server{
		deps:       deps,
		app:        echo.New(),
		auth:       newAuthenticator(deps.Conf, deps.UserSvc),
		validate:   validator.New(),
		translator: core.NewTranslator(),
	}
	core.InitValidators(s.validate, s.translator)
	grading.RegisterValidators(s.validate, s.translator)
	user.RegisterValidators(s.validate, s.translator)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if s.deps.Gatherer != nil {
		s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.app.Group("/v1")
	jwt := s.auth.middleware()

	registerUserAPI(v1, jwt, s)
	registerDirectoryAPI(v1, jwt, s)
	registerResultAPI(v1, jwt, s)
	registerStandingAPI(v1, jwt, s)
	registerSessionAPI(v1, jwt, s)
}

func (s *server) Start() error {
	s.app.Server.ReadTimeout = s.deps.Conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = s.deps.Conf.Server.WriteTimeout
	return s.app.Start(s.deps.Conf.Server.Host)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) signalShutdown() {
	if s.deps.Shutdown != nil {
		s.deps.Shutdown <- syscall.SIGTERM
	}
}

// bind decodes the request into data, cleans it when it knows how, and validates its struct tags.
func (s *server) bind(ctx echo.Context, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if c, ok := data.(interface{ Clean() }); ok {
		c.Clean()
	}
	return s.validate.Struct(data)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
