package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core/session"
)

type sessionApi struct {
	*server
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := sessionApi{s}

	sg := g.Group("/sessions", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create, s.auth.adminMiddleware())
	sg.GET("/current", api.current)
	sg.GET("/:id", api.retrieve)
	sg.GET("/:id/readiness", api.readiness)
	sg.POST("/:id/close", api.close)
}

func (api sessionApi) create(ctx echo.Context) error {
	var data session.NewSession
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	sess, err := api.deps.SessionSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api sessionApi) query(ctx echo.Context) error {
	sessions, err := api.deps.SessionSvc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api sessionApi) current(ctx echo.Context) error {
	sess, err := api.deps.SessionSvc.Current(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "finding current session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api sessionApi) retrieve(ctx echo.Context) error {
	sess, err := api.deps.SessionSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api sessionApi) readiness(ctx echo.Context) error {
	rd, err := api.deps.SessionSvc.Readiness(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking session readiness")
	}
	return ctx.JSON(http.StatusOK, rd)
}

// close promotes the cohort and completes the session. Only admins get past the service check.
func (api sessionApi) close(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	sess, err := api.deps.SessionSvc.Close(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "closing session")
	}
	return ctx.JSON(http.StatusOK, sess)
}
