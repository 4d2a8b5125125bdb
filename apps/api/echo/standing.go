package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/user"
)

type standingApi struct {
	*server
}

func registerStandingAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := standingApi{s}
	approvers := s.auth.roleMiddleware(user.RoleOfficer, user.RoleHOD, user.RoleDean)

	sg := g.Group("/standings", jwt)
	sg.GET("", api.retrieveByKey)
	sg.POST("/recompute", api.recompute, s.auth.adminMiddleware())
	sg.GET("/pending", api.pending, approvers)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/decision", api.decide, approvers)
	sg.POST("/:id/flag", api.flag, approvers)
}

type (
	StandingQuery struct {
		StudentID string `json:"student_id" query:"student_id" validate:"required"`
		Session   string `json:"session" query:"session" validate:"required,session"`
		Semester  string `json:"semester" query:"semester" validate:"required,semester"`
		Level     string `json:"level" query:"level" validate:"required,level"`
	}

	RecomputeRequest struct {
		Keys []StandingQuery `json:"keys" validate:"required,min=1,dive"`
	}
)

func (q *StandingQuery) Clean() {
	q.StudentID = core.CleanString(q.StudentID)
	q.Session = core.CleanString(q.Session)
	q.Semester = core.CleanString(q.Semester, true /* lower */)
	q.Level = core.CleanString(q.Level)
}

func (q StandingQuery) key() grading.Key {
	return grading.Key{
		StudentID: q.StudentID,
		Session:   q.Session,
		Semester:  grading.Semester(q.Semester),
		Level:     grading.Level(q.Level),
	}
}

func (r *RecomputeRequest) Clean() {
	for i := range r.Keys {
		r.Keys[i].Clean()
	}
}

func (api standingApi) retrieve(ctx echo.Context) error {
	rec, err := api.deps.StandingSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding standing")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api standingApi) retrieveByKey(ctx echo.Context) error {
	var q StandingQuery
	if err := api.bind(ctx, &q); err != nil {
		return err
	}
	rec, err := api.deps.StandingSvc.GetByKey(ctx.Request().Context(), q.key())
	if err != nil {
		return errors.Wrap(err, "finding standing")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api standingApi) recompute(ctx echo.Context) error {
	var data RecomputeRequest
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	keys := make([]grading.Key, 0, len(data.Keys))
	for _, q := range data.Keys {
		keys = append(keys, q.key())
	}
	if err := api.deps.StandingSvc.Recompute(ctx.Request().Context(), keys...); err != nil {
		return errors.Wrap(err, "recomputing standings")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api standingApi) pending(ctx echo.Context) error {
	var q standing.PendingQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to PendingQuery")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	recs, err := api.deps.StandingSvc.Pending(ctx.Request().Context(), usr, q)
	if err != nil {
		return errors.Wrap(err, "querying pending standings")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api standingApi) decide(ctx echo.Context) error {
	var data standing.Decision
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	rec, err := api.deps.StandingSvc.Decide(ctx.Request().Context(), ctx.Param("id"), usr, data)
	if err != nil {
		return errors.Wrap(err, "deciding standing")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api standingApi) flag(ctx echo.Context) error {
	var data standing.FlagRequest
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	rec, err := api.deps.StandingSvc.Flag(ctx.Request().Context(), ctx.Param("id"), usr, data)
	if err != nil {
		return errors.Wrap(err, "flagging standing")
	}
	return ctx.JSON(http.StatusOK, rec)
}
