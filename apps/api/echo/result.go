package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/result"
)

type resultApi struct {
	*server
}

func registerResultAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := resultApi{s}

	rg := g.Group("/results", jwt, s.auth.adminMiddleware())
	rg.GET("", api.query)
	rg.POST("", api.create)
	rg.DELETE("", api.deleteMany)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update)
	rg.DELETE("/:id", api.delete)
	rg.POST("/:id/moderation", api.requestModeration)
	rg.POST("/:id/moderation/approve", api.approveModeration)
	rg.POST("/:id/moderation/reject", api.rejectModeration)

	g.DELETE("/courses/:id/results", api.deleteByCourse, jwt, s.auth.adminMiddleware())
}

type (
	ResultQuery struct {
		StudentID string `query:"student_id"`
		CourseID  string `query:"course_id"`
		Session   string `query:"session"`
		Semester  string `query:"semester"`
		Level     string `query:"level"`
	}

	DeleteResults struct {
		IDs []string `query:"id" validate:"required,min=1"`
	}

	DeleteCourseResults struct {
		CourseID string `param:"id" validate:"required"`
		Session  string `query:"session" validate:"required,session"`
		Semester string `query:"semester" validate:"required,semester"`
	}

	DeletedResponse struct {
		Deleted int `json:"deleted"`
	}
)

func (api resultApi) query(ctx echo.Context) error {
	var q ResultQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to ResultQuery")
	}
	results, err := api.deps.ResultSvc.Query(ctx.Request().Context(), result.Filter{
		StudentID: q.StudentID,
		CourseID:  q.CourseID,
		Session:   q.Session,
		Semester:  grading.Semester(q.Semester),
		Level:     grading.Level(q.Level),
	})
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api resultApi) create(ctx echo.Context) error {
	var data result.NewResult
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	res, err := api.deps.ResultSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating result")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api resultApi) retrieve(ctx echo.Context) error {
	res, err := api.deps.ResultSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api resultApi) update(ctx echo.Context) error {
	var data result.UpdateResult
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	res, err := api.deps.ResultSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api resultApi) delete(ctx echo.Context) error {
	if err := api.deps.ResultSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting result")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// deleteMany deletes the results listed as `?id=..&id=..`.
func (api resultApi) deleteMany(ctx echo.Context) error {
	var data DeleteResults
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	if err := api.deps.ResultSvc.DeleteMany(ctx.Request().Context(), data.IDs...); err != nil {
		return errors.Wrap(err, "deleting results")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api resultApi) deleteByCourse(ctx echo.Context) error {
	var data DeleteCourseResults
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	n, err := api.deps.ResultSvc.DeleteByCourse(ctx.Request().Context(), data.CourseID, data.Session, data.Semester)
	if err != nil {
		return errors.Wrap(err, "deleting course results")
	}
	return ctx.JSON(http.StatusOK, DeletedResponse{Deleted: n})
}

func (api resultApi) requestModeration(ctx echo.Context) error {
	var data result.ModerationRequest
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	res, err := api.deps.ResultSvc.RequestModeration(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "requesting moderation")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api resultApi) approveModeration(ctx echo.Context) error {
	res, err := api.deps.ResultSvc.ApproveModeration(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving moderation")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api resultApi) rejectModeration(ctx echo.Context) error {
	res, err := api.deps.ResultSvc.RejectModeration(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting moderation")
	}
	return ctx.JSON(http.StatusOK, res)
}
