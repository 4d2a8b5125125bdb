package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/student"
)

type directoryApi struct {
	*server
}

// registerDirectoryAPI exposes colleges, departments, students, courses and registrations.
// Every write is admin only.
func registerDirectoryAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := directoryApi{s}
	admin := s.auth.adminMiddleware()

	g.POST("/colleges", api.createCollege, jwt, admin)
	g.POST("/departments", api.createDepartment, jwt, admin)
	g.GET("/departments/:id", api.retrieveDepartment, jwt)
	g.PUT("/departments/:id/college", api.moveDepartment, jwt, admin)

	g.POST("/students", api.createStudent, jwt, admin)
	g.GET("/students/:id", api.retrieveStudent, jwt)
	g.POST("/courses", api.createCourse, jwt, admin)

	g.POST("/registrations", api.register, jwt, admin)
}

type (
	NewCollege struct {
		Name string `json:"name" validate:"required"`
	}

	NewDepartment struct {
		Name      string                `json:"name" validate:"required"`
		CollegeID institution.CollegeID `json:"college_id" validate:"required"`
	}

	MoveDepartment struct {
		CollegeID institution.CollegeID `json:"college_id" validate:"required"`
	}

	NewStudent struct {
		MatricNo     string                   `json:"matric_no" validate:"required"`
		Name         string                   `json:"name" validate:"required"`
		Level        string                   `json:"level" validate:"required,level"`
		DepartmentID institution.DepartmentID `json:"department_id" validate:"required"`
	}

	NewCourse struct {
		Code         string                   `json:"code" validate:"required"`
		Title        string                   `json:"title"`
		Unit         int                      `json:"unit" validate:"min=0"`
		DepartmentID institution.DepartmentID `json:"department_id" validate:"required"`
	}
)

func departmentParam(ctx echo.Context) (institution.DepartmentID, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errors.Wrap(institution.ErrNotFound, ctx.Param("id"))
	}
	return institution.DepartmentID(id), nil
}

func (api directoryApi) createCollege(ctx echo.Context) error {
	var data NewCollege
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	col, err := api.deps.Directory.CreateCollege(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating college")
	}
	return ctx.JSON(http.StatusCreated, col)
}

func (api directoryApi) createDepartment(ctx echo.Context) error {
	var data NewDepartment
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	dep, err := api.deps.Directory.CreateDepartment(ctx.Request().Context(), data.Name, data.CollegeID)
	if err != nil {
		return errors.Wrap(err, "creating department")
	}
	return ctx.JSON(http.StatusCreated, dep)
}

func (api directoryApi) retrieveDepartment(ctx echo.Context) error {
	id, err := departmentParam(ctx)
	if err != nil {
		return err
	}
	dep, err := api.deps.Directory.Department(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding department")
	}
	return ctx.JSON(http.StatusOK, dep)
}

func (api directoryApi) moveDepartment(ctx echo.Context) error {
	id, err := departmentParam(ctx)
	if err != nil {
		return err
	}
	var data MoveDepartment
	if err = api.bind(ctx, &data); err != nil {
		return err
	}
	dep, err := api.deps.Directory.MoveDepartment(ctx.Request().Context(), id, data.CollegeID)
	if err != nil {
		return errors.Wrap(err, "moving department")
	}
	return ctx.JSON(http.StatusOK, dep)
}

func (api directoryApi) createStudent(ctx echo.Context) error {
	var data NewStudent
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if _, err := api.deps.Directory.Department(rctx, data.DepartmentID); err != nil {
		return errors.Wrap(err, "finding department")
	}
	stud, err := api.deps.StudentSvc.CreateStudent(rctx, student.Student{
		MatricNo:     data.MatricNo,
		Name:         data.Name,
		Level:        grading.Level(data.Level),
		DepartmentID: data.DepartmentID,
	})
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, stud)
}

func (api directoryApi) retrieveStudent(ctx echo.Context) error {
	stud, err := api.deps.StudentSvc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, stud)
}

func (api directoryApi) createCourse(ctx echo.Context) error {
	var data NewCourse
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if _, err := api.deps.Directory.Department(rctx, data.DepartmentID); err != nil {
		return errors.Wrap(err, "finding department")
	}
	course, err := api.deps.StudentSvc.CreateCourse(rctx, student.Course{
		Code:         data.Code,
		Title:        data.Title,
		Unit:         data.Unit,
		DepartmentID: data.DepartmentID,
	})
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

// register records course registrations and refreshes the term's standing.
func (api directoryApi) register(ctx echo.Context) error {
	var data student.NewRegistration
	if err := api.bind(ctx, &data); err != nil {
		return err
	}
	regs, err := api.deps.StudentSvc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering courses")
	}
	return ctx.JSON(http.StatusCreated, regs)
}
