package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/user"
)

const errNoPermsToSetRoles = "not enough rights to set these roles"

type userApi struct {
	*server
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := userApi{s}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.GET("/me", api.me)
	ag.GET("", api.query, s.auth.adminMiddleware())
	ag.POST("", api.create, s.auth.adminMiddleware())
	ag.GET("/roles", api.queryRoles, s.auth.adminMiddleware())
}

// Handlers

func (api userApi) login(ctx echo.Context) error {
	var data user.LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	data.Username = core.CleanString(data.Username, true /* lower */)
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	token, err := api.auth.login(ctx, data.Username, data.Password)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api userApi) me(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate, api.deps.UserSvc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err := api.deps.UserSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api userApi) query(ctx echo.Context) error {
	users, err := api.deps.UserSvc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

type LoginResponse struct {
	Token string `json:"token"`
}
