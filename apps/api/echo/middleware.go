package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/examoffice/core/user"
)

// roleMiddleware lets through the users holding any of roles. Admins always pass.
func (a *authenticator) roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := a.contextUser(ctx)
			if err != nil {
				return err
			}
			if usr.IsAdmin() {
				return next(ctx)
			}
			for _, role := range roles {
				if usr.RoleStartsWith(role) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func (a *authenticator) adminMiddleware() echo.MiddlewareFunc {
	return a.roleMiddleware(user.RoleAdmin)
}
