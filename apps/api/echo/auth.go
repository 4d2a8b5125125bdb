package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
// Roles and scope are informative: handlers act on the user loaded from storage.
type Claims struct {
	jwt.StandardClaims
	Username     string                   `json:"username,omitempty"`
	Email        string                   `json:"email,omitempty"`
	Roles        []string                 `json:"roles,omitempty"`
	DepartmentID institution.DepartmentID `json:"department_id,omitempty"`
	CollegeID    institution.CollegeID    `json:"college_id,omitempty"`
}

type authenticator struct {
	conf   *core.Config
	svc    *user.Service
	config middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, svc *user.Service) *authenticator {
	return &authenticator{
		conf: conf,
		svc:  svc,
		config: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a *authenticator) middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.config)
}

func (a *authenticator) claimsOf(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   strconv.Itoa(usr.ID),
			ExpiresAt: now.Add(a.conf.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username:     usr.Username,
		Email:        usr.Email,
		Roles:        usr.Roles,
		DepartmentID: usr.DepartmentID,
		CollegeID:    usr.CollegeID,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(a.config.SigningMethod), claims)
	ss, err := token.SignedString(a.config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) login(ctx echo.Context, uname, pwd string) (string, error) {
	usr, err := a.svc.GetByUsernameOrEmail(ctx.Request().Context(), uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", errAuthenticationFailed
		}
		return "", errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return "", errAuthenticationFailed
	}
	if !usr.IsActive {
		return "", errAccountDeactivated
	}
	if usr, err = a.svc.SetLastLogin(ctx.Request().Context(), usr); err != nil {
		return "", errors.Wrap(err, "setting lastLogin")
	}
	return a.GenerateToken(a.claimsOf(usr))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextUser loads the authenticated user once per request.
func (a *authenticator) contextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return user.User{}, errUnauthorized
	}
	usr, err := a.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
