package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/institution"
)

// Roles
const (
	// Admin (exam office / registrar)
	RoleAdmin = "admin:"

	// Approvers, in chain order
	RoleOfficer = "officer:" // department exam officer
	RoleHOD     = "hod:"     // head of department
	RoleDean    = "dean:"    // college dean
)

var (
	AdminRoles    = []string{RoleAdmin}
	ApproverRoles = []string{RoleOfficer, RoleHOD, RoleDean}
	AllRoles      = getAllRoles()

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleDean:    21,
		RoleHOD:     12,
		RoleOfficer: 11,
	}

	Roles = []Role{
		{Name: "Exam Officer", Value: RoleOfficer},
		{Name: "Head of Department", Value: RoleHOD},
		{Name: "Dean", Value: RoleDean},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 4)
	all = append(all, AdminRoles...)
	all = append(all, ApproverRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is a staff account. Its department and college scope the standings it may act on.
type User struct {
	ID           int                      `json:"id"`
	Name         string                   `json:"name"`
	Username     string                   `json:"username"`
	Email        string                   `json:"email"`
	IsActive     bool                     `json:"is_active"`
	Roles        []string                 `json:"roles"`
	DepartmentID institution.DepartmentID `json:"department_id,omitempty"`
	CollegeID    institution.CollegeID    `json:"college_id,omitempty"`
	PasswordHash []byte                   `json:"-"`
	CreatedAt    time.Time                `json:"created_at"` // UTC
	UpdatedAt    time.Time                `json:"updated_at"` // UTC
	LastLogin    time.Time                `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool   { return u.RoleStartsWith(RoleAdmin) }
func (u User) IsOfficer() bool { return u.RoleStartsWith(RoleOfficer) }
func (u User) IsHOD() bool     { return u.RoleStartsWith(RoleHOD) }
func (u User) IsDean() bool    { return u.RoleStartsWith(RoleDean) }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string                   `json:"name" validate:"required"`
	Username        string                   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string                   `json:"email" validate:"omitempty,email"`
	Password        string                   `json:"password" validate:"required"`
	PasswordConfirm string                   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string                 `json:"roles" validate:"omitempty,allroles"`
	DepartmentID    institution.DepartmentID `json:"department_id"`
	CollegeID       institution.CollegeID    `json:"college_id"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Username, nu.Email)
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (lr LoginRequest) Validate(validate *validator.Validate) error { return validate.Struct(lr) }
