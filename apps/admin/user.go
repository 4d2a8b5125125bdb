package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/user"
)

var errEmptyPassword = errors.New("password cannot be empty")

func (cli *commandLine) addUserCommand() *cobra.Command {
	var (
		name, uname, email string
		roles              []string
		department         int
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a staff account, or update the one with the same username or email. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd, "Enter password:")
			if err != nil {
				return err
			}
			if pwd == "" {
				return errEmptyPassword
			}
			return cli.invoke(func(svc *user.Service, dir *institution.Directory) error {
				usr, err := addUser(cmd, svc, dir, newAccount{
					name:       name,
					username:   uname,
					email:      email,
					password:   pwd,
					roles:      roles,
					department: institution.DepartmentID(department),
				})
				if err != nil {
					return err
				}
				cmd.Printf("user %q saved with roles %v\n", usr.Username, usr.Roles)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&uname, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role, repeatable (admin:, officer:, hod:, dean:)")
	cmd.Flags().IntVar(&department, "department", 0, "department id; officers and heads of department act within it, deans within its college")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

type newAccount struct {
	name, username, email, password string
	roles                           []string
	department                      institution.DepartmentID
}

// addUser updates or creates a user.User
func addUser(cmd *cobra.Command, svc *user.Service, dir *institution.Directory, acc newAccount) (user.User, error) {
	ctx := commandContext(cmd)
	uname := core.CleanString(acc.username, true /* lower */)
	email := core.CleanString(acc.email, true /* lower */)

	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil && email != "" && core.IsNotFound(err) {
		usr, err = svc.GetByUsernameOrEmail(ctx, email)
	}
	if err != nil {
		if !core.IsNotFound(err) {
			return user.User{}, err
		}
		usr = user.User{Username: uname, Email: email}
	}

	if name := core.CleanString(acc.name); name != "" {
		usr.Name = name
	}
	if len(acc.roles) > 0 {
		for _, r := range acc.roles {
			if user.RolePriority(r) == 0 {
				return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "unknown role " + r})
			}
		}
		usr.Roles = acc.roles
	}
	if acc.department != 0 {
		dep, err := dir.Department(ctx, acc.department)
		if err != nil {
			return user.User{}, err
		}
		usr.DepartmentID, usr.CollegeID = dep.ID, dep.CollegeID
	}
	usr.IsActive = true
	if err = usr.SetPassword(acc.password); err != nil {
		return user.User{}, err
	}
	return svc.Save(ctx, usr)
}

func (cli *commandLine) resetPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resetpassword USERNAME|EMAIL",
		Short: "Reset a user's password. The new password is prompted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd, "Enter password:")
			if err != nil {
				return err
			}
			if pwd == "" {
				return errEmptyPassword
			}
			return cli.invoke(func(svc *user.Service) error {
				ctx := commandContext(cmd)
				usr, err := svc.GetByUsernameOrEmail(ctx, args[0])
				if err != nil {
					return err
				}
				if err = usr.SetPassword(pwd); err != nil {
					return err
				}
				_, err = svc.Save(ctx, usr)
				return err
			})
		},
	}
}
