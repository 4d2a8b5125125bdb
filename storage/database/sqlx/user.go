package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, department_id, college_id, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           int            `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	DepartmentID null.Int       `db:"department_id"`
	CollegeID    null.Int       `db:"college_id"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        roles,
		DepartmentID: null.NewInt(int(usr.DepartmentID), usr.DepartmentID != 0),
		CollegeID:    null.NewInt(int(usr.CollegeID), usr.CollegeID != 0),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        row.Roles,
		DepartmentID: institution.DepartmentID(row.DepartmentID.Int),
		CollegeID:    institution.CollegeID(row.CollegeID.Int),
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make([]int64, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, int64(u.ID))
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users WHERE (username = $1 OR email = $2) AND NOT (id = ANY($3))`
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, q, username, email, pq.Array(excluded)); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		if row.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := toUserRow(usr)
	q := `INSERT INTO users (name, username, email, is_active, roles, department_id, college_id, password_hash, created_at, updated_at, last_login)
		VALUES (:name, :username, :email, :is_active, :roles, :department_id, :college_id, :password_hash, :created_at, :updated_at, :last_login)
		RETURNING id`
	q, args, err := sqlx.Named(q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "binding user")
	}
	exec := repo.db.exec(ctx)
	if err = sqlx.GetContext(ctx, exec, &row.ID, exec.Rebind(q), args...); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) get(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row userRow
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &row, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, arg); err != nil {
		return user.User{}, notFound(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.get(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.get(ctx, "username = $1 OR email = $1", username)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	orig, err := repo.GetUserByID(ctx, usr.ID)
	if err != nil {
		return user.User{}, err
	}
	// only save set fields
	if usr.Roles == nil {
		usr.Roles = orig.Roles
	}
	if usr.PasswordHash == nil {
		usr.PasswordHash = orig.PasswordHash
	}
	usr.CreatedAt = orig.CreatedAt

	q := `UPDATE users SET name = :name, username = :username, email = :email, is_active = :is_active, roles = :roles,
		department_id = :department_id, college_id = :college_id, password_hash = :password_hash,
		updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	if _, err = sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, toUserRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}
