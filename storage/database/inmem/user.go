package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/examoffice/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	excluded := make(map[int]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range st.users {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	st.userSeq++
	usr.ID = st.userSeq
	usr.Roles = append([]string(nil), usr.Roles...)
	st.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	users := make([]user.User, 0, len(st.users))
	for _, u := range st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if usr, ok := st.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	for _, usr := range st.users {
		if usr.Username == username || usr.Email == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	orig, ok := st.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// only save set fields
	if usr.Roles != nil {
		orig.Roles = append([]string(nil), usr.Roles...)
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	orig.Name = usr.Name
	orig.Username = usr.Username
	orig.Email = usr.Email
	orig.IsActive = usr.IsActive
	orig.DepartmentID = usr.DepartmentID
	orig.CollegeID = usr.CollegeID
	orig.LastLogin = usr.LastLogin
	orig.UpdatedAt = usr.UpdatedAt

	st.users[usr.ID] = orig
	return orig, nil
}
