package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core/institution"
)

type institutionRepository struct {
	db *DB
}

var _ institution.Repository = (*institutionRepository)(nil) // interface compliance check

func NewInstitutionRepository(db *DB) *institutionRepository {
	return &institutionRepository{db: db}
}

func (repo *institutionRepository) CreateCollege(ctx context.Context, c institution.College) (institution.College, error) {
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &c.ID, `INSERT INTO colleges (name) VALUES ($1) RETURNING id`, c.Name); err != nil {
		return institution.College{}, errors.Wrap(err, "inserting college")
	}
	return c, nil
}

func (repo *institutionRepository) CreateDepartment(ctx context.Context, d institution.Department) (institution.Department, error) {
	q := `INSERT INTO departments (name, college_id) VALUES ($1, $2) RETURNING id`
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &d.ID, q, d.Name, d.CollegeID); err != nil {
		return institution.Department{}, errors.Wrap(err, "inserting department")
	}
	return d, nil
}

func (repo *institutionRepository) UpdateDepartment(ctx context.Context, d institution.Department) (institution.Department, error) {
	res, err := repo.db.exec(ctx).ExecContext(ctx, `UPDATE departments SET name = $1, college_id = $2 WHERE id = $3`, d.Name, d.CollegeID, d.ID)
	if err != nil {
		return institution.Department{}, errors.Wrap(err, "updating department")
	}
	if n, err := res.RowsAffected(); err != nil {
		return institution.Department{}, errors.Wrap(err, "updating department")
	} else if n == 0 {
		return institution.Department{}, institution.ErrNotFound
	}
	return d, nil
}

func (repo *institutionRepository) GetDepartment(ctx context.Context, id institution.DepartmentID) (institution.Department, error) {
	var d institution.Department
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &d, `SELECT id, name, college_id FROM departments WHERE id = $1`, id); err != nil {
		return institution.Department{}, notFound(err, institution.ErrNotFound, "selecting department")
	}
	return d, nil
}
