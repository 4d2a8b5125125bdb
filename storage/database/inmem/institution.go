package inmemdb

import (
	"context"

	"github.com/trezcool/examoffice/core/institution"
)

type institutionRepository struct {
	db *DB
}

var _ institution.Repository = (*institutionRepository)(nil)

func NewInstitutionRepository(db *DB) *institutionRepository {
	return &institutionRepository{db: db}
}

func (repo *institutionRepository) CreateCollege(ctx context.Context, c institution.College) (institution.College, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	st.collegeSeq++
	c.ID = institution.CollegeID(st.collegeSeq)
	st.colleges[c.ID] = c
	return c, nil
}

func (repo *institutionRepository) CreateDepartment(ctx context.Context, d institution.Department) (institution.Department, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	st.deptSeq++
	d.ID = institution.DepartmentID(st.deptSeq)
	st.departments[d.ID] = d
	return d, nil
}

func (repo *institutionRepository) UpdateDepartment(ctx context.Context, d institution.Department) (institution.Department, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	if _, ok := st.departments[d.ID]; !ok {
		return institution.Department{}, institution.ErrNotFound
	}
	st.departments[d.ID] = d
	return d, nil
}

func (repo *institutionRepository) GetDepartment(ctx context.Context, id institution.DepartmentID) (institution.Department, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if d, ok := st.departments[id]; ok {
		return d, nil
	}
	return institution.Department{}, institution.ErrNotFound
}
