// Package institution resolves department and college references.
// Records carry typed identifiers only; names are looked up through the Directory.
package institution

import (
	"context"
	"time"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/cache"
)

var ErrNotFound = core.NewNotFoundError("department")

type (
	DepartmentID int
	CollegeID    int

	College struct {
		ID   CollegeID `json:"id" db:"id"`
		Name string    `json:"name" db:"name"`
	}

	Department struct {
		ID        DepartmentID `json:"id" db:"id"`
		Name      string       `json:"name" db:"name"`
		CollegeID CollegeID    `json:"college_id" db:"college_id"`
	}

	Repository interface {
		CreateCollege(ctx context.Context, c College) (College, error)
		CreateDepartment(ctx context.Context, d Department) (Department, error)
		UpdateDepartment(ctx context.Context, d Department) (Department, error)
		GetDepartment(ctx context.Context, id DepartmentID) (Department, error)
	}
)

// Directory is the lookup table every boundary resolves department references through.
type Directory struct {
	repo  Repository
	cache *cache.TTL[DepartmentID, Department]
}

func NewDirectory(repo Repository, conf *core.Config) *Directory {
	var ttl time.Duration
	var maxEntries int
	if conf != nil {
		ttl, maxEntries = conf.Cache.DepartmentTTL, conf.Cache.MaxEntries
	}
	return &Directory{
		repo:  repo,
		cache: cache.NewTTL[DepartmentID, Department](ttl, maxEntries),
	}
}

func (d *Directory) Department(ctx context.Context, id DepartmentID) (Department, error) {
	return d.cache.GetOrLoad(id, func() (Department, error) {
		return d.repo.GetDepartment(ctx, id)
	})
}

// CollegeOf returns the college the department belongs to.
func (d *Directory) CollegeOf(ctx context.Context, id DepartmentID) (CollegeID, error) {
	dep, err := d.Department(ctx, id)
	if err != nil {
		return 0, err
	}
	return dep.CollegeID, nil
}

func (d *Directory) CreateCollege(ctx context.Context, name string) (College, error) {
	name = core.CleanString(name)
	if name == "" {
		return College{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	return d.repo.CreateCollege(ctx, College{Name: name})
}

func (d *Directory) CreateDepartment(ctx context.Context, name string, college CollegeID) (Department, error) {
	name = core.CleanString(name)
	if name == "" {
		return Department{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	return d.repo.CreateDepartment(ctx, Department{Name: name, CollegeID: college})
}

// MoveDepartment reassigns a department to another college.
func (d *Directory) MoveDepartment(ctx context.Context, id DepartmentID, college CollegeID) (Department, error) {
	dep, err := d.repo.GetDepartment(ctx, id)
	if err != nil {
		return Department{}, err
	}
	dep.CollegeID = college
	if dep, err = d.repo.UpdateDepartment(ctx, dep); err != nil {
		return Department{}, err
	}
	d.cache.Invalidate(id)
	return dep, nil
}
