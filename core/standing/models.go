// Package standing keeps each student's per-term standing consistent with its source records
// and runs the three-stage approval chain on it.
package standing

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
)

var ErrNotFound = core.NewNotFoundError("standing")

// Stage is a step of the approval chain.
type Stage string

const (
	StageOfficer Stage = "officer"
	StageHOD     Stage = "hod"
	StageDean    Stage = "dean"
)

// Stages in chain order.
var Stages = []Stage{StageOfficer, StageHOD, StageDean}

func ParseStage(s string) (Stage, bool) {
	st := Stage(core.CleanString(s, true /* lower */))
	return st, st.Index() >= 0
}

// Index is the position of the stage in the chain, -1 if unknown.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

type Approver struct {
	ID           int                      `json:"id"`
	Name         string                   `json:"name"`
	DepartmentID institution.DepartmentID `json:"department_id,omitempty"`
	CollegeID    institution.CollegeID    `json:"college_id,omitempty"`
}

// ApprovalSnapshot is the latest decision of one stage. It is overwritten, never versioned.
type ApprovalSnapshot struct {
	Approved  bool      `json:"approved"`
	Flagged   bool      `json:"flagged"`
	Approver  Approver  `json:"approver"`
	Note      string    `json:"note"`
	UpdatedAt null.Time `json:"updated_at"`
}

// Record is the standing of a student for one (session, semester, level).
type Record struct {
	ID string `json:"id"`
	grading.Key
	Year         int                      `json:"-"`
	DepartmentID institution.DepartmentID `json:"department_id"`
	CollegeID    institution.CollegeID    `json:"college_id"`

	grading.Standing
	Previous grading.Cumulative `json:"previous"`

	Officer ApprovalSnapshot `json:"officer_approval"`
	HOD     ApprovalSnapshot `json:"hod_approval"`
	Dean    ApprovalSnapshot `json:"dean_approval"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (r Record) Term() grading.Term {
	return grading.Term{Year: r.Year, Semester: r.Semester}
}

func (r Record) Approval(stage Stage) ApprovalSnapshot {
	switch stage {
	case StageOfficer:
		return r.Officer
	case StageHOD:
		return r.HOD
	case StageDean:
		return r.Dean
	}
	return ApprovalSnapshot{}
}

func (r *Record) SetApproval(stage Stage, snap ApprovalSnapshot) {
	switch stage {
	case StageOfficer:
		r.Officer = snap
	case StageHOD:
		r.HOD = snap
	case StageDean:
		r.Dean = snap
	}
}

// FullyApproved reports whether the dean signed off the record.
func (r Record) FullyApproved() bool {
	return r.Dean.Approved
}

// PendingAt reports whether the record sits in the queue of stage:
// every earlier stage approved and stage itself not yet approved.
func (r Record) PendingAt(stage Stage) bool {
	idx := stage.Index()
	if idx < 0 || r.Approval(stage).Approved {
		return false
	}
	for _, earlier := range Stages[:idx] {
		if !r.Approval(earlier).Approved {
			return false
		}
	}
	return true
}

// SameMetrics reports whether both records hold the same computed fields.
func (r Record) SameMetrics(other Record) bool {
	return r.Standing == other.Standing &&
		r.Previous == other.Previous &&
		r.DepartmentID == other.DepartmentID &&
		r.CollegeID == other.CollegeID
}

// PendingFilter selects the records waiting at Stage, optionally scoped.
type PendingFilter struct {
	Stage        Stage
	Session      string
	Semester     grading.Semester
	DepartmentID institution.DepartmentID // 0 = any
	CollegeID    institution.CollegeID    // 0 = any
}

func (f PendingFilter) Matches(r Record) bool {
	if !r.PendingAt(f.Stage) {
		return false
	}
	if f.Session != "" && r.Session != f.Session {
		return false
	}
	if f.Semester != "" && r.Semester != f.Semester {
		return false
	}
	if f.DepartmentID != 0 && r.DepartmentID != f.DepartmentID {
		return false
	}
	if f.CollegeID != 0 && r.CollegeID != f.CollegeID {
		return false
	}
	return true
}

// SemesterCount is the approval progress of a semester.
type SemesterCount struct {
	Semester grading.Semester `json:"semester" db:"semester"`
	Total    int              `json:"total" db:"total"`
	Approved int              `json:"approved" db:"approved"`
}

func (c SemesterCount) Pending() int {
	return c.Total - c.Approved
}

type Repository interface {
	GetRecord(ctx context.Context, id string) (Record, error)
	GetRecordByKey(ctx context.Context, key grading.Key) (Record, error)
	// LatestBefore returns the latest record of the student strictly before term,
	// ordered by (year, semester, level) descending.
	LatestBefore(ctx context.Context, studentID string, term grading.Term) (Record, error)
	// ListAfter returns the records of the student strictly after term,
	// ordered by (year, semester, level) ascending.
	ListAfter(ctx context.Context, studentID string, term grading.Term) ([]Record, error)
	// UpsertMetrics inserts the record, or updates the metric fields of the existing one.
	// Approvals are never written.
	UpsertMetrics(ctx context.Context, rec Record) (Record, error)
	DeleteByKey(ctx context.Context, key grading.Key) error
	// UpdateApproval writes the snapshot of a single stage.
	UpdateApproval(ctx context.Context, id string, stage Stage, snap ApprovalSnapshot) (Record, error)
	QueryPending(ctx context.Context, filter PendingFilter) ([]Record, error)
	// CountBySession returns the dean approval progress of each semester of the session.
	CountBySession(ctx context.Context, session string) ([]SemesterCount, error)
}
