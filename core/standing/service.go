package standing

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/user"
)

var (
	errUnknownStage = core.NewValidationError(nil, core.FieldError{Field: "stage", Error: "stage must be one of: officer, hod, dean"})

	NowFunc = time.Now // mockable
)

// Decision approves or declines a record at one stage of the chain.
type Decision struct {
	Stage   string `json:"stage" validate:"required,oneof=officer hod dean"`
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note"`
}

// FlagRequest raises or clears an escalation flag at one stage. It leaves the approval as is.
type FlagRequest struct {
	Stage   string `json:"stage" validate:"required,oneof=officer hod dean"`
	Flagged *bool  `json:"flagged" validate:"required"`
	Note    string `json:"note"`
}

// PendingQuery narrows an approver's queue. Stage defaults to the approver's own stage.
type PendingQuery struct {
	Stage    string `query:"stage"`
	Session  string `query:"session"`
	Semester string `query:"semester"`
}

// Service exposes standings and the approval chain.
type Service struct {
	repo         Repository
	orchestrator *Orchestrator
	metrics      *Metrics
}

func NewService(repo Repository, orchestrator *Orchestrator, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{repo: repo, orchestrator: orchestrator, metrics: metrics}
}

func (svc *Service) Get(ctx context.Context, id string) (Record, error) {
	return svc.repo.GetRecord(ctx, id)
}

func (svc *Service) GetByKey(ctx context.Context, key grading.Key) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	return svc.repo.GetRecordByKey(ctx, key)
}

// Recompute rebuilds the standings of keys from source data.
func (svc *Service) Recompute(ctx context.Context, keys ...grading.Key) error {
	for _, k := range keys {
		if err := k.Validate(); err != nil {
			return err
		}
	}
	return svc.orchestrator.Recompute(ctx, keys...)
}

// StageOf returns the stage the user approves at. Admins have none: they act at any stage.
func StageOf(usr user.User) (Stage, bool) {
	switch {
	case usr.IsDean():
		return StageDean, true
	case usr.IsHOD():
		return StageHOD, true
	case usr.IsOfficer():
		return StageOfficer, true
	}
	return "", false
}

// authorize checks that actor may act on rec at stage:
// officers and heads of department within their department, deans within their college.
func authorize(actor user.User, stage Stage, rec Record) error {
	if actor.IsAdmin() {
		return nil
	}
	switch stage {
	case StageOfficer:
		if !actor.IsOfficer() {
			return core.NewAuthorizationError("only exam officers may act at the officer stage")
		}
	case StageHOD:
		if !actor.IsHOD() {
			return core.NewAuthorizationError("only heads of department may act at the hod stage")
		}
	case StageDean:
		if !actor.IsDean() {
			return core.NewAuthorizationError("only deans may act at the dean stage")
		}
	}

	if stage == StageDean {
		if actor.CollegeID == 0 || actor.CollegeID != rec.CollegeID {
			return core.NewAuthorizationError("standing %s is outside your college", rec.ID)
		}
		return nil
	}
	if actor.DepartmentID == 0 || actor.DepartmentID != rec.DepartmentID {
		return core.NewAuthorizationError("standing %s is outside your department", rec.ID)
	}
	return nil
}

// checkChainOrder keeps the chain monotonic: approving needs every earlier stage approved,
// declining needs no later stage approved.
func checkChainOrder(rec Record, stage Stage, approve bool) error {
	idx := stage.Index()
	if approve {
		for _, earlier := range Stages[:idx] {
			if !rec.Approval(earlier).Approved {
				return core.NewValidationError(nil, core.FieldError{
					Field: "stage",
					Error: string(stage) + " approval requires " + string(earlier) + " approval",
				})
			}
		}
		return nil
	}
	for _, later := range Stages[idx+1:] {
		if rec.Approval(later).Approved {
			return core.NewValidationError(nil, core.FieldError{
				Field: "stage",
				Error: "cannot decline at " + string(stage) + " after " + string(later) + " approval",
			})
		}
	}
	return nil
}

func approverOf(actor user.User) Approver {
	return Approver{
		ID:           actor.ID,
		Name:         actor.Name,
		DepartmentID: actor.DepartmentID,
		CollegeID:    actor.CollegeID,
	}
}

// Decide records actor's approval or decline of the record at a stage.
func (svc *Service) Decide(ctx context.Context, id string, actor user.User, d Decision) (Record, error) {
	stage, ok := ParseStage(d.Stage)
	if !ok {
		return Record{}, errUnknownStage
	}
	if d.Approve == nil {
		return Record{}, core.NewValidationError(nil, core.FieldError{Field: "approve", Error: "this field is required"})
	}

	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err = authorize(actor, stage, rec); err != nil {
		return Record{}, err
	}
	if err = checkChainOrder(rec, stage, *d.Approve); err != nil {
		return Record{}, err
	}

	snap := rec.Approval(stage)
	snap.Approved = *d.Approve
	snap.Approver = approverOf(actor)
	snap.Note = core.CleanString(d.Note)
	snap.UpdatedAt = null.TimeFrom(NowFunc().UTC())

	if rec, err = svc.repo.UpdateApproval(ctx, id, stage, snap); err != nil {
		return Record{}, errors.Wrap(err, "updating approval")
	}
	action := "approve"
	if !*d.Approve {
		action = "decline"
	}
	svc.metrics.decisions.WithLabelValues(string(stage), action).Inc()
	return rec, nil
}

// Flag raises or clears the escalation flag of a stage.
func (svc *Service) Flag(ctx context.Context, id string, actor user.User, fr FlagRequest) (Record, error) {
	stage, ok := ParseStage(fr.Stage)
	if !ok {
		return Record{}, errUnknownStage
	}
	if fr.Flagged == nil {
		return Record{}, core.NewValidationError(nil, core.FieldError{Field: "flagged", Error: "this field is required"})
	}

	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err = authorize(actor, stage, rec); err != nil {
		return Record{}, err
	}

	snap := rec.Approval(stage)
	snap.Flagged = *fr.Flagged
	if !snap.Approved { // an approval keeps the identity of whoever approved
		snap.Approver = approverOf(actor)
	}
	if note := core.CleanString(fr.Note); note != "" {
		snap.Note = note
	}
	snap.UpdatedAt = null.TimeFrom(NowFunc().UTC())

	if rec, err = svc.repo.UpdateApproval(ctx, id, stage, snap); err != nil {
		return Record{}, errors.Wrap(err, "updating flag")
	}
	action := "flag"
	if !*fr.Flagged {
		action = "unflag"
	}
	svc.metrics.decisions.WithLabelValues(string(stage), action).Inc()
	return rec, nil
}

// Pending returns actor's queue: the records waiting at their stage, within their scope.
func (svc *Service) Pending(ctx context.Context, actor user.User, q PendingQuery) ([]Record, error) {
	filter := PendingFilter{Session: core.CleanString(q.Session)}
	if q.Semester != "" {
		sem, err := grading.ParseSemester(q.Semester)
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "semester", Error: err.Error()})
		}
		filter.Semester = sem
	}

	own, isApprover := StageOf(actor)
	if !isApprover && !actor.IsAdmin() {
		return nil, core.NewAuthorizationError("an approver role is required")
	}
	switch {
	case q.Stage != "":
		stage, ok := ParseStage(q.Stage)
		if !ok {
			return nil, errUnknownStage
		}
		if !actor.IsAdmin() && stage != own {
			return nil, core.NewAuthorizationError("you may only view the %s queue", own)
		}
		filter.Stage = stage
	case isApprover:
		filter.Stage = own
	default: // admins pick the queue
		return nil, core.NewValidationError(nil, core.FieldError{Field: "stage", Error: "this field is required"})
	}

	if !actor.IsAdmin() {
		switch filter.Stage {
		case StageDean:
			if actor.CollegeID == 0 {
				return nil, core.NewAuthorizationError("no college assigned")
			}
			filter.CollegeID = actor.CollegeID
		default:
			if actor.DepartmentID == 0 {
				return nil, core.NewAuthorizationError("no department assigned")
			}
			filter.DepartmentID = actor.DepartmentID
		}
	}
	return svc.repo.QueryPending(ctx, filter)
}
