package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/cache"
	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
)

const (
	ReasonNoStandings     = "no_standings"
	ReasonPendingApproval = "pending_approval"
	ReasonCompleted       = "session_completed"

	listCacheKey = "all"
)

var (
	errNotReady = errors.New("session is not ready to be closed")

	NowFunc = time.Now // mockable
)

type (
	// ApprovalCounter reports the dean approval progress of a session's standings.
	ApprovalCounter interface {
		CountBySession(ctx context.Context, session string) ([]standing.SemesterCount, error)
	}

	// Cohort reads and moves the students taking part in promotion.
	Cohort interface {
		QueryCohort(ctx context.Context, level grading.Level) ([]string, error)
		SetLevel(ctx context.Context, level grading.Level, ids ...string) (int, error)
		SetStatus(ctx context.Context, status student.Status, ids ...string) (int, error)
	}

	// AttemptHistory returns every recorded result of the filtered students.
	AttemptHistory interface {
		QueryResults(ctx context.Context, filter result.Filter) ([]result.Result, error)
	}

	Deps struct {
		Repo       Repository
		Standings  ApprovalCounter
		Cohort     Cohort
		History    AttemptHistory
		Transactor core.Transactor
		Mailer     core.EmailService // optional
		Logger     core.Logger
		Metrics    *Metrics
		Conf       *core.Config
	}

	// Service manages sessions and closes them.
	Service struct {
		repo      Repository
		standings ApprovalCounter
		cohort    Cohort
		history   AttemptHistory
		tx        core.Transactor
		mailer    core.EmailService
		logger    core.Logger
		metrics   *Metrics
		conf      *core.Config
		batchSize int
		list      *cache.TTL[string, []Session]
	}

	closeSummary struct {
		Session  string
		ClosedBy string
		ClosedAt time.Time
		Stats    Stats
	}
)

func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = core.NopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	conf := deps.Conf
	if conf == nil {
		conf = &core.Config{}
	}
	batchSize := conf.PromotionBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{
		repo:      deps.Repo,
		standings: deps.Standings,
		cohort:    deps.Cohort,
		history:   deps.History,
		tx:        deps.Transactor,
		mailer:    deps.Mailer,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		conf:      conf,
		batchSize: batchSize,
		list:      cache.NewTTL[string, []Session](conf.Cache.SessionTTL, 1),
	}
}

// Create opens a new current session. Every other session stops being current.
func (svc *Service) Create(ctx context.Context, ns NewSession) (Session, error) {
	name := core.CleanString(ns.Name)
	year, err := grading.ParseSession(name)
	if err != nil {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: err.Error()})
	}

	now := NowFunc().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		Name:      name,
		Year:      year,
		IsCurrent: true,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.DeactivateAll(ctx); err != nil {
			return errors.Wrap(err, "deactivating sessions")
		}
		var err error
		sess, err = svc.repo.CreateSession(ctx, sess)
		return err
	})
	if err != nil {
		return Session{}, err
	}
	svc.list.Purge()
	return sess, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

// List returns every session, latest first.
func (svc *Service) List(ctx context.Context) ([]Session, error) {
	return svc.list.GetOrLoad(listCacheKey, func() ([]Session, error) {
		sessions, err := svc.repo.QuerySessions(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(sessions, func(i, j int) bool {
			return sessions[i].Year > sessions[j].Year
		})
		return sessions, nil
	})
}

func (svc *Service) Current(ctx context.Context) (Session, error) {
	sessions, err := svc.List(ctx)
	if err != nil {
		return Session{}, err
	}
	for _, s := range sessions {
		if s.IsCurrent {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

// Readiness reports whether every standing of the session is dean approved.
func (svc *Service) Readiness(ctx context.Context, id string) (Readiness, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Readiness{}, err
	}
	return svc.readiness(ctx, sess)
}

func (svc *Service) readiness(ctx context.Context, sess Session) (Readiness, error) {
	rd := Readiness{Session: sess.Name, Reasons: []core.BlockingReason{}}
	if sess.Completed() {
		rd.Reasons = append(rd.Reasons, core.BlockingReason{
			Code:    ReasonCompleted,
			Message: fmt.Sprintf("session %s is already completed", sess.Name),
		})
		return rd, nil
	}

	counts, err := svc.standings.CountBySession(ctx, sess.Name)
	if err != nil {
		return Readiness{}, errors.Wrap(err, "counting standings")
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Semester.Ordinal() < counts[j].Semester.Ordinal() })

	for _, c := range counts {
		rd.Total += c.Total
		rd.Approved += c.Approved
		if n := c.Pending(); n > 0 {
			rd.Reasons = append(rd.Reasons, core.BlockingReason{
				Code:     ReasonPendingApproval,
				Message:  fmt.Sprintf("%d pending dean approval in %s semester", n, c.Semester),
				Semester: string(c.Semester),
				Count:    n,
			})
		}
	}
	if rd.Total == 0 {
		rd.Reasons = append(rd.Reasons, core.BlockingReason{
			Code:    ReasonNoStandings,
			Message: fmt.Sprintf("no standings recorded for session %s", sess.Name),
		})
	}
	rd.Ready = len(rd.Reasons) == 0
	return rd, nil
}

// Close promotes the cohort and completes the session, all or nothing.
// It fails with a ConsistencyError while any standing of the session awaits dean approval.
func (svc *Service) Close(ctx context.Context, id string, actor user.User) (Session, error) {
	if !actor.IsAdmin() {
		return Session{}, core.NewAuthorizationError("only admins may close a session")
	}

	start := time.Now()
	var closed Session
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		sess, err := svc.repo.GetSessionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		rd, err := svc.readiness(ctx, sess)
		if err != nil {
			return err
		}
		if !rd.Ready {
			return core.NewConsistencyError(errNotReady, rd.Reasons...)
		}

		stats, err := svc.promote(ctx)
		if err != nil {
			return err
		}

		now := NowFunc().UTC()
		sess.Status = StatusCompleted
		sess.IsCurrent = false
		sess.PromotionStats = &stats
		sess.ClosedAt = null.TimeFrom(now)
		sess.ClosedBy = null.StringFrom(actor.Username)
		sess.UpdatedAt = now
		if err = svc.repo.MarkCompleted(ctx, sess); err != nil {
			return errors.Wrap(err, "completing session")
		}
		closed = sess
		return nil
	})
	svc.metrics.closeSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		switch errors.Cause(err).(type) {
		case *core.ConsistencyError:
			svc.metrics.closes.WithLabelValues(outcomeBlocked).Inc()
			return Session{}, err
		case *core.ValidationError, *core.NotFoundError, *core.AuthorizationError:
			svc.metrics.closes.WithLabelValues(outcomeFailed).Inc()
			return Session{}, err
		default:
			svc.metrics.closes.WithLabelValues(outcomeFailed).Inc()
			svc.logger.Error("closing session", err, map[string]interface{}{"session_id": id}, actor)
			return Session{}, core.NewTransactionError("closing session", err)
		}
	}

	svc.list.Purge()
	svc.metrics.closes.WithLabelValues(outcomeClosed).Inc()
	svc.metrics.observeStats(*closed.PromotionStats)
	svc.logger.Info(
		"session closed",
		map[string]interface{}{"session": closed.Name, "total_processed": closed.PromotionStats.TotalProcessed},
		actor,
	)
	svc.notify(closed)
	return closed, nil
}

// promote moves every level of the cohort captured before any update:
// 100, 200 and 300 go up one level, 400 graduates or is held for an extra year.
func (svc *Service) promote(ctx context.Context) (Stats, error) {
	cohorts := make(map[grading.Level][]string, len(grading.Levels))
	for _, lvl := range grading.Levels {
		ids, err := svc.cohort.QueryCohort(ctx, lvl)
		if err != nil {
			return Stats{}, errors.Wrapf(err, "querying level %s cohort", lvl)
		}
		cohorts[lvl] = ids
	}

	graduates, extraYear, err := svc.classify(ctx, cohorts[grading.Level400])
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, lvl := range []grading.Level{grading.Level300, grading.Level200, grading.Level100} {
		next, _ := lvl.Next()
		n, err := svc.batch(cohorts[lvl], func(ids []string) (int, error) {
			return svc.cohort.SetLevel(ctx, next, ids...)
		})
		if err != nil {
			return Stats{}, errors.Wrapf(err, "promoting level %s", lvl)
		}
		switch lvl {
		case grading.Level100:
			stats.Promoted100To200 = n
		case grading.Level200:
			stats.Promoted200To300 = n
		case grading.Level300:
			stats.Promoted300To400 = n
		}
	}

	if stats.Graduated, err = svc.batch(graduates, func(ids []string) (int, error) {
		return svc.cohort.SetStatus(ctx, student.StatusGraduated, ids...)
	}); err != nil {
		return Stats{}, errors.Wrap(err, "graduating students")
	}
	if stats.ExtraYear, err = svc.batch(extraYear, func(ids []string) (int, error) {
		return svc.cohort.SetStatus(ctx, student.StatusExtraYear, ids...)
	}); err != nil {
		return Stats{}, errors.Wrap(err, "holding students back")
	}

	stats.TotalProcessed = stats.Promoted100To200 + stats.Promoted200To300 + stats.Promoted300To400 +
		stats.Graduated + stats.ExtraYear
	return stats, nil
}

func (svc *Service) batch(ids []string, update func(ids []string) (int, error)) (int, error) {
	var total int
	for _, chunk := range core.ChunkStrings(ids, svc.batchSize) {
		n, err := update(chunk)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// classify splits the final year cohort on the latest attempt of every course they took:
// a single F holds the student back for an extra year.
func (svc *Service) classify(ctx context.Context, ids []string) (graduates, extraYear []string, err error) {
	failed := make(map[string]bool, len(ids))
	for _, chunk := range core.ChunkStrings(ids, svc.batchSize) {
		results, err := svc.history.QueryResults(ctx, result.Filter{StudentIDs: chunk})
		if err != nil {
			return nil, nil, errors.Wrap(err, "querying attempt history")
		}
		for _, res := range LatestAttempts(results) {
			if res.Grade == grading.GradeF {
				failed[res.StudentID] = true
			}
		}
	}

	for _, id := range ids {
		if failed[id] {
			extraYear = append(extraYear, id)
		} else {
			graduates = append(graduates, id)
		}
	}
	return graduates, extraYear, nil
}

// LatestAttempts keeps the latest result of every (student, course): the most recently recorded one,
// then the one of the latest term.
func LatestAttempts(results []result.Result) []result.Result {
	type attemptKey struct{ student, course string }

	latest := make(map[attemptKey]result.Result, len(results))
	order := make([]attemptKey, 0, len(results))
	for _, res := range results {
		k := attemptKey{res.StudentID, res.CourseID}
		cur, ok := latest[k]
		if !ok {
			order = append(order, k)
			latest[k] = res
			continue
		}
		if res.CreatedAt.After(cur.CreatedAt) ||
			(res.CreatedAt.Equal(cur.CreatedAt) && cur.Term().Before(res.Term())) {
			latest[k] = res
		}
	}

	out := make([]result.Result, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k])
	}
	return out
}

func (svc *Service) notify(sess Session) {
	if svc.mailer == nil || len(svc.conf.Mail.RegistrarEmails) == 0 {
		return
	}
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           svc.conf.Mail.RegistrarEmails,
		Subject:      "Session " + sess.Name + " closed",
		TemplateName: "session_closed",
		TemplateData: closeSummary{
			Session:  sess.Name,
			ClosedBy: sess.ClosedBy.String,
			ClosedAt: sess.ClosedAt.Time,
			Stats:    *sess.PromotionStats,
		},
	})
}
