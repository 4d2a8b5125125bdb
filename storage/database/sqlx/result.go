package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/result"
)

const resultColumns = `id, student_id, course_id, session, year, semester, level, unit, ca, exam, total, grade,
	moderation_status, moderation_proposed_total, moderation_proof, moderation_authorized_by,
	moderation_original_total, moderation_original_grade, moderation_requested_at, moderation_approved_at,
	created_at, updated_at`

type resultRow struct {
	ID        string       `db:"id"`
	StudentID string       `db:"student_id"`
	CourseID  string       `db:"course_id"`
	Session   string       `db:"session"`
	Year      int          `db:"year"`
	Semester  string       `db:"semester"`
	Level     string       `db:"level"`
	Unit      int          `db:"unit"`
	CA        null.Float64 `db:"ca"`
	Exam      null.Float64 `db:"exam"`
	Total     float64      `db:"total"`
	Grade     string       `db:"grade"`

	ModerationStatus        string       `db:"moderation_status"`
	ModerationProposedTotal null.Float64 `db:"moderation_proposed_total"`
	ModerationProof         null.String  `db:"moderation_proof"`
	ModerationAuthorizedBy  null.String  `db:"moderation_authorized_by"`
	ModerationOriginalTotal null.Float64 `db:"moderation_original_total"`
	ModerationOriginalGrade null.String  `db:"moderation_original_grade"`
	ModerationRequestedAt   null.Time    `db:"moderation_requested_at"`
	ModerationApprovedAt    null.Time    `db:"moderation_approved_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func toResultRow(r result.Result) resultRow {
	m := r.Moderation
	if m.Status == "" {
		m.Status = result.ModerationNone
	}
	return resultRow{
		ID:                      r.ID,
		StudentID:               r.StudentID,
		CourseID:                r.CourseID,
		Session:                 r.Session,
		Year:                    r.Year,
		Semester:                string(r.Semester),
		Level:                   string(r.Level),
		Unit:                    r.Unit,
		CA:                      r.CA,
		Exam:                    r.Exam,
		Total:                   r.Total,
		Grade:                   string(r.Grade),
		ModerationStatus:        string(m.Status),
		ModerationProposedTotal: m.ProposedTotal,
		ModerationProof:         m.Proof,
		ModerationAuthorizedBy:  m.AuthorizedBy,
		ModerationOriginalTotal: m.OriginalTotal,
		ModerationOriginalGrade: m.OriginalGrade,
		ModerationRequestedAt:   m.RequestedAt,
		ModerationApprovedAt:    m.ApprovedAt,
		CreatedAt:               r.CreatedAt.UTC(),
		UpdatedAt:               r.UpdatedAt.UTC(),
	}
}

func (row resultRow) result() result.Result {
	return result.Result{
		ID:        row.ID,
		StudentID: row.StudentID,
		CourseID:  row.CourseID,
		Session:   row.Session,
		Year:      row.Year,
		Semester:  grading.Semester(row.Semester),
		Level:     grading.Level(row.Level),
		Unit:      row.Unit,
		CA:        row.CA,
		Exam:      row.Exam,
		Total:     row.Total,
		Grade:     grading.Grade(row.Grade),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Moderation: result.Moderation{
			Status:        result.ModerationStatus(row.ModerationStatus),
			ProposedTotal: row.ModerationProposedTotal,
			Proof:         row.ModerationProof,
			AuthorizedBy:  row.ModerationAuthorizedBy,
			OriginalTotal: row.ModerationOriginalTotal,
			OriginalGrade: row.ModerationOriginalGrade,
			RequestedAt:   row.ModerationRequestedAt,
			ApprovedAt:    row.ModerationApprovedAt,
		},
	}
}

func results(rows []resultRow) []result.Result {
	res := make([]result.Result, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.result())
	}
	return res
}

type resultRepository struct {
	db *DB
}

var _ result.Repository = (*resultRepository)(nil) // interface compliance check

func NewResultRepository(db *DB) *resultRepository {
	return &resultRepository{db: db}
}

func (repo *resultRepository) CreateResult(ctx context.Context, r result.Result) (result.Result, error) {
	q := `INSERT INTO results (` + resultColumns + `) VALUES (
		:id, :student_id, :course_id, :session, :year, :semester, :level, :unit, :ca, :exam, :total, :grade,
		:moderation_status, :moderation_proposed_total, :moderation_proof, :moderation_authorized_by,
		:moderation_original_total, :moderation_original_grade, :moderation_requested_at, :moderation_approved_at,
		:created_at, :updated_at)`
	row := toResultRow(r)
	if _, err := sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, row); err != nil {
		if isUniqueViolation(err) {
			return result.Result{}, result.ErrExists
		}
		return result.Result{}, errors.Wrap(err, "inserting result")
	}
	return row.result(), nil
}

func (repo *resultRepository) GetResult(ctx context.Context, id string) (result.Result, error) {
	var row resultRow
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &row, `SELECT `+resultColumns+` FROM results WHERE id = $1`, id); err != nil {
		return result.Result{}, notFound(err, result.ErrNotFound, "selecting result")
	}
	return row.result(), nil
}

func (repo *resultRepository) QueryResults(ctx context.Context, filter result.Filter) ([]result.Result, error) {
	w := newWhere()
	w.eq("student_id", filter.StudentID)
	if filter.StudentIDs != nil {
		w.add("student_id = ANY(?)", pq.Array(filter.StudentIDs))
	}
	w.eq("course_id", filter.CourseID)
	w.eq("session", filter.Session)
	w.eq("semester", string(filter.Semester))
	w.eq("level", string(filter.Level))

	var rows []resultRow
	q := `SELECT ` + resultColumns + ` FROM results` + w.String() + ` ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting results")
	}
	return results(rows), nil
}

func (repo *resultRepository) update(ctx context.Context, set string, r result.Result) (result.Result, error) {
	q := `UPDATE results SET ` + set + `,
		moderation_status = :moderation_status, moderation_proposed_total = :moderation_proposed_total,
		moderation_proof = :moderation_proof, moderation_authorized_by = :moderation_authorized_by,
		moderation_original_total = :moderation_original_total, moderation_original_grade = :moderation_original_grade,
		moderation_requested_at = :moderation_requested_at, moderation_approved_at = :moderation_approved_at,
		updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, toResultRow(r))
	if err != nil {
		return result.Result{}, errors.Wrap(err, "updating result")
	}
	if n, err := res.RowsAffected(); err != nil {
		return result.Result{}, errors.Wrap(err, "updating result")
	} else if n == 0 {
		return result.Result{}, result.ErrNotFound
	}
	return repo.GetResult(ctx, r.ID)
}

func (repo *resultRepository) UpdateScores(ctx context.Context, r result.Result) (result.Result, error) {
	return repo.update(ctx, `ca = :ca, exam = :exam, total = :total, grade = :grade`, r)
}

func (repo *resultRepository) UpdateModeration(ctx context.Context, r result.Result) (result.Result, error) {
	return repo.update(ctx, `total = :total, grade = :grade`, r)
}

func (repo *resultRepository) DeleteResults(ctx context.Context, ids ...string) ([]result.Result, error) {
	var rows []resultRow
	q := `DELETE FROM results WHERE id = ANY($1) RETURNING ` + resultColumns
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "deleting results")
	}
	return results(rows), nil
}

func (repo *resultRepository) DeleteCourseResults(ctx context.Context, courseID, session string, semester grading.Semester) ([]result.Result, error) {
	var rows []resultRow
	q := `DELETE FROM results WHERE course_id = $1 AND session = $2 AND semester = $3 RETURNING ` + resultColumns
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, q, courseID, session, semester); err != nil {
		return nil, errors.Wrap(err, "deleting course results")
	}
	return results(rows), nil
}
