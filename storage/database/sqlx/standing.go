package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/standing"
)

const semesterOrdinal = `CASE semester WHEN 'first' THEN 1 WHEN 'second' THEN 2 ELSE 0 END`

var (
	approvalFields   = []string{"approved", "flagged", "approver_id", "approver_name", "approver_dept_id", "approver_col_id", "note", "updated_at"}
	cumulativeFields = []string{"ccc", "cce", "cpe", "cgpa"}

	standingColumns = buildStandingColumns()
)

// buildStandingColumns aliases the prefixed columns ("dean_note") to the nested row fields ("dean.note").
func buildStandingColumns() string {
	cols := []string{
		"id", "student_id", "session", "semester", "level", "year", "department_id", "college_id",
		"tcc", "tce", "tpe", "gpa", "ccc", "cce", "cpe", "cgpa", "created_at", "updated_at",
	}
	for _, f := range cumulativeFields {
		cols = append(cols, fmt.Sprintf(`prev_%s AS "prev.%s"`, f, f))
	}
	for _, stage := range standing.Stages {
		for _, f := range approvalFields {
			cols = append(cols, fmt.Sprintf(`%s_%s AS "%s.%s"`, stage, f, stage, f))
		}
	}
	return strings.Join(cols, ", ")
}

type approvalRow struct {
	Approved       bool      `db:"approved"`
	Flagged        bool      `db:"flagged"`
	ApproverID     int       `db:"approver_id"`
	ApproverName   string    `db:"approver_name"`
	ApproverDeptID int       `db:"approver_dept_id"`
	ApproverColID  int       `db:"approver_col_id"`
	Note           string    `db:"note"`
	UpdatedAt      null.Time `db:"updated_at"`
}

func (row approvalRow) snapshot() standing.ApprovalSnapshot {
	return standing.ApprovalSnapshot{
		Approved: row.Approved,
		Flagged:  row.Flagged,
		Approver: standing.Approver{
			ID:           row.ApproverID,
			Name:         row.ApproverName,
			DepartmentID: institution.DepartmentID(row.ApproverDeptID),
			CollegeID:    institution.CollegeID(row.ApproverColID),
		},
		Note:      row.Note,
		UpdatedAt: row.UpdatedAt,
	}
}

type standingRow struct {
	ID           string `db:"id"`
	StudentID    string `db:"student_id"`
	Session      string `db:"session"`
	Semester     string `db:"semester"`
	Level        string `db:"level"`
	Year         int    `db:"year"`
	DepartmentID int    `db:"department_id"`
	CollegeID    int    `db:"college_id"`

	grading.Standing
	Previous grading.Cumulative `db:"prev"`

	Officer approvalRow `db:"officer"`
	HOD     approvalRow `db:"hod"`
	Dean    approvalRow `db:"dean"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row standingRow) record() standing.Record {
	return standing.Record{
		ID: row.ID,
		Key: grading.Key{
			StudentID: row.StudentID,
			Session:   row.Session,
			Semester:  grading.Semester(row.Semester),
			Level:     grading.Level(row.Level),
		},
		Year:         row.Year,
		DepartmentID: institution.DepartmentID(row.DepartmentID),
		CollegeID:    institution.CollegeID(row.CollegeID),
		Standing:     row.Standing,
		Previous:     row.Previous,
		Officer:      row.Officer.snapshot(),
		HOD:          row.HOD.snapshot(),
		Dean:         row.Dean.snapshot(),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type standingRepository struct {
	db *DB
}

var _ standing.Repository = (*standingRepository)(nil) // interface compliance check

func NewStandingRepository(db *DB) *standingRepository {
	return &standingRepository{db: db}
}

func (repo *standingRepository) get(ctx context.Context, q string, args ...interface{}) (standing.Record, error) {
	var row standingRow
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &row, q, args...); err != nil {
		return standing.Record{}, notFound(err, standing.ErrNotFound, "selecting standing")
	}
	return row.record(), nil
}

func (repo *standingRepository) GetRecord(ctx context.Context, id string) (standing.Record, error) {
	return repo.get(ctx, `SELECT `+standingColumns+` FROM standings WHERE id = $1`, id)
}

func (repo *standingRepository) GetRecordByKey(ctx context.Context, key grading.Key) (standing.Record, error) {
	q := `SELECT ` + standingColumns + ` FROM standings WHERE student_id = $1 AND session = $2 AND semester = $3 AND level = $4`
	return repo.get(ctx, q, key.StudentID, key.Session, key.Semester, key.Level)
}

func (repo *standingRepository) LatestBefore(ctx context.Context, studentID string, term grading.Term) (standing.Record, error) {
	q := `SELECT ` + standingColumns + ` FROM standings
		WHERE student_id = $1 AND (year < $2 OR (year = $2 AND ` + semesterOrdinal + ` < $3))
		ORDER BY year DESC, ` + semesterOrdinal + ` DESC, level::int DESC
		LIMIT 1`
	return repo.get(ctx, q, studentID, term.Year, term.Semester.Ordinal())
}

func (repo *standingRepository) ListAfter(ctx context.Context, studentID string, term grading.Term) ([]standing.Record, error) {
	q := `SELECT ` + standingColumns + ` FROM standings
		WHERE student_id = $1 AND (year > $2 OR (year = $2 AND ` + semesterOrdinal + ` > $3))
		ORDER BY year, ` + semesterOrdinal + `, level::int`
	var rows []standingRow
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, q, studentID, term.Year, term.Semester.Ordinal()); err != nil {
		return nil, errors.Wrap(err, "selecting later standings")
	}
	recs := make([]standing.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (repo *standingRepository) UpsertMetrics(ctx context.Context, rec standing.Record) (standing.Record, error) {
	q := `INSERT INTO standings (
			id, student_id, session, semester, level, year, department_id, college_id,
			tcc, tce, tpe, gpa, ccc, cce, cpe, cgpa, prev_ccc, prev_cce, prev_cpe, prev_cgpa,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (student_id, session, semester, level) DO UPDATE SET
			year = EXCLUDED.year, department_id = EXCLUDED.department_id, college_id = EXCLUDED.college_id,
			tcc = EXCLUDED.tcc, tce = EXCLUDED.tce, tpe = EXCLUDED.tpe, gpa = EXCLUDED.gpa,
			ccc = EXCLUDED.ccc, cce = EXCLUDED.cce, cpe = EXCLUDED.cpe, cgpa = EXCLUDED.cgpa,
			prev_ccc = EXCLUDED.prev_ccc, prev_cce = EXCLUDED.prev_cce, prev_cpe = EXCLUDED.prev_cpe, prev_cgpa = EXCLUDED.prev_cgpa,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + standingColumns
	st, prev := rec.Standing, rec.Previous
	return repo.get(ctx, q,
		rec.ID, rec.StudentID, rec.Session, rec.Semester, rec.Level, rec.Year, rec.DepartmentID, rec.CollegeID,
		st.TCC, st.TCE, st.TPE, st.GPA, st.CCC, st.CCE, st.CPE, st.CGPA, prev.CCC, prev.CCE, prev.CPE, prev.CGPA,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
}

func (repo *standingRepository) DeleteByKey(ctx context.Context, key grading.Key) error {
	q := `DELETE FROM standings WHERE student_id = $1 AND session = $2 AND semester = $3 AND level = $4`
	res, err := repo.db.exec(ctx).ExecContext(ctx, q, key.StudentID, key.Session, key.Semester, key.Level)
	if err != nil {
		return errors.Wrap(err, "deleting standing")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "deleting standing")
	} else if n == 0 {
		return standing.ErrNotFound
	}
	return nil
}

func (repo *standingRepository) UpdateApproval(ctx context.Context, id string, stage standing.Stage, snap standing.ApprovalSnapshot) (standing.Record, error) {
	if stage.Index() < 0 {
		return standing.Record{}, errors.Errorf("unknown stage %q", stage)
	}
	sets := make([]string, 0, len(approvalFields)+1)
	for i, f := range approvalFields {
		sets = append(sets, fmt.Sprintf("%s_%s = $%d", stage, f, i+2))
	}
	sets = append(sets, fmt.Sprintf("updated_at = COALESCE($%d, updated_at)", len(approvalFields)+1))

	q := `UPDATE standings SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + standingColumns
	return repo.get(ctx, q,
		id,
		snap.Approved,
		snap.Flagged,
		snap.Approver.ID,
		snap.Approver.Name,
		snap.Approver.DepartmentID,
		snap.Approver.CollegeID,
		snap.Note,
		snap.UpdatedAt,
	)
}

// pendingAt selects the records approved by every stage before stage, and not by stage itself.
func pendingAt(stage standing.Stage) string {
	conds := make([]string, 0, stage.Index()+1)
	for _, earlier := range standing.Stages[:stage.Index()] {
		conds = append(conds, string(earlier)+"_approved")
	}
	conds = append(conds, "NOT "+string(stage)+"_approved")
	return strings.Join(conds, " AND ")
}

func (repo *standingRepository) QueryPending(ctx context.Context, filter standing.PendingFilter) ([]standing.Record, error) {
	if filter.Stage.Index() < 0 {
		return []standing.Record{}, nil
	}
	w := newWhere()
	w.raw(pendingAt(filter.Stage))
	w.eq("session", filter.Session)
	w.eq("semester", string(filter.Semester))
	if filter.DepartmentID != 0 {
		w.add("department_id = ?", filter.DepartmentID)
	}
	if filter.CollegeID != 0 {
		w.add("college_id = ?", filter.CollegeID)
	}

	var rows []standingRow
	q := `SELECT ` + standingColumns + ` FROM standings` + w.String() + ` ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting pending standings")
	}
	recs := make([]standing.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (repo *standingRepository) CountBySession(ctx context.Context, session string) ([]standing.SemesterCount, error) {
	counts := make([]standing.SemesterCount, 0, len(grading.Semesters))
	q := `SELECT semester, COUNT(*) AS total, COUNT(*) FILTER (WHERE dean_approved) AS approved
		FROM standings WHERE session = $1
		GROUP BY semester ORDER BY ` + semesterOrdinal
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &counts, q, session); err != nil {
		return nil, errors.Wrap(err, "counting standings")
	}
	return counts, nil
}
