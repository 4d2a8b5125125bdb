package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core/session"
)

const sessionColumns = `id, name, year, is_current, status, promotion_stats, closed_at, closed_by, created_at, updated_at`

type sessionRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Year           int         `db:"year"`
	IsCurrent      bool        `db:"is_current"`
	Status         string      `db:"status"`
	PromotionStats null.JSON   `db:"promotion_stats"`
	ClosedAt       null.Time   `db:"closed_at"`
	ClosedBy       null.String `db:"closed_by"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func toSessionRow(s session.Session) (sessionRow, error) {
	row := sessionRow{
		ID:        s.ID,
		Name:      s.Name,
		Year:      s.Year,
		IsCurrent: s.IsCurrent,
		Status:    string(s.Status),
		ClosedAt:  s.ClosedAt,
		ClosedBy:  s.ClosedBy,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
	if s.PromotionStats != nil {
		if err := row.PromotionStats.Marshal(s.PromotionStats); err != nil {
			return sessionRow{}, errors.Wrap(err, "encoding promotion stats")
		}
	}
	return row, nil
}

func (row sessionRow) session() (session.Session, error) {
	s := session.Session{
		ID:        row.ID,
		Name:      row.Name,
		Year:      row.Year,
		IsCurrent: row.IsCurrent,
		Status:    session.Status(row.Status),
		ClosedAt:  row.ClosedAt,
		ClosedBy:  row.ClosedBy,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.PromotionStats.Valid {
		s.PromotionStats = new(session.Stats)
		if err := row.PromotionStats.Unmarshal(s.PromotionStats); err != nil {
			return session.Session{}, errors.Wrap(err, "decoding promotion stats")
		}
	}
	return s, nil
}

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, s session.Session) (session.Session, error) {
	row, err := toSessionRow(s)
	if err != nil {
		return session.Session{}, err
	}
	q := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (:id, :name, :year, :is_current, :status, :promotion_stats, :closed_at, :closed_by, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, row); err != nil {
		if isUniqueViolation(err) {
			return session.Session{}, session.ErrExists
		}
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return row.session()
}

func (repo *sessionRepository) DeactivateAll(ctx context.Context) error {
	if _, err := repo.db.exec(ctx).ExecContext(ctx, `UPDATE sessions SET is_current = FALSE WHERE is_current`); err != nil {
		return errors.Wrap(err, "deactivating sessions")
	}
	return nil
}

func (repo *sessionRepository) get(ctx context.Context, q string, id string) (session.Session, error) {
	var row sessionRow
	if err := sqlx.GetContext(ctx, repo.db.exec(ctx), &row, q, id); err != nil {
		return session.Session{}, notFound(err, session.ErrNotFound, "selecting session")
	}
	return row.session()
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string) (session.Session, error) {
	return repo.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// GetSessionForUpdate holds a row lock until the transaction ends: concurrent closes queue up behind it.
func (repo *sessionRepository) GetSessionForUpdate(ctx context.Context, id string) (session.Session, error) {
	return repo.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
}

func (repo *sessionRepository) QuerySessions(ctx context.Context) ([]session.Session, error) {
	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, repo.db.exec(ctx), &rows, `SELECT `+sessionColumns+` FROM sessions ORDER BY year DESC`); err != nil {
		return nil, errors.Wrap(err, "selecting sessions")
	}
	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		s, err := row.session()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (repo *sessionRepository) MarkCompleted(ctx context.Context, s session.Session) error {
	row, err := toSessionRow(s)
	if err != nil {
		return err
	}
	q := `UPDATE sessions SET status = :status, is_current = :is_current, promotion_stats = :promotion_stats,
		closed_at = :closed_at, closed_by = :closed_by, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db.exec(ctx), q, row)
	if err != nil {
		return errors.Wrap(err, "completing session")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "completing session")
	} else if n == 0 {
		return session.ErrNotFound
	}
	return nil
}
