package inmemdb

import (
	"context"

	"github.com/trezcool/examoffice/core/session"
)

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, s session.Session) (session.Session, error) {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	for _, other := range st.sessions {
		if other.Name == s.Name {
			return session.Session{}, session.ErrExists
		}
	}
	st.sessions[s.ID] = s
	return s, nil
}

func (repo *sessionRepository) DeactivateAll(ctx context.Context) error {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	for id, s := range st.sessions {
		if s.IsCurrent {
			s.IsCurrent = false
			st.sessions[id] = s
		}
	}
	return nil
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string) (session.Session, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	if s, ok := st.sessions[id]; ok {
		return s, nil
	}
	return session.Session{}, session.ErrNotFound
}

// GetSessionForUpdate needs no row lock: transactions are serialized.
func (repo *sessionRepository) GetSessionForUpdate(ctx context.Context, id string) (session.Session, error) {
	return repo.GetSession(ctx, id)
}

func (repo *sessionRepository) QuerySessions(ctx context.Context) ([]session.Session, error) {
	st, unlock := repo.db.read(ctx)
	defer unlock()

	sessions := make([]session.Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (repo *sessionRepository) MarkCompleted(ctx context.Context, s session.Session) error {
	st, unlock := repo.db.write(ctx)
	defer unlock()

	orig, ok := st.sessions[s.ID]
	if !ok {
		return session.ErrNotFound
	}
	stats := *s.PromotionStats
	orig.Status = s.Status
	orig.IsCurrent = s.IsCurrent
	orig.PromotionStats = &stats
	orig.ClosedAt = s.ClosedAt
	orig.ClosedBy = s.ClosedBy
	orig.UpdatedAt = s.UpdatedAt
	st.sessions[s.ID] = orig
	return nil
}
