// Package session manages academic sessions and closes them by promoting the cohort.
package session

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examoffice/core"
)

var (
	ErrNotFound = core.NewNotFoundError("session")
	ErrExists   = core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this session already exists"})
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed" // terminal
)

// Stats is the promotion snapshot written once when a session is closed.
type Stats struct {
	Promoted100To200 int `json:"promoted_100_to_200"`
	Promoted200To300 int `json:"promoted_200_to_300"`
	Promoted300To400 int `json:"promoted_300_to_400"`
	Graduated        int `json:"graduated"`
	ExtraYear        int `json:"extra_year"`
	TotalProcessed   int `json:"total_processed"`
}

type Session struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Year           int         `json:"year"`
	IsCurrent      bool        `json:"is_current"`
	Status         Status      `json:"status"`
	PromotionStats *Stats      `json:"promotion_stats"`
	ClosedAt       null.Time   `json:"closed_at"`
	ClosedBy       null.String `json:"closed_by"`
	CreatedAt      time.Time   `json:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updated_at"` // UTC
}

func (s Session) Completed() bool {
	return s.Status == StatusCompleted
}

// Readiness tells whether a session can be closed, and what blocks it otherwise.
type Readiness struct {
	Session  string                `json:"session"`
	Total    int                   `json:"total"`
	Approved int                   `json:"approved"`
	Ready    bool                  `json:"ready"`
	Reasons  []core.BlockingReason `json:"reasons"`
}

type Repository interface {
	// CreateSession returns ErrExists if a session with the same name exists.
	CreateSession(ctx context.Context, s Session) (Session, error)
	// DeactivateAll clears IsCurrent on every session.
	DeactivateAll(ctx context.Context) error
	GetSession(ctx context.Context, id string) (Session, error)
	// GetSessionForUpdate reads the session and locks it until the end of the transaction.
	GetSessionForUpdate(ctx context.Context, id string) (Session, error)
	QuerySessions(ctx context.Context) ([]Session, error)
	// MarkCompleted persists the close fields: status, IsCurrent, stats, ClosedAt and ClosedBy.
	MarkCompleted(ctx context.Context, s Session) error
}

type NewSession struct {
	Name string `json:"name" validate:"required,session"`
}
