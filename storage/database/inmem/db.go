// Package inmemdb implements the repositories in memory, for tests and local development.
package inmemdb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/result"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/student"
	"github.com/trezcool/examoffice/core/user"
)

type txKey struct{}

type (
	// state holds every table. Rows are stored by value: a shallow copy of the maps is a snapshot.
	state struct {
		users       map[int]user.User
		colleges    map[institution.CollegeID]institution.College
		departments map[institution.DepartmentID]institution.Department
		students    map[string]student.Student
		courses     map[string]student.Course
		regs        map[string]student.Registration
		results     map[string]result.Result
		standings   map[string]standing.Record
		sessions    map[string]session.Session

		userSeq    int
		collegeSeq int
		deptSeq    int
	}

	// DB is an in-memory database. Transactions work on a copy of the state that replaces it on commit;
	// one transaction runs at a time and writes outside transactions wait for it.
	DB struct {
		mu    sync.RWMutex
		txMu  sync.Mutex
		state *state
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{state: &state{
		users:       make(map[int]user.User),
		colleges:    make(map[institution.CollegeID]institution.College),
		departments: make(map[institution.DepartmentID]institution.Department),
		students:    make(map[string]student.Student),
		courses:     make(map[string]student.Course),
		regs:        make(map[string]student.Registration),
		results:     make(map[string]result.Result),
		standings:   make(map[string]standing.Record),
		sessions:    make(map[string]session.Session),
	}}
}

func (s *state) clone() *state {
	c := *s
	c.users = cloneMap(s.users)
	c.colleges = cloneMap(s.colleges)
	c.departments = cloneMap(s.departments)
	c.students = cloneMap(s.students)
	c.courses = cloneMap(s.courses)
	c.regs = cloneMap(s.regs)
	c.results = cloneMap(s.results)
	c.standings = cloneMap(s.standings)
	c.sessions = cloneMap(s.sessions)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// WithinTx runs fn against a copy of the state and keeps it only if fn succeeds.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx) // already in a transaction
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	tx := db.state.clone()
	db.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	db.mu.Lock()
	db.state = tx
	db.mu.Unlock()
	return nil
}

// read returns the state visible to ctx.
func (db *DB) read(ctx context.Context) (*state, func()) {
	if tx, ok := ctx.Value(txKey{}).(*state); ok {
		return tx, func() {}
	}
	db.mu.RLock()
	return db.state, db.mu.RUnlock
}

// write returns the state ctx may modify.
func (db *DB) write(ctx context.Context) (*state, func()) {
	if tx, ok := ctx.Value(txKey{}).(*state); ok {
		return tx, func() {}
	}
	db.txMu.Lock()
	db.mu.Lock()
	return db.state, func() {
		db.mu.Unlock()
		db.txMu.Unlock()
	}
}
