package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
)

var (
	ErrInvalidSession  = errors.New("session must be of the form YYYY/YYYY with consecutive years")
	ErrInvalidSemester = errors.New("semester must be one of: first, second")
	ErrInvalidLevel    = errors.New("level must be one of: 100, 200, 300, 400")
)

// ParseSession returns the start year of a "YYYY/YYYY" session label.
// Chronological comparisons use this integer, never the label itself.
func ParseSession(name string) (int, error) {
	parts := strings.Split(strings.TrimSpace(name), "/")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 4 {
		return 0, ErrInvalidSession
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ErrInvalidSession
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil || end != start+1 {
		return 0, ErrInvalidSession
	}
	return start, nil
}

// SessionName formats the label of the session starting in year.
func SessionName(year int) string {
	return fmt.Sprintf("%04d/%04d", year, year+1)
}

type Semester string

const (
	SemesterFirst  Semester = "first"
	SemesterSecond Semester = "second"
)

var Semesters = []Semester{SemesterFirst, SemesterSecond}

func ParseSemester(s string) (Semester, error) {
	sem := Semester(strings.ToLower(strings.TrimSpace(s)))
	if sem.Ordinal() == 0 {
		return "", ErrInvalidSemester
	}
	return sem, nil
}

// Ordinal is the 1-based position of the semester within a session, 0 if unknown.
func (s Semester) Ordinal() int {
	switch s {
	case SemesterFirst:
		return 1
	case SemesterSecond:
		return 2
	}
	return 0
}

type Level string

const (
	Level100 Level = "100"
	Level200 Level = "200"
	Level300 Level = "300"
	Level400 Level = "400"
)

var Levels = []Level{Level100, Level200, Level300, Level400}

func ParseLevel(s string) (Level, error) {
	lvl := Level(strings.TrimSpace(s))
	if lvl.Rank() == 0 {
		return "", ErrInvalidLevel
	}
	return lvl, nil
}

// Rank is the numeric value of the level, 0 if unknown.
func (l Level) Rank() int {
	switch l {
	case Level100:
		return 100
	case Level200:
		return 200
	case Level300:
		return 300
	case Level400:
		return 400
	}
	return 0
}

// Next returns the level a student is promoted to. The final level has none.
func (l Level) Next() (Level, bool) {
	switch l {
	case Level100:
		return Level200, true
	case Level200:
		return Level300, true
	case Level300:
		return Level400, true
	}
	return "", false
}

// Term is one (session, semester) academic period, ordered chronologically.
type Term struct {
	Year     int
	Semester Semester
}

func (t Term) Before(other Term) bool {
	if t.Year != other.Year {
		return t.Year < other.Year
	}
	return t.Semester.Ordinal() < other.Semester.Ordinal()
}

// Key identifies one student's standing: a student in a term at a level.
type Key struct {
	StudentID string   `json:"student_id" db:"student_id"`
	Session   string   `json:"session" db:"session"`
	Semester  Semester `json:"semester" db:"semester"`
	Level     Level    `json:"level" db:"level"`
}

// Term resolves the key's sortable term. The session label must be valid.
func (k Key) Term() (Term, error) {
	year, err := ParseSession(k.Session)
	if err != nil {
		return Term{}, err
	}
	return Term{Year: year, Semester: k.Semester}, nil
}

func (k Key) String() string {
	return k.StudentID + "|" + k.Session + "|" + string(k.Semester) + "|" + string(k.Level)
}

// Validate checks every component of the key.
func (k Key) Validate() error {
	var flds []core.FieldError
	if strings.TrimSpace(k.StudentID) == "" {
		flds = append(flds, core.FieldError{Field: "student_id", Error: "this field is required"})
	}
	if _, err := ParseSession(k.Session); err != nil {
		flds = append(flds, core.FieldError{Field: "session", Error: err.Error()})
	}
	if k.Semester.Ordinal() == 0 {
		flds = append(flds, core.FieldError{Field: "semester", Error: ErrInvalidSemester.Error()})
	}
	if k.Level.Rank() == 0 {
		flds = append(flds, core.FieldError{Field: "level", Error: ErrInvalidLevel.Error()})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// UniqueKeys drops duplicate keys, keeping the first occurrence order.
func UniqueKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	uniq := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	return uniq
}
