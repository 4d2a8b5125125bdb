// Package grading holds the fixed 5-point letter-grade scale and the pure standing computation.
package grading

import "math"

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
	GradeF Grade = "F"
)

var gradePoints = map[Grade]int{
	GradeA: 5,
	GradeB: 4,
	GradeC: 3,
	GradeD: 2,
	GradeE: 1,
	GradeF: 0,
}

// GradeFromTotal maps a grand total (0-100) to its letter grade.
func GradeFromTotal(total float64) Grade {
	switch {
	case total >= 70:
		return GradeA
	case total >= 60:
		return GradeB
	case total >= 50:
		return GradeC
	case total >= 45:
		return GradeD
	case total >= 40:
		return GradeE
	default:
		return GradeF
	}
}

func (g Grade) Valid() bool {
	_, ok := gradePoints[g]
	return ok
}

func (g Grade) Points() int {
	return gradePoints[g]
}

// Passed reports whether the grade earns credit.
func (g Grade) Passed() bool {
	return g.Valid() && g != GradeF
}

// Round2 rounds half away from zero to 2 decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
