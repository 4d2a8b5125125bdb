package grading

// Attempt is one attempted course of a term. It is assembled on demand and never stored.
type Attempt struct {
	Unit  int
	Grade Grade
}

// Cumulative is the running snapshot a term's standing is seeded from.
type Cumulative struct {
	CCC  int     `json:"ccc" db:"ccc"`
	CCE  int     `json:"cce" db:"cce"`
	CPE  int     `json:"cpe" db:"cpe"`
	CGPA float64 `json:"cgpa" db:"cgpa"`
}

// Standing holds a term's totals and the cumulative totals after it.
type Standing struct {
	TCC int     `json:"tcc" db:"tcc"`
	TCE int     `json:"tce" db:"tce"`
	TPE int     `json:"tpe" db:"tpe"`
	GPA float64 `json:"gpa" db:"gpa"`
	Cumulative
}

// Compute derives the standing of a term from its attempts and the previous cumulative snapshot.
// Attempts with a non-positive unit or an unknown grade are ignored.
// GPA and CGPA are rounded to 2 decimal places; every other field is exact.
func Compute(attempts []Attempt, prev Cumulative) Standing {
	var st Standing
	for _, a := range attempts {
		if a.Unit <= 0 || !a.Grade.Valid() {
			continue
		}
		st.TCC += a.Unit
		st.TPE += a.Unit * a.Grade.Points()
		if a.Grade.Passed() {
			st.TCE += a.Unit
		}
	}
	st.GPA = ratio(st.TPE, st.TCC)

	st.CCC = st.TCC + prev.CCC
	st.CCE = st.TCE + prev.CCE
	st.CPE = st.TPE + prev.CPE
	st.CGPA = ratio(st.CPE, st.CCC)
	return st
}

func ratio(points, credits int) float64 {
	if credits == 0 {
		return 0
	}
	return Round2(float64(points) / float64(credits))
}

// Snapshot returns the cumulative part of the standing, used to seed the next term.
func (st Standing) Snapshot() Cumulative {
	return st.Cumulative
}
