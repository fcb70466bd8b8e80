package model

import "fmt"

// Term identifies one offering period of the academic calendar.
// Term numbers follow the source convention: 1 (fall), 2 (spring),
// 3 (summer session).
type Term struct {
	AcademicYear int `json:"acy"`
	Number       int `json:"sem"`
}

// Acysem renders the term the way the upstream endpoints expect it:
// year and term number concatenated with no separator, e.g. "1132".
func (t Term) Acysem() string {
	return fmt.Sprintf("%d%d", t.AcademicYear, t.Number)
}

func (t Term) String() string {
	return fmt.Sprintf("%d/%d", t.AcademicYear, t.Number)
}

// TermState is the lifecycle of one term's ingestion run.
type TermState string

const (
	TermPending         TermState = "pending"
	TermDiscovering     TermState = "discovering"
	TermFetching        TermState = "fetching"
	TermDone            TermState = "done"
	TermPartiallyFailed TermState = "partially_failed"
)

// TermSummary is the per-term outcome handed to the export sink
// alongside the course batch.
type TermSummary struct {
	Term       Term      `json:"term"`
	State      TermState `json:"state"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Duplicates int       `json:"duplicates"`
}

// DepartmentRef is an institution-assigned department identifier plus
// its display name, valid only within the term it was discovered for.
// The identifier is the only stable join key; display names collide.
type DepartmentRef struct {
	ID   string
	Name string
}
