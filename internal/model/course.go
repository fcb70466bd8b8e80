package model

import (
	"encoding/json"
	"fmt"
)

// Weekday is a day of the week as used in schedule entries.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = map[Weekday]string{
	Monday:    "Mon",
	Tuesday:   "Tue",
	Wednesday: "Wed",
	Thursday:  "Thu",
	Friday:    "Fri",
	Saturday:  "Sat",
	Sunday:    "Sun",
}

func (d Weekday) String() string {
	if name, ok := weekdayNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Weekday(%d)", int(d))
}

// ScheduleEntry is one decoded (day, period) slot. Period 0 means the
// source named the day without any period characters.
type ScheduleEntry struct {
	Day    Weekday `json:"day"`
	Period int     `json:"period"`
}

// Course is the canonical record emitted by the ingestion pipeline.
// It is uniquely keyed by (AcademicYear, Term, CourseNumber) within
// one term's batch.
type Course struct {
	AcademicYear    int             `json:"acy" validate:"gt=0"`
	Term            int             `json:"sem" validate:"min=1,max=3"`
	CourseNumber    string          `json:"course_no" validate:"required"`
	PermanentNumber string          `json:"permanent_no,omitempty"`
	Name            string          `json:"name"`
	Instructor      string          `json:"teacher,omitempty"`
	Credits         *float64        `json:"credits" validate:"omitempty,gte=0"`
	Department      string          `json:"department"`
	Required        *bool           `json:"required,omitempty"`
	Schedule        []ScheduleEntry `json:"schedule"`
	Classrooms      []string        `json:"classrooms"`

	// Details carries the merged raw detail documents untouched, so
	// downstream consumers can pick up fields this pipeline does not
	// model yet.
	Details json.RawMessage `json:"details,omitempty"`
}

// Key is the dedupe key within one term's batch.
func (c Course) Key() string {
	return fmt.Sprintf("%d-%d-%s", c.AcademicYear, c.Term, c.CourseNumber)
}

// RawCourseRecord is the as-received shape of one course inside one
// department payload. It lives only until folded into a Course.
type RawCourseRecord struct {
	Term       Term
	Department string // display name, never a join key
	Bucket     string
	InternalID string
	Fields     map[string]any
}
