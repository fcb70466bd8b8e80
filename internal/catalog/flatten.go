package catalog

import (
	"encoding/json"
	"strconv"
	"strings"

	"crawler/internal/model"
	"crawler/internal/schedule"

	"github.com/rs/zerolog"
)

// Keys of a department payload that describe the department itself
// rather than a course-group bucket.
var metadataKeys = map[string]struct{}{
	"dep_id":    {},
	"dep_cname": {},
	"dep_ename": {},
	"language":  {},
	"brief":     {},
}

// Decorative suffixes the source appends to course names depending on
// the language mode of the offering. Additions go here, not in code.
var nameSuffixes = []string{
	"(英文授課)",
	"(英語授課)",
}

// Flattener converts nested department payloads into flat per-course
// records and folds records into canonical courses.
type Flattener struct {
	dec *schedule.Decoder
	log zerolog.Logger
}

func NewFlattener(dec *schedule.Decoder, log zerolog.Logger) *Flattener {
	return &Flattener{dec: dec, log: log.With().Str("component", "flatten").Logger()}
}

// Flatten walks one department payload and emits its course records
// tagged with the term and the department display name.
//
// The source sometimes wraps the whole payload one extra level behind
// a key equal to the department's own identifier; Flatten tries that
// shape first and falls back to the unwrapped one. Every non-metadata
// top-level key is treated as a course-group bucket: the observed
// values are "1" and "2", but the set is not assumed exhaustive.
func (f *Flattener) Flatten(term model.Term, dep model.DepartmentRef, payload map[string]json.RawMessage) []model.RawCourseRecord {
	payload = unwrap(payload, dep.ID)
	depName := dep.Name
	if raw, ok := payload["dep_cname"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			depName = name
		}
	}

	var records []model.RawCourseRecord
	for key, raw := range payload {
		if _, ok := metadataKeys[key]; ok {
			continue
		}
		var bucket map[string]map[string]any
		if err := json.Unmarshal(raw, &bucket); err != nil {
			f.log.Warn().
				Str("dep_id", dep.ID).
				Str("bucket", key).
				Err(err).
				Msg("bucket is not a course map, skipping")
			continue
		}
		for id, fields := range bucket {
			records = append(records, model.RawCourseRecord{
				Term:       term,
				Department: depName,
				Bucket:     key,
				InternalID: id,
				Fields:     fields,
			})
		}
	}
	return records
}

// unwrap descends into payload[depID] when that key holds a nested
// mapping, undoing the source's self-referential wrapper layer.
func unwrap(payload map[string]json.RawMessage, depID string) map[string]json.RawMessage {
	raw, ok := payload[depID]
	if !ok {
		return payload
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(raw, &inner); err != nil {
		return payload
	}
	return inner
}

// Course folds one raw record into a canonical Course, decoding the
// schedule token and coercing malformed fields to empty/nil instead
// of failing.
func (f *Flattener) Course(rec model.RawCourseRecord) model.Course {
	course := model.Course{
		AcademicYear: rec.Term.AcademicYear,
		Term:         rec.Term.Number,
		CourseNumber: courseNumber(rec),
		Name:         stripNameSuffixes(stringField(rec.Fields, "cos_cname")),
		Instructor:   stringField(rec.Fields, "teacher"),
		Credits:      parseCredits(rec.Fields["cos_credit"]),
		Department:   rec.Department,
		Required:     requiredFlag(stringField(rec.Fields, "cos_type")),
		Schedule:     []model.ScheduleEntry{},
		Classrooms:   []string{},
	}
	if token := stringField(rec.Fields, "cos_time"); token != "" {
		course.Schedule, course.Classrooms = f.dec.Decode(token)
	}
	if details, err := json.Marshal(rec.Fields); err == nil {
		course.Details = details
	}
	return course
}

// courseNumber prefers the public course code, then the internal id.
func courseNumber(rec model.RawCourseRecord) string {
	if code := stringField(rec.Fields, "cos_code"); code != "" {
		return code
	}
	return rec.InternalID
}

func stripNameSuffixes(name string) string {
	for _, suffix := range nameSuffixes {
		name = strings.TrimSuffix(strings.TrimSpace(name), suffix)
	}
	return strings.TrimSpace(name)
}

// stringField reads a field that may be a string or a number, or
// missing entirely.
func stringField(fields map[string]any, key string) string {
	return asString(fields[key])
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

// parseCredits coerces the credit field to a non-negative decimal,
// returning nil for anything it cannot read.
func parseCredits(v any) *float64 {
	var credits float64
	switch val := v.(type) {
	case float64:
		credits = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		credits = parsed
	default:
		return nil
	}
	if credits < 0 {
		return nil
	}
	return &credits
}

func requiredFlag(cosType string) *bool {
	var required bool
	switch cosType {
	case "必修", "Required":
		required = true
	case "選修", "Elective":
		required = false
	default:
		return nil
	}
	return &required
}
