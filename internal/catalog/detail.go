package catalog

import (
	"context"
	"encoding/json"

	"crawler/internal/fetch"
	"crawler/internal/model"
	"crawler/internal/schedule"

	"github.com/rs/zerolog"
)

// fieldLabels maps each canonical field to its candidate labels in
// the detail documents, in preference order. Labels vary by locale
// and by markup generation; new variants are added here, first match
// wins.
var fieldLabels = map[string][]string{
	"name":         {"cos_cname", "cos_ename", "course_name", "課程名稱"},
	"permanent_no": {"cos_code", "permanent_no", "永久課號"},
	"instructor":   {"teacher", "instructor", "授課教師"},
	"credits":      {"cos_credit", "credits", "學分數"},
	"required":     {"cos_type", "required", "必選修"},
	"time":         {"cos_time", "time", "上課時間"},
}

// DetailFetcher builds canonical courses from per-course detail
// documents. The source serves one document per locale; fields are
// folded across them in locale order.
type DetailFetcher struct {
	src     *Source
	dec     *schedule.Decoder
	locales []string
	log     zerolog.Logger
}

func NewDetailFetcher(src *Source, dec *schedule.Decoder, locales []string, log zerolog.Logger) *DetailFetcher {
	return &DetailFetcher{
		src:     src,
		dec:     dec,
		locales: locales,
		log:     log.With().Str("component", "detail").Logger(),
	}
}

// BuildCourse fetches every locale variant of courseNo's detail
// document and folds them into one Course.
//
// Whenever at least one document was retrieved the returned Course has
// (term, courseNumber) populated, even if every other field is empty —
// a sparse course is not a failed fetch. With no document at all the
// error is the last fetch failure: a definitive 404 when the course
// does not exist, or the exhausted-retries error otherwise.
func (d *DetailFetcher) BuildCourse(ctx context.Context, term model.Term, courseNo string) (*model.Course, error) {
	var docs []map[string]any
	var lastErr error
	for _, locale := range d.locales {
		doc, err := d.src.CourseDetail(ctx, term, courseNo, locale)
		if err != nil {
			if !fetch.IsNotFound(err) {
				d.log.Warn().Str("course", courseNo).Str("locale", locale).Err(err).Msg("detail fetch failed")
			}
			lastErr = err
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, lastErr
	}

	merged := mergeDocs(docs)
	course := &model.Course{
		AcademicYear:    term.AcademicYear,
		Term:            term.Number,
		CourseNumber:    courseNo,
		Name:            stripNameSuffixes(matchString(merged, "name")),
		PermanentNumber: matchString(merged, "permanent_no"),
		Instructor:      matchString(merged, "instructor"),
		Credits:         parseCredits(matchField(merged, "credits")),
		Required:        requiredFlag(matchString(merged, "required")),
		Schedule:        []model.ScheduleEntry{},
		Classrooms:      []string{},
	}
	if token := matchString(merged, "time"); token != "" {
		course.Schedule, course.Classrooms = d.dec.Decode(token)
	}
	if details, err := json.Marshal(merged); err == nil {
		course.Details = details
	}
	return course, nil
}

// mergeDocs folds the locale documents into one map; the first
// document to define a key wins.
func mergeDocs(docs []map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, doc := range docs {
		for k, v := range doc {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return merged
}

// matchField returns the value of the first candidate label present
// in the merged document.
func matchField(doc map[string]any, field string) any {
	for _, label := range fieldLabels[field] {
		if v, ok := doc[label]; ok {
			return v
		}
	}
	return nil
}

func matchString(doc map[string]any, field string) string {
	for _, label := range fieldLabels[field] {
		if v, ok := doc[label]; ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}
