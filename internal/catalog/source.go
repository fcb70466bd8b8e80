// Package catalog talks to the university timetable endpoints and
// turns their loosely structured payloads into canonical courses.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"crawler/internal/fetch"
	"crawler/internal/model"
)

// TaxonomyItem is one entry of a taxonomy enumeration (type,
// category, college or department).
type TaxonomyItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Source owns the upstream endpoint family. Every call goes through
// the shared fetch client; the route parameter layout mirrors the
// institution's "r=main/<route>" dispatch.
type Source struct {
	baseURL string
	client  *fetch.Client
}

func NewSource(baseURL string, client *fetch.Client) *Source {
	return &Source{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *Source) call(ctx context.Context, route string, form url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/?r=main/%s", s.baseURL, route)
	return s.client.PostForm(ctx, endpoint, form)
}

func (s *Source) enumerate(ctx context.Context, route string, form url.Values) ([]TaxonomyItem, error) {
	body, err := s.call(ctx, route, form)
	if err != nil {
		return nil, err
	}
	var items []TaxonomyItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%s: decoding enumeration: %w", route, err)
	}
	return items, nil
}

// Types enumerates the course types offered in a term, the root of
// the taxonomy.
func (s *Source) Types(ctx context.Context, term model.Term) ([]TaxonomyItem, error) {
	return s.enumerate(ctx, "get_type", url.Values{
		"acysem": {term.Acysem()},
	})
}

// Categories enumerates the categories under one type.
func (s *Source) Categories(ctx context.Context, term model.Term, typeID string) ([]TaxonomyItem, error) {
	return s.enumerate(ctx, "get_category", url.Values{
		"acysem": {term.Acysem()},
		"ftype":  {typeID},
	})
}

// Colleges enumerates the colleges under one category.
func (s *Source) Colleges(ctx context.Context, term model.Term, typeID, categoryID string) ([]TaxonomyItem, error) {
	return s.enumerate(ctx, "get_college", url.Values{
		"acysem":    {term.Acysem()},
		"ftype":     {typeID},
		"fcategory": {categoryID},
	})
}

// Departments enumerates the departments under one college. An empty
// collegeID is the institution's documented wildcard for categories
// whose college level comes back empty.
func (s *Source) Departments(ctx context.Context, term model.Term, typeID, categoryID, collegeID string) ([]TaxonomyItem, error) {
	return s.enumerate(ctx, "get_dep", url.Values{
		"acysem":    {term.Acysem()},
		"ftype":     {typeID},
		"fcategory": {categoryID},
		"fcollege":  {collegeID},
	})
}

// CourseTable fetches one department's nested course payload. Group,
// grade and class filters are sent as wildcards; filtering is the
// flattener's concern.
func (s *Source) CourseTable(ctx context.Context, term model.Term, depID string) (map[string]json.RawMessage, []byte, error) {
	body, err := s.call(ctx, "get_cos_list", url.Values{
		"m_acy":    {strconv.Itoa(term.AcademicYear)},
		"m_sem":    {strconv.Itoa(term.Number)},
		"m_dep_id": {depID},
		"m_group":  {"**"},
		"m_grade":  {"**"},
		"m_class":  {"**"},
	})
	if err != nil {
		return nil, nil, err
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("get_cos_list %s: decoding payload: %w", depID, err)
	}
	return payload, body, nil
}

// CourseDetail fetches the per-locale detail document for one course.
func (s *Source) CourseDetail(ctx context.Context, term model.Term, courseNo, locale string) (map[string]any, error) {
	body, err := s.call(ctx, "get_cos_detail", url.Values{
		"m_acy":    {strconv.Itoa(term.AcademicYear)},
		"m_sem":    {strconv.Itoa(term.Number)},
		"m_cos_no": {courseNo},
		"flang":    {locale},
	})
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("get_cos_detail %s: decoding document: %w", courseNo, err)
	}
	return doc, nil
}
