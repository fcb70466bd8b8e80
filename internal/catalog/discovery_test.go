package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crawler/internal/fetch"
	"crawler/internal/model"

	"github.com/rs/zerolog"
)

// newFakeSource wires a Source at a fake upstream. The handler
// receives the route ("get_type", ...) with the request form already
// parsed.
func newFakeSource(t *testing.T, handle func(route string, r *http.Request, w http.ResponseWriter)) *Source {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		route := r.URL.Query().Get("r")
		handle(route[len("main/"):], r, w)
	}))
	t.Cleanup(srv.Close)

	client := fetch.New(fetch.Policy{MaxAttempts: 1, BaseBackoff: time.Millisecond}, time.Second, zerolog.Nop())
	return NewSource(srv.URL, client)
}

func writeJSON(w http.ResponseWriter, v any) {
	json.NewEncoder(w).Encode(v)
}

func TestDiscoverWalksAllFourLevels(t *testing.T) {
	src := newFakeSource(t, func(route string, r *http.Request, w http.ResponseWriter) {
		switch route {
		case "get_type":
			if got := r.FormValue("acysem"); got != "1131" {
				t.Errorf("acysem = %q, want 1131", got)
			}
			writeJSON(w, []TaxonomyItem{{ID: "U", Name: "Undergraduate"}})
		case "get_category":
			writeJSON(w, []TaxonomyItem{{ID: "E", Name: "Engineering"}})
		case "get_college":
			writeJSON(w, []TaxonomyItem{{ID: "C1", Name: "Engineering College"}})
		case "get_dep":
			if got := r.FormValue("fcollege"); got != "C1" {
				t.Errorf("fcollege = %q, want C1", got)
			}
			writeJSON(w, []TaxonomyItem{
				{ID: "CS01", Name: "Computer Science"},
				{ID: "EE01", Name: "Electrical Engineering"},
			})
		}
	})

	walker := NewWalker(src, "3*", zerolog.Nop())
	refs, err := walker.DiscoverDepartments(context.Background(), model.Term{AcademicYear: 113, Number: 1})
	if err != nil {
		t.Fatalf("DiscoverDepartments: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %v, want 2 departments", refs)
	}
}

func TestDiscoverFlatLeafCategoryIsDepartmentEquivalent(t *testing.T) {
	src := newFakeSource(t, func(route string, r *http.Request, w http.ResponseWriter) {
		switch route {
		case "get_type":
			writeJSON(w, []TaxonomyItem{{ID: "U", Name: "Undergraduate"}})
		case "get_category":
			writeJSON(w, []TaxonomyItem{{ID: "3*", Name: "General Education"}})
		case "get_college", "get_dep":
			t.Errorf("flat-leaf category must not descend, called %s", route)
		}
	})

	walker := NewWalker(src, "3*", zerolog.Nop())
	refs, err := walker.DiscoverDepartments(context.Background(), model.Term{AcademicYear: 113, Number: 1})
	if err != nil {
		t.Fatalf("DiscoverDepartments: %v", err)
	}
	if len(refs) != 1 || refs[0].ID != "3*" || refs[0].Name != "General Education" {
		t.Fatalf("refs = %v, want the flat-leaf category itself", refs)
	}
}

func TestDiscoverEmptyCollegeTriggersWildcardFallback(t *testing.T) {
	var wildcardQueried bool
	src := newFakeSource(t, func(route string, r *http.Request, w http.ResponseWriter) {
		switch route {
		case "get_type":
			writeJSON(w, []TaxonomyItem{{ID: "G", Name: "Graduate"}})
		case "get_category":
			writeJSON(w, []TaxonomyItem{{ID: "M", Name: "Masters"}})
		case "get_college":
			writeJSON(w, []TaxonomyItem{})
		case "get_dep":
			if r.FormValue("fcollege") == "" {
				wildcardQueried = true
			}
			writeJSON(w, []TaxonomyItem{{ID: "IM01", Name: "Information Management"}})
		}
	})

	walker := NewWalker(src, "3*", zerolog.Nop())
	refs, err := walker.DiscoverDepartments(context.Background(), model.Term{AcademicYear: 113, Number: 1})
	if err != nil {
		t.Fatalf("DiscoverDepartments: %v", err)
	}
	if !wildcardQueried {
		t.Error("department discovery was not retried with an empty college key")
	}
	if len(refs) != 1 {
		t.Fatalf("refs = %v, want 1", refs)
	}
}

func TestDiscoverDeduplicatesAcrossBranches(t *testing.T) {
	src := newFakeSource(t, func(route string, r *http.Request, w http.ResponseWriter) {
		switch route {
		case "get_type":
			writeJSON(w, []TaxonomyItem{{ID: "U"}, {ID: "G"}})
		case "get_category":
			writeJSON(w, []TaxonomyItem{{ID: "E"}})
		case "get_college":
			writeJSON(w, []TaxonomyItem{{ID: "C1"}})
		case "get_dep":
			writeJSON(w, []TaxonomyItem{{ID: "CS01", Name: "Computer Science"}})
		}
	})

	walker := NewWalker(src, "3*", zerolog.Nop())
	refs, err := walker.DiscoverDepartments(context.Background(), model.Term{AcademicYear: 113, Number: 1})
	if err != nil {
		t.Fatalf("DiscoverDepartments: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("refs = %v, want CS01 deduplicated to one entry", refs)
	}
}

func TestDiscoverTypeFailureAbortsTerm(t *testing.T) {
	src := newFakeSource(t, func(route string, r *http.Request, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	walker := NewWalker(src, "3*", zerolog.Nop())
	if _, err := walker.DiscoverDepartments(context.Background(), model.Term{AcademicYear: 113, Number: 1}); err == nil {
		t.Fatal("expected error when type enumeration fails")
	}
}

func TestDiscoverDeeperFailureSkipsBranch(t *testing.T) {
	src := newFakeSource(t, func(route string, r *http.Request, w http.ResponseWriter) {
		switch route {
		case "get_type":
			writeJSON(w, []TaxonomyItem{{ID: "U"}})
		case "get_category":
			writeJSON(w, []TaxonomyItem{{ID: "E"}, {ID: "B"}})
		case "get_college":
			if r.FormValue("fcategory") == "E" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			writeJSON(w, []TaxonomyItem{{ID: "C2"}})
		case "get_dep":
			writeJSON(w, []TaxonomyItem{{ID: "BA01", Name: "Business Administration"}})
		}
	})

	walker := NewWalker(src, "3*", zerolog.Nop())
	refs, err := walker.DiscoverDepartments(context.Background(), model.Term{AcademicYear: 113, Number: 1})
	if err != nil {
		t.Fatalf("a non-root failure must not abort the walk: %v", err)
	}
	if len(refs) != 1 || refs[0].ID != "BA01" {
		t.Fatalf("refs = %v, want the sibling branch to survive", refs)
	}
}
