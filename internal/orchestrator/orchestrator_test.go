package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crawler/internal/catalog"
	"crawler/internal/export"
	"crawler/internal/fetch"
	"crawler/internal/model"
	"crawler/internal/schedule"

	"github.com/rs/zerolog"
)

// captureSink records everything a term exports.
type captureSink struct {
	mu        sync.Mutex
	courses   []model.Course
	summaries []model.TermSummary
	raw       map[string][]byte
}

func newCaptureSink() *captureSink {
	return &captureSink{raw: make(map[string][]byte)}
}

func (s *captureSink) ExportCourses(_ context.Context, _ model.Term, courses []model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = append(s.courses, courses...)
	return nil
}

func (s *captureSink) ExportSummary(_ context.Context, summary model.TermSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *captureSink) ArchiveRaw(_ context.Context, _ model.Term, depID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[depID] = payload
	return nil
}

// fakeUpstream serves a taxonomy with one type/category/college and
// the given departments. Department payloads and failures are
// configured per department id.
type fakeUpstream struct {
	deps     []catalog.TaxonomyItem
	payloads map[string]string
	failing  map[string]bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
	holdCourses time.Duration
}

func (f *fakeUpstream) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		enc := json.NewEncoder(w)
		switch r.URL.Query().Get("r") {
		case "main/get_type":
			enc.Encode([]catalog.TaxonomyItem{{ID: "U", Name: "Undergraduate"}})
		case "main/get_category":
			enc.Encode([]catalog.TaxonomyItem{{ID: "E", Name: "Engineering"}})
		case "main/get_college":
			enc.Encode([]catalog.TaxonomyItem{{ID: "C1", Name: "Engineering College"}})
		case "main/get_dep":
			enc.Encode(f.deps)
		case "main/get_cos_list":
			cur := f.inflight.Add(1)
			defer f.inflight.Add(-1)
			for {
				max := f.maxInflight.Load()
				if cur <= max || f.maxInflight.CompareAndSwap(max, cur) {
					break
				}
			}
			if f.holdCourses > 0 {
				time.Sleep(f.holdCourses)
			}
			depID := r.FormValue("m_dep_id")
			if f.failing[depID] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, f.payloads[depID])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func depPayload(depName, internalID, code string) string {
	return fmt.Sprintf(`{
		"dep_cname": %q,
		"1": {%q: {"cos_code": %q, "cos_cname": "課程", "cos_credit": "3", "cos_time": "M34-"}}
	}`, depName, internalID, code)
}

func newTestOrchestrator(t *testing.T, upstream *fakeUpstream, sink export.Sink, opts Options) *Orchestrator {
	t.Helper()
	srv := httptest.NewServer(upstream.handler(t))
	t.Cleanup(srv.Close)

	client := fetch.New(fetch.Policy{MaxAttempts: 1, BaseBackoff: time.Millisecond}, 5*time.Second, zerolog.Nop())
	src := catalog.NewSource(srv.URL, client)
	dec := schedule.NewDecoder(zerolog.Nop())
	walker := catalog.NewWalker(src, "3*", zerolog.Nop())
	flat := catalog.NewFlattener(dec, zerolog.Nop())
	return New(src, walker, flat, nil, sink, opts, zerolog.Nop())
}

func TestRunTermCountsFailuresWithoutAborting(t *testing.T) {
	upstream := &fakeUpstream{
		deps: []catalog.TaxonomyItem{
			{ID: "D1"}, {ID: "D2"}, {ID: "D3"}, {ID: "D4"}, {ID: "D5"},
		},
		payloads: map[string]string{
			"D1": depPayload("One", "5001", "A1"),
			"D3": depPayload("Three", "5003", "A3"),
			"D5": depPayload("Five", "5005", "A5"),
		},
		failing: map[string]bool{"D2": true, "D4": true},
	}
	sink := newCaptureSink()
	orch := newTestOrchestrator(t, upstream, sink, Options{Width: 3})

	summaries := orch.Run(context.Background(), []model.Term{{AcademicYear: 113, Number: 1}})
	if len(summaries) != 1 {
		t.Fatalf("summaries = %v", summaries)
	}
	s := summaries[0]
	if s.Attempted != 5 || s.Failed != 2 || s.Succeeded != 3 {
		t.Errorf("summary = %+v, want attempted=5 failed=2 succeeded=3", s)
	}
	if s.State != model.TermPartiallyFailed {
		t.Errorf("state = %s, want partially_failed", s.State)
	}
	if len(sink.courses) != 3 {
		t.Errorf("exported %d courses, want 3", len(sink.courses))
	}
}

func TestRunTermAllSucceedIsDone(t *testing.T) {
	upstream := &fakeUpstream{
		deps: []catalog.TaxonomyItem{{ID: "D1"}},
		payloads: map[string]string{
			"D1": depPayload("One", "5001", "A1"),
		},
	}
	sink := newCaptureSink()
	orch := newTestOrchestrator(t, upstream, sink, Options{Width: 2})

	summaries := orch.Run(context.Background(), []model.Term{{AcademicYear: 113, Number: 1}})
	if summaries[0].State != model.TermDone {
		t.Errorf("state = %s, want done", summaries[0].State)
	}
	if summaries[0].Failed != 0 {
		t.Errorf("failed = %d, want 0", summaries[0].Failed)
	}
	if len(sink.summaries) != 1 {
		t.Errorf("summaries exported = %d, want 1", len(sink.summaries))
	}
}

func TestRunTermConcurrencyBound(t *testing.T) {
	const width = 2
	deps := make([]catalog.TaxonomyItem, 6)
	payloads := make(map[string]string, len(deps))
	for i := range deps {
		id := fmt.Sprintf("D%d", i+1)
		deps[i] = catalog.TaxonomyItem{ID: id}
		payloads[id] = depPayload(id, fmt.Sprintf("500%d", i+1), fmt.Sprintf("A%d", i+1))
	}
	upstream := &fakeUpstream{deps: deps, payloads: payloads, holdCourses: 30 * time.Millisecond}
	orch := newTestOrchestrator(t, upstream, newCaptureSink(), Options{Width: width})

	orch.Run(context.Background(), []model.Term{{AcademicYear: 113, Number: 1}})
	if got := upstream.maxInflight.Load(); got > width {
		t.Errorf("max in-flight course fetches = %d, want <= %d", got, width)
	}
}

func TestRunTermCountsAndSkipsDuplicates(t *testing.T) {
	upstream := &fakeUpstream{
		deps: []catalog.TaxonomyItem{{ID: "D1"}, {ID: "D2"}},
		payloads: map[string]string{
			// Same public course code in both departments.
			"D1": depPayload("One", "5001", "SAME01"),
			"D2": depPayload("Two", "5002", "SAME01"),
		},
	}
	sink := newCaptureSink()
	orch := newTestOrchestrator(t, upstream, sink, Options{Width: 2})

	summaries := orch.Run(context.Background(), []model.Term{{AcademicYear: 113, Number: 1}})
	if summaries[0].Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", summaries[0].Duplicates)
	}
	if len(sink.courses) != 1 {
		t.Errorf("exported %d courses, want the duplicate skipped", len(sink.courses))
	}
}

func TestRunTermDiscoveryFailureAbortsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := fetch.New(fetch.Policy{MaxAttempts: 1, BaseBackoff: time.Millisecond}, time.Second, zerolog.Nop())
	src := catalog.NewSource(srv.URL, client)
	dec := schedule.NewDecoder(zerolog.Nop())
	sink := newCaptureSink()
	orch := New(src, catalog.NewWalker(src, "3*", zerolog.Nop()), catalog.NewFlattener(dec, zerolog.Nop()), nil, sink, Options{Width: 2}, zerolog.Nop())

	summaries := orch.Run(context.Background(), []model.Term{{AcademicYear: 113, Number: 1}})
	if summaries[0].State != model.TermPartiallyFailed {
		t.Errorf("state = %s, want partially_failed", summaries[0].State)
	}
	if summaries[0].Attempted != 0 {
		t.Errorf("attempted = %d, want no fetches after discovery failure", summaries[0].Attempted)
	}
	if len(sink.courses) != 0 {
		t.Errorf("exported %d courses, want none", len(sink.courses))
	}
}

func TestRunTermArchivesRawPayloads(t *testing.T) {
	upstream := &fakeUpstream{
		deps:     []catalog.TaxonomyItem{{ID: "D1"}},
		payloads: map[string]string{"D1": depPayload("One", "5001", "A1")},
	}
	sink := newCaptureSink()
	orch := newTestOrchestrator(t, upstream, sink, Options{Width: 1})

	orch.Run(context.Background(), []model.Term{{AcademicYear: 113, Number: 1}})
	if _, ok := sink.raw["D1"]; !ok {
		t.Error("raw department payload was not archived")
	}
}

func TestEndToEndTwoBucketsTagDepartment(t *testing.T) {
	payload := `{
		"dep_cname": "Computer Science",
		"1": {"5001": {"cos_code": "CS1001", "cos_cname": "資料結構", "cos_time": "M34-"}},
		"2": {"5002": {"cos_code": "CS2002", "cos_cname": "作業系統", "cos_time": "T56-"}}
	}`
	upstream := &fakeUpstream{
		deps:     []catalog.TaxonomyItem{{ID: "CS01", Name: "CS"}},
		payloads: map[string]string{"CS01": payload},
	}
	sink := newCaptureSink()
	orch := newTestOrchestrator(t, upstream, sink, Options{Width: 1})

	orch.Run(context.Background(), []model.Term{{AcademicYear: 113, Number: 1}})
	if len(sink.courses) != 2 {
		t.Fatalf("exported %d courses, want 2", len(sink.courses))
	}
	for _, course := range sink.courses {
		if course.Department != "Computer Science" {
			t.Errorf("department = %q, want dep_cname value", course.Department)
		}
	}
}
