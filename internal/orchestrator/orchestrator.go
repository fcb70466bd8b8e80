// Package orchestrator drives one term at a time through discovery
// and bounded-concurrency fetching, and hands the outcome to the
// export sink.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"crawler/internal/catalog"
	"crawler/internal/export"
	"crawler/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Options bounds the fan-out of one term. Width caps the in-flight
// fetches (the source throttles unbounded clients); Delay is the
// politeness gap between successive launches; TermTimeout, when
// nonzero, is a deadline on the whole term.
type Options struct {
	Width       int
	Delay       time.Duration
	TermTimeout time.Duration
}

// Orchestrator runs terms sequentially, one fully drained before the
// next starts, to cap peak outstanding connections.
type Orchestrator struct {
	src      *catalog.Source
	walker   *catalog.Walker
	flat     *catalog.Flattener
	detail   *catalog.DetailFetcher // nil when detail fetching is off
	sink     export.Sink
	validate *validator.Validate
	opts     Options
	log      zerolog.Logger
}

func New(src *catalog.Source, walker *catalog.Walker, flat *catalog.Flattener, detail *catalog.DetailFetcher, sink export.Sink, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.Width < 1 {
		opts.Width = 1
	}
	return &Orchestrator{
		src:      src,
		walker:   walker,
		flat:     flat,
		detail:   detail,
		sink:     sink,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run processes the requested terms in order and returns their
// summaries. A term's failures never abort the batch; only context
// cancellation stops the run early.
func (o *Orchestrator) Run(ctx context.Context, terms []model.Term) []model.TermSummary {
	var summaries []model.TermSummary
	for _, term := range terms {
		summaries = append(summaries, o.runTerm(ctx, term))
		if ctx.Err() != nil {
			break
		}
	}
	return summaries
}

// depResult is one department task's outcome. Tasks never touch
// shared counters; the collector folds these after the tasks join.
type depResult struct {
	courses   []model.Course
	attempted int
	failed    int
}

func (o *Orchestrator) runTerm(parent context.Context, term model.Term) model.TermSummary {
	ctx := parent
	if o.opts.TermTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, o.opts.TermTimeout)
		defer cancel()
	}

	summary := model.TermSummary{Term: term, State: model.TermDiscovering}
	o.log.Info().Str("term", term.String()).Msg("discovering departments")

	deps, err := o.walker.DiscoverDepartments(ctx, term)
	if err != nil {
		// No courses can exist without at least one type; this is the
		// only failure that aborts a term early.
		o.log.Error().Str("term", term.String()).Err(err).Msg("discovery failed, aborting term")
		summary.State = model.TermPartiallyFailed
		o.exportSummary(parent, summary)
		return summary
	}
	o.log.Info().Str("term", term.String()).Int("departments", len(deps)).Msg("fetching course tables")
	summary.State = model.TermFetching

	results := o.fanOut(ctx, term, deps)

	// Single-writer fold over the completion stream.
	seen := make(map[string]struct{})
	var courses []model.Course
	for res := range results {
		summary.Attempted += res.attempted
		summary.Failed += res.failed
		for _, course := range res.courses {
			if _, dup := seen[course.Key()]; dup {
				summary.Duplicates++
				continue
			}
			seen[course.Key()] = struct{}{}
			if err := o.validate.Struct(course); err != nil {
				o.log.Warn().Str("course", course.Key()).Err(err).Msg("course failed validation, emitting anyway")
			}
			courses = append(courses, course)
		}
	}
	summary.Succeeded = summary.Attempted - summary.Failed
	if summary.Failed == 0 {
		summary.State = model.TermDone
	} else {
		summary.State = model.TermPartiallyFailed
	}

	// Export on the parent context so a term deadline does not lose an
	// already-fetched batch.
	if err := o.sink.ExportCourses(parent, term, courses); err != nil {
		o.log.Error().Str("term", term.String()).Err(err).Msg("course export failed")
	}
	o.exportSummary(parent, summary)

	o.log.Info().
		Str("term", term.String()).
		Str("state", string(summary.State)).
		Int("attempted", summary.Attempted).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("duplicates", summary.Duplicates).
		Msg("term drained")
	return summary
}

// fanOut launches one task per department under the concurrency
// limiter and returns the unordered completion stream.
func (o *Orchestrator) fanOut(ctx context.Context, term model.Term, deps []model.DepartmentRef) <-chan depResult {
	sem := make(chan struct{}, o.opts.Width)
	results := make(chan depResult)
	var wg sync.WaitGroup

	go func() {
		for i, dep := range deps {
			if i > 0 && o.opts.Delay > 0 {
				time.Sleep(o.opts.Delay)
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(dep model.DepartmentRef) {
				defer wg.Done()
				defer func() { <-sem }()
				results <- o.fetchDepartment(ctx, term, dep)
			}(dep)
		}
		wg.Wait()
		close(results)
	}()
	return results
}

func (o *Orchestrator) fetchDepartment(ctx context.Context, term model.Term, dep model.DepartmentRef) depResult {
	res := depResult{attempted: 1}

	payload, raw, err := o.src.CourseTable(ctx, term, dep.ID)
	if err != nil {
		o.log.Warn().Str("dep_id", dep.ID).Err(err).Msg("course table fetch failed")
		res.failed = 1
		return res
	}
	if archiver, ok := o.sink.(export.RawArchiver); ok {
		if err := archiver.ArchiveRaw(ctx, term, dep.ID, raw); err != nil {
			o.log.Warn().Str("dep_id", dep.ID).Err(err).Msg("raw payload archive failed")
		}
	}

	for _, rec := range o.flat.Flatten(term, dep, payload) {
		course := o.flat.Course(rec)
		if o.detail != nil && course.CourseNumber != "" {
			res.attempted++
			built, err := o.detail.BuildCourse(ctx, term, course.CourseNumber)
			if err != nil {
				o.log.Warn().Str("course", course.Key()).Err(err).Msg("detail fetch failed, keeping table fields")
				res.failed++
			} else {
				course = mergeDetail(course, *built)
			}
		}
		res.courses = append(res.courses, course)
	}
	return res
}

// mergeDetail fills gaps of a table-built course from its detail
// document without overwriting fields the table already had.
func mergeDetail(course, detail model.Course) model.Course {
	if course.Name == "" {
		course.Name = detail.Name
	}
	if course.PermanentNumber == "" {
		course.PermanentNumber = detail.PermanentNumber
	}
	if course.Instructor == "" {
		course.Instructor = detail.Instructor
	}
	if course.Credits == nil {
		course.Credits = detail.Credits
	}
	if course.Required == nil {
		course.Required = detail.Required
	}
	if len(course.Schedule) == 0 {
		course.Schedule = detail.Schedule
		course.Classrooms = detail.Classrooms
	}
	if len(detail.Details) > 0 {
		course.Details = detail.Details
	}
	return course
}

func (o *Orchestrator) exportSummary(ctx context.Context, summary model.TermSummary) {
	if err := o.sink.ExportSummary(ctx, summary); err != nil {
		o.log.Error().Str("term", summary.Term.String()).Err(err).Msg("summary export failed")
	}
}
