// Package export hands the normalized course stream to downstream
// collaborators. The pipeline only depends on the Sink contract; what
// a sink does with the records (files, queues, topics) is its own
// business.
package export

import (
	"context"
	"errors"

	"crawler/internal/model"
)

// Sink receives one term's canonical courses and its summary.
type Sink interface {
	ExportCourses(ctx context.Context, term model.Term, courses []model.Course) error
	ExportSummary(ctx context.Context, summary model.TermSummary) error
}

// RawArchiver is implemented by sinks that also want the raw
// department payloads, for replaying a term without refetching.
type RawArchiver interface {
	ArchiveRaw(ctx context.Context, term model.Term, depID string, payload []byte) error
}

// Multi fans records out to several sinks, attempting every sink even
// when one fails and returning the joined errors.
type Multi []Sink

func (m Multi) ExportCourses(ctx context.Context, term model.Term, courses []model.Course) error {
	var errs []error
	for _, sink := range m {
		if err := sink.ExportCourses(ctx, term, courses); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ExportSummary(ctx context.Context, summary model.TermSummary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.ExportSummary(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ArchiveRaw(ctx context.Context, term model.Term, depID string, payload []byte) error {
	var errs []error
	for _, sink := range m {
		if archiver, ok := sink.(RawArchiver); ok {
			if err := archiver.ArchiveRaw(ctx, term, depID, payload); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
