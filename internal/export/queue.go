package export

import (
	"context"
	"encoding/json"
	"fmt"

	"crawler/internal/model"
	"crawler/internal/pgmq"
)

// QueueSink pushes exported records into a pgmq queue consumed by the
// catalog loader.
type QueueSink struct {
	queue *pgmq.Client
	name  string
}

func NewQueueSink(queue *pgmq.Client, name string) *QueueSink {
	return &QueueSink{queue: queue, name: name}
}

func (s *QueueSink) ExportCourses(ctx context.Context, term model.Term, courses []model.Course) error {
	payloads := make([][]byte, 0, len(courses))
	for _, course := range courses {
		payload, err := json.Marshal(course)
		if err != nil {
			return fmt.Errorf("marshaling course %s: %w", course.Key(), err)
		}
		payloads = append(payloads, payload)
	}
	return s.queue.SendBatch(ctx, s.name, payloads)
}

func (s *QueueSink) ExportSummary(ctx context.Context, summary model.TermSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return s.queue.Send(ctx, s.name, payload)
}
