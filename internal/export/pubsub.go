package export

import (
	"context"
	"encoding/json"
	"fmt"

	"crawler/internal/model"

	"cloud.google.com/go/pubsub"
)

// PubSubSink publishes courses and term summaries to Google Pub/Sub
// topics, for consumers that load the catalog asynchronously.
type PubSubSink struct {
	client       *pubsub.Client
	courseTopic  string
	summaryTopic string
}

func NewPubSubSink(ctx context.Context, projectID, courseTopic, summaryTopic string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubSink{client: client, courseTopic: courseTopic, summaryTopic: summaryTopic}, nil
}

// ExportCourses publishes one message per course, tagged with the
// term so subscribers can partition by it.
func (s *PubSubSink) ExportCourses(ctx context.Context, term model.Term, courses []model.Course) error {
	topic := s.client.Topic(s.courseTopic)
	var results []*pubsub.PublishResult
	for _, course := range courses {
		payload, err := json.Marshal(course)
		if err != nil {
			return fmt.Errorf("marshaling course %s: %w", course.Key(), err)
		}
		results = append(results, topic.Publish(ctx, &pubsub.Message{
			Data:       payload,
			Attributes: map[string]string{"acysem": term.Acysem()},
		}))
	}
	for _, result := range results {
		if _, err := result.Get(ctx); err != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", s.courseTopic, err)
		}
	}
	return nil
}

func (s *PubSubSink) ExportSummary(ctx context.Context, summary model.TermSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	result := s.client.Topic(s.summaryTopic).Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", s.summaryTopic, err)
	}
	return nil
}

// Close releases the underlying Pub/Sub client.
func (s *PubSubSink) Close() error {
	return s.client.Close()
}
