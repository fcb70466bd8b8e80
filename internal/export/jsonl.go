package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"crawler/internal/model"
)

// JSONLSink writes courses as one JSON object per line under a local
// directory: courses_<acysem>.jsonl per term plus a shared
// summaries.jsonl. It is the default sink for local runs.
type JSONLSink struct {
	dir string
}

func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &JSONLSink{dir: dir}, nil
}

func (s *JSONLSink) ExportCourses(_ context.Context, term model.Term, courses []model.Course) error {
	path := filepath.Join(s.dir, fmt.Sprintf("courses_%s.jsonl", term.Acysem()))
	return appendLines(path, func(enc *json.Encoder) error {
		for _, course := range courses {
			if err := enc.Encode(course); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *JSONLSink) ExportSummary(_ context.Context, summary model.TermSummary) error {
	path := filepath.Join(s.dir, "summaries.jsonl")
	return appendLines(path, func(enc *json.Encoder) error {
		return enc.Encode(summary)
	})
}

func appendLines(path string, write func(*json.Encoder) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if err := write(json.NewEncoder(f)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
