package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every knob of the crawler. All values come from the
// environment; the binary loads a .env file first when one exists.
type Config struct {
	// Upstream timetable endpoint family.
	SourceBaseURL    string `envconfig:"SOURCE_BASE_URL" required:"true"`
	FlatLeafCategory string `envconfig:"FLAT_LEAF_CATEGORY" default:"3*"`

	// Fetch client settings.
	FetchTimeoutSec    int     `envconfig:"FETCH_TIMEOUT_SEC" default:"30" validate:"gt=0"`
	FetchMaxRetries    int     `envconfig:"FETCH_MAX_RETRIES" default:"3" validate:"gt=0"`
	FetchBackoffSec    float64 `envconfig:"FETCH_BACKOFF_SEC" default:"1" validate:"gt=0"`
	FetchDelayMillis   int     `envconfig:"FETCH_DELAY_MS" default:"100" validate:"gte=0"`
	FetchConcurrency   int     `envconfig:"FETCH_CONCURRENCY" default:"10" validate:"min=1,max=64"`
	TermTimeoutMinutes int     `envconfig:"TERM_TIMEOUT_MIN" default:"0" validate:"gte=0"`

	// Detail-document fetching. When false, courses are built from the
	// department course tables alone.
	FetchDetails  bool     `envconfig:"FETCH_DETAILS" default:"false"`
	DetailLocales []string `envconfig:"DETAIL_LOCALES" default:"zh-tw,en-us"`

	// Export sinks. SINKS is a comma list of jsonl|pubsub|queue|s3.
	Sinks          []string `envconfig:"SINKS" default:"jsonl"`
	JSONLDir       string   `envconfig:"JSONL_DIR" default:"./out"`
	GCPProjectID   string   `envconfig:"GCP_PROJECT_ID"`
	CourseTopic    string   `envconfig:"COURSE_TOPIC" default:"course-batches"`
	SummaryTopic   string   `envconfig:"SUMMARY_TOPIC" default:"term-summaries"`
	QueueDSN       string   `envconfig:"QUEUE_DSN"`
	QueueDSNSecret string   `envconfig:"QUEUE_DSN_SECRET"`
	QueueName      string   `envconfig:"QUEUE_NAME" default:"course_import_queue"`
	S3URL          string   `envconfig:"S3_URL"`
	S3Bucket       string   `envconfig:"S3_BUCKET"`
	S3Region       string   `envconfig:"S3_REGION"`
	S3AccessKey    string   `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string   `envconfig:"S3_SECRET_KEY"`
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c *Config) FetchBackoff() time.Duration {
	return time.Duration(c.FetchBackoffSec * float64(time.Second))
}

func (c *Config) FetchDelay() time.Duration {
	return time.Duration(c.FetchDelayMillis) * time.Millisecond
}

// TermTimeout returns the per-term deadline, zero meaning none.
func (c *Config) TermTimeout() time.Duration {
	return time.Duration(c.TermTimeoutMinutes) * time.Minute
}
