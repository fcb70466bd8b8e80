package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"crawler/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
)

// S3Options configures the S3 archive sink. URL may point at any
// S3-compatible store; path-style addressing is used throughout.
type S3Options struct {
	URL       string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Sink archives exported batches and the raw department payloads,
// so a term can be replayed without refetching the source.
type S3Sink struct {
	client *s3.Client
	bucket string
}

func NewS3Sink(ctx context.Context, opts S3Options) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeAcceptEncodingGzip()}),
	)
	if err != nil {
		return nil, fmt.Errorf("loading S3 config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.URL)
		o.UsePathStyle = true
	})
	return &S3Sink{client: client, bucket: opts.Bucket}, nil
}

// removeAcceptEncodingGzip strips the SDK's gzip Accept-Encoding
// middleware, which some S3-compatible stores reject.
func removeAcceptEncodingGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
		return err
	}
}

func (s *S3Sink) ExportCourses(ctx context.Context, term model.Term, courses []model.Course) error {
	payload, err := json.Marshal(courses)
	if err != nil {
		return fmt.Errorf("marshaling course batch: %w", err)
	}
	key := fmt.Sprintf("term/%s/courses.json", term.Acysem())
	return s.put(ctx, key, payload)
}

func (s *S3Sink) ExportSummary(ctx context.Context, summary model.TermSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	key := fmt.Sprintf("term/%s/summary.json", summary.Term.Acysem())
	return s.put(ctx, key, payload)
}

// ArchiveRaw stores one department's as-received payload.
func (s *S3Sink) ArchiveRaw(ctx context.Context, term model.Term, depID string, payload []byte) error {
	key := fmt.Sprintf("term/%s/raw/%s.json", term.Acysem(), depID)
	return s.put(ctx, key, payload)
}

func (s *S3Sink) put(ctx context.Context, key string, payload []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}
