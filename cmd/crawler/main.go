package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"crawler/internal/catalog"
	"crawler/internal/config"
	"crawler/internal/export"
	"crawler/internal/fetch"
	"crawler/internal/logger"
	"crawler/internal/model"
	"crawler/internal/orchestrator"
	"crawler/internal/pgmq"
	"crawler/internal/schedule"
	"crawler/internal/secrets"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	fromYear := flag.Int("from", 0, "first academic year to crawl")
	toYear := flag.Int("to", 0, "last academic year to crawl (default: same as -from)")
	termList := flag.String("terms", "1,2", "comma list of term numbers within each year")
	concurrency := flag.Int("concurrency", 0, "override FETCH_CONCURRENCY")
	flag.Parse()

	log := logger.New()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Msgf("Error loading config: %v", err)
	}
	if *concurrency > 0 {
		cfg.FetchConcurrency = *concurrency
	}

	terms, err := buildTerms(*fromYear, *toYear, *termList)
	if err != nil {
		log.Fatal().Msgf("Invalid term selection: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink, cleanup, err := buildSinks(ctx, cfg, log)
	if err != nil {
		log.Fatal().Msgf("Failed to set up export sinks: %v", err)
	}
	defer cleanup()

	client := fetch.New(
		fetch.Policy{MaxAttempts: cfg.FetchMaxRetries, BaseBackoff: cfg.FetchBackoff()},
		cfg.FetchTimeout(),
		log,
	)
	src := catalog.NewSource(cfg.SourceBaseURL, client)
	dec := schedule.NewDecoder(log)
	walker := catalog.NewWalker(src, cfg.FlatLeafCategory, log)
	flat := catalog.NewFlattener(dec, log)
	var detail *catalog.DetailFetcher
	if cfg.FetchDetails {
		detail = catalog.NewDetailFetcher(src, dec, cfg.DetailLocales, log)
	}

	orch := orchestrator.New(src, walker, flat, detail, sink, orchestrator.Options{
		Width:       cfg.FetchConcurrency,
		Delay:       cfg.FetchDelay(),
		TermTimeout: cfg.TermTimeout(),
	}, log)

	summaries := orch.Run(ctx, terms)
	for _, s := range summaries {
		log.Info().
			Str("term", s.Term.String()).
			Str("state", string(s.State)).
			Int("attempted", s.Attempted).
			Int("succeeded", s.Succeeded).
			Int("failed", s.Failed).
			Msg("term finished")
	}
	log.Info().Int("terms", len(summaries)).Msg("crawl finished")
}

func buildTerms(from, to int, termList string) ([]model.Term, error) {
	if from <= 0 {
		return nil, fmt.Errorf("an academic year is required (-from)")
	}
	if to < from {
		to = from
	}
	var numbers []int
	for _, part := range strings.Split(termList, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	var terms []model.Term
	for year := from; year <= to; year++ {
		for _, n := range numbers {
			terms = append(terms, model.Term{AcademicYear: year, Number: n})
		}
	}
	return terms, nil
}

func buildSinks(ctx context.Context, cfg *config.Config, log zerolog.Logger) (export.Sink, func(), error) {
	var sinks export.Multi
	var closers []func()
	cleanup := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	for _, name := range cfg.Sinks {
		switch strings.TrimSpace(name) {
		case "jsonl":
			sink, err := export.NewJSONLSink(cfg.JSONLDir)
			if err != nil {
				return nil, cleanup, err
			}
			sinks = append(sinks, sink)
		case "pubsub":
			sink, err := export.NewPubSubSink(ctx, cfg.GCPProjectID, cfg.CourseTopic, cfg.SummaryTopic)
			if err != nil {
				return nil, cleanup, err
			}
			closers = append(closers, func() { sink.Close() })
			sinks = append(sinks, sink)
		case "queue":
			dsn, err := resolveQueueDSN(ctx, cfg)
			if err != nil {
				return nil, cleanup, err
			}
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return nil, cleanup, err
			}
			if err := db.PingContext(ctx); err != nil {
				db.Close()
				return nil, cleanup, err
			}
			closers = append(closers, func() { db.Close() })
			sinks = append(sinks, export.NewQueueSink(pgmq.New(db), cfg.QueueName))
		case "s3":
			sink, err := export.NewS3Sink(ctx, export.S3Options{
				URL:       cfg.S3URL,
				Bucket:    cfg.S3Bucket,
				Region:    cfg.S3Region,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
			})
			if err != nil {
				return nil, cleanup, err
			}
			sinks = append(sinks, sink)
		default:
			log.Warn().Str("sink", name).Msg("unknown sink, skipping")
		}
	}
	if len(sinks) == 0 {
		log.Fatal().Msg("no export sink configured")
	}
	return sinks, cleanup, nil
}

// resolveQueueDSN prefers the DSN from the environment and falls back
// to Secret Manager when only a secret name is configured.
func resolveQueueDSN(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.QueueDSN != "" {
		return cfg.QueueDSN, nil
	}
	resolver, err := secrets.NewResolver(ctx, cfg.GCPProjectID)
	if err != nil {
		return "", err
	}
	defer resolver.Close()
	return resolver.Resolve(ctx, cfg.QueueDSNSecret)
}
