// Package main implements shipgen, a synthetic telemetry load generator
// for soak-testing a collector setup through the otelship pipeline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/otelship/pkg/config"
	"github.com/fyrsmithlabs/otelship/pkg/pipeline"
	"github.com/fyrsmithlabs/otelship/pkg/record"
)

var (
	endpoint   string
	protocol   string
	insecure   bool
	ratePerSec float64
	duration   time.Duration
	batchSize  int
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shipgen",
	Short: "Generate synthetic telemetry load against a collector",
	Long: `shipgen emits synthetic spans, log records, and metric points at a
fixed rate through the otelship pipeline and prints the final pipeline
stats as JSON. Useful for verifying a collector setup end to end.`,
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "localhost:4317", "collector endpoint")
	rootCmd.Flags().StringVar(&protocol, "protocol", "grpc", "export protocol (grpc or http/protobuf)")
	rootCmd.Flags().BoolVar(&insecure, "insecure", true, "connect without TLS (loopback endpoints only)")
	rootCmd.Flags().Float64Var(&ratePerSec, "rate", 100, "records per second per signal")
	rootCmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to generate load")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 512, "max records per exported batch")
}

// buildConfig assembles the pipeline config from the command flags.
func buildConfig() (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	cfg.ServiceName = "shipgen"
	cfg.Endpoint = endpoint
	cfg.Protocol = protocol
	cfg.Insecure = insecure
	cfg.BatchSize = batchSize
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := pipeline.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(ratePerSec), 1)
	var emitted uint64
	for i := 0; ; i++ {
		if err := limiter.Wait(runCtx); err != nil {
			break // deadline or interrupt
		}
		emit(pipe, i)
		emitted++
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := pipe.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline shutdown: %v\n", err)
	}

	out := struct {
		Emitted uint64 `json:"iterations"`
		Stats   any    `json:"stats"`
	}{Emitted: emitted, Stats: pipe.Stats()}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// emit produces one correlated span, log record, and metric point.
func emit(pipe *pipeline.Pipeline, i int) {
	traceID := record.NewTraceID()
	spanID := record.NewSpanID()
	now := time.Now()

	pipe.RecordSpan(&record.Span{
		TraceID:    traceID,
		SpanID:     spanID,
		Name:       "shipgen.work",
		StartTime:  now.Add(-time.Millisecond),
		EndTime:    now,
		StatusCode: record.StatusOK,
		Attributes: []record.Attr{
			{Key: "iteration", Value: record.Int64(int64(i))},
		},
	})

	pipe.RecordLog(&record.LogRecord{
		Severity: record.SeverityInfo,
		Body:     fmt.Sprintf("synthetic work item %d", i),
		TraceID:  traceID,
		SpanID:   spanID,
	})

	pipe.RecordMetric(&record.MetricPoint{
		Name:        "shipgen.iterations",
		Value:       float64(i + 1),
		Aggregation: record.AggregationCounter,
	})
}
