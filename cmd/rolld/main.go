// Package main implements rolld, a demo HTTP service instrumented with
// the otelship pipeline. It serves the classic dice-roll endpoint and
// ships a span, a log record, and a metric point per request.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/otelship/internal/logging"
	"github.com/fyrsmithlabs/otelship/pkg/config"
	"github.com/fyrsmithlabs/otelship/pkg/pipeline"
	"github.com/fyrsmithlabs/otelship/pkg/record"
)

var (
	configPath string
	listenAddr string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rolld",
	Short: "Dice-roll demo service instrumented with otelship",
	Long: `rolld serves GET /rolldice and ships a span, a log record, and a
dice.rolls counter metric per request through the otelship pipeline.
Pipeline self-diagnostics are exposed on /metrics in Prometheus format.`,
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "pipeline config file (YAML)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.ServiceName == "otelship" {
		cfg.ServiceName = "rolld"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := pipeline.New(ctx, cfg, pipeline.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	srv := newServer(pipe, logger)

	go func() {
		logger.Info("rolld listening", zap.String("addr", listenAddr))
		if err := srv.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := pipe.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pipeline shutdown failed", zap.Error(err))
	}

	snap := pipe.Stats()
	logger.Info("final pipeline stats",
		zap.Uint64("records_enqueued", snap.RecordsEnqueued),
		zap.Uint64("records_dropped", snap.RecordsDropped),
		zap.Uint64("batches_exported", snap.BatchesExported),
		zap.Uint64("batches_abandoned", snap.BatchesAbandoned))
	return nil
}

// rollCounts holds cumulative roll totals per face, reported as a
// monotonic counter metric.
var rollCounts [7]atomic.Uint64

// RollResponse is the response body for GET /rolldice.
type RollResponse struct {
	Player string `json:"player,omitempty"`
	Roll   int    `json:"roll"`
}

func newServer(pipe *pipeline.Pipeline, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/rolldice", handleRollDice(pipe, logger))

	return e
}

func handleRollDice(pipe *pipeline.Pipeline, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		player := c.QueryParam("player")
		roll := rand.Intn(6) + 1
		total := rollCounts[roll].Add(1)

		traceID := record.NewTraceID()
		spanID := record.NewSpanID()

		attrs := []record.Attr{
			{Key: "roll.value", Value: record.Int64(int64(roll))},
		}
		if player != "" {
			attrs = append(attrs, record.Attr{Key: "player", Value: record.String(player)})
		}

		pipe.RecordSpan(&record.Span{
			TraceID:    traceID,
			SpanID:     spanID,
			Name:       "roll_dice",
			StartTime:  start,
			EndTime:    time.Now(),
			StatusCode: record.StatusOK,
			Attributes: attrs,
		})

		who := player
		if who == "" {
			who = "anonymous player"
		}
		pipe.RecordLog(&record.LogRecord{
			Severity: record.SeverityInfo,
			Body:     fmt.Sprintf("%s is rolling the dice: %d", who, roll),
			TraceID:  traceID,
			SpanID:   spanID,
		})

		pipe.RecordMetric(&record.MetricPoint{
			Name:        "dice.rolls",
			Value:       float64(total),
			Aggregation: record.AggregationCounter,
			Attributes: []record.Attr{
				{Key: "roll.value", Value: record.Int64(int64(roll))},
			},
		})

		logger.Debug("dice rolled",
			zap.String("player", player),
			zap.Int("roll", roll),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))

		return c.JSON(http.StatusOK, RollResponse{Player: player, Roll: roll})
	}
}
