package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCConfig configures the OTLP/gRPC transport.
type GRPCConfig struct {
	// Endpoint is host:port of the collector's gRPC listener.
	Endpoint string

	// Insecure disables TLS. Only for local collectors.
	Insecure bool

	// Timeout bounds each Send call. Default: 10s.
	Timeout time.Duration
}

// GRPC ships batches over OTLP/gRPC using the collector service clients.
type GRPC struct {
	conn     *grpc.ClientConn
	traces   coltracepb.TraceServiceClient
	logs     collogspb.LogsServiceClient
	metrics  colmetricspb.MetricsServiceClient
	resource *Resource
	timeout  time.Duration
}

// NewGRPC creates the transport. The connection is established lazily by
// gRPC on first use.
func NewGRPC(cfg GRPCConfig, res *Resource) (*GRPC, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("grpc transport: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("grpc transport: creating client for %s: %w", cfg.Endpoint, err)
	}

	return &GRPC{
		conn:     conn,
		traces:   coltracepb.NewTraceServiceClient(conn),
		logs:     collogspb.NewLogsServiceClient(conn),
		metrics:  colmetricspb.NewMetricsServiceClient(conn),
		resource: res,
		timeout:  cfg.Timeout,
	}, nil
}

// Send exports one batch over the collector service for its kind.
func (g *GRPC) Send(ctx context.Context, batch *Batch) (Outcome, error) {
	msg, err := Encode(g.resource, batch)
	if err != nil {
		return FatalFailure, fmt.Errorf("encoding %s batch: %w", batch.Kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	switch req := msg.(type) {
	case *coltracepb.ExportTraceServiceRequest:
		_, err = g.traces.Export(ctx, req)
	case *collogspb.ExportLogsServiceRequest:
		_, err = g.logs.Export(ctx, req)
	case *colmetricspb.ExportMetricsServiceRequest:
		_, err = g.metrics.Export(ctx, req)
	default:
		return FatalFailure, fmt.Errorf("unexpected request type %T", msg)
	}

	if err == nil {
		return Success, nil
	}
	return classifyGRPC(err), fmt.Errorf("exporting %s batch seq=%d: %w", batch.Kind, batch.Seq, err)
}

// Shutdown closes the client connection.
func (g *GRPC) Shutdown(context.Context) error {
	return g.conn.Close()
}

// classifyGRPC maps a gRPC export error to a retry outcome, following the
// OTLP specification's retryable status code list.
func classifyGRPC(err error) Outcome {
	st, ok := status.FromError(err)
	if !ok {
		// Transport-level error without a status: assume transient.
		return RetryableFailure
	}

	switch st.Code() {
	case codes.Canceled,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.OutOfRange,
		codes.Unavailable,
		codes.DataLoss:
		return RetryableFailure
	default:
		return FatalFailure
	}
}

var _ Transport = (*GRPC)(nil)
