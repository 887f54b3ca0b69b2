package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
)

// HTTPConfig configures the OTLP/HTTP transport.
type HTTPConfig struct {
	// Endpoint is the collector base URL, e.g. "http://localhost:4318".
	// A bare host:port is accepted and treated as http.
	Endpoint string

	// Timeout bounds each Send call. Default: 10s.
	Timeout time.Duration

	// Client overrides the HTTP client (for tests).
	Client *http.Client
}

// HTTP ships batches as protobuf-encoded POSTs to the OTLP/HTTP signal
// paths (/v1/traces, /v1/logs, /v1/metrics).
type HTTP struct {
	base     string
	client   *http.Client
	resource *Resource
}

// NewHTTP creates the transport.
func NewHTTP(cfg HTTPConfig, res *Resource) (*HTTP, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http transport: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	base := cfg.Endpoint
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	base = strings.TrimSuffix(base, "/")

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTP{base: base, client: client, resource: res}, nil
}

// Send POSTs the encoded batch to the signal path for its kind.
func (h *HTTP) Send(ctx context.Context, batch *Batch) (Outcome, error) {
	msg, err := Encode(h.resource, batch)
	if err != nil {
		return FatalFailure, fmt.Errorf("encoding %s batch: %w", batch.Kind, err)
	}

	payload, err := proto.Marshal(msg)
	if err != nil {
		return FatalFailure, fmt.Errorf("marshaling %s batch: %w", batch.Kind, err)
	}

	url := h.base + "/v1/" + batch.Kind.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return FatalFailure, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := h.client.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: all worth retrying.
		return RetryableFailure, fmt.Errorf("posting %s batch seq=%d: %w", batch.Kind, batch.Seq, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	outcome := classifyHTTP(resp.StatusCode)
	if outcome == Success {
		return Success, nil
	}
	return outcome, fmt.Errorf("collector rejected %s batch seq=%d: status %d", batch.Kind, batch.Seq, resp.StatusCode)
}

// Shutdown closes idle connections.
func (h *HTTP) Shutdown(context.Context) error {
	h.client.CloseIdleConnections()
	return nil
}

// classifyHTTP maps a response status to a retry outcome. 5xx and 429 are
// retryable; other 4xx mean the payload was permanently rejected.
func classifyHTTP(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return Success
	case code == http.StatusTooManyRequests:
		return RetryableFailure
	case code >= 500:
		return RetryableFailure
	default:
		return FatalFailure
	}
}

var _ Transport = (*HTTP)(nil)
