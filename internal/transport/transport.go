// Package transport performs the network call that ships a serialized
// batch of telemetry records to a collector endpoint.
package transport

import (
	"context"

	"github.com/fyrsmithlabs/otelship/pkg/record"
)

// Outcome classifies the result of one Send call.
type Outcome int

const (
	// Success means the collector accepted the batch.
	Success Outcome = iota

	// RetryableFailure means the call failed in a way that may succeed
	// later: network errors, server 5xx, gRPC Unavailable, throttling.
	RetryableFailure

	// FatalFailure means the collector permanently rejected the batch:
	// malformed payload, authentication failure, 4xx rejection.
	FatalFailure
)

// String returns the outcome name for logs and metrics labels.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable"
	case FatalFailure:
		return "fatal"
	default:
		return "unknown"
	}
}

// Batch is an ordered group of records of a single kind, exported in one
// network call. Seq is the formation sequence number within the kind.
type Batch struct {
	Kind    record.Kind
	Seq     uint64
	Records []record.Record
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int { return len(b.Records) }

// Resource identifies the telemetry producer. It is attached to every
// exported batch as OTLP resource attributes.
type Resource struct {
	ServiceName    string
	ServiceVersion string
	Attributes     []record.Attr
}

// Transport ships one batch to a collector. Implementations are stateless
// across invocations; all failure handling lives in the retry controller.
type Transport interface {
	// Send serializes and ships the batch. The returned error carries
	// detail for logging; the Outcome alone drives retry decisions.
	Send(ctx context.Context, batch *Batch) (Outcome, error)

	// Shutdown releases any held connections.
	Shutdown(ctx context.Context) error
}
