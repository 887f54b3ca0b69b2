// Package record defines the telemetry data model shipped by the pipeline.
//
// A Record is a tagged variant over the three telemetry signals: spans,
// log records, and metric points. Records are immutable once created;
// the pipeline never modifies a record after it has been enqueued.
package record
