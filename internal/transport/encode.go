package transport

import (
	"fmt"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/fyrsmithlabs/otelship/pkg/record"
)

// scopeName identifies this library as the instrumentation scope of all
// exported telemetry.
const scopeName = "github.com/fyrsmithlabs/otelship"

// Encode serializes a batch into the OTLP export request for its kind.
func Encode(res *Resource, batch *Batch) (proto.Message, error) {
	switch batch.Kind {
	case record.KindSpan:
		return encodeTraces(res, batch.Records), nil
	case record.KindLog:
		return encodeLogs(res, batch.Records), nil
	case record.KindMetric:
		return encodeMetrics(res, batch.Records), nil
	default:
		return nil, fmt.Errorf("unknown record kind %d", batch.Kind)
	}
}

func encodeTraces(res *Resource, recs []record.Record) *coltracepb.ExportTraceServiceRequest {
	spans := make([]*tracepb.Span, 0, len(recs))
	for _, r := range recs {
		if r.Span == nil {
			continue
		}
		spans = append(spans, encodeSpan(r.Span))
	}
	return &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: encodeResource(res),
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: scope(),
				Spans: spans,
			}},
		}},
	}
}

func encodeSpan(s *record.Span) *tracepb.Span {
	out := &tracepb.Span{
		TraceId:           s.TraceID[:],
		SpanId:            s.SpanID[:],
		Name:              s.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: unixNano(s.StartTime),
		EndTimeUnixNano:   unixNano(s.EndTime),
		Attributes:        keyValues(s.Attributes),
		Status: &tracepb.Status{
			Code:    statusCode(s.StatusCode),
			Message: s.StatusMessage,
		},
	}
	if s.ParentSpanID.IsValid() {
		out.ParentSpanId = s.ParentSpanID[:]
	}
	return out
}

func encodeLogs(res *Resource, recs []record.Record) *collogspb.ExportLogsServiceRequest {
	logs := make([]*logspb.LogRecord, 0, len(recs))
	for _, r := range recs {
		if r.Log == nil {
			continue
		}
		logs = append(logs, encodeLogRecord(r.Log))
	}
	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource: encodeResource(res),
			ScopeLogs: []*logspb.ScopeLogs{{
				Scope:      scope(),
				LogRecords: logs,
			}},
		}},
	}
}

func encodeLogRecord(l *record.LogRecord) *logspb.LogRecord {
	out := &logspb.LogRecord{
		TimeUnixNano:         unixNano(l.Time),
		ObservedTimeUnixNano: unixNano(l.Time),
		SeverityNumber:       logspb.SeverityNumber(l.Severity),
		SeverityText:         l.Severity.Text(),
		Body: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_StringValue{StringValue: l.Body},
		},
		Attributes: keyValues(l.Attributes),
	}
	if l.TraceID.IsValid() {
		out.TraceId = l.TraceID[:]
	}
	if l.SpanID.IsValid() {
		out.SpanId = l.SpanID[:]
	}
	return out
}

func encodeMetrics(res *Resource, recs []record.Record) *colmetricspb.ExportMetricsServiceRequest {
	metrics := make([]*metricspb.Metric, 0, len(recs))
	for _, r := range recs {
		if r.Metric == nil {
			continue
		}
		metrics = append(metrics, encodeMetricPoint(r.Metric))
	}
	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource: encodeResource(res),
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:   scope(),
				Metrics: metrics,
			}},
		}},
	}
}

func encodeMetricPoint(m *record.MetricPoint) *metricspb.Metric {
	point := &metricspb.NumberDataPoint{
		TimeUnixNano: unixNano(m.Time),
		Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: m.Value},
		Attributes:   keyValues(m.Attributes),
	}

	out := &metricspb.Metric{Name: m.Name}
	switch m.Aggregation {
	case record.AggregationCounter:
		// Cumulative temporality keeps Prometheus-compatible backends happy.
		out.Data = &metricspb.Metric_Sum{Sum: &metricspb.Sum{
			DataPoints:             []*metricspb.NumberDataPoint{point},
			AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
			IsMonotonic:            true,
		}}
	default:
		out.Data = &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{
			DataPoints: []*metricspb.NumberDataPoint{point},
		}}
	}
	return out
}

func encodeResource(res *Resource) *resourcepb.Resource {
	attrs := make([]*commonpb.KeyValue, 0, len(res.Attributes)+2)
	attrs = append(attrs, stringKV("service.name", res.ServiceName))
	if res.ServiceVersion != "" {
		attrs = append(attrs, stringKV("service.version", res.ServiceVersion))
	}
	attrs = append(attrs, keyValues(res.Attributes)...)
	return &resourcepb.Resource{Attributes: attrs}
}

func scope() *commonpb.InstrumentationScope {
	return &commonpb.InstrumentationScope{Name: scopeName}
}

func keyValues(attrs []record.Attr) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]*commonpb.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, &commonpb.KeyValue{Key: a.Key, Value: anyValue(a.Value)})
	}
	return out
}

func anyValue(v record.Value) *commonpb.AnyValue {
	switch v.Type() {
	case record.Int64Value:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v.Int64()}}
	case record.Float64Value:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v.Float64()}}
	case record.BoolValue:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: v.Bool()}}
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v.Str()}}
	}
}

func stringKV(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func statusCode(c record.StatusCode) tracepb.Status_StatusCode {
	switch c {
	case record.StatusOK:
		return tracepb.Status_STATUS_CODE_OK
	case record.StatusError:
		return tracepb.Status_STATUS_CODE_ERROR
	default:
		return tracepb.Status_STATUS_CODE_UNSET
	}
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}
