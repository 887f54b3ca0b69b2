package record

import (
	"time"
)

// Kind identifies the telemetry signal a record belongs to.
type Kind int

const (
	KindSpan Kind = iota
	KindLog
	KindMetric
)

// Kinds lists all record kinds, in the order exporters are created.
var Kinds = []Kind{KindSpan, KindLog, KindMetric}

// String returns the lowercase signal name, matching OTLP path segments.
func (k Kind) String() string {
	switch k {
	case KindSpan:
		return "traces"
	case KindLog:
		return "logs"
	case KindMetric:
		return "metrics"
	default:
		return "unknown"
	}
}

// ValueType identifies the dynamic type of an attribute Value.
type ValueType int

const (
	StringValue ValueType = iota
	Int64Value
	Float64Value
	BoolValue
)

// Value is an attribute value: one of string, int64, float64, or bool.
type Value struct {
	kind ValueType
	str  string
	num  int64
	flt  float64
	b    bool
}

func String(v string) Value  { return Value{kind: StringValue, str: v} }
func Int64(v int64) Value    { return Value{kind: Int64Value, num: v} }
func Float64(v float64) Value { return Value{kind: Float64Value, flt: v} }
func Bool(v bool) Value      { return Value{kind: BoolValue, b: v} }

// Type returns the dynamic type of the value.
func (v Value) Type() ValueType { return v.kind }

func (v Value) Str() string     { return v.str }
func (v Value) Int64() int64    { return v.num }
func (v Value) Float64() float64 { return v.flt }
func (v Value) Bool() bool      { return v.b }

// Attr is a single key/value attribute pair.
type Attr struct {
	Key   string
	Value Value
}

// StatusCode mirrors the span status outcome.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// Span is a timed unit of work in a distributed trace.
type Span struct {
	TraceID       TraceID
	SpanID        SpanID
	ParentSpanID  SpanID
	Name          string
	StartTime     time.Time
	EndTime       time.Time
	StatusCode    StatusCode
	StatusMessage string
	Attributes    []Attr
}

// Severity is the numeric log severity, aligned with OTLP severity numbers.
type Severity int

const (
	SeverityDebug Severity = 5
	SeverityInfo  Severity = 9
	SeverityWarn  Severity = 13
	SeverityError Severity = 17
)

// Text returns the canonical severity text for the number.
func (s Severity) Text() string {
	switch {
	case s >= SeverityError:
		return "ERROR"
	case s >= SeverityWarn:
		return "WARN"
	case s >= SeverityInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// LogRecord is a single log event, optionally correlated to a span.
type LogRecord struct {
	Time       time.Time
	Severity   Severity
	Body       string
	Attributes []Attr

	// Zero ids mean the log is not correlated to a trace.
	TraceID TraceID
	SpanID  SpanID
}

// Aggregation identifies how a metric point aggregates over time.
type Aggregation int

const (
	AggregationGauge Aggregation = iota
	AggregationCounter
)

// MetricPoint is one sample of a named instrument.
type MetricPoint struct {
	Name        string
	Time        time.Time
	Value       float64
	Aggregation Aggregation
	Attributes  []Attr
}

// Record is the tagged variant carried through the pipeline. Exactly one
// of Span, Log, Metric is non-nil, matching Kind.
type Record struct {
	Kind   Kind
	Span   *Span
	Log    *LogRecord
	Metric *MetricPoint
}

// NewSpanRecord wraps a span in a Record.
func NewSpanRecord(s *Span) Record { return Record{Kind: KindSpan, Span: s} }

// NewLogRecord wraps a log record in a Record.
func NewLogRecord(l *LogRecord) Record { return Record{Kind: KindLog, Log: l} }

// NewMetricRecord wraps a metric point in a Record.
func NewMetricRecord(m *MetricPoint) Record { return Record{Kind: KindMetric, Metric: m} }

// Time returns the record's primary timestamp.
func (r Record) Time() time.Time {
	switch r.Kind {
	case KindSpan:
		if r.Span != nil {
			return r.Span.EndTime
		}
	case KindLog:
		if r.Log != nil {
			return r.Log.Time
		}
	case KindMetric:
		if r.Metric != nil {
			return r.Metric.Time
		}
	}
	return time.Time{}
}
