package record

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// TraceID is a 16-byte trace identifier.
type TraceID [16]byte

// SpanID is an 8-byte span identifier.
type SpanID [8]byte

// NewTraceID returns a random trace id. UUIDs are 16 random bytes, which
// is exactly the OTLP trace id width.
func NewTraceID() TraceID {
	return TraceID(uuid.New())
}

// NewSpanID returns a random span id.
func NewSpanID() SpanID {
	var id SpanID
	// rand.Read never fails on supported platforms
	_, _ = rand.Read(id[:])
	return id
}

// IsValid reports whether the id is non-zero.
func (t TraceID) IsValid() bool { return t != TraceID{} }

// IsValid reports whether the id is non-zero.
func (s SpanID) IsValid() bool { return s != SpanID{} }

// String returns the lowercase hex encoding.
func (t TraceID) String() string { return hex.EncodeToString(t[:]) }

// String returns the lowercase hex encoding.
func (s SpanID) String() string { return hex.EncodeToString(s[:]) }
