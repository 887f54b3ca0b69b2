// Package retry governs how failed export attempts are repeated without
// unbounded resource growth.
package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/otelship/internal/transport"
)

// Policy configures exponential backoff between export attempts.
type Policy struct {
	// MaxAttempts is the total number of Send calls allowed per batch,
	// including the first. Default: 4.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each retry. Default: 2.
	Multiplier float64

	// Jitter is the fraction of random spread applied to each delay,
	// in [0, 1]. A delay d becomes d * (1 ± Jitter). Default: 0.2.
	Jitter float64
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// ApplyDefaults fills unset fields from DefaultPolicy. Zero jitter is a
// valid explicit choice and is left alone.
func (p *Policy) ApplyDefaults() {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = def.Jitter
	}
}

// State is the export lifecycle state of one batch.
type State int

const (
	Pending State = iota
	Sending
	Retrying
	Succeeded
	Abandoned
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sending:
		return "sending"
	case Retrying:
		return "retrying"
	case Succeeded:
		return "succeeded"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Succeeded || s == Abandoned
}

// Reason explains why a batch ended in Abandoned.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonFatal     Reason = "fatal"
	ReasonExhausted Reason = "exhausted"
	ReasonCanceled  Reason = "canceled"
)

// Result describes the terminal outcome of one batch's export lifecycle.
type Result struct {
	State    State
	Attempts int
	Reason   Reason
	Err      error
}

// SendFunc performs one export attempt.
type SendFunc func(ctx context.Context) (transport.Outcome, error)

// Retrier wraps transport sends with the retry policy. One Retrier serves
// one exporter goroutine; it holds no per-batch state between calls.
type Retrier struct {
	policy Policy
	logger *zap.Logger
	rand   *rand.Rand
}

// New creates a Retrier. The logger may not be nil.
func New(policy Policy, logger *zap.Logger) *Retrier {
	policy.ApplyDefaults()
	return &Retrier{
		policy: policy,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do drives one batch through the export state machine:
//
//	Pending -> Sending -> Succeeded
//	                   -> Retrying -> Sending (until MaxAttempts)
//	                   -> Abandoned (fatal failure or attempts exhausted)
//
// A FatalFailure short-circuits to Abandoned without consuming the
// remaining attempt budget. Context cancellation also abandons the batch:
// sleeping through a shutdown would hold up the final flush.
func (r *Retrier) Do(ctx context.Context, send SendFunc) Result {
	backoff := r.policy.InitialBackoff
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		outcome, err := send(ctx)
		switch outcome {
		case transport.Success:
			if attempt > 1 {
				r.logger.Info("export recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("elapsed", time.Since(start)))
			}
			return Result{State: Succeeded, Attempts: attempt}

		case transport.FatalFailure:
			r.logger.Warn("export failed permanently, abandoning batch",
				zap.Int("attempts", attempt),
				zap.Error(err))
			return Result{State: Abandoned, Attempts: attempt, Reason: ReasonFatal, Err: err}
		}

		lastErr = err
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.jittered(backoff)
		r.logger.Debug("export failed, backing off",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return Result{State: Abandoned, Attempts: attempt, Reason: ReasonCanceled, Err: ctx.Err()}
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * r.policy.Multiplier)
		if backoff > r.policy.MaxBackoff {
			backoff = r.policy.MaxBackoff
		}
	}

	r.logger.Warn("export abandoned after retries exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(lastErr))
	return Result{State: Abandoned, Attempts: r.policy.MaxAttempts, Reason: ReasonExhausted, Err: lastErr}
}

// jittered spreads a delay by ±Jitter to avoid synchronized retry storms.
func (r *Retrier) jittered(d time.Duration) time.Duration {
	if r.policy.Jitter == 0 {
		return d
	}
	spread := 1 + r.policy.Jitter*(2*r.rand.Float64()-1)
	return time.Duration(float64(d) * spread)
}
