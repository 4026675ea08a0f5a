package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields for this service: the
// correlation id assigned at the HTTP edge, and the tenant/key addressing
// a request once it has been parsed.
type LogContext struct {
	RequestID string
	UserID    string
	Bucket    string
	Key       string
	StartTime time.Time
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a request carrying the given
// correlation id.
func NewLogContext(requestID string) *LogContext {
	return &LogContext{
		RequestID: requestID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithUser returns a copy with the tenant identity set, once a handler has
// parsed the native or S3 credentials off the request.
func (lc *LogContext) WithUser(userID, bucket string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UserID = userID
		clone.Bucket = bucket
	}
	return clone
}

// WithKey returns a copy with the object key set.
func (lc *LogContext) WithKey(key string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Key = key
	}
	return clone
}

// EnrichContext mutates the LogContext stored in ctx (if any) in place,
// setting the tenant and key fields once a handler has parsed them off the
// request. Unlike WithUser/WithKey, which return a detached copy for
// propagating to derived operations, this updates the LogContext shared
// with the request's access-log middleware so the completion line reflects
// the fully-parsed request.
func EnrichContext(ctx context.Context, userID, bucket, key string) {
	lc := FromContext(ctx)
	if lc == nil {
		return
	}
	if userID != "" {
		lc.UserID = userID
	}
	if bucket != "" {
		lc.Bucket = bucket
	}
	if key != "" {
		lc.Key = key
	}
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
