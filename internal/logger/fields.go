package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	KeyRequestID = "request_id" // Correlation id assigned at the HTTP edge
	KeyUserID    = "user_id"    // Tenant identity (native User header or S3 access key derived id)
	KeyBucket    = "bucket"     // Tenant bucket
	KeyKey       = "key"        // Object key
	KeyError     = "error"      // Error message
)

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
