package logging

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// QueryIDKey is the attribute name used for per-query correlation.
const QueryIDKey = "query_id"

type ctxKey struct{}

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// ContextWithQueryID stores a query ID on the context.
func ContextWithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// QueryIDFromContext returns the query ID on ctx, or "".
func QueryIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// EnsureQueryID returns ctx carrying id, generating an ID when id is empty
// and ctx has none.
func EnsureQueryID(ctx context.Context, id string) (context.Context, string) {
	if id != "" {
		return ContextWithQueryID(ctx, id), id
	}
	if existing := QueryIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	id = NewQueryID()
	return ContextWithQueryID(ctx, id), id
}

// NewQueryID returns a random UUID.
func NewQueryID() string {
	return uuid.NewString()
}
