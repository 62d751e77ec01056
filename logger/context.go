package logger

import "context"

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	// executionIDKey is the context key for the ID shared by all attempts of one execution
	executionIDKey contextKey = "execution_id"

	// FieldExecutionID is the log field carrying the execution ID
	FieldExecutionID = "execution_id"
)

// WithExecutionID stores the execution ID in the context
func WithExecutionID(ctx context.Context, id string) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, executionIDKey, id)
}

// ExecutionIDFromContext returns the execution ID from the context when present
func ExecutionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(executionIDKey).(string)
	return id, ok && id != ""
}
