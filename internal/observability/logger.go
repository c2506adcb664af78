package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const maxLoggerFieldCapacity int = 4 // Maximum number of context fields to add to logger

// NewLogger builds the process logger. It is constructed once in the
// composition root and passed down explicitly; nothing reads it from a
// package-level global. Flush it on shutdown.
func NewLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}

// Flush drains buffered log entries. Called once at process shutdown.
func Flush(logger *zap.Logger) {
	if logger == nil {
		return
	}
	_ = logger.Sync()
}

// WithContext annotates a logger with the correlation ids carried by ctx.
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	fields := make([]zap.Field, 0, maxLoggerFieldCapacity)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	if runID := GetRunID(ctx); runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}

	if accountID := GetBillingAccountID(ctx); accountID != "" {
		fields = append(fields, zap.String("billing_account_id", accountID))
	}

	return logger.With(fields...)
}
