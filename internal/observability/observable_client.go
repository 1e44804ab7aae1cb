package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ObservableClient wraps calls to one external connection with a fixed
// timeout, a span, per-operation stats and a log line.
type ObservableClient struct {
	ConnectionType ConnectionType
	Endpoint       string
	Timeout        time.Duration
	Stats          *Registry
}

// NewObservableClient creates a new observable client
func NewObservableClient(connType ConnectionType, endpoint string, timeout time.Duration) *ObservableClient {
	return &ObservableClient{
		ConnectionType: connType,
		Endpoint:       endpoint,
		Timeout:        timeout,
		Stats:          NewRegistry(connType),
	}
}

// ExecuteWithMetrics runs operation under the client's timeout (when the
// caller's context has no earlier deadline) and records the outcome.
func (oc *ObservableClient) ExecuteWithMetrics(
	ctx context.Context,
	operationName string,
	operation func(ctx context.Context) error,
) error {
	return oc.ExecuteWithTimeout(ctx, operationName, oc.Timeout, operation)
}

// ExecuteWithTimeout is ExecuteWithMetrics with an explicit per-call timeout.
func (oc *ObservableClient) ExecuteWithTimeout(
	ctx context.Context,
	operationName string,
	timeout time.Duration,
	operation func(ctx context.Context) error,
) error {
	cm := oc.Stats.For(operationName)
	cm.RecordRequest()

	ctx, span := otel.Tracer(string(oc.ConnectionType)).Start(ctx, operationName)
	defer span.End()
	span.SetAttributes(
		attribute.String("connection.type", string(oc.ConnectionType)),
		attribute.String("connection.endpoint", oc.Endpoint),
	)

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := operation(callCtx)
	duration := time.Since(start)

	lg := LoggerFromContext(ctx)
	switch {
	case err == nil:
		cm.RecordSuccess(duration)
		lg.Debug("operation successful",
			slog.String("operation", operationName),
			slog.String("endpoint", oc.Endpoint),
			slog.Duration("duration", duration))
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		cm.RecordTimeout(duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, "timeout")
		lg.Warn("operation timeout",
			slog.String("operation", operationName),
			slog.String("endpoint", oc.Endpoint),
			slog.Duration("timeout", timeout),
			slog.Duration("duration", duration))
	default:
		cm.RecordFailure(err, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorClass(err))
		lg.Debug("operation failed",
			slog.String("operation", operationName),
			slog.String("endpoint", oc.Endpoint),
			slog.String("error_class", ErrorClass(err)),
			slog.Any("error", err),
			slog.Duration("duration", duration))
	}
	return err
}
