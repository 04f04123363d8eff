package logging

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	propagator = propagation.TraceContext{}

	projectIDMu sync.RWMutex
	projectID   string
	projectOnce sync.Once
)

// SetProjectID overrides the project used to build Cloud Trace resource names.
func SetProjectID(id string) {
	projectOnce.Do(func() {})
	projectIDMu.Lock()
	projectID = id
	projectIDMu.Unlock()
}

func resolveProjectID() string {
	projectOnce.Do(func() {
		projectID = firstNonEmpty(
			os.Getenv("FIREBASE_PROJECT_ID"),
			os.Getenv("GOOGLE_CLOUD_PROJECT"),
		)
	})
	projectIDMu.RLock()
	defer projectIDMu.RUnlock()
	return projectID
}

// extractTrace returns ctx carrying the caller's span context from a W3C
// traceparent header. Spans started from the returned context join that trace.
func extractTrace(ctx context.Context, h http.Header) context.Context {
	return propagator.Extract(ctx, propagation.HeaderCarrier(h))
}

func loggerWithTrace(base *zap.Logger, sc trace.SpanContext, project, requestID string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	fields := traceFields(sc, project)
	if requestID != "" {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func traceFields(sc trace.SpanContext, project string) []zap.Field {
	resource := traceResource(sc, project)
	if resource == "" {
		return nil
	}
	return []zap.Field{
		zap.String("logging.googleapis.com/trace", resource),
		zap.String("logging.googleapis.com/spanId", sc.SpanID().String()),
		zap.Bool("logging.googleapis.com/trace_sampled", sc.IsSampled()),
	}
}

func traceResource(sc trace.SpanContext, project string) string {
	if project == "" || !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", project, sc.TraceID())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
