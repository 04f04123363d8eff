package logging

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestLogger joins the caller's W3C trace, if any, and stores a logger
// carrying the Cloud Trace fields and request id in the request context.
// Without a trace the request id doubles as the correlation id.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := extractTrace(r.Context(), r.Header)
			sc := trace.SpanContextFromContext(ctx)
			project := resolveProjectID()
			reqID := chimiddleware.GetReqID(ctx)

			correlation := traceResource(sc, project)
			if correlation == "" {
				correlation = reqID
			}
			ctx = contextWithCorrelationID(ctx, correlation)
			ctx = contextWithLogger(ctx, loggerWithTrace(Logger(), sc, project, reqID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLogger writes one summary per request. Server errors log at error
// level and client errors at warn so failed account updates stand out.
func AccessLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := zapcore.InfoLevel
			switch {
			case status >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case status >= http.StatusBadRequest:
				level = zapcore.WarnLevel
			}

			LoggerFromContext(r.Context()).Log(level,
				"request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int64("requestBytes", r.ContentLength),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
