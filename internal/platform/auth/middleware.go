package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	applog "github.com/janisto/account-settings/internal/platform/logging"
)

// userContextKey is the context key for the authenticated user.
type userContextKey struct{}

var authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_failures_total",
	Help: "Rejected bearer tokens by reason",
}, []string{"reason"})

// NewAuthMiddleware creates Huma middleware for Firebase authentication.
// Only operations that declare a security requirement are checked. The
// verified user is stored in the context, tagged on the request logger and
// recorded on the active span.
func NewAuthMiddleware(api huma.API, verifier Verifier) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if len(ctx.Operation().Security) == 0 {
			next(ctx)
			return
		}

		token, err := ExtractBearerToken(ctx.Header("Authorization"))
		if err != nil {
			reject(api, ctx, "no_token", http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}

		user, err := verifier.Verify(ctx.Context(), token)
		if err != nil {
			reason := categorizeAuthError(err)
			if errors.Is(err, ErrCertificateFetch) {
				ctx.SetHeader("Retry-After", "30")
				reject(api, ctx, reason, http.StatusServiceUnavailable, "authentication service temporarily unavailable")
				return
			}
			reject(api, ctx, reason, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		trace.SpanFromContext(ctx.Context()).SetAttributes(attribute.String("enduser.id", user.UID))
		ctx = huma.WithValue(ctx, userContextKey{}, user)
		ctx = huma.WithContext(ctx, applog.WithFields(ctx.Context(), zap.String("uid", user.UID)))
		next(ctx)
	}
}

func reject(api huma.API, ctx huma.Context, reason string, status int, msg string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
	applog.LogWarn(ctx.Context(), "auth failed", zap.String("reason", reason))
	if status == http.StatusUnauthorized {
		ctx.SetHeader("WWW-Authenticate", "Bearer")
	}
	_ = huma.WriteErr(api, ctx, status, msg)
}

// categorizeAuthError returns a safe category string for logging.
func categorizeAuthError(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrUserDisabled):
		return "user_disabled"
	case errors.Is(err, ErrCertificateFetch):
		return "certificate_fetch_failed"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	default:
		return "unknown"
	}
}

// UserFromContext retrieves the authenticated user from context.
// Returns nil if no user is authenticated.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}
