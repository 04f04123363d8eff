package account

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	applog "github.com/janisto/account-settings/internal/platform/logging"
)

// finish turns the run's result into its single Outcome. Any applied step
// forces a session refresh, even when the run failed.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, r *run, runErr error) *Outcome {
	out := &Outcome{Applied: r.applied, Skipped: r.plan.Skipped}
	profile := o.refresh(ctx, r)

	if runErr == nil {
		out.Success = true
		out.Message = "account updated"
		out.Profile = profile
		runsTotal.WithLabelValues(outcomeSuccess).Inc()
		span.SetStatus(codes.Ok, "")
		applog.LogInfo(ctx, "account update succeeded", zap.Strings("applied", stepNames(r.applied)))
		return out
	}

	e := asError("", runErr)
	out.Err = e
	out.Message = e.Message

	outcome := outcomeFailure
	if len(r.applied) > 0 {
		outcome = outcomePartial
	}
	runsTotal.WithLabelValues(outcome).Inc()
	span.RecordError(runErr)
	span.SetStatus(codes.Error, string(e.Kind))
	applog.LogWarn(ctx, "account update failed",
		zap.String("kind", string(e.Kind)),
		zap.String("step", string(e.Step)),
		zap.Strings("applied", stepNames(r.applied)),
		zap.Error(runErr),
	)
	return out
}

// cancel ends a run whose context was cancelled. No outcome is reported.
func (o *Orchestrator) cancel(ctx context.Context, span trace.Span, r *run, ctxErr error) error {
	o.refresh(ctx, r)
	runsTotal.WithLabelValues(outcomeCanceled).Inc()
	span.RecordError(ctxErr)
	span.SetStatus(codes.Error, outcomeCanceled)
	applog.LogInfo(ctx, "account update canceled",
		zap.Strings("applied", stepNames(r.applied)),
		zap.Error(ctxErr),
	)
	return ctxErr
}

// refresh reloads the session when the run changed anything. It runs detached
// from cancellation so the snapshot never lags behind applied changes.
func (o *Orchestrator) refresh(ctx context.Context, r *run) *Profile {
	if len(r.applied) == 0 {
		return nil
	}
	detached := context.WithoutCancel(ctx)
	snap, err := o.sessions.Refresh(detached, r.userID)
	if err != nil {
		applog.LogError(ctx, "session refresh failed", err, zap.String("user_id", r.userID))
		// The cached snapshot predates the applied steps; drop it so the next read reloads.
		if invErr := o.sessions.Invalidate(detached, r.userID); invErr != nil {
			applog.LogError(ctx, "session invalidate failed", invErr, zap.String("user_id", r.userID))
		}
		return nil
	}
	return profileFromSnapshot(snap)
}

func stepNames(steps []StepKind) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = string(s)
	}
	return names
}
