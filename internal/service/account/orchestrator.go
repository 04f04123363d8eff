package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	applog "github.com/janisto/account-settings/internal/platform/logging"
	"github.com/janisto/account-settings/internal/service/identity"
	"github.com/janisto/account-settings/internal/service/session"
	"github.com/janisto/account-settings/internal/service/storage"
)

// ImageProcessor compresses a raw image into an uploadable payload.
type ImageProcessor interface {
	Process(ctx context.Context, raw []byte) (string, error)
}

// Orchestrator implements Service. Steps run strictly in sequence; the first
// failure ends the run and nothing already applied is reverted.
type Orchestrator struct {
	provider    identity.Provider
	uploader    storage.Uploader
	images      ImageProcessor
	sessions    session.Store
	emailPolicy EmailPolicy
	guard       *runGuard
	locker      RunLocker
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmailPolicy sets how an email change without the current password is handled.
func WithEmailPolicy(p EmailPolicy) Option {
	return func(o *Orchestrator) {
		if p != "" {
			o.emailPolicy = p
		}
	}
}

// WithRunLocker adds a shared lock, taken after the in-process guard, so runs
// for one account are serialised across instances too.
func WithRunLocker(l RunLocker) Option {
	return func(o *Orchestrator) {
		o.locker = l
	}
}

// NewOrchestrator wires the run's collaborators.
func NewOrchestrator(
	provider identity.Provider,
	uploader storage.Uploader,
	images ImageProcessor,
	sessions session.Store,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		uploader:    uploader,
		images:      images,
		sessions:    sessions,
		emailPolicy: EmailPolicySkip,
		guard:       newRunGuard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds the per-submission state. The credential never leaves it.
type run struct {
	userID        string
	req           UpdateRequest
	plan          Plan
	gate          *credentialGate
	avatarPayload string
	applied       []StepKind
}

// Get returns the user's cached profile.
func (o *Orchestrator) Get(ctx context.Context, userID string) (*Profile, error) {
	snap, err := o.sessions.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileFromSnapshot(snap), nil
}

// Submit executes one update run. Failures of the run itself are reported in
// the Outcome; the returned error is reserved for ErrRunInProgress, context
// cancellation and infrastructure failures before the run starts.
func (o *Orchestrator) Submit(ctx context.Context, userID string, req UpdateRequest) (*Outcome, error) {
	release, ok := o.guard.acquire(userID)
	if !ok {
		runsTotal.WithLabelValues(outcomeRejected).Inc()
		return nil, ErrRunInProgress
	}
	defer release()

	if o.locker != nil {
		unlock, ok, err := o.locker.TryLock(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		if !ok {
			runsTotal.WithLabelValues(outcomeRejected).Inc()
			return nil, ErrRunInProgress
		}
		defer unlock()
	}

	ctx = applog.WithFields(ctx, zap.String("run_id", uuid.NewString()))
	ctx, span := tracer.Start(ctx, "account.Submit",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	r := &run{userID: userID, req: Normalize(req)}

	if err := Validate(r.req); err != nil {
		return o.finish(ctx, span, r, err), nil
	}

	snap, err := o.sessions.Snapshot(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("loading account snapshot: %w", err)
	}
	current := profileFromSnapshot(snap)

	r.plan, err = BuildPlan(current, r.req, o.emailPolicy)
	if err != nil {
		return o.finish(ctx, span, r, err), nil
	}
	o.logSkips(ctx, r)

	if r.plan.Has(StepAvatar) && r.req.Avatar.Action == AvatarSet {
		payload, err := o.processImage(ctx, r.req.Avatar.Image)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, o.cancel(ctx, span, r, ctxErr)
			}
			return o.finish(ctx, span, r, err), nil
		}
		r.avatarPayload = payload
	}

	r.gate = newCredentialGate(o.provider, userID, r.req.OldPassword)
	span.SetAttributes(attribute.Int("account.steps", len(r.plan.Steps)))

	for _, step := range r.plan.Steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, o.cancel(ctx, span, r, ctxErr)
		}
		if err := o.execute(ctx, r, step); err != nil {
			if isContextError(err) {
				return nil, o.cancel(ctx, span, r, err)
			}
			return o.finish(ctx, span, r, err), nil
		}
		r.applied = append(r.applied, step)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, o.cancel(ctx, span, r, ctxErr)
	}
	return o.finish(ctx, span, r, nil), nil
}

func (o *Orchestrator) processImage(ctx context.Context, raw []byte) (string, error) {
	start := time.Now()
	payload, err := o.images.Process(ctx, raw)
	imageProcessSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", imageError(err)
	}
	return payload, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, step StepKind) error {
	ctx, span := tracer.Start(ctx, "account.step",
		trace.WithAttributes(attribute.String("account.step", string(step))),
	)
	defer span.End()

	var err error
	switch step {
	case StepAvatar:
		err = o.applyAvatar(ctx, r)
	case StepDisplayName:
		err = o.providerCall(ctx, step, o.provider.UpdateDisplayName(ctx, r.userID, r.req.DisplayName))
	case StepPassword:
		if err = r.gate.Ensure(ctx, step); err == nil {
			err = o.providerCall(ctx, step, o.provider.UpdatePassword(ctx, r.userID, r.req.NewPassword))
		}
	case StepEmail:
		if err = r.gate.Ensure(ctx, step); err == nil {
			err = o.providerCall(ctx, step, o.provider.UpdateEmail(ctx, r.userID, r.req.Email))
		}
	default:
		err = fmt.Errorf("unknown step %q", step)
	}

	o.recordStep(ctx, span, r, step, err)
	return err
}

// applyAvatar uploads the processed image, if any, then points the account at
// it. A reset sends an empty reference without uploading.
func (o *Orchestrator) applyAvatar(ctx context.Context, r *run) error {
	var ref string
	if r.req.Avatar.Action == AvatarSet {
		var err error
		ref, err = o.uploader.Upload(ctx, storage.Object{
			Kind:    storage.KindAvatar,
			Key:     r.userID,
			Payload: r.avatarPayload,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return uploadError(err)
		}
		if ref == "" {
			return uploadError(storage.ErrEmptyReference)
		}
	}
	return o.providerCall(ctx, StepAvatar, o.provider.UpdateAvatar(ctx, r.userID, ref))
}

func (o *Orchestrator) providerCall(ctx context.Context, step StepKind, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return providerError(step, err)
}

func (o *Orchestrator) recordStep(ctx context.Context, span trace.Span, r *run, step StepKind, err error) {
	details := map[string]any{"step": string(step)}
	if step == StepAvatar {
		details["action"] = string(r.req.Avatar.Action)
	}

	if err == nil {
		stepsTotal.WithLabelValues(string(step), applog.AuditSuccess).Inc()
		span.SetStatus(codes.Ok, "")
		applog.LogAuditEvent(ctx, applog.AuditEvent{
			Action:       "update_" + string(step),
			UserID:       r.userID,
			ResourceType: "account",
			Result:       applog.AuditSuccess,
			Details:      details,
		})
		return
	}

	result := applog.AuditFailure
	if isContextError(err) {
		result = outcomeCanceled
	} else {
		details["error"] = string(asError(step, err).Kind)
	}
	stepsTotal.WithLabelValues(string(step), result).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	applog.LogAuditEvent(ctx, applog.AuditEvent{
		Action:       "update_" + string(step),
		UserID:       r.userID,
		ResourceType: "account",
		Result:       result,
		Details:      details,
	})
}

func (o *Orchestrator) logSkips(ctx context.Context, r *run) {
	for _, s := range r.plan.Skipped {
		stepsTotal.WithLabelValues(string(s.Step), applog.AuditSkipped).Inc()
		applog.LogInfo(ctx, "account update step skipped",
			zap.String("step", string(s.Step)),
			zap.String("reason", s.Reason),
		)
		applog.LogAuditEvent(ctx, applog.AuditEvent{
			Action:       "update_" + string(s.Step),
			UserID:       r.userID,
			ResourceType: "account",
			Result:       applog.AuditSkipped,
			Details:      map[string]any{"reason": s.Reason},
		})
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Compile-time interface check
var _ Service = (*Orchestrator)(nil)
