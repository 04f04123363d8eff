package logging

import (
	"context"

	"go.uber.org/zap"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
	AuditSkipped = "skipped"
)

// AuditEvent describes one security-relevant action on a user's resource.
// Details must never carry secrets or raw payloads.
type AuditEvent struct {
	Action       string
	UserID       string
	ResourceType string
	ResourceID   string
	Result       string
	Details      map[string]any
}

// LogAuditEvent logs a structured audit event for security and compliance.
func LogAuditEvent(ctx context.Context, ev AuditEvent) {
	resourceID := ev.ResourceID
	if resourceID == "" {
		resourceID = ev.UserID
	}
	LoggerFromContext(ctx).Info("Audit event",
		zap.String("audit.action", ev.Action),
		zap.String("audit.user_id", ev.UserID),
		zap.String("audit.resource_type", ev.ResourceType),
		zap.String("audit.resource_id", resourceID),
		zap.String("audit.result", ev.Result),
		zap.Any("audit.details", ev.Details),
	)
}
