package account

import (
	"github.com/janisto/account-settings/internal/platform/timeutil"
)

// Account represents the signed-in user's account settings.
type Account struct {
	ID            string        `json:"id"                  doc:"User identifier"          example:"user-123"`
	DisplayName   string        `json:"displayName"         doc:"Display name"             example:"Alice"`
	Email         string        `json:"email"               doc:"Email address"            example:"alice@example.com"`
	EmailVerified bool          `json:"emailVerified"       doc:"Email verification state" example:"true"`
	AvatarURL     string        `json:"avatarUrl,omitempty" doc:"Avatar reference; empty means the default avatar"`
	RefreshedAt   timeutil.Time `json:"refreshedAt"         doc:"When the snapshot was last refreshed" example:"2024-01-15T10:30:00.000Z"`
}

// SkippedStep is a requested change the run did not apply.
type SkippedStep struct {
	Step   string `json:"step"   doc:"Skipped step"  example:"email"`
	Reason string `json:"reason" doc:"Why it was skipped" example:"current password not supplied"`
}

// UpdateResult is the outcome of a successful update run.
type UpdateResult struct {
	Success bool          `json:"success"            doc:"Whether every planned change was applied" example:"true"`
	Message string        `json:"message"            doc:"Result message"                             example:"account updated"`
	Applied []string      `json:"applied"            doc:"Applied steps in order"`
	Skipped []SkippedStep `json:"skipped,omitempty"  doc:"Requested changes that were not applied"`
	Profile *Account      `json:"profile,omitempty"  doc:"Refreshed account"`
}
