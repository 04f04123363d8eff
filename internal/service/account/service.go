// Package account applies a user's account settings changes against the
// identity provider as one ordered run.
package account

import (
	"context"
	"time"

	"github.com/janisto/account-settings/internal/service/session"
)

// AvatarAction selects what happens to the avatar in a run.
type AvatarAction string

const (
	AvatarUnchanged AvatarAction = "unchanged"
	AvatarSet       AvatarAction = "set"
	AvatarReset     AvatarAction = "reset"
)

// AvatarChange carries the avatar action and, for AvatarSet only, the raw image.
type AvatarChange struct {
	Action AvatarAction
	Image  []byte
}

// UpdateRequest is one submission of the account settings form.
type UpdateRequest struct {
	DisplayName        string `validate:"required,max=100"`
	Email              string `validate:"required,max=254,email"`
	Avatar             AvatarChange
	OldPassword        string
	NewPassword        string
	NewPasswordConfirm string
}

// Profile is the account as last seen by the user.
type Profile struct {
	UserID        string
	DisplayName   string
	Email         string
	EmailVerified bool
	AvatarURL     string
	RefreshedAt   time.Time
}

// Outcome is the single user-visible result of a run.
type Outcome struct {
	Success bool
	Message string
	Err     *Error
	Applied []StepKind
	Skipped []Skip
	// Profile is the refreshed account; set only on success.
	Profile *Profile
}

// Service defines account settings operations.
type Service interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Submit(ctx context.Context, userID string, req UpdateRequest) (*Outcome, error)
}

func profileFromSnapshot(s *session.Snapshot) *Profile {
	if s == nil {
		return nil
	}
	return &Profile{
		UserID:        s.UserID,
		DisplayName:   s.DisplayName,
		Email:         s.Email,
		EmailVerified: s.EmailVerified,
		AvatarURL:     s.AvatarURL,
		RefreshedAt:   s.RefreshedAt,
	}
}
