package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/janisto/account-settings/internal/service/identity"
)

// StepKind names a mutation in execution order.
type StepKind string

const (
	StepAvatar      StepKind = "avatar"
	StepDisplayName StepKind = "display_name"
	StepPassword    StepKind = "password"
	StepEmail       StepKind = "email"
)

// Gated reports whether the step needs proof of the current password.
func (k StepKind) Gated() bool {
	return k == StepPassword || k == StepEmail
}

func (k StepKind) label() string {
	return strings.ReplaceAll(string(k), "_", " ")
}

// EmailPolicy decides what happens to an email change submitted without the
// current password.
type EmailPolicy string

const (
	// EmailPolicySkip leaves the email unchanged and records the skip.
	EmailPolicySkip EmailPolicy = "skip"
	// EmailPolicyRequire rejects the request before any network call.
	EmailPolicyRequire EmailPolicy = "require"
)

// Skip reasons.
const (
	SkipSamePassword      = "new password equals the current password"
	SkipNoCurrentPassword = "current password not supplied"
)

// Skip records a change present in the request that the run will not apply.
type Skip struct {
	Step   StepKind
	Reason string
}

// Plan is the ordered list of steps for one run.
type Plan struct {
	Steps   []StepKind
	Skipped []Skip
}

// Has reports whether the plan includes step.
func (p Plan) Has(step StepKind) bool {
	for _, s := range p.Steps {
		if s == step {
			return true
		}
	}
	return false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims the display name, normalises the email and defaults the avatar action.
func Normalize(req UpdateRequest) UpdateRequest {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = normalizeEmail(req.Email)
	if req.Avatar.Action == "" {
		req.Avatar.Action = AvatarUnchanged
	}
	return req
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks a normalised request without consulting any collaborator.
func Validate(req UpdateRequest) error {
	if req.NewPassword != req.NewPasswordConfirm {
		return validationError("new password and confirmation do not match")
	}
	// Only a password change that will be attempted is held to the length rule.
	if req.NewPassword != "" && req.OldPassword != "" && req.OldPassword != req.NewPassword &&
		len(req.NewPassword) < identity.MinPasswordLength {
		return validationError(fmt.Sprintf("new password must be at least %d characters", identity.MinPasswordLength))
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return validationError(fieldMessage(verrs[0]))
		}
		return validationError("request is invalid")
	}

	switch req.Avatar.Action {
	case AvatarSet:
		if len(req.Avatar.Image) == 0 {
			return validationError("an image is required to set the avatar")
		}
	case AvatarUnchanged, AvatarReset:
		if len(req.Avatar.Image) > 0 {
			return validationError("an image can only be supplied when setting the avatar")
		}
	default:
		return validationError(fmt.Sprintf("unknown avatar action %q", req.Avatar.Action))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "DisplayName":
		if fe.Tag() == "required" {
			return "display name is required"
		}
		return fmt.Sprintf("display name must be at most %s characters", fe.Param())
	case "Email":
		if fe.Tag() == "required" {
			return "email is required"
		}
		return "email address is invalid"
	default:
		return fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field()))
	}
}

// BuildPlan diffs a validated request against the current profile.
// Order is avatar, display name, password, email so that soft fields land
// before credential changes.
func BuildPlan(current *Profile, req UpdateRequest, policy EmailPolicy) (Plan, error) {
	var plan Plan

	if req.Avatar.Action == AvatarSet || req.Avatar.Action == AvatarReset {
		plan.Steps = append(plan.Steps, StepAvatar)
	}

	plan.Steps = append(plan.Steps, StepDisplayName)

	if req.NewPassword != "" {
		switch {
		case req.OldPassword == "":
			plan.Skipped = append(plan.Skipped, Skip{Step: StepPassword, Reason: SkipNoCurrentPassword})
		case req.OldPassword == req.NewPassword:
			plan.Skipped = append(plan.Skipped, Skip{Step: StepPassword, Reason: SkipSamePassword})
		default:
			plan.Steps = append(plan.Steps, StepPassword)
		}
	}

	if req.Email != normalizeEmail(current.Email) {
		switch {
		case req.OldPassword != "":
			plan.Steps = append(plan.Steps, StepEmail)
		case policy == EmailPolicyRequire:
			return Plan{}, validationError("current password is required to change the email address")
		default:
			plan.Skipped = append(plan.Skipped, Skip{Step: StepEmail, Reason: SkipNoCurrentPassword})
		}
	}

	return plan, nil
}
