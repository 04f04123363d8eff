package identity

import (
	"context"
	"errors"
	"fmt"
)

// MinPasswordLength is the shortest password the provider accepts.
const MinPasswordLength = 6

// Operations issued against the identity provider.
const (
	OpGetAccount        = "get_account"
	OpUpdateDisplayName = "update_display_name"
	OpUpdateAvatar      = "update_avatar"
	OpUpdateEmail       = "update_email"
	OpUpdatePassword    = "update_password"
	OpReauthenticate    = "reauthenticate"
)

// Code classifies provider failures independently of the backing SDK.
type Code string

const (
	CodeUserNotFound       Code = "user_not_found"
	CodeUserDisabled       Code = "user_disabled"
	CodeEmailAlreadyExists Code = "email_already_exists"
	CodeInvalidCredential  Code = "invalid_credential"
	CodeTooManyAttempts    Code = "too_many_attempts"
	CodeWeakPassword       Code = "weak_password"
	CodeInvalidArgument    Code = "invalid_argument"
	CodeUnavailable        Code = "unavailable"
	CodeRejected           Code = "rejected"
)

// ErrProvider is matched by every *ProviderError.
var ErrProvider = errors.New("identity provider error")

// ProviderError carries the failed operation and its classification.
type ProviderError struct {
	Op    string
	Code  Code
	cause error
}

// NewProviderError wraps cause for op with the given code.
func NewProviderError(op string, code Code, cause error) *ProviderError {
	return &ProviderError{Op: op, Code: code, cause: cause}
}

func (e *ProviderError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("identity provider %s failed (code=%s)", e.Op, e.Code)
	}
	return fmt.Sprintf("identity provider %s failed (code=%s): %v", e.Op, e.Code, e.cause)
}

// Unwrap exposes the SDK or transport error.
func (e *ProviderError) Unwrap() error {
	return e.cause
}

// Is matches ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// CodeOf returns the Code of the first ProviderError in err's chain, or "".
func CodeOf(err error) Code {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Account is the identity provider's record for a user.
type Account struct {
	UID           string
	DisplayName   string
	Email         string
	EmailVerified bool
	PhotoURL      string
}

// Provider is the system of record for account identity and credentials.
// Every mutation applies on its own; there is no multi-field transaction.
type Provider interface {
	GetAccount(ctx context.Context, uid string) (*Account, error)
	UpdateDisplayName(ctx context.Context, uid, name string) error
	// UpdateAvatar sets the photo reference; an empty ref restores the default avatar.
	UpdateAvatar(ctx context.Context, uid, ref string) error
	UpdateEmail(ctx context.Context, uid, email string) error
	UpdatePassword(ctx context.Context, uid, password string) error
	// Reauthenticate proves possession of the account's current password.
	Reauthenticate(ctx context.Context, uid, identifier, secret string) error
}
