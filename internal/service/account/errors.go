package account

import (
	"errors"
	"fmt"

	"github.com/janisto/account-settings/internal/service/identity"
	"github.com/janisto/account-settings/internal/service/imaging"
)

// Service errors
var (
	ErrValidation    = errors.New("account update validation failed")
	ErrImage         = errors.New("avatar image processing failed")
	ErrUpload        = errors.New("avatar upload failed")
	ErrAuth          = errors.New("re-authentication failed")
	ErrProvider      = errors.New("identity provider rejected the update")
	ErrRunInProgress = errors.New("an account update is already in progress")
)

// ErrorKind classifies run failures.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindImage      ErrorKind = "image"
	ErrorKindUpload     ErrorKind = "upload"
	ErrorKindAuth       ErrorKind = "auth"
	ErrorKindProvider   ErrorKind = "provider"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorKindValidation:
		return ErrValidation
	case ErrorKindImage:
		return ErrImage
	case ErrorKindUpload:
		return ErrUpload
	case ErrorKindAuth:
		return ErrAuth
	default:
		return ErrProvider
	}
}

// Error is the first failure of a run. Message is safe to show to the user.
type Error struct {
	Kind    ErrorKind
	Step    StepKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "account update error"
	}
	return e.Message
}

// Unwrap exposes the underlying provider, storage or image error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return e != nil && target == e.Kind.sentinel()
}

func validationError(msg string) *Error {
	return &Error{Kind: ErrorKindValidation, Message: msg}
}

func imageError(err error) *Error {
	msg := "avatar image could not be processed"
	switch {
	case errors.Is(err, imaging.ErrEmpty):
		msg = "avatar image is empty"
	case errors.Is(err, imaging.ErrInputTooBig):
		msg = "avatar image is too large"
	case errors.Is(err, imaging.ErrUnsupported):
		msg = "avatar image format is not supported"
	case errors.Is(err, imaging.ErrCannotFit):
		msg = "avatar image could not be compressed enough"
	}
	return &Error{Kind: ErrorKindImage, Step: StepAvatar, Message: msg, cause: err}
}

func uploadError(err error) *Error {
	return &Error{Kind: ErrorKindUpload, Step: StepAvatar, Message: "avatar upload failed", cause: err}
}

func authError(step StepKind, err error) *Error {
	var msg string
	switch identity.CodeOf(err) {
	case identity.CodeInvalidCredential:
		msg = "current password is incorrect"
	case identity.CodeTooManyAttempts:
		msg = "too many attempts, try again later"
	case identity.CodeUserDisabled:
		msg = "account is disabled"
	case identity.CodeUnavailable:
		msg = "could not verify the current password, try again later"
	default:
		msg = "could not verify the current password"
	}
	return &Error{Kind: ErrorKindAuth, Step: step, Message: msg, cause: err}
}

func providerError(step StepKind, err error) *Error {
	var msg string
	switch identity.CodeOf(err) {
	case identity.CodeEmailAlreadyExists:
		msg = "email address is already in use by another account"
	case identity.CodeWeakPassword:
		msg = "new password is too weak"
	case identity.CodeUserNotFound:
		msg = "account no longer exists"
	case identity.CodeUserDisabled:
		msg = "account is disabled"
	case identity.CodeTooManyAttempts:
		msg = "too many attempts, try again later"
	case identity.CodeUnavailable:
		msg = "identity provider is unavailable, try again later"
	case identity.CodeInvalidArgument:
		msg = fmt.Sprintf("%s was rejected as invalid", step.label())
	default:
		msg = fmt.Sprintf("failed to update %s", step.label())
	}
	return &Error{Kind: ErrorKindProvider, Step: step, Message: msg, cause: err}
}

// asError returns err's *Error, classifying anything else as a provider failure.
func asError(step StepKind, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return providerError(step, err)
}
