package identity

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/errorutils"
)

// PasswordSigner verifies an email/password pair and returns the owning uid.
type PasswordSigner interface {
	SignInWithPassword(ctx context.Context, email, password string) (string, error)
}

// FirebaseProvider implements Provider with the Firebase Admin SDK for reads
// and writes, and a PasswordSigner for proof of possession.
type FirebaseProvider struct {
	client *auth.Client
	signer PasswordSigner
}

// NewFirebaseProvider creates a provider backed by Firebase Authentication.
func NewFirebaseProvider(client *auth.Client, signer PasswordSigner) *FirebaseProvider {
	return &FirebaseProvider{client: client, signer: signer}
}

func (p *FirebaseProvider) GetAccount(ctx context.Context, uid string) (*Account, error) {
	u, err := p.client.GetUser(ctx, uid)
	if err != nil {
		return nil, mapFirebaseError(OpGetAccount, err)
	}
	return &Account{
		UID:           u.UID,
		DisplayName:   u.DisplayName,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		PhotoURL:      u.PhotoURL,
	}, nil
}

func (p *FirebaseProvider) UpdateDisplayName(ctx context.Context, uid, name string) error {
	return p.update(ctx, OpUpdateDisplayName, uid, (&auth.UserToUpdate{}).DisplayName(name))
}

// UpdateAvatar sets the photo URL. The Admin SDK deletes the attribute when
// given an empty string, which restores the default avatar.
func (p *FirebaseProvider) UpdateAvatar(ctx context.Context, uid, ref string) error {
	return p.update(ctx, OpUpdateAvatar, uid, (&auth.UserToUpdate{}).PhotoURL(ref))
}

// UpdateEmail changes the email and marks it unverified.
func (p *FirebaseProvider) UpdateEmail(ctx context.Context, uid, email string) error {
	return p.update(ctx, OpUpdateEmail, uid, (&auth.UserToUpdate{}).Email(email).EmailVerified(false))
}

// UpdatePassword sets a new password. The Admin SDK rejects short passwords
// locally with an untyped error, so the length is checked here.
func (p *FirebaseProvider) UpdatePassword(ctx context.Context, uid, password string) error {
	if len(password) < MinPasswordLength {
		return NewProviderError(OpUpdatePassword, CodeWeakPassword,
			fmt.Errorf("password must be at least %d characters", MinPasswordLength))
	}
	return p.update(ctx, OpUpdatePassword, uid, (&auth.UserToUpdate{}).Password(password))
}

// Reauthenticate signs in with the credential and checks that it belongs to uid.
func (p *FirebaseProvider) Reauthenticate(ctx context.Context, uid, identifier, secret string) error {
	signedIn, err := p.signer.SignInWithPassword(ctx, identifier, secret)
	if err != nil {
		return err
	}
	if signedIn != uid {
		return NewProviderError(OpReauthenticate, CodeInvalidCredential,
			errors.New("credential belongs to a different account"))
	}
	return nil
}

func (p *FirebaseProvider) update(ctx context.Context, op, uid string, params *auth.UserToUpdate) error {
	if _, err := p.client.UpdateUser(ctx, uid, params); err != nil {
		return mapFirebaseError(op, err)
	}
	return nil
}

func mapFirebaseError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var code Code
	switch {
	case auth.IsUserNotFound(err):
		code = CodeUserNotFound
	case auth.IsEmailAlreadyExists(err):
		code = CodeEmailAlreadyExists
	case auth.IsUserDisabled(err):
		code = CodeUserDisabled
	case errorutils.IsInvalidArgument(err):
		code = CodeInvalidArgument
	case errorutils.IsResourceExhausted(err):
		code = CodeTooManyAttempts
	case errorutils.IsUnavailable(err), errorutils.IsDeadlineExceeded(err), errorutils.IsInternal(err):
		code = CodeUnavailable
	default:
		code = CodeRejected
	}
	return NewProviderError(op, code, fmt.Errorf("firebase auth: %w", err))
}

// Compile-time interface check
var _ Provider = (*FirebaseProvider)(nil)
