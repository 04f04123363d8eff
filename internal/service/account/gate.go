package account

import (
	"context"
	"errors"

	"github.com/janisto/account-settings/internal/service/identity"
)

type gateState int

const (
	gateNotAuthenticated gateState = iota
	gateAuthenticating
	gateAuthenticated
	gateFailed
)

func (s gateState) String() string {
	switch s {
	case gateNotAuthenticated:
		return "not_authenticated"
	case gateAuthenticating:
		return "authenticating"
	case gateAuthenticated:
		return "authenticated"
	case gateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type reauthenticator interface {
	GetAccount(ctx context.Context, uid string) (*identity.Account, error)
	Reauthenticate(ctx context.Context, uid, identifier, secret string) error
}

// credentialGate re-authenticates at most once per run and caches the result
// for every later gated step. The sign-in identifier is read from the provider
// on first use, never from the cached session. It is not safe for concurrent
// use; a run is sequential.
type credentialGate struct {
	reauth     reauthenticator
	uid        string
	identifier string
	secret     string
	state      gateState
	err        *Error
}

func newCredentialGate(reauth reauthenticator, uid, secret string) *credentialGate {
	return &credentialGate{
		reauth: reauth,
		uid:    uid,
		secret: secret,
		state:  gateNotAuthenticated,
	}
}

// Ensure returns nil once the credential is proven. A failure is terminal for
// the run. Cancellation leaves the gate unauthenticated and returns the context error.
func (g *credentialGate) Ensure(ctx context.Context, step StepKind) error {
	switch g.state {
	case gateAuthenticated:
		return nil
	case gateFailed:
		return g.err
	case gateAuthenticating:
		return errors.New("re-authentication already in progress")
	}

	if g.secret == "" {
		g.fail(&Error{Kind: ErrorKindAuth, Step: step, Message: "current password is required"})
		return g.err
	}

	g.state = gateAuthenticating
	if g.identifier == "" {
		acc, err := g.reauth.GetAccount(ctx, g.uid)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				g.state = gateNotAuthenticated
				return ctxErr
			}
			g.fail(providerError(step, err))
			return g.err
		}
		g.identifier = acc.Email
	}

	err := g.reauth.Reauthenticate(ctx, g.uid, g.identifier, g.secret)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			g.state = gateNotAuthenticated
			return ctxErr
		}
		g.fail(authError(step, err))
		reauthTotal.WithLabelValues("failure").Inc()
		return g.err
	}

	g.state = gateAuthenticated
	reauthTotal.WithLabelValues("success").Inc()
	return nil
}

func (g *credentialGate) fail(err *Error) {
	g.state = gateFailed
	g.err = err
}
