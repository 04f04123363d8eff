package account

import (
	"context"
	"errors"
	"testing"

	"github.com/janisto/account-settings/internal/service/identity"
)

type countingReauth struct {
	email      string
	lookups    int
	lookupErr  error
	calls      int
	identifier string
	err        error
}

func (c *countingReauth) GetAccount(ctx context.Context, uid string) (*identity.Account, error) {
	c.lookups++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	return &identity.Account{UID: uid, Email: c.email}, nil
}

func (c *countingReauth) Reauthenticate(ctx context.Context, _, identifier, _ string) error {
	c.calls++
	c.identifier = identifier
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.err
}

func TestGateAuthenticatesOnce(t *testing.T) {
	reauth := &countingReauth{email: testEmail}
	g := newCredentialGate(reauth, testUID, testPassword)
	ctx := context.Background()

	if err := g.Ensure(ctx, StepPassword); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Ensure(ctx, StepEmail); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reauth.calls != 1 || reauth.lookups != 1 {
		t.Fatalf("expected one lookup and one re-authentication, got %d and %d", reauth.lookups, reauth.calls)
	}
	if reauth.identifier != testEmail {
		t.Fatalf("expected identifier %q, got %q", testEmail, reauth.identifier)
	}
	if g.state != gateAuthenticated {
		t.Fatalf("expected authenticated, got %s", g.state)
	}
}

func TestGateCachesFailure(t *testing.T) {
	reauth := &countingReauth{email: testEmail, err: identity.NewProviderError(identity.OpReauthenticate, identity.CodeTooManyAttempts, nil)}
	g := newCredentialGate(reauth, testUID, testPassword)
	ctx := context.Background()

	first := g.Ensure(ctx, StepPassword)
	second := g.Ensure(ctx, StepEmail)
	if !errors.Is(first, ErrAuth) || first != second {
		t.Fatalf("expected the same cached auth error, got %v and %v", first, second)
	}
	if first.Error() != "too many attempts, try again later" {
		t.Fatalf("unexpected message %q", first.Error())
	}
	if reauth.calls != 1 {
		t.Fatalf("expected one attempt, got %d", reauth.calls)
	}
	if g.state != gateFailed {
		t.Fatalf("expected failed, got %s", g.state)
	}
}

func TestGateWithoutSecretFailsWithoutCall(t *testing.T) {
	reauth := &countingReauth{email: testEmail}
	g := newCredentialGate(reauth, testUID, "")

	err := g.Ensure(context.Background(), StepEmail)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if reauth.calls != 0 {
		t.Fatal("expected no re-authentication call")
	}
}

func TestGateCancellationResetsState(t *testing.T) {
	reauth := &countingReauth{email: testEmail}
	g := newCredentialGate(reauth, testUID, testPassword)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Ensure(ctx, StepPassword); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if g.state != gateNotAuthenticated {
		t.Fatalf("expected not_authenticated after cancel, got %s", g.state)
	}
	if err := g.Ensure(context.Background(), StepPassword); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestGateLookupFailureIsTerminal(t *testing.T) {
	reauth := &countingReauth{lookupErr: identity.NewProviderError(identity.OpGetAccount, identity.CodeUnavailable, nil)}
	g := newCredentialGate(reauth, testUID, testPassword)

	first := g.Ensure(context.Background(), StepPassword)
	if !errors.Is(first, ErrProvider) {
		t.Fatalf("expected provider error, got %v", first)
	}
	if second := g.Ensure(context.Background(), StepEmail); second != first {
		t.Fatalf("expected cached error, got %v", second)
	}
	if reauth.lookups != 1 || reauth.calls != 0 {
		t.Fatalf("expected one lookup and no re-authentication, got %d and %d", reauth.lookups, reauth.calls)
	}
}

func TestRunGuard(t *testing.T) {
	g := newRunGuard()
	release, ok := g.acquire("a")
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if _, ok := g.acquire("a"); ok {
		t.Fatal("expected second acquire for same user to fail")
	}
	releaseB, ok := g.acquire("b")
	if !ok {
		t.Fatal("other users must not be blocked")
	}
	release()
	releaseB()
	if _, ok := g.acquire("a"); !ok {
		t.Fatal("expected acquire after release")
	}
}
