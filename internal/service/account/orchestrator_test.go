package account

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/janisto/account-settings/internal/service/identity"
	"github.com/janisto/account-settings/internal/service/imaging"
	"github.com/janisto/account-settings/internal/service/session"
	"github.com/janisto/account-settings/internal/service/storage"
)

const (
	testUID      = "user-123"
	testEmail    = "alice@example.com"
	testPassword = "old-secret"
)

type fixture struct {
	provider *identity.MockProvider
	uploader *storage.MockUploader
	sessions *session.MockStore
	svc      *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	provider := identity.NewMockProvider()
	provider.Put(identity.Account{UID: testUID, DisplayName: "Alice", Email: testEmail}, testPassword)

	sessions := session.NewMockStore(provider)
	sessions.Put(session.Snapshot{UserID: testUID, DisplayName: "Alice", Email: testEmail})

	uploader := storage.NewMockUploader()
	images := imaging.NewProcessor(imaging.Options{MaxDimension: 64})
	return &fixture{
		provider: provider,
		uploader: uploader,
		sessions: sessions,
		svc:      NewOrchestrator(provider, uploader, images, sessions, opts...),
	}
}

func baseRequest() UpdateRequest {
	return UpdateRequest{
		DisplayName: "Alice",
		Email:       testEmail,
		Avatar:      AvatarChange{Action: AvatarUnchanged},
	}
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func submit(t *testing.T, f *fixture, req UpdateRequest) *Outcome {
	t.Helper()
	out, err := f.svc.Submit(context.Background(), testUID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func countOp(ops []string, op string) int {
	n := 0
	for _, o := range ops {
		if o == op {
			n++
		}
	}
	return n
}

func TestSubmitDisplayNameOnlyIssuesOneProviderCall(t *testing.T) {
	f := newFixture(t)
	before := testutil.ToFloat64(runsTotal.WithLabelValues(outcomeSuccess))

	req := baseRequest()
	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if got := f.provider.Ops(); !slices.Equal(got, []string{identity.OpUpdateDisplayName}) {
		t.Fatalf("expected exactly one updateDisplayName call, got %v", got)
	}
	if len(f.uploader.Uploads()) != 0 {
		t.Fatal("expected no uploads")
	}
	if f.sessions.Refreshes() != 1 {
		t.Fatalf("expected one session refresh, got %d", f.sessions.Refreshes())
	}
	if out.Profile == nil || out.Profile.DisplayName != "Alice" {
		t.Fatalf("expected refreshed profile, got %+v", out.Profile)
	}
	if after := testutil.ToFloat64(runsTotal.WithLabelValues(outcomeSuccess)); after != before+1 {
		t.Fatalf("expected success counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestSubmitPasswordMismatchMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.DisplayName = "Bob"
	req.Avatar = AvatarChange{Action: AvatarSet, Image: solidPNG(t, 8, 8, color.White)}
	req.OldPassword = testPassword
	req.NewPassword = "new-secret"
	req.NewPasswordConfirm = "other-secret"

	out := submit(t, f, req)

	if out.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", out.Err)
	}
	if out.Message != "new password and confirmation do not match" {
		t.Fatalf("unexpected message %q", out.Message)
	}
	if len(f.provider.Calls()) != 0 || f.provider.Reads() != 0 {
		t.Fatalf("expected no provider traffic, got calls=%v reads=%d", f.provider.Ops(), f.provider.Reads())
	}
	if len(f.uploader.Uploads()) != 0 {
		t.Fatal("expected no uploads")
	}
	if f.sessions.Refreshes() != 0 {
		t.Fatal("expected no refresh")
	}
}

func TestSubmitPasswordOnlyReauthenticatesOnce(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.OldPassword = testPassword
	req.NewPassword = "new-secret"
	req.NewPasswordConfirm = "new-secret"

	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	want := []string{identity.OpUpdateDisplayName, identity.OpReauthenticate, identity.OpUpdatePassword}
	if got := f.provider.Ops(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if f.provider.Password(testUID) != "new-secret" {
		t.Fatal("password not changed")
	}
}

func TestSubmitPasswordAndEmailShareReauthentication(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Email = "Alice.New@Example.com "
	req.OldPassword = testPassword
	req.NewPassword = "new-secret"
	req.NewPasswordConfirm = "new-secret"

	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	ops := f.provider.Ops()
	if n := countOp(ops, identity.OpReauthenticate); n != 1 {
		t.Fatalf("expected exactly one re-authentication, got %d (%v)", n, ops)
	}
	want := []string{identity.OpUpdateDisplayName, identity.OpReauthenticate, identity.OpUpdatePassword, identity.OpUpdateEmail}
	if !slices.Equal(ops, want) {
		t.Fatalf("expected %v, got %v", want, ops)
	}
	acc, _ := f.provider.Account(testUID)
	if acc.Email != "alice.new@example.com" {
		t.Fatalf("expected normalised email, got %q", acc.Email)
	}
	if out.Profile == nil || out.Profile.Email != "alice.new@example.com" {
		t.Fatalf("expected refreshed email in profile, got %+v", out.Profile)
	}
}

func TestSubmitSamePasswordIsSkipped(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.OldPassword = testPassword
	req.NewPassword = testPassword
	req.NewPasswordConfirm = testPassword

	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	if got := f.provider.Ops(); !slices.Equal(got, []string{identity.OpUpdateDisplayName}) {
		t.Fatalf("expected only display name call, got %v", got)
	}
	if !slices.Contains(out.Skipped, Skip{Step: StepPassword, Reason: SkipSamePassword}) {
		t.Fatalf("expected password skip, got %+v", out.Skipped)
	}
}

func TestSubmitAvatarResetSendsEmptyReference(t *testing.T) {
	f := newFixture(t)
	_ = f.provider.UpdateAvatar(context.Background(), testUID, "https://cdn.example.com/old.jpg")
	callsBefore := len(f.provider.Calls())

	req := baseRequest()
	req.Avatar = AvatarChange{Action: AvatarReset}
	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	calls := f.provider.Calls()[callsBefore:]
	if len(calls) != 2 || calls[0].Op != identity.OpUpdateAvatar || calls[0].Value != "" {
		t.Fatalf("expected updateAvatar with empty reference first, got %+v", calls)
	}
	if len(f.uploader.Uploads()) != 0 {
		t.Fatal("reset must not upload")
	}
	if out.Profile.AvatarURL != "" {
		t.Fatalf("expected default avatar, got %q", out.Profile.AvatarURL)
	}
}

func TestSubmitAvatarSetStoresCompressedImage(t *testing.T) {
	f := newFixture(t)
	red := color.RGBA{R: 220, G: 20, B: 30, A: 255}
	req := baseRequest()
	req.Avatar = AvatarChange{Action: AvatarSet, Image: solidPNG(t, 200, 100, red)}

	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	uploads := f.uploader.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected exactly one upload, got %d", len(uploads))
	}
	if uploads[0].Kind != storage.KindAvatar || uploads[0].Key != testUID {
		t.Fatalf("unexpected object %s", uploads[0].Name())
	}

	snap, err := f.sessions.Snapshot(context.Background(), testUID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	payload, ok := f.uploader.Resolve(snap.AvatarURL)
	if !ok {
		t.Fatalf("session avatar %q does not resolve", snap.AvatarURL)
	}
	mediaType, raw, err := storage.ParseDataURL(payload)
	if err != nil || mediaType != "image/jpeg" {
		t.Fatalf("unexpected payload %q: %v", mediaType, err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Fatalf("expected 64x32 after resize, got %v", img.Bounds())
	}
	r, g, b, _ := img.At(32, 16).RGBA()
	if r>>8 < 180 || g>>8 > 70 || b>>8 > 80 {
		t.Fatalf("expected reddish pixel, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestSubmitEmailWithoutPasswordIsSkippedByDefault(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Email = "other@example.com"

	out := submit(t, f, req)

	if !out.Success || out.Err != nil {
		t.Fatalf("expected success without error, got %+v", out)
	}
	if !slices.Contains(out.Skipped, Skip{Step: StepEmail, Reason: SkipNoCurrentPassword}) {
		t.Fatalf("expected email skip, got %+v", out.Skipped)
	}
	ops := f.provider.Ops()
	if countOp(ops, identity.OpReauthenticate) != 0 || countOp(ops, identity.OpUpdateEmail) != 0 {
		t.Fatalf("expected no gated calls, got %v", ops)
	}
	acc, _ := f.provider.Account(testUID)
	if acc.Email != testEmail {
		t.Fatalf("email must be unchanged, got %q", acc.Email)
	}
}

func TestSubmitEmailWithoutPasswordRequirePolicy(t *testing.T) {
	f := newFixture(t, WithEmailPolicy(EmailPolicyRequire))
	req := baseRequest()
	req.Email = "other@example.com"

	out := submit(t, f, req)

	if !errors.Is(out.Err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", out.Err)
	}
	if len(f.provider.Calls()) != 0 {
		t.Fatalf("expected no provider calls, got %v", f.provider.Ops())
	}
}

func TestSubmitWrongPasswordKeepsEarlierSteps(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.DisplayName = "Alice Cooper"
	req.Email = "new@example.com"
	req.OldPassword = "wrong"
	req.NewPassword = "new-secret"
	req.NewPasswordConfirm = "new-secret"

	out := submit(t, f, req)

	if out.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, ErrAuth) {
		t.Fatalf("expected auth error, got %v", out.Err)
	}
	if out.Message != "current password is incorrect" {
		t.Fatalf("unexpected message %q", out.Message)
	}
	want := []string{identity.OpUpdateDisplayName, identity.OpReauthenticate}
	if got := f.provider.Ops(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !slices.Equal(out.Applied, []StepKind{StepDisplayName}) {
		t.Fatalf("unexpected applied steps %v", out.Applied)
	}
	if out.Profile != nil {
		t.Fatal("failure must not report a profile")
	}
	if f.sessions.Refreshes() != 1 {
		t.Fatal("applied steps must still refresh the session")
	}
	snap, _ := f.sessions.Snapshot(context.Background(), testUID)
	if snap.DisplayName != "Alice Cooper" {
		t.Fatalf("expected refreshed display name, got %q", snap.DisplayName)
	}
}

func TestSubmitUploadFailureStopsRun(t *testing.T) {
	f := newFixture(t)
	f.uploader.FailWith(storage.ErrRejected)
	req := baseRequest()
	req.DisplayName = "Bob"
	req.Avatar = AvatarChange{Action: AvatarSet, Image: solidPNG(t, 16, 16, color.Black)}

	out := submit(t, f, req)

	if !errors.Is(out.Err, ErrUpload) || !errors.Is(out.Err, storage.ErrRejected) {
		t.Fatalf("expected upload error, got %v", out.Err)
	}
	if out.Message != "avatar upload failed" {
		t.Fatalf("unexpected message %q", out.Message)
	}
	if len(f.provider.Calls()) != 0 {
		t.Fatalf("expected no provider mutations, got %v", f.provider.Ops())
	}
	if f.sessions.Refreshes() != 0 {
		t.Fatal("nothing applied, no refresh expected")
	}
}

func TestSubmitImageFailureHappensBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Avatar = AvatarChange{Action: AvatarSet, Image: []byte("definitely not an image")}

	out := submit(t, f, req)

	if !errors.Is(out.Err, ErrImage) || out.Err.Step != StepAvatar {
		t.Fatalf("expected image error on avatar step, got %+v", out.Err)
	}
	if len(f.provider.Calls()) != 0 || len(f.uploader.Uploads()) != 0 {
		t.Fatal("expected no network calls")
	}
}

func TestSubmitEmailConflictReportsProviderError(t *testing.T) {
	f := newFixture(t)
	f.provider.Put(identity.Account{UID: "someone-else", Email: "taken@example.com"}, "pw")
	req := baseRequest()
	req.Email = "taken@example.com"
	req.OldPassword = testPassword

	out := submit(t, f, req)

	if !errors.Is(out.Err, ErrProvider) || out.Err.Step != StepEmail {
		t.Fatalf("expected provider error on email, got %+v", out.Err)
	}
	if identity.CodeOf(out.Err) != identity.CodeEmailAlreadyExists {
		t.Fatalf("expected email_already_exists cause, got %v", out.Err)
	}
	if out.Message != "email address is already in use by another account" {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestSubmitRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	release, ok := f.svc.guard.acquire(testUID)
	if !ok {
		t.Fatal("expected guard to be free")
	}

	_, err := f.svc.Submit(context.Background(), testUID, baseRequest())
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	release()
	if _, err := f.svc.Submit(context.Background(), testUID, baseRequest()); err != nil {
		t.Fatalf("expected run after release, got %v", err)
	}
}

type stubLocker struct {
	held     bool
	err      error
	unlocked int
}

func (l *stubLocker) TryLock(context.Context, string) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	return func() { l.unlocked++ }, true, nil
}

func TestSubmitUsesSharedRunLocker(t *testing.T) {
	locker := &stubLocker{}
	f := newFixture(t, WithRunLocker(locker))

	submit(t, f, baseRequest())
	if locker.unlocked != 1 {
		t.Fatalf("expected shared lock released once, got %d", locker.unlocked)
	}

	locker.held = true
	if _, err := f.svc.Submit(context.Background(), testUID, baseRequest()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress while another instance holds the lock, got %v", err)
	}

	locker.held = false
	locker.err = errors.New("redis down")
	_, err := f.svc.Submit(context.Background(), testUID, baseRequest())
	if err == nil || errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected lock infrastructure error, got %v", err)
	}
	if len(f.provider.Calls()) != 1 {
		t.Fatalf("expected only the first run to reach the provider, got %v", f.provider.Calls())
	}
}

func TestSubmitCanceledBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.svc.Submit(ctx, testUID, baseRequest())
	if !errors.Is(err, context.Canceled) || out != nil {
		t.Fatalf("expected context.Canceled without outcome, got %v %+v", err, out)
	}
	if len(f.provider.Calls()) != 0 {
		t.Fatalf("expected no calls, got %v", f.provider.Ops())
	}
}

// cancelingProvider cancels the run right after the display name is applied.
type cancelingProvider struct {
	*identity.MockProvider
	cancel context.CancelFunc
}

func (p *cancelingProvider) UpdateDisplayName(ctx context.Context, uid, name string) error {
	err := p.MockProvider.UpdateDisplayName(ctx, uid, name)
	p.cancel()
	return err
}

func TestSubmitCanceledMidRunRefreshesAppliedSteps(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider := &cancelingProvider{MockProvider: f.provider, cancel: cancel}
	svc := NewOrchestrator(provider, f.uploader, imaging.NewProcessor(imaging.Options{}), f.sessions)

	req := baseRequest()
	req.DisplayName = "Alicia"
	req.OldPassword = testPassword
	req.NewPassword = "new-secret"
	req.NewPasswordConfirm = "new-secret"

	out, err := svc.Submit(ctx, testUID, req)
	if !errors.Is(err, context.Canceled) || out != nil {
		t.Fatalf("expected cancellation without outcome, got %v %+v", err, out)
	}
	if got := f.provider.Ops(); !slices.Equal(got, []string{identity.OpUpdateDisplayName}) {
		t.Fatalf("expected no calls after cancel, got %v", got)
	}
	if f.sessions.Refreshes() != 1 {
		t.Fatal("expected refresh for the applied display name")
	}
	snap, _ := f.sessions.Snapshot(context.Background(), testUID)
	if snap.DisplayName != "Alicia" {
		t.Fatalf("expected refreshed snapshot, got %q", snap.DisplayName)
	}
}

func TestSubmitSnapshotFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("firestore down")
	f.sessions.FailWith(boom)

	_, err := f.svc.Submit(context.Background(), testUID, baseRequest())
	if !errors.Is(err, boom) {
		t.Fatalf("expected snapshot error, got %v", err)
	}
}

func TestGetReturnsCachedProfile(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Get(context.Background(), testUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UserID != testUID || p.Email != testEmail {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestSubmitRefreshFailureInvalidatesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.provider.FailOn(identity.OpGetAccount, identity.NewProviderError(identity.OpGetAccount, identity.CodeUnavailable, nil))
	req := baseRequest()
	req.DisplayName = "Bobby"

	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	if out.Profile != nil {
		t.Fatalf("expected no refreshed profile, got %+v", out.Profile)
	}

	f.provider.FailOn(identity.OpGetAccount, nil)
	snap, err := f.sessions.Snapshot(context.Background(), testUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.DisplayName != "Bobby" {
		t.Fatalf("expected snapshot reloaded after failed refresh, got %q", snap.DisplayName)
	}
}

func TestSubmitReauthenticatesWithProviderEmail(t *testing.T) {
	f := newFixture(t)
	f.sessions.Put(session.Snapshot{UserID: testUID, DisplayName: "Alice", Email: "old@example.com"})
	req := baseRequest()
	req.OldPassword = testPassword
	req.NewPassword = "new-secret"
	req.NewPasswordConfirm = "new-secret"

	out := submit(t, f, req)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	if f.provider.Password(testUID) != "new-secret" {
		t.Fatal("password not changed")
	}
	for _, c := range f.provider.Calls() {
		if c.Op == identity.OpReauthenticate && c.Value != testEmail {
			t.Fatalf("expected re-authentication as %q, got %q", testEmail, c.Value)
		}
	}
}

func TestSubmitShortPasswordFailsBeforeSnapshotRead(t *testing.T) {
	f := newFixture(t)
	f.sessions.FailWith(errors.New("session store down"))
	req := baseRequest()
	req.OldPassword = testPassword
	req.NewPassword = "abc"
	req.NewPasswordConfirm = "abc"

	out := submit(t, f, req)

	if out.Success || !errors.Is(out.Err, ErrValidation) {
		t.Fatalf("expected validation failure, got success=%v err=%v", out.Success, out.Err)
	}
	if out.Message != "new password must be at least 6 characters" {
		t.Fatalf("unexpected message %q", out.Message)
	}
	if f.provider.Reads() != 0 || len(f.provider.Calls()) != 0 {
		t.Fatalf("expected no provider traffic, got calls=%v reads=%d", f.provider.Ops(), f.provider.Reads())
	}
}
