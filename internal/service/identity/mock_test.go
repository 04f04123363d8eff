package identity

import (
	"context"
	"testing"
)

func TestMockProviderRecordsCalls(t *testing.T) {
	m := NewMockProvider()
	m.Put(Account{UID: "u1", Email: "a@example.com", DisplayName: "A"}, "old")
	m.Put(Account{UID: "u2", Email: "b@example.com"}, "pw")
	ctx := context.Background()

	if err := m.Reauthenticate(ctx, "u1", "A@example.com", "old"); err != nil {
		t.Fatalf("reauthenticate: %v", err)
	}
	if err := m.UpdatePassword(ctx, "u1", "new"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if err := m.UpdateEmail(ctx, "u1", "b@example.com"); CodeOf(err) != CodeEmailAlreadyExists {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if _, err := m.GetAccount(ctx, "u1"); err != nil {
		t.Fatalf("get account: %v", err)
	}

	want := []string{OpReauthenticate, OpUpdatePassword, OpUpdateEmail}
	got := m.Ops()
	if len(got) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, got)
		}
	}
	if m.Reads() != 1 {
		t.Fatalf("expected 1 read, got %d", m.Reads())
	}
	if m.Password("u1") != "new" {
		t.Fatal("password not updated")
	}
	if err := m.Reauthenticate(ctx, "u1", "a@example.com", "old"); CodeOf(err) != CodeInvalidCredential {
		t.Fatalf("expected invalid credential after change, got %v", err)
	}
}
