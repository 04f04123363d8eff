// Package testutil connects integration tests to the Firebase emulators and a local Redis.
// Tests that need an emulator skip when it is not listening.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

const (
	AuthEmulatorHost      = "127.0.0.1:7110"
	FirestoreEmulatorHost = "127.0.0.1:7130"
	ProjectID             = "demo-test-project"
	FakeAPIKey            = "fake-api-key" //nolint:gosec // Test-only fake key for emulator
)

// Emulator names a local Firebase emulator and the env var that points SDKs at it.
type Emulator struct {
	Name   string
	Host   string
	EnvVar string
}

var (
	Auth      = Emulator{Name: "Auth", Host: AuthEmulatorHost, EnvVar: "FIREBASE_AUTH_EMULATOR_HOST"}
	Firestore = Emulator{Name: "Firestore", Host: FirestoreEmulatorHost, EnvVar: "FIRESTORE_EMULATOR_HOST"}
	// Redis is a local server rather than a Firebase emulator.
	Redis = Emulator{Name: "Redis", Host: "127.0.0.1:6379", EnvVar: "REDIS_ADDR"}
)

// Available reports whether the emulator accepts TCP connections.
func (e Emulator) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", e.Host)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Require skips the test unless every emulator is running, then points the
// SDKs at them for the rest of the test.
func Require(t *testing.T, emulators ...Emulator) {
	t.Helper()
	for _, e := range emulators {
		if !e.Available() {
			t.Skipf("%s emulator not available", e.Name)
		}
	}
	for _, e := range emulators {
		t.Setenv(e.EnvVar, e.Host)
	}
}

// AuthClient returns an Admin SDK auth client bound to an emptied Auth
// emulator. Accounts are removed again when the test ends.
func AuthClient(t *testing.T) *auth.Client {
	t.Helper()
	Require(t, Auth)
	ClearAccounts(t)
	t.Cleanup(func() { ClearAccounts(t) })

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: ProjectID})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		t.Fatalf("failed to create auth client: %v", err)
	}
	return client
}

// FirestoreClient returns a client bound to an emptied Firestore emulator.
// The database is cleared and the client closed when the test ends.
func FirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()
	Require(t, Firestore)
	ClearFirestore(t)

	client, err := firestore.NewClient(context.Background(), ProjectID)
	if err != nil {
		t.Fatalf("failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() {
		ClearFirestore(t)
		_ = client.Close()
	})
	return client
}

// ClearAccounts removes all users from the Auth emulator.
func ClearAccounts(t *testing.T) {
	t.Helper()
	deleteAll(t, fmt.Sprintf("http://%s/emulator/v1/projects/%s/accounts", AuthEmulatorHost, ProjectID))
}

// ClearFirestore removes all documents from the Firestore emulator.
func ClearFirestore(t *testing.T) {
	t.Helper()
	deleteAll(t, fmt.Sprintf("http://%s/emulator/v1/projects/%s/databases/(default)/documents",
		FirestoreEmulatorHost, ProjectID))
}

func deleteAll(t *testing.T, url string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("emulator reset failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		t.Fatalf("emulator reset returned %d", resp.StatusCode)
	}
}

// SignUpResponse from the emulator.
type SignUpResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
}

// CreateTestUser creates a password account in the Auth emulator.
func CreateTestUser(t *testing.T, email, password string) *SignUpResponse {
	t.Helper()
	url := fmt.Sprintf("http://%s/identitytoolkit.googleapis.com/v1/accounts:signUp?key=%s",
		AuthEmulatorHost, FakeAPIKey)

	body, _ := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign up for %s returned %d", email, resp.StatusCode)
	}

	var result SignUpResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return &result
}
