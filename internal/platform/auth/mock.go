package auth

import (
	"context"
)

// MockVerifier provides fake token verification for tests. Tokens maps a
// bearer token to its user; any other token resolves to User, or fails with
// ErrInvalidToken when User is nil. Error, when set, fails every call.
type MockVerifier struct {
	User   *User
	Tokens map[string]*User
	Error  error
}

// Verify resolves token to a configured user.
func (m *MockVerifier) Verify(_ context.Context, token string) (*User, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	if u, ok := m.Tokens[token]; ok {
		return u, nil
	}
	if m.User == nil {
		return nil, ErrInvalidToken
	}
	return m.User, nil
}

// TestUser returns a standard test user.
func TestUser() *User {
	return &User{
		UID:           "test-user-123",
		Email:         "test@example.com",
		EmailVerified: true,
		Name:          "Test User",
	}
}

// Compile-time interface check
var _ Verifier = (*MockVerifier)(nil)
