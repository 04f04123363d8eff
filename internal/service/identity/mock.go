package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Call is a mutation or re-authentication observed by MockProvider.
type Call struct {
	Op    string
	UID   string
	Value string
}

// MockProvider implements Provider in memory for unit tests. Reads are
// counted separately from the calls an update run issues.
type MockProvider struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	passwords map[string]string
	calls     []Call
	reads     int
	errs      map[string]error
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		accounts:  make(map[string]*Account),
		passwords: make(map[string]string),
		errs:      make(map[string]error),
	}
}

// Put seeds an account and its current password.
func (m *MockProvider) Put(acc Account, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := acc
	m.accounts[acc.UID] = &cp
	m.passwords[acc.UID] = password
}

// FailOn makes every later call to op return err.
func (m *MockProvider) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

// Calls returns the recorded mutations and re-authentications in order.
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Ops returns the operation names of Calls.
func (m *MockProvider) Ops() []string {
	calls := m.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Reads returns the number of GetAccount calls.
func (m *MockProvider) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Account returns a copy of the stored account.
func (m *MockProvider) Account(uid string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[uid]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// Password returns the stored password.
func (m *MockProvider) Password(uid string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passwords[uid]
}

func (m *MockProvider) GetAccount(ctx context.Context, uid string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := m.errs[OpGetAccount]; err != nil {
		return nil, err
	}
	acc, ok := m.accounts[uid]
	if !ok {
		return nil, NewProviderError(OpGetAccount, CodeUserNotFound, errors.New("no such user"))
	}
	cp := *acc
	return &cp, nil
}

func (m *MockProvider) UpdateDisplayName(ctx context.Context, uid, name string) error {
	return m.mutate(ctx, OpUpdateDisplayName, uid, name, func(acc *Account) { acc.DisplayName = name })
}

func (m *MockProvider) UpdateAvatar(ctx context.Context, uid, ref string) error {
	return m.mutate(ctx, OpUpdateAvatar, uid, ref, func(acc *Account) { acc.PhotoURL = ref })
}

func (m *MockProvider) UpdateEmail(ctx context.Context, uid, email string) error {
	m.mu.Lock()
	for id, acc := range m.accounts {
		if id != uid && strings.EqualFold(acc.Email, email) {
			m.calls = append(m.calls, Call{Op: OpUpdateEmail, UID: uid, Value: email})
			m.mu.Unlock()
			return NewProviderError(OpUpdateEmail, CodeEmailAlreadyExists, errors.New("email in use"))
		}
	}
	m.mu.Unlock()
	return m.mutate(ctx, OpUpdateEmail, uid, email, func(acc *Account) {
		acc.Email = email
		acc.EmailVerified = false
	})
}

func (m *MockProvider) UpdatePassword(ctx context.Context, uid, password string) error {
	return m.mutate(ctx, OpUpdatePassword, uid, "", func(*Account) { m.passwords[uid] = password })
}

func (m *MockProvider) Reauthenticate(ctx context.Context, uid, identifier, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpReauthenticate, UID: uid, Value: identifier})
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.errs[OpReauthenticate]; err != nil {
		return err
	}
	acc, ok := m.accounts[uid]
	if !ok || !strings.EqualFold(acc.Email, identifier) || m.passwords[uid] != secret {
		return NewProviderError(OpReauthenticate, CodeInvalidCredential, errors.New("INVALID_LOGIN_CREDENTIALS"))
	}
	return nil
}

func (m *MockProvider) mutate(ctx context.Context, op, uid, value string, apply func(*Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, UID: uid, Value: value})
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.errs[op]; err != nil {
		return err
	}
	acc, ok := m.accounts[uid]
	if !ok {
		return NewProviderError(op, CodeUserNotFound, errors.New("no such user"))
	}
	apply(acc)
	return nil
}

// Compile-time interface check
var _ Provider = (*MockProvider)(nil)
