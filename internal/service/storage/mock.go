package storage

import (
	"context"
	"fmt"
	"sync"
)

// MockUploader implements Uploader in memory for unit tests.
type MockUploader struct {
	mu       sync.Mutex
	objects  map[string]string
	uploads  []Object
	err      error
	sequence int
}

// NewMockUploader creates an empty mock uploader.
func NewMockUploader() *MockUploader {
	return &MockUploader{objects: make(map[string]string)}
}

// FailWith makes later uploads return err.
func (m *MockUploader) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockUploader) Upload(ctx context.Context, obj Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, obj)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	if err := obj.Validate(); err != nil {
		return "", err
	}
	m.sequence++
	ref := fmt.Sprintf("mock://%s?v=%d", obj.Name(), m.sequence)
	m.objects[ref] = obj.Payload
	return ref, nil
}

// Resolve returns the payload stored under ref.
func (m *MockUploader) Resolve(ref string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.objects[ref]
	return p, ok
}

// Uploads returns every attempted upload in order.
func (m *MockUploader) Uploads() []Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Object, len(m.uploads))
	copy(out, m.uploads)
	return out
}

// Compile-time interface check
var _ Uploader = (*MockUploader)(nil)
