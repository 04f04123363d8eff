// Package session keeps the caller's cached view of their account.
package session

import (
	"context"
	"time"

	"github.com/janisto/account-settings/internal/service/identity"
)

// Snapshot is the cached account state seen by the signed-in user.
type Snapshot struct {
	UserID        string
	DisplayName   string
	Email         string
	EmailVerified bool
	AvatarURL     string
	Version       int64
	RefreshedAt   time.Time
}

// AccountReader loads the authoritative account record.
type AccountReader interface {
	GetAccount(ctx context.Context, uid string) (*identity.Account, error)
}

// Store serves snapshots and reloads them from the identity provider.
type Store interface {
	// Snapshot returns the cached state, loading it on first use.
	Snapshot(ctx context.Context, userID string) (*Snapshot, error)
	// Refresh reloads the account from the provider and replaces the cached state.
	Refresh(ctx context.Context, userID string) (*Snapshot, error)
	// Invalidate drops the cached state so the next Snapshot reloads it.
	Invalidate(ctx context.Context, userID string) error
}

func snapshotFromAccount(acc *identity.Account, version int64, now time.Time) *Snapshot {
	return &Snapshot{
		UserID:        acc.UID,
		DisplayName:   acc.DisplayName,
		Email:         acc.Email,
		EmailVerified: acc.EmailVerified,
		AvatarURL:     acc.PhotoURL,
		Version:       version,
		RefreshedAt:   now,
	}
}
