package session

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	applog "github.com/janisto/account-settings/internal/platform/logging"
)

// Collection holds one snapshot document per user, keyed by uid.
const Collection = "sessions"

// firestoreSnapshot maps to Firestore document structure.
type firestoreSnapshot struct {
	DisplayName   string    `firestore:"display_name"`
	Email         string    `firestore:"email"`
	EmailVerified bool      `firestore:"email_verified"`
	AvatarURL     string    `firestore:"avatar_url"`
	Version       int64     `firestore:"version"`
	RefreshedAt   time.Time `firestore:"refreshed_at"`
}

// FirestoreStore implements Store with one document per user.
type FirestoreStore struct {
	client   *firestore.Client
	accounts AccountReader
}

// NewFirestoreStore creates a Firestore-backed session store.
func NewFirestoreStore(client *firestore.Client, accounts AccountReader) *FirestoreStore {
	return &FirestoreStore{client: client, accounts: accounts}
}

func (s *FirestoreStore) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	doc, err := s.client.Collection(Collection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return s.Refresh(ctx, userID)
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var fs firestoreSnapshot
	if err := doc.DataTo(&fs); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return toSnapshot(userID, fs), nil
}

// Refresh reads the provider first, then replaces the document in a
// transaction that bumps its version.
func (s *FirestoreStore) Refresh(ctx context.Context, userID string) (*Snapshot, error) {
	acc, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	docRef := s.client.Collection(Collection).Doc(userID)
	var result *Snapshot

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var version int64
		doc, err := tx.Get(docRef)
		switch {
		case err == nil:
			var prev firestoreSnapshot
			if err := doc.DataTo(&prev); err != nil {
				return err
			}
			version = prev.Version
		case status.Code(err) != codes.NotFound:
			return err
		}

		snap := snapshotFromAccount(acc, version+1, time.Now().UTC())
		fs := firestoreSnapshot{
			DisplayName:   snap.DisplayName,
			Email:         snap.Email,
			EmailVerified: snap.EmailVerified,
			AvatarURL:     snap.AvatarURL,
			Version:       snap.Version,
			RefreshedAt:   snap.RefreshedAt,
		}
		if err := tx.Set(docRef, fs); err != nil {
			return err
		}
		result = snap
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing session: %w", err)
	}

	applog.LogInfo(ctx, "session refreshed",
		zap.String("user_id", userID),
		zap.Int64("version", result.Version),
	)
	return result, nil
}

// Invalidate deletes the user's document. Deleting a missing document succeeds.
func (s *FirestoreStore) Invalidate(ctx context.Context, userID string) error {
	if _, err := s.client.Collection(Collection).Doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	applog.LogInfo(ctx, "session invalidated", zap.String("user_id", userID))
	return nil
}

func toSnapshot(userID string, fs firestoreSnapshot) *Snapshot {
	return &Snapshot{
		UserID:        userID,
		DisplayName:   fs.DisplayName,
		Email:         fs.Email,
		EmailVerified: fs.EmailVerified,
		AvatarURL:     fs.AvatarURL,
		Version:       fs.Version,
		RefreshedAt:   fs.RefreshedAt,
	}
}

// Compile-time interface check
var _ Store = (*FirestoreStore)(nil)
