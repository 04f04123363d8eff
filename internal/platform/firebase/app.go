// Package firebase initialises the Firebase Admin SDK clients the service
// depends on and exposes readiness checks for them.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrNoProject is returned when no project id is configured.
var ErrNoProject = errors.New("firebase: project id is required")

// Config holds Firebase configuration.
type Config struct {
	ProjectID                    string
	GoogleApplicationCredentials string // Path to service account JSON (optional)
	// StorageBucket names the avatar bucket. Empty skips bucket setup.
	StorageBucket string
}

// Clients holds initialized Firebase clients. Bucket is nil when no bucket
// was configured.
type Clients struct {
	Auth      *auth.Client
	Firestore *firestore.Client
	Bucket    *gcs.BucketHandle
}

// InitializeClients creates the Firebase app and its Auth, Firestore and
// optional Storage clients. Nothing stays open when it fails.
func InitializeClients(ctx context.Context, cfg Config) (*Clients, error) {
	if cfg.ProjectID == "" {
		return nil, ErrNoProject
	}

	var opts []option.ClientOption
	if cfg.GoogleApplicationCredentials != "" {
		creds, err := os.ReadFile(cfg.GoogleApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("firebase: reading credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: auth: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: firestore: %w", err)
	}
	clients := &Clients{Auth: authClient, Firestore: fsClient}

	if cfg.StorageBucket != "" {
		bucket, err := openBucket(ctx, app, cfg.StorageBucket)
		if err != nil {
			return nil, errors.Join(err, clients.Close())
		}
		clients.Bucket = bucket
	}
	return clients, nil
}

func openBucket(ctx context.Context, app *firebase.App, name string) (*gcs.BucketHandle, error) {
	sc, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: storage: %w", err)
	}
	bucket, err := sc.Bucket(name)
	if err != nil {
		return nil, fmt.Errorf("firebase: bucket %q: %w", name, err)
	}
	return bucket, nil
}

// CheckFirestore reads at most one document from collection.
func (c *Clients) CheckFirestore(collection string) func(context.Context) error {
	return func(ctx context.Context) error {
		it := c.Firestore.Collection(collection).Limit(1).Documents(ctx)
		defer it.Stop()
		if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

// CheckBucket fetches the bucket's metadata.
func (c *Clients) CheckBucket() func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := c.Bucket.Attrs(ctx)
		return err
	}
}

// Close closes the Firestore client.
func (c *Clients) Close() error {
	if c.Firestore != nil {
		return c.Firestore.Close()
	}
	return nil
}
