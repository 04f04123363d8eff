package storage

import (
	"context"
	"fmt"
	"net/url"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	applog "github.com/janisto/account-settings/internal/platform/logging"
)

const publicBaseURL = "https://storage.googleapis.com"

// BucketStore writes objects to a Cloud Storage bucket.
type BucketStore struct {
	bucket  *gcs.BucketHandle
	name    string
	baseURL string
}

// NewBucketStore creates an uploader for the named bucket.
func NewBucketStore(bucket *gcs.BucketHandle, name string) *BucketStore {
	return &BucketStore{bucket: bucket, name: name, baseURL: publicBaseURL}
}

// Upload decodes the data URL and writes it to <kind>/<key>. The returned
// reference pins the object generation so each upload yields a distinct URL.
func (s *BucketStore) Upload(ctx context.Context, obj Object) (string, error) {
	if err := obj.Validate(); err != nil {
		return "", err
	}
	contentType, data, err := ParseDataURL(obj.Payload)
	if err != nil {
		return "", err
	}

	w := s.bucket.Object(obj.Name()).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("%w: writing %s: %v", ErrRejected, obj.Name(), err)
	}
	if err := w.Close(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: closing %s: %v", ErrRejected, obj.Name(), err)
	}

	ref := s.reference(obj.Name(), w.Attrs().Generation)
	applog.LogInfo(ctx, "object stored",
		zap.String("bucket", s.name),
		zap.String("object", obj.Name()),
		zap.Int("bytes", len(data)),
	)
	return ref, nil
}

func (s *BucketStore) reference(object string, generation int64) string {
	u := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(s.name), object)
	if generation != 0 {
		u += fmt.Sprintf("?generation=%d", generation)
	}
	return u
}

// Compile-time interface check
var _ Uploader = (*BucketStore)(nil)
