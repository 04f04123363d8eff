// Package storage persists processed images and returns durable references to them.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// KindAvatar is the object kind for account avatars.
const KindAvatar = "avatar"

var (
	ErrInvalidObject  = errors.New("invalid storage object")
	ErrInvalidPayload = errors.New("payload is not a base64 data URL")
	ErrRejected       = errors.New("storage rejected the upload")
	ErrEmptyReference = errors.New("storage returned an empty reference")
)

// Object is a payload to persist under kind/key.
type Object struct {
	Kind    string
	Key     string
	Payload string
}

// Uploader stores objects and returns a non-empty reference for each.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// Validate rejects objects whose name could escape its kind prefix.
func (o Object) Validate() error {
	for _, part := range []string{o.Kind, o.Key} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, "/\\") {
			return fmt.Errorf("%w: %q/%q", ErrInvalidObject, o.Kind, o.Key)
		}
	}
	if o.Payload == "" {
		return fmt.Errorf("%w: empty payload", ErrInvalidObject)
	}
	return nil
}

// Name returns the object path.
func (o Object) Name() string {
	return o.Kind + "/" + o.Key
}

// ParseDataURL splits a base64 data URL into its media type and decoded bytes.
func ParseDataURL(payload string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(payload, "data:")
	if !ok {
		return "", nil, ErrInvalidPayload
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidPayload
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || mediaType == "" {
		return "", nil, ErrInvalidPayload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return mediaType, raw, nil
}
