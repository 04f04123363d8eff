package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	applog "github.com/janisto/account-settings/internal/platform/logging"
)

const maxResponseBytes = 1 << 20

// HTTPClient uploads objects to an external upload endpoint.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithToken sends the token as a bearer credential.
func WithToken(token string) HTTPOption {
	return func(c *HTTPClient) {
		c.token = token
	}
}

// NewHTTPClient creates an uploader posting to endpoint.
func NewHTTPClient(httpClient *http.Client, endpoint string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		httpClient: httpClient,
		endpoint:   endpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload posts the object and returns the reference from the response.
func (c *HTTPClient) Upload(ctx context.Context, obj Object) (string, error) {
	if err := obj.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(uploadRequest{Type: obj.Kind, Filename: obj.Key, Content: obj.Payload})
	if err != nil {
		return "", fmt.Errorf("encoding upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		applog.LogWarn(ctx, "upload endpoint rejected object",
			zap.Int("status", resp.StatusCode),
			zap.String("object", obj.Name()),
		)
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrRejected, err)
	}
	if out.URL == "" {
		return "", ErrEmptyReference
	}
	return out.URL, nil
}

// Compile-time interface check
var _ Uploader = (*HTTPClient)(nil)
