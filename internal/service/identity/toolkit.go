package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	applog "github.com/janisto/account-settings/internal/platform/logging"
)

const (
	defaultToolkitURL = "https://identitytoolkit.googleapis.com"
	signInPath        = "/v1/accounts:signInWithPassword"
)

// ToolkitClient signs users in with email and password through the
// Identity Toolkit REST API. The Admin SDK cannot verify passwords.
type ToolkitClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// ToolkitOption configures a ToolkitClient.
type ToolkitOption func(*ToolkitClient)

// WithToolkitBaseURL sets a custom base URL (useful for testing).
func WithToolkitBaseURL(u string) ToolkitOption {
	return func(c *ToolkitClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAuthEmulator routes requests to the Firebase Auth emulator at host:port.
func WithAuthEmulator(host string) ToolkitOption {
	return func(c *ToolkitClient) {
		if host != "" {
			c.baseURL = "http://" + host + "/identitytoolkit.googleapis.com"
		}
	}
}

// NewToolkitClient creates a client authenticating with the project's Web API key.
func NewToolkitClient(httpClient *http.Client, apiKey string, opts ...ToolkitOption) *ToolkitClient {
	c := &ToolkitClient{
		httpClient: httpClient,
		baseURL:    defaultToolkitURL,
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

type toolkitErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword verifies the credential and returns the account's uid.
func (c *ToolkitClient) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return "", fmt.Errorf("encoding sign-in request: %w", err)
	}

	u := c.baseURL + signInPath + "?" + url.Values{"key": {c.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewProviderError(OpReauthenticate, CodeUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", c.decodeError(ctx, resp)
	}

	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewProviderError(OpReauthenticate, CodeUnavailable, fmt.Errorf("decoding sign-in response: %w", err))
	}
	if out.LocalID == "" {
		return "", NewProviderError(OpReauthenticate, CodeUnavailable, fmt.Errorf("sign-in response without localId"))
	}
	return out.LocalID, nil
}

func (c *ToolkitClient) decodeError(ctx context.Context, resp *http.Response) error {
	var body toolkitErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	reason := toolkitReason(body.Error.Message)

	code := codeForToolkitReason(reason)
	if code == CodeRejected && resp.StatusCode >= http.StatusInternalServerError {
		code = CodeUnavailable
	}
	applog.LogWarn(ctx, "password sign-in rejected",
		zap.Int("status", resp.StatusCode),
		zap.String("reason", reason),
		zap.String("code", string(code)),
	)
	return NewProviderError(OpReauthenticate, code, fmt.Errorf("identity toolkit: status %d: %s", resp.StatusCode, reason))
}

// toolkitReason strips the human readable suffix from messages like
// "TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account has been temporarily disabled".
func toolkitReason(msg string) string {
	reason, _, _ := strings.Cut(msg, " ")
	return strings.TrimSpace(reason)
}

func codeForToolkitReason(reason string) Code {
	switch reason {
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "EMAIL_NOT_FOUND", "INVALID_EMAIL", "MISSING_PASSWORD":
		return CodeInvalidCredential
	case "USER_DISABLED":
		return CodeUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return CodeTooManyAttempts
	case "WEAK_PASSWORD":
		return CodeWeakPassword
	default:
		return CodeRejected
	}
}
