package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Email policies for an email change submitted without the current password.
const (
	EmailPolicySkip    = "skip"
	EmailPolicyRequire = "require"
)

// Config holds runtime configuration read from the environment.
type Config struct {
	Port                         string `validate:"required,numeric"`
	ProjectID                    string `validate:"required"`
	GoogleApplicationCredentials string
	// APIKey is the Web API key used for password sign-in against Identity Toolkit.
	APIKey           string `validate:"required"`
	AuthEmulatorHost string `validate:"omitempty,hostname_port"`
	StorageBucket    string `validate:"required_without=UploadEndpoint"`
	// UploadEndpoint, when set, sends avatars to an HTTP upload endpoint instead of the bucket.
	UploadEndpoint string `validate:"omitempty,url"`

	AvatarMaxDimension  int `validate:"gte=16,lte=4096"`
	AvatarMaxBytes      int `validate:"gte=1024"`
	AvatarMaxInputBytes int `validate:"gtefield=AvatarMaxBytes"`
	ImageWorkers        int `validate:"gte=1,lte=64"`

	EmailPolicy     string `validate:"oneof=skip require"`
	RequestMaxBytes int64  `validate:"gte=1024"`
	// RedisURL, when set, serialises account runs across instances with a Redis lock.
	RedisURL string `validate:"omitempty,url"`
	// CORSAllowedOrigins lists browser origins allowed to call the API; "*" allows any.
	CORSAllowedOrigins []string `validate:"min=1,dive,required"`
}

// Defaults.
const (
	DefaultPort                = "8080"
	DefaultAvatarMaxDimension  = 512
	DefaultAvatarMaxBytes      = 10 << 20
	DefaultAvatarMaxInputBytes = 20 << 20
	DefaultImageWorkers        = 4
	DefaultRequestMaxBytes     = 32 << 20
)

var validate = validator.New()

// Load reads configuration from the environment, loading the given dotenv
// files first when they exist. Variables already set in the environment win.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	var errs []error
	intVar := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		Port: envString("PORT", DefaultPort),
		ProjectID: firstNonEmpty(
			os.Getenv("FIREBASE_PROJECT_ID"),
			os.Getenv("GOOGLE_CLOUD_PROJECT"),
		),
		GoogleApplicationCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		APIKey:                       os.Getenv("FIREBASE_API_KEY"),
		AuthEmulatorHost:             os.Getenv("FIREBASE_AUTH_EMULATOR_HOST"),
		StorageBucket:                os.Getenv("STORAGE_BUCKET"),
		UploadEndpoint:               os.Getenv("UPLOAD_ENDPOINT"),
		AvatarMaxDimension:           intVar("AVATAR_MAX_DIMENSION", DefaultAvatarMaxDimension),
		AvatarMaxBytes:               intVar("AVATAR_MAX_BYTES", DefaultAvatarMaxBytes),
		AvatarMaxInputBytes:          intVar("AVATAR_MAX_INPUT_BYTES", DefaultAvatarMaxInputBytes),
		ImageWorkers:                 intVar("IMAGE_WORKERS", DefaultImageWorkers),
		EmailPolicy:                  strings.ToLower(envString("ACCOUNT_EMAIL_WITHOUT_PASSWORD", EmailPolicySkip)),
		RequestMaxBytes:              int64(intVar("REQUEST_MAX_BYTES", DefaultRequestMaxBytes)),
		RedisURL:                     os.Getenv("REDIS_URL"),
		CORSAllowedOrigins:           envList("CORS_ALLOWED_ORIGINS", "*"),
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envList splits a comma separated variable, dropping empty entries.
func envList(key, def string) []string {
	var out []string
	for _, part := range strings.Split(envString(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
