package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is built once at startup and handed to each component constructor.
// Nothing else in the codebase reads environment variables directly.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Device gate
	DeviceCookieName  string `env:"DEVICE_COOKIE_NAME" envDefault:"family_device"`
	DeviceCookieValue string `env:"DEVICE_COOKIE_VALUE" envDefault:"authorized"`
	// Either the plain activation key or a salted argon2 digest of it
	// (salt$hash, raw base64). The digest form keeps the key out of the
	// process environment in shared hosting setups.
	DeviceActivationKey     string `env:"DEVICE_ACTIVATION_KEY"`
	DeviceActivationKeyHash string `env:"DEVICE_ACTIVATION_KEY_HASH"`
	DeviceCookieMaxAge      int    `env:"DEVICE_COOKIE_MAX_AGE" envDefault:"31536000"`

	// Mobile device sessions
	DeviceSessionSecret string        `env:"DEVICE_SESSION_SECRET"`
	DeviceSessionTTL    time.Duration `env:"DEVICE_SESSION_TTL" envDefault:"12h"`

	// Parent-elevation rate limiting
	PinRateLimitWindow       time.Duration `env:"PIN_RATE_LIMIT_WINDOW" envDefault:"10m"`
	PinRateLimitBaseBackoff  time.Duration `env:"PIN_RATE_LIMIT_BASE_BACKOFF" envDefault:"1s"`
	PinRateLimitMaxBackoff   time.Duration `env:"PIN_RATE_LIMIT_MAX_BACKOFF" envDefault:"5m"`
	PinRateLimitFreeFailures int           `env:"PIN_RATE_LIMIT_FREE_FAILURES" envDefault:"3"`

	// External identity system
	IdentityBaseURL    string `env:"IDENTITY_BASE_URL"`
	IdentityAppID      string `env:"IDENTITY_APP_ID"`
	IdentityAdminToken string `env:"IDENTITY_ADMIN_TOKEN"`
	FamilyEmail        string `env:"FAMILY_EMAIL"`

	// Shared-device idle demotion
	SharedDeviceIdleTimeout time.Duration `env:"SHARED_DEVICE_IDLE_TIMEOUT" envDefault:"5m"`

	// Optional shared stores
	RedisURL                 string `env:"REDIS_URL"`
	MongoURI                 string `env:"MONGO_URI"`
	MongoDB                  string `env:"MONGO_DB" envDefault:"familyhub"`
	DeviceSessionsCollection string `env:"DEVICE_SESSIONS_COLLECTION" envDefault:"device_sessions"`

	// Object storage (S3-compatible)
	StorageEndpoint    string        `env:"STORAGE_ENDPOINT"`
	StorageRegion      string        `env:"STORAGE_REGION" envDefault:"us-east-1"`
	StorageBucket      string        `env:"STORAGE_BUCKET"`
	StorageAccessKey   string        `env:"STORAGE_ACCESS_KEY"`
	StorageSecretKey   string        `env:"STORAGE_SECRET_KEY"`
	StoragePrefix      string        `env:"STORAGE_PREFIX" envDefault:"attachments/"`
	UploadMaxBytes     int64         `env:"UPLOAD_MAX_BYTES" envDefault:"10485760"`
	UploadContentType  string        `env:"UPLOAD_CONTENT_TYPE_PREFIX" envDefault:"image/"`
	UploadURLTTL       time.Duration `env:"UPLOAD_URL_TTL" envDefault:"10m"`
	DownloadURLTTL     time.Duration `env:"DOWNLOAD_URL_TTL" envDefault:"1h"`
	MaxRequestBodySize int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cfg.PinRateLimitFreeFailures < 0 {
		return nil, fmt.Errorf("PIN_RATE_LIMIT_FREE_FAILURES must not be negative")
	}
	return cfg, nil
}

// ActivationConfigured reports whether device activation can succeed at all.
// Without a key the activation endpoints answer 503 rather than crash.
func (c *Config) ActivationConfigured() bool {
	return c.DeviceActivationKey != "" || c.DeviceActivationKeyHash != ""
}

// IdentityConfigured gates principal minting. Both the app identifier and the
// admin credential must be present.
func (c *Config) IdentityConfigured() bool {
	return c.IdentityAppID != "" && c.IdentityAdminToken != ""
}

// StorageConfigured gates the attachment presigning endpoints.
func (c *Config) StorageConfigured() bool {
	return c.StorageBucket != "" && c.StorageAccessKey != "" && c.StorageSecretKey != ""
}
