// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// S3Config holds the object storage settings used when the backend is s3.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// KeycloakConfig holds the identity provider settings.
type KeycloakConfig struct {
	ServerURL         string
	Realm             string
	AdminClientID     string
	AdminClientSecret string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	DefaultRole       string
}

type Config struct {
	Addr        string
	DatabaseURL string
	APIKey      string

	StorageBackend string
	UploadDir      string
	TempDir        string
	S3             S3Config

	MaxUploadBytes   int64
	OTPAttempts      int
	ZipWorkers       int
	AccessRatePerMin int
	PublicBaseURL    string

	Keycloak KeycloakConfig

	LogFormat string
	LogLevel  slog.Level
	Env       string

	Version string
	Commit  string
}

// Load reads the configuration. Variables already present in the process
// environment win over the files; a missing file is not an error. With no
// files given, ".env" in the working directory is tried.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := NewValidator()
	cfg := &Config{
		Addr:        v.String("SFD_ADDR", ":8080"),
		DatabaseURL: v.Required("DATABASE_URL"),
		APIKey:      v.Required("SFD_API_KEY"),

		StorageBackend: strings.ToLower(v.String("SFD_STORAGE_BACKEND", BackendLocal)),
		UploadDir:      v.String("SFD_UPLOAD_DIR", "./uploads"),
		TempDir:        v.String("SFD_TEMP_DIR", ""),

		MaxUploadBytes:   v.PositiveInt64("SFD_MAX_UPLOAD_BYTES", 50*1024*1024),
		OTPAttempts:      v.PositiveInt("SFD_OTP_ATTEMPTS", 5),
		ZipWorkers:       v.PositiveInt("SFD_ZIP_WORKERS", 2),
		AccessRatePerMin: v.PositiveInt("SFD_ACCESS_RATE_PER_MIN", 30),
		PublicBaseURL:    strings.TrimRight(v.String("SFD_PUBLIC_BASE_URL", ""), "/"),

		Keycloak: KeycloakConfig{
			ServerURL:         v.Required("KEYCLOAK_SERVER_URL"),
			Realm:             v.Required("KEYCLOAK_REALM"),
			AdminClientID:     v.Required("KC_ADMIN_CLIENT_ID"),
			AdminClientSecret: v.Required("KC_ADMIN_CLIENT_SECRET"),
			ClientID:          v.Required("KEYCLOAK_CLIENT_ID"),
			ClientSecret:      v.Required("KEYCLOAK_CLIENT_SECRET"),
			Timeout:           v.Duration("SFD_IDP_TIMEOUT", 10*time.Second),
			DefaultRole:       v.String("SFD_IDP_DEFAULT_ROLE", "user"),
		},

		LogFormat: strings.ToLower(v.String("SFD_LOG_FORMAT", "text")),
		Env:       strings.ToLower(v.String("SFD_ENV", "")),

		Version: v.String("SFD_VERSION", "dev"),
		Commit:  v.String("SFD_COMMIT", "unknown"),
	}

	if cfg.DatabaseURL != "" &&
		!strings.HasPrefix(cfg.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
		v.AddError("DATABASE_URL", "must be a valid PostgreSQL connection string")
	}
	v.Addr("SFD_ADDR", cfg.Addr)
	v.URL("SFD_PUBLIC_BASE_URL", cfg.PublicBaseURL)
	v.URL("KEYCLOAK_SERVER_URL", cfg.Keycloak.ServerURL)
	v.MinLength("SFD_API_KEY", cfg.APIKey, 16)

	v.Enum("SFD_STORAGE_BACKEND", cfg.StorageBackend, []string{BackendLocal, BackendS3})
	if cfg.StorageBackend == BackendS3 {
		cfg.S3 = S3Config{
			Endpoint:  v.Required("SFD_S3_ENDPOINT"),
			AccessKey: v.Required("SFD_S3_ACCESS_KEY"),
			SecretKey: v.Required("SFD_S3_SECRET_KEY"),
			Bucket:    v.Required("SFD_BUCKET"),
		}
	}

	v.Enum("SFD_LOG_FORMAT", cfg.LogFormat, []string{"json", "text"})
	v.Enum("SFD_ENV", cfg.Env, []string{"", "development", "staging", "production"})
	level, err := parseLogLevel(v.String("SFD_LOG_LEVEL", "info"))
	if err != nil {
		v.AddError("SFD_LOG_LEVEL", err.Error())
	}
	cfg.LogLevel = level

	if err := v.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// JSONLogs reports whether logs should be emitted as JSON. Production always
// logs JSON.
func (c *Config) JSONLogs() bool {
	return c.LogFormat == "json" || c.Env == "production"
}

// SetupLogger builds the process logger, installs it as the slog default and
// returns it.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.JSONLogs() {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", "backend"),
		slog.String("version", cfg.Version),
	)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("must be one of: debug, info, warn, error (got: %s)", level)
	}
}
