package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers accepted by storage.driver.
const (
	StorageCloudinary = "cloudinary"
	StorageS3         = "s3"
)

// Database drivers accepted by database.driver.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Config holds runtime configuration values for the coursework API.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	CORSOrigins []string

	CorrelationHeader string

	DatabaseDriver string
	DatabaseURL    string
	AutoMigrate    bool

	RedisURL           string
	SubmissionCacheTTL time.Duration

	NATSURL      string
	EventChannel string

	JWTSecret string

	StorageDriver          string
	UploadMaxSizeMB        int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	S3Bucket               string
	S3Region               string
	S3Endpoint             string
	S3AccessKeyID          string
	S3SecretAccessKey      string
	S3PublicBaseURL        string
	S3KeyPrefix            string

	SubmitRateLimit  int
	SubmitRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Coursework API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("http.correlation_header", "X-Correlation-ID")
	v.SetDefault("database.driver", DatabasePostgres)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("submissions.cache_ttl", "2m")
	v.SetDefault("events.channel", "gema:coursework")
	v.SetDefault("storage.driver", StorageCloudinary)
	v.SetDefault("upload.max_size_mb", 25)
	v.SetDefault("cloudinary.folder", "gema/submissions")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.key_prefix", "submissions")
	v.SetDefault("submissions.rate_limit", 10)
	v.SetDefault("submissions.rate_window", "1m")

	cacheTTL, err := parseDuration(v, "submissions.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "submissions.rate_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSOrigins:            splitList(v.GetString("cors.origins")),
		CorrelationHeader:      strings.TrimSpace(v.GetString("http.correlation_header")),
		DatabaseDriver:         strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:            v.GetString("database.url"),
		AutoMigrate:            v.GetBool("database.auto_migrate"),
		RedisURL:               v.GetString("redis.url"),
		SubmissionCacheTTL:     cacheTTL,
		NATSURL:                v.GetString("nats.url"),
		EventChannel:           strings.TrimSpace(v.GetString("events.channel")),
		JWTSecret:              v.GetString("jwt.secret"),
		StorageDriver:          strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		S3Bucket:               v.GetString("s3.bucket"),
		S3Region:               v.GetString("s3.region"),
		S3Endpoint:             v.GetString("s3.endpoint"),
		S3AccessKeyID:          v.GetString("s3.access_key_id"),
		S3SecretAccessKey:      v.GetString("s3.secret_access_key"),
		S3PublicBaseURL:        v.GetString("s3.public_base_url"),
		S3KeyPrefix:            v.GetString("s3.key_prefix"),
		SubmitRateLimit:        v.GetInt("submissions.rate_limit"),
		SubmitRateWindow:       rateWindow,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}

	switch c.DatabaseDriver {
	case DatabasePostgres, DatabaseSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url must be provided")
	}

	switch c.StorageDriver {
	case StorageCloudinary:
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 bucket must be provided when storage driver is s3")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	if c.UploadMaxSizeMB <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}

	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
