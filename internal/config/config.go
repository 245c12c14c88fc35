package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // PULSE_DATABASE_URL (required)
	HTTPAddr    string // PULSE_HTTP_ADDR (default ":8080")
	NATSURL     string // PULSE_NATS_URL (optional, empty = no bus mirror)

	// Real-time stream settings
	StreamSecret   string        // PULSE_STREAM_SECRET (required; HS256 key for connection tokens)
	ConnectTimeout time.Duration // PULSE_CONNECT_TIMEOUT (default 5s)
	Retention      time.Duration // PULSE_RETENTION_WINDOW (default 5m)
	ReplayLimit    int           // PULSE_REPLAY_LIMIT (default 500; per-scope catch-up cap)

	// Publish facade settings
	PublishWorkers int // PULSE_PUBLISH_WORKERS (default 4)

	// Outbox delivery settings
	DeliveryBaseURL  string        // PULSE_DELIVERY_BASE_URL (required; automation consumer endpoint)
	DeliverySecret   string        // PULSE_DELIVERY_SECRET (required; shared-secret header value)
	RoutesFile       string        // PULSE_ROUTES_FILE (optional TOML per-kind path overrides)
	DispatchInterval time.Duration // PULSE_DISPATCH_INTERVAL (default 5s)
	DispatchTimeout  time.Duration // PULSE_DISPATCH_TIMEOUT (default 10s; per-attempt)
	BackoffUnit      time.Duration // PULSE_BACKOFF_UNIT (default 30s; linear backoff step)
	MaxRetries       int           // PULSE_MAX_RETRIES (default 5)

	// Audit archive settings
	ArchiveInterval   time.Duration // PULSE_ARCHIVE_INTERVAL (default 0 = disabled)
	ArchiveS3Bucket   string        // PULSE_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // PULSE_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // PULSE_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string        // PULSE_ARCHIVE_S3_PREFIX (default "pulse/outbox-audit")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("PULSE_DATABASE_URL"),
		HTTPAddr:          envOrDefault("PULSE_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("PULSE_NATS_URL"),
		StreamSecret:      os.Getenv("PULSE_STREAM_SECRET"),
		DeliveryBaseURL:   os.Getenv("PULSE_DELIVERY_BASE_URL"),
		DeliverySecret:    os.Getenv("PULSE_DELIVERY_SECRET"),
		RoutesFile:        os.Getenv("PULSE_ROUTES_FILE"),
		ArchiveS3Bucket:   os.Getenv("PULSE_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("PULSE_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("PULSE_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("PULSE_ARCHIVE_S3_PREFIX", "pulse/outbox-audit"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PULSE_DATABASE_URL is required")
	}
	if c.StreamSecret == "" {
		return nil, fmt.Errorf("PULSE_STREAM_SECRET is required")
	}
	if c.DeliveryBaseURL == "" {
		return nil, fmt.Errorf("PULSE_DELIVERY_BASE_URL is required")
	}
	if c.DeliverySecret == "" {
		return nil, fmt.Errorf("PULSE_DELIVERY_SECRET is required")
	}

	var err error
	if c.ConnectTimeout, err = envDuration("PULSE_CONNECT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.Retention, err = envDuration("PULSE_RETENTION_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.DispatchInterval, err = envDuration("PULSE_DISPATCH_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if c.DispatchTimeout, err = envDuration("PULSE_DISPATCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if c.BackoffUnit, err = envDuration("PULSE_BACKOFF_UNIT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.ArchiveInterval, err = envDuration("PULSE_ARCHIVE_INTERVAL", 0); err != nil {
		return nil, err
	}
	if c.ReplayLimit, err = envInt("PULSE_REPLAY_LIMIT", 500); err != nil {
		return nil, err
	}
	if c.PublishWorkers, err = envInt("PULSE_PUBLISH_WORKERS", 4); err != nil {
		return nil, err
	}
	if c.MaxRetries, err = envInt("PULSE_MAX_RETRIES", 5); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
