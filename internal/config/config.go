package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the cryptochat server.
type Config struct {
	// Version is the build/deploy version reported on the root endpoint.
	Version string

	// Datastore backend type: "tinydb" (single JSON document) or "sqlite".
	DatastoreType string

	// DBPath is the location of the JSON document used by the tinydb backend.
	DBPath string

	// DBURL is the SQLite DSN used by the sqlite backend.
	DBURL string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly
	// provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables access logging for /health, /ready and
	// /metrics. Disabled by default to suppress probe noise.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// MaxBodySize caps request bodies in bytes.
	MaxBodySize int64

	// DrainTimeout bounds graceful shutdown, in seconds.
	DrainTimeout int
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Version:       "unknown",
		DatastoreType: "tinydb",
		DBPath:        "/tmp/cryptochat_db.json",
		DBURL:         "cryptochat.db",
		Listener: ListenerConfig{
			Port:              8888,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MetricsLabels: "service=cryptochat-server",
		MaxBodySize:   1024 * 1024, // 1 MB; payloads are small encrypted blobs
		DrainTimeout:  30,
	}
}
