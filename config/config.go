package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Facility   FacilityConfig   `yaml:"facility"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Cloud      CloudConfig      `yaml:"cloud"`
	Barrier    BarrierConfig    `yaml:"barrier"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Policy     PolicyConfig     `yaml:"policy"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// FacilityConfig identifies this parking facility towards the cloud service.
type FacilityConfig struct {
	ID          string  `yaml:"id"`
	MaxCapacity int     `yaml:"max_capacity"`
	Latitude    float64 `yaml:"latitude"`
	Longitude   float64 `yaml:"longitude"`
}

// ServerConfig holds the diagnostics API configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the session ledger database configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// NATSConfig holds the edge message bus configuration.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// CloudConfig holds the billing/occupancy service configuration.
type CloudConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// BarrierConfig holds barrier actuation configuration.
type BarrierConfig struct {
	TimeoutSeconds     int           `yaml:"timeout_seconds"`
	Timeout            time.Duration `yaml:"-"`
	SimulateWhenAbsent *bool         `yaml:"simulate_when_absent"`
	ActuatorDisabled   bool          `yaml:"actuator_disabled"`
}

// RecognizerConfig tunes which recognition events are accepted.
type RecognizerConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
}

// PolicyConfig holds the availability-over-consistency policy switches.
// Both default to true; set them to false explicitly to fail closed.
type PolicyConfig struct {
	FailOpenExit *bool `yaml:"fail_open_exit"`
}

// PushConfig holds the VAPID keys for operator alert notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig sizes the alert notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Facility.ID == "" {
		return nil, fmt.Errorf("facility.id must be set")
	}
	if cfg.Facility.MaxCapacity <= 0 {
		return nil, fmt.Errorf("facility.max_capacity must be positive, got %d", cfg.Facility.MaxCapacity)
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "parking.db"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}

	if cfg.Cloud.TimeoutSeconds <= 0 {
		cfg.Cloud.TimeoutSeconds = 5
	}
	cfg.Cloud.Timeout = time.Duration(cfg.Cloud.TimeoutSeconds) * time.Second

	if cfg.Barrier.TimeoutSeconds <= 0 {
		cfg.Barrier.TimeoutSeconds = 10
	}
	cfg.Barrier.Timeout = time.Duration(cfg.Barrier.TimeoutSeconds) * time.Second

	// An edge facility keeps traffic moving when collaborators are absent.
	// Opting out of the fail-open behavior requires an explicit false.
	if cfg.Barrier.SimulateWhenAbsent == nil {
		cfg.Barrier.SimulateWhenAbsent = boolPtr(true)
	}
	if cfg.Policy.FailOpenExit == nil {
		cfg.Policy.FailOpenExit = boolPtr(true)
	}

	if cfg.Recognizer.MinConfidence <= 0 {
		cfg.Recognizer.MinConfidence = 0.25
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}

func boolPtr(b bool) *bool {
	return &b
}
