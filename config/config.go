package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// IngestConfig configures how raw readings are bucketed into calendar days.
type IngestConfig struct {
	Timezone string `yaml:"timezone"`
}

// SweepConfig configures the periodic due-check sweep.
type SweepConfig struct {
	Enabled               bool          `yaml:"enabled"`
	IntervalSeconds       int           `yaml:"interval_seconds"`
	Interval              time.Duration `yaml:"-"` // Ignored by YAML parser
	MachineTimeoutSeconds int           `yaml:"machine_timeout_seconds"`
	MachineTimeout        time.Duration `yaml:"-"`
}

// MaintenanceConfig holds the schedule-evaluation policy knobs.
// WarnThreshold is an absolute usage margin, not a percentage of the
// interval: intervals vary by orders of magnitude across machine types and
// operators plan parts lead time in calendar terms.
type MaintenanceConfig struct {
	WarnThreshold   float64       `yaml:"warn_threshold"`
	WarnRepeatHours int           `yaml:"warn_repeat_hours"`
	WarnRepeat      time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
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

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}

	if cfg.Sweep.IntervalSeconds <= 0 {
		cfg.Sweep.IntervalSeconds = 300
	}
	cfg.Sweep.Interval = time.Duration(cfg.Sweep.IntervalSeconds) * time.Second
	if cfg.Sweep.MachineTimeoutSeconds <= 0 {
		cfg.Sweep.MachineTimeoutSeconds = 30
	}
	cfg.Sweep.MachineTimeout = time.Duration(cfg.Sweep.MachineTimeoutSeconds) * time.Second

	if cfg.Maintenance.WarnThreshold <= 0 {
		cfg.Maintenance.WarnThreshold = 10
	}
	if cfg.Maintenance.WarnRepeatHours <= 0 {
		cfg.Maintenance.WarnRepeatHours = 24
	}
	cfg.Maintenance.WarnRepeat = time.Duration(cfg.Maintenance.WarnRepeatHours) * time.Hour

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
