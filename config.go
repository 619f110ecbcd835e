package medrex

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Default configuration values.
const (
	DefaultSafetyFactor        = 1.5
	DefaultMaxChunkSize        = 100_000
	DefaultMemoryFraction      = 0.8
	DefaultRetainedCheckpoints = 3
	DefaultRetries             = 3
	DefaultChunkTimeout        = 10 * time.Minute
	DefaultRetryBackoff        = 2 * time.Second
	DefaultWriteBatchSize      = 500
	DefaultReportInterval      = 10000
)

// Action tells the coordinator what to do with a record that carries
// recoverable violations.
type Action string

const (
	// ActionDrop discards the record.
	ActionDrop Action = "drop"

	// ActionQuarantine routes the record to the sink's Quarantiner; sinks
	// without one fall back to dropping.
	ActionQuarantine Action = "quarantine"

	// ActionFlag passes the record through with the quality flag column
	// set. Fields that failed validation keep their raw values.
	ActionFlag Action = "flag"
)

// FlagColumn is the column added to flagged records under [ActionFlag].
const FlagColumn = "quality_flag"

// Config carries deployment-level settings read from the environment.
// Zero values mean "use the default"; apply with [Coordinator.WithConfig],
// [Planner.WithConfig], and [Store.WithConfig].
type Config struct {
	Workers          int           `envconfig:"WORKERS"`
	Retries          int           `envconfig:"RETRIES"`
	ChunkTimeout     time.Duration `envconfig:"CHUNK_TIMEOUT"`
	RetryBackoff     time.Duration `envconfig:"RETRY_BACKOFF"`
	WriteBatchSize   int           `envconfig:"WRITE_BATCH_SIZE"`
	ViolationAction  string        `envconfig:"VIOLATION_ACTION" default:"drop"`
	EscalateCritical bool          `envconfig:"ESCALATE_CRITICAL"`

	SafetyFactor   float64 `envconfig:"SAFETY_FACTOR"`
	MaxChunkSize   int64   `envconfig:"MAX_CHUNK_SIZE"`
	MemoryFraction float64 `envconfig:"MEMORY_FRACTION"`

	Retention           int    `envconfig:"CHECKPOINT_RETENTION"`
	ScanSampleLimit     int    `envconfig:"SCAN_SAMPLE_LIMIT"`
	PreferredDateLayout string `envconfig:"PREFERRED_DATE_LAYOUT"`
}

// LoadConfig reads configuration from the environment with the MEDREX_
// prefix, after loading a .env file when one is present. Environment
// variables already set in the shell win over the file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("medrex", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would misconfigure a job.
func (c *Config) Validate() error {
	switch Action(c.ViolationAction) {
	case ActionDrop, ActionQuarantine, ActionFlag, "":
	default:
		return fmt.Errorf("invalid MEDREX_VIOLATION_ACTION %q", c.ViolationAction)
	}
	if c.MemoryFraction < 0 || c.MemoryFraction > 1 {
		return fmt.Errorf("MEDREX_MEMORY_FRACTION %v outside (0, 1]", c.MemoryFraction)
	}
	if c.SafetyFactor != 0 && c.SafetyFactor < 1 {
		return fmt.Errorf("MEDREX_SAFETY_FACTOR %v below 1", c.SafetyFactor)
	}
	if c.Retries < 0 {
		return fmt.Errorf("MEDREX_RETRIES %d negative", c.Retries)
	}
	if c.Retention < 0 {
		return fmt.Errorf("MEDREX_CHECKPOINT_RETENTION %d negative", c.Retention)
	}
	return nil
}

// WithConfig applies the planner-relevant settings from cfg. Zero values
// leave the current settings untouched.
func (p *Planner) WithConfig(cfg *Config) *Planner {
	if cfg == nil {
		return p
	}
	if cfg.SafetyFactor != 0 {
		p.WithSafetyFactor(cfg.SafetyFactor)
	}
	if cfg.MaxChunkSize != 0 {
		p.WithMaxChunkSize(cfg.MaxChunkSize)
	}
	if cfg.MemoryFraction != 0 {
		p.WithMemoryFraction(cfg.MemoryFraction)
	}
	return p
}

// WithConfig applies the store-relevant settings from cfg. Zero values
// leave the current settings untouched.
func (s *Store) WithConfig(cfg *Config) *Store {
	if cfg == nil {
		return s
	}
	if cfg.Retention != 0 {
		s.WithRetention(cfg.Retention)
	}
	return s
}
