// Package config provides configuration management for Cogito.
// It loads settings from environment variables with the COGITO_ prefix
// and provides sensible defaults for all configuration options.
//
// Seed data (core research topics, initial skills and their ceilings) comes
// from an optional YAML file pointed at by COGITO_SEED_FILE.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Cogito agent.
type Config struct {
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Collab    CollabConfig
	Skills    SkillsConfig
	Awareness AwarenessConfig
	Memory    MemoryConfig
	Web       WebConfig
	Seed      SeedConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory for SQLite (default: ./data)
	PostgresDSN   string // PostgreSQL connection string when engine=postgres
}

// SchedulerConfig contains learning cycle cadence and trigger settings.
type SchedulerConfig struct {
	CycleInterval     time.Duration // Pause between cycles in RunForever (default: 5m)
	VideoEveryN       int           // Video discovery fires when cycle_id % N == 0 (default: 3)
	MaintenanceEveryN int           // Importance/skill decay pass cadence (default: 6)
	MaxQueriesPerCyc  int           // Research queries issued per cycle (default: 3)
}

// CollabConfig contains external collaborator settings.
type CollabConfig struct {
	SearchTimeout   time.Duration // Per research query (default: 15s)
	DiscoverTimeout time.Duration // Per video discovery call (default: 20s)
	AnalyzeTimeout  time.Duration // Per vision analysis call (default: 30s)
	SearchURL       string        // Research endpoint; fake collaborator when empty
	SearchRate      float64       // Sustained research requests per second (default: 0.5)
}

// SkillsConfig contains skill scoring parameters.
type SkillsConfig struct {
	Ceiling            float64 // Maximum score per skill (default: 1.0)
	DecayRate          float64 // Periodic score decay rate (default: 0.01)
	SatisfiedThreshold float64 // Goal satisfied when score crosses this (default: 0.8)
}

// AwarenessConfig contains consciousness metric parameters.
type AwarenessConfig struct {
	LevelEpsilon float64 // Minimum level change that appends history (default: 0.005)
}

// MemoryConfig contains memory maintenance parameters.
type MemoryConfig struct {
	ImportanceDecayAge    time.Duration // Entries older than this decay (default: 168h)
	ImportanceDecayFactor float64       // Multiplier applied per pass (default: 0.9)
}

// WebConfig contains the status API configuration.
type WebConfig struct {
	Enabled      bool   // Serve the status API (default: true)
	Port         int    // Server port (default: 6464)
	Host         string // Server host (default: 127.0.0.1)
	APIToken     string // Bearer token required in production mode
	SecurityMode string // development or production (default: development)
}

// SeedConfig supplies starting topics and skills. Loaded from YAML when
// COGITO_SEED_FILE is set; otherwise built-in defaults apply.
type SeedConfig struct {
	// CoreTopics are fallback research topics used when no active goal
	// supplies one.
	CoreTopics []string `yaml:"core_topics"`

	// Skills maps initial skill names to their starting scores.
	Skills map[string]float64 `yaml:"skills"`

	// InitialGoals maps skill names to goal descriptions proposed at startup.
	InitialGoals map[string]string `yaml:"initial_goals"`
}

// LoadConfig loads configuration from environment variables with sensible
// defaults, then overlays the seed file if one is configured.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("COGITO_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("COGITO_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("COGITO_POSTGRES_DSN", ""),
		},
		Scheduler: SchedulerConfig{
			CycleInterval:     getEnvDuration("COGITO_CYCLE_INTERVAL", 5*time.Minute),
			VideoEveryN:       getEnvInt("COGITO_VIDEO_EVERY_N", 3),
			MaintenanceEveryN: getEnvInt("COGITO_MAINTENANCE_EVERY_N", 6),
			MaxQueriesPerCyc:  getEnvInt("COGITO_MAX_QUERIES_PER_CYCLE", 3),
		},
		Collab: CollabConfig{
			SearchTimeout:   getEnvDuration("COGITO_SEARCH_TIMEOUT", 15*time.Second),
			DiscoverTimeout: getEnvDuration("COGITO_DISCOVER_TIMEOUT", 20*time.Second),
			AnalyzeTimeout:  getEnvDuration("COGITO_ANALYZE_TIMEOUT", 30*time.Second),
			SearchURL:       getEnv("COGITO_SEARCH_URL", ""),
			SearchRate:      getEnvFloat("COGITO_SEARCH_RATE", 0.5),
		},
		Skills: SkillsConfig{
			Ceiling:            getEnvFloat("COGITO_SKILL_CEILING", 1.0),
			DecayRate:          getEnvFloat("COGITO_SKILL_DECAY_RATE", 0.01),
			SatisfiedThreshold: getEnvFloat("COGITO_GOAL_SATISFIED_THRESHOLD", 0.8),
		},
		Awareness: AwarenessConfig{
			LevelEpsilon: getEnvFloat("COGITO_LEVEL_EPSILON", 0.005),
		},
		Memory: MemoryConfig{
			ImportanceDecayAge:    getEnvDuration("COGITO_IMPORTANCE_DECAY_AGE", 168*time.Hour),
			ImportanceDecayFactor: getEnvFloat("COGITO_IMPORTANCE_DECAY_FACTOR", 0.9),
		},
		Web: WebConfig{
			Enabled:      getEnvBool("COGITO_WEB_ENABLED", true),
			Port:         getEnvInt("COGITO_PORT", 6464),
			Host:         getEnv("COGITO_HOST", "127.0.0.1"),
			APIToken:     getEnv("COGITO_API_TOKEN", ""),
			SecurityMode: getEnv("COGITO_SECURITY_MODE", "development"),
		},
		Seed: defaultSeed(),
	}

	if path := os.Getenv("COGITO_SEED_FILE"); path != "" {
		seed, err := LoadSeedFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to load seed file: %w", err)
		}
		cfg.Seed = mergeSeed(cfg.Seed, seed)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that bad env values could break.
func (c *Config) Validate() error {
	if c.Scheduler.VideoEveryN <= 0 {
		return fmt.Errorf("config: COGITO_VIDEO_EVERY_N must be positive, got %d", c.Scheduler.VideoEveryN)
	}
	if c.Scheduler.MaintenanceEveryN <= 0 {
		return fmt.Errorf("config: COGITO_MAINTENANCE_EVERY_N must be positive, got %d", c.Scheduler.MaintenanceEveryN)
	}
	if c.Skills.Ceiling <= 0 {
		return fmt.Errorf("config: COGITO_SKILL_CEILING must be positive, got %f", c.Skills.Ceiling)
	}
	if c.Skills.DecayRate < 0 || c.Skills.DecayRate >= 1 {
		return fmt.Errorf("config: COGITO_SKILL_DECAY_RATE must be in [0, 1), got %f", c.Skills.DecayRate)
	}
	if c.Skills.SatisfiedThreshold <= 0 || c.Skills.SatisfiedThreshold > c.Skills.Ceiling {
		return fmt.Errorf("config: COGITO_GOAL_SATISFIED_THRESHOLD must be in (0, ceiling], got %f", c.Skills.SatisfiedThreshold)
	}
	if c.Memory.ImportanceDecayFactor < 0 || c.Memory.ImportanceDecayFactor > 1 {
		return fmt.Errorf("config: COGITO_IMPORTANCE_DECAY_FACTOR must be in [0, 1], got %f", c.Memory.ImportanceDecayFactor)
	}
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: COGITO_POSTGRES_DSN is required when storage engine is postgres")
	}
	return nil
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (SeedConfig, error) {
	var seed SeedConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return seed, nil
}

// defaultSeed returns the built-in seed used when no seed file is configured.
// Topics mirror the agent's core curiosity areas.
func defaultSeed() SeedConfig {
	return SeedConfig{
		CoreTopics: []string{
			"artificial intelligence",
			"machine learning",
			"psychology",
			"philosophy of mind",
			"science",
		},
		Skills: map[string]float64{
			"reasoning":     0.1,
			"comprehension": 0.1,
			"curiosity":     0.2,
		},
		InitialGoals: map[string]string{
			"reasoning":     "strengthen reasoning through broad research",
			"comprehension": "improve comprehension of gathered material",
		},
	}
}

// mergeSeed overlays non-empty fields from the file seed onto the defaults.
func mergeSeed(base, overlay SeedConfig) SeedConfig {
	if len(overlay.CoreTopics) > 0 {
		base.CoreTopics = overlay.CoreTopics
	}
	if len(overlay.Skills) > 0 {
		base.Skills = overlay.Skills
	}
	if len(overlay.InitialGoals) > 0 {
		base.InitialGoals = overlay.InitialGoals
	}
	return base
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go syntax, e.g.
// "5m", "30s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
