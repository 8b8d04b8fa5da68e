package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Swarm    SwarmConfig    `yaml:"swarm"`
	Journal  JournalConfig  `yaml:"journal"`
	Simulate SimulateConfig `yaml:"simulate"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// SwarmConfig tunes the scheduling loop and declares the agent roster.
type SwarmConfig struct {
	// Tick is the scheduler period as a duration string ("1s", "250ms").
	Tick string `yaml:"tick"`
	// BatchSize bounds assignment attempts per tick. Under sustained
	// load tasks beyond the bound wait; raise it to trade tick latency
	// for queue drain rate.
	BatchSize int `yaml:"batch_size"`
	// Roster replaces the built-in agent roster when non-empty.
	Roster []AgentConfig `yaml:"roster"`
}

// TickInterval parses the tick duration.
func (c SwarmConfig) TickInterval() (time.Duration, error) {
	if c.Tick == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(c.Tick)
	if err != nil {
		return 0, fmt.Errorf("parse swarm.tick: %w", err)
	}
	return d, nil
}

// AgentConfig declares one roster agent.
type AgentConfig struct {
	ID           string       `yaml:"id"`
	Name         string       `yaml:"name"`
	Type         string       `yaml:"type"`
	Capabilities []string     `yaml:"capabilities"`
	Priority     int          `yaml:"priority"`
	Budget       BudgetConfig `yaml:"budget"`
	Dependencies []string     `yaml:"dependencies"`
}

// BudgetConfig is an agent's declared resource quota. Informational
// only; the scheduler never enforces it.
type BudgetConfig struct {
	CPU       float64 `yaml:"cpu"`
	MemoryMB  int     `yaml:"memory_mb"`
	StorageMB int     `yaml:"storage_mb"`
}

// JournalConfig controls the SQLite notification journal.
type JournalConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding journal writes.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open, as a duration string.
	Timeout string `yaml:"timeout"`
	// Interval is the closed-state cycle for clearing failure counts.
	Interval string `yaml:"interval"`
}

// SimulateConfig controls the synthetic task generator.
type SimulateConfig struct {
	Enabled bool `yaml:"enabled"`
	// Rate is submissions per second.
	Rate float64 `yaml:"rate"`
	// Burst is the token-bucket burst size.
	Burst int `yaml:"burst"`
	// Count stops the generator after this many submissions; 0 means
	// run until shutdown.
	Count int `yaml:"count"`
}

// Defaults returns a Config with the built-in TerraBuild roster and
// sensible daemon settings.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Swarm: SwarmConfig{
			Tick:      "1s",
			BatchSize: 10,
			Roster:    defaultRoster(),
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "terraswarm.db",
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     "30s",
				Interval:    "60s",
			},
		},
		Simulate: SimulateConfig{
			Enabled: false,
			Rate:    2,
			Burst:   5,
		},
	}
}

// defaultRoster is the six-agent TerraBuild roster.
func defaultRoster() []AgentConfig {
	return []AgentConfig{
		{
			ID:   "platform-dev",
			Name: "Platform Development Agent",
			Type: "development",
			Capabilities: []string{
				"api_design", "schema_migration", "integration_testing",
			},
			Priority: 8,
			Budget:   BudgetConfig{CPU: 2, MemoryMB: 2048, StorageMB: 4096},
		},
		{
			ID:   "dashboard-design",
			Name: "Dashboard Design Agent",
			Type: "design",
			Capabilities: []string{
				"layout_review", "chart_spec", "accessibility_audit",
			},
			Priority: 5,
			Budget:   BudgetConfig{CPU: 1, MemoryMB: 1024, StorageMB: 512},
		},
		{
			ID:   "regional-comparison",
			Name: "Regional Comparison Agent",
			Type: "data-analysis",
			Capabilities: []string{
				"regional_comparison", "sales_ratio_study", "trend_analysis",
			},
			Priority:     6,
			Budget:       BudgetConfig{CPU: 2, MemoryMB: 4096, StorageMB: 8192},
			Dependencies: []string{"platform-dev"},
		},
		{
			ID:   "cost-analysis",
			Name: "Cost Analysis Agent",
			Type: "cost-analysis",
			Capabilities: []string{
				"cost_approach", "land_valuation", "depreciation_schedule",
			},
			Priority:     9,
			Budget:       BudgetConfig{CPU: 2, MemoryMB: 4096, StorageMB: 2048},
			Dependencies: []string{"platform-dev"},
		},
		{
			ID:   "security-review",
			Name: "Security Review Agent",
			Type: "security",
			Capabilities: []string{
				"access_audit", "dependency_scan",
			},
			Priority: 7,
			Budget:   BudgetConfig{CPU: 1, MemoryMB: 1024, StorageMB: 512},
		},
		{
			ID:   "release-eng",
			Name: "Release Engineering Agent",
			Type: "deployment",
			Capabilities: []string{
				"release_rollout", "migration_deploy",
			},
			Priority:     4,
			Budget:       BudgetConfig{CPU: 1, MemoryMB: 2048, StorageMB: 1024},
			Dependencies: []string{"platform-dev", "security-review"},
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A
// missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps TERRASWARM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERRASWARM_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TERRASWARM_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TERRASWARM_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TERRASWARM_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("TERRASWARM_SWARM_TICK"); v != "" {
		cfg.Swarm.Tick = v
	}
	if v := os.Getenv("TERRASWARM_SWARM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Swarm.BatchSize = n
		}
	}
	if v := os.Getenv("TERRASWARM_JOURNAL_ENABLED"); v == "false" {
		cfg.Journal.Enabled = false
	}
	if v := os.Getenv("TERRASWARM_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("TERRASWARM_SIMULATE_ENABLED"); v == "true" {
		cfg.Simulate.Enabled = true
	}
}

// validAgentTypes mirrors the closed set the orchestrator accepts.
var validAgentTypes = map[string]bool{
	"development":   true,
	"design":        true,
	"data-analysis": true,
	"cost-analysis": true,
	"security":      true,
	"deployment":    true,
}

// Validate checks cfg for structural correctness.
func Validate(cfg *Config) error {
	if _, err := cfg.Swarm.TickInterval(); err != nil {
		return err
	}
	if cfg.Swarm.BatchSize < 0 {
		return fmt.Errorf("swarm.batch_size must not be negative: %d", cfg.Swarm.BatchSize)
	}

	seen := make(map[string]bool, len(cfg.Swarm.Roster))
	for i, agent := range cfg.Swarm.Roster {
		if agent.ID == "" {
			return fmt.Errorf("swarm.roster[%d]: missing id", i)
		}
		if seen[agent.ID] {
			return fmt.Errorf("swarm.roster[%d]: duplicate id %q", i, agent.ID)
		}
		seen[agent.ID] = true
		if !validAgentTypes[agent.Type] {
			return fmt.Errorf("swarm.roster[%d] (%s): unknown agent type %q", i, agent.ID, agent.Type)
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path required when journal is enabled")
	}
	for name, v := range map[string]string{
		"journal.breaker.timeout":  cfg.Journal.Breaker.Timeout,
		"journal.breaker.interval": cfg.Journal.Breaker.Interval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}

	if cfg.Simulate.Enabled {
		if cfg.Simulate.Rate <= 0 {
			return fmt.Errorf("simulate.rate must be positive: %v", cfg.Simulate.Rate)
		}
		if cfg.Simulate.Count < 0 {
			return fmt.Errorf("simulate.count must not be negative: %d", cfg.Simulate.Count)
		}
	}

	return nil
}
