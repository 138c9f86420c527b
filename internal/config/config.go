// Package config loads Mira's YAML configuration plus .env overlays.
// Global config lives at ~/.mira/config.yaml + ~/.mira/.env; project
// overrides live at .mira/config.yaml + .env under the project root.
// Project values win on conflicting keys.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all of Mira's configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Index        IndexConfig        `yaml:"index"`
	Recall       RecallConfig       `yaml:"recall"`
	Ponder       PonderConfig       `yaml:"ponder"`
	Intervention InterventionConfig `yaml:"intervention"`
	Build        BuildConfig        `yaml:"build"`
	Logging      LoggingConfig      `yaml:"logging"`
	Limits       LimitsConfig       `yaml:"limits"`

	// braveAPIKey gates the out-of-core expert web-search capability
	// (spec.md §6); never serialized to YAML.
	braveAPIKey string
}

// BraveAPIKey returns the web-search key, or "" if unset.
func (c *Config) BraveAPIKey() string { return c.braveAPIKey }

// DefaultConfig returns Mira's defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:              "~/.mira/mira.db",
			BusyTimeoutMillis: 5000,
		},
		Embedding: EmbeddingConfig{
			Provider:        "none",
			BackfillBatch:   50,
			MaxRetries:      5,
			BackoffBaseMs:   250,
			BackoffCapMs:    30000,
			QueueCapacity:   256,
		},
		Index: IndexConfig{
			MaxFileSizeBytes:   2 * 1024 * 1024,
			DebounceMillis:     500,
			ParserPoolSize:     8,
			ChunkMaxLines:      120,
		},
		Recall: RecallConfig{
			MaxContextTokens:       4000,
			MaxCodeResults:         10,
			MaxCochangeSuggestions: 5,
			MaxHistoricalFixes:     5,
			SoftBudgetMillis:       2000,
		},
		Ponder: PonderConfig{
			IdleMinutes:       10,
			CooldownHours:     6,
			FrictionMinCalls:  5,
			FrictionMinRate:   0.2,
			HeuristicConfCap:  0.85,
		},
		Intervention: InterventionConfig{
			ConfidenceThreshold: 0.6,
			CooldownMinutes:     30,
			HourlyCap:           3,
			RecencyWindowDays:   7,
			MaxQueueSize:        5,
		},
		Build: BuildConfig{},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
		Limits: LimitsConfig{
			MaxConcurrentParses: 8,
			LLMTimeout:          "30s",
			SubprocessTimeout:   "30s",
			NetFetchTimeout:     "30s",
			NetFetchMaxBytes:    2 * 1024 * 1024,
		},
	}
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Path              string `yaml:"path"`
	BusyTimeoutMillis int    `yaml:"busy_timeout_millis"`
}

// IndexConfig configures the indexer.
type IndexConfig struct {
	MaxFileSizeBytes int `yaml:"max_file_size_bytes"`
	DebounceMillis   int `yaml:"debounce_millis"`
	ParserPoolSize   int `yaml:"parser_pool_size"`
	ChunkMaxLines    int `yaml:"chunk_max_lines"`
}

// RecallConfig configures default recall budgets.
type RecallConfig struct {
	MaxContextTokens       int `yaml:"max_context_tokens"`
	MaxCodeResults         int `yaml:"max_code_results"`
	MaxCochangeSuggestions int `yaml:"max_cochange_suggestions"`
	MaxHistoricalFixes     int `yaml:"max_historical_fixes"`
	SoftBudgetMillis       int `yaml:"soft_budget_millis"`
}

// PonderConfig configures the pattern miner.
type PonderConfig struct {
	IdleMinutes      int     `yaml:"idle_minutes"`
	CooldownHours    int     `yaml:"cooldown_hours"`
	FrictionMinCalls int     `yaml:"friction_min_calls"`
	FrictionMinRate  float64 `yaml:"friction_min_rate"`
	HeuristicConfCap float64 `yaml:"heuristic_confidence_cap"`
}

// InterventionConfig configures the intervention queue.
type InterventionConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	CooldownMinutes     int     `yaml:"cooldown_minutes"`
	HourlyCap           int     `yaml:"hourly_cap"`
	RecencyWindowDays   int     `yaml:"recency_window_days"`
	MaxQueueSize        int     `yaml:"max_queue_size"`
}

// BuildConfig configures the build-error tracker (currently no tunables
// beyond what's hardcoded in the category tables; kept as an extension
// point referenced by SPEC_FULL.md's ambient-stack section).
type BuildConfig struct{}

// LoggingConfig mirrors logging.Config for YAML decoding.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// LimitsConfig configures concurrency and timeout limits per spec.md §5.
type LimitsConfig struct {
	MaxConcurrentParses int    `yaml:"max_concurrent_parses"`
	LLMTimeout          string `yaml:"llm_timeout"`
	SubprocessTimeout   string `yaml:"subprocess_timeout"`
	NetFetchTimeout     string `yaml:"net_fetch_timeout"`
	NetFetchMaxBytes    int64  `yaml:"net_fetch_max_bytes"`
}

func (l LimitsConfig) LLMTimeoutDuration() time.Duration {
	return parseDurationOr(l.LLMTimeout, 30*time.Second)
}

func (l LimitsConfig) SubprocessTimeoutDuration() time.Duration {
	return parseDurationOr(l.SubprocessTimeout, 30*time.Second)
}

func (l LimitsConfig) NetFetchTimeoutDuration() time.Duration {
	return parseDurationOr(l.NetFetchTimeout, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Load reads the global config (~/.mira/config.yaml + .env) and merges in
// project-level overrides (.mira/config.yaml + .env under projectRoot, if
// non-empty). Project values win.
func Load(projectRoot string) (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolve home dir: %w", err)
	}
	globalDir := filepath.Join(home, ".mira")

	if err := mergeYAMLFile(cfg, filepath.Join(globalDir, "config.yaml")); err != nil {
		return nil, err
	}
	globalEnv, err := loadEnvFile(filepath.Join(globalDir, ".env"))
	if err != nil {
		return nil, err
	}

	var projectEnv map[string]string
	if projectRoot != "" {
		if err := mergeYAMLFile(cfg, filepath.Join(projectRoot, ".mira", "config.yaml")); err != nil {
			return nil, err
		}
		projectEnv, err = loadEnvFile(filepath.Join(projectRoot, ".env"))
		if err != nil {
			return nil, err
		}
	}

	env := mergeEnv(globalEnv, projectEnv)
	cfg.applyEnvOverrides(env)

	if cfg.Store.Path == "" || cfg.Store.Path == "~/.mira/mira.db" {
		cfg.Store.Path = filepath.Join(globalDir, "mira.db")
	} else {
		cfg.Store.Path = expandHome(cfg.Store.Path, home)
	}

	return cfg, nil
}

func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// loadEnvFile reads a simple KEY=VALUE file, one entry per line, ignoring
// blank lines and lines starting with '#'. Values may be quoted.
func loadEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	defer file.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		val = strings.Trim(val, `"'`)
		out[key] = val
	}
	return out, scanner.Err()
}

func mergeEnv(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	for _, k := range os.Environ() {
		if eq := strings.Index(k, "="); eq >= 0 {
			merged[k[:eq]] = k[eq+1:]
		}
	}
	return merged
}

// applyEnvOverrides wires the environment variables named in spec.md §6:
// an embeddings provider key enables embeddings; absence falls back to
// keyword-only mode. A BRAVE_API_KEY enables expert web search.
func (c *Config) applyEnvOverrides(env map[string]string) {
	if key := env["OPENAI_API_KEY"]; key != "" {
		c.Embedding.Provider = "openai"
		c.Embedding.APIKey = key
	}
	if path := env["MIRA_DB"]; path != "" {
		c.Store.Path = path
	}
	if env["BRAVE_API_KEY"] != "" {
		c.braveAPIKey = env["BRAVE_API_KEY"]
	}
}

// Save writes the config back out as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
