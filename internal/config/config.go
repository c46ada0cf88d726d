// Package config provides Uatu's configuration: environment-driven
// defaults with an optional YAML overlay at a per-user config path.
//
// Configuration file: ~/.config/uatu/config.yaml (optional; absence is
// not an error — env-var/built-in defaults apply).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fractalops/uatu/internal/model"
)

// Config is Uatu's root configuration, assembled in three layers:
// built-in defaults, then an optional YAML file overlay, then
// environment variable overrides (highest precedence, matching
// original_source's direct-env-read settings module).
type Config struct {
	Permissions   PermissionsConfig   `yaml:"permissions"`
	Thresholds    ThresholdsConfig    `yaml:"thresholds"`
	Investigation InvestigationConfig `yaml:"investigation"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// PermissionsConfig mirrors the env vars read by
// original_source/uatu/config.py's Settings for gate behavior.
type PermissionsConfig struct {
	ReadOnly        bool `yaml:"read_only"`
	AllowNetwork    bool `yaml:"allow_network"`
	RequireApproval bool `yaml:"require_approval"`
}

// ThresholdsConfig exposes the Anomaly Detector's tunables, per
// spec.md §4.4.
type ThresholdsConfig struct {
	CPUSpikeRatio    float64 `yaml:"cpu_spike_ratio"`
	CPUCriticalAbs   float64 `yaml:"cpu_critical_abs"`
	MemSpikeRatio    float64 `yaml:"mem_spike_ratio"`
	MemCriticalAbs   float64 `yaml:"mem_critical_abs"`
	LeakWindow       int     `yaml:"leak_window"`
	LeakMonotonicPct float64 `yaml:"leak_monotonic_pct"`
	NewProcCPUPct    float64 `yaml:"new_proc_cpu_pct"`
	NewProcMemMB     float64 `yaml:"new_proc_mem_mb"`
}

// InvestigationConfig configures the Investigation Orchestrator.
type InvestigationConfig struct {
	MinSeverity     string        `yaml:"min_severity"`
	Concurrency     int           `yaml:"concurrency"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	Temperature     float64       `yaml:"temperature"`
}

// TelemetryConfig configures the Prometheus metrics server.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config populated with Uatu's built-in defaults,
// matching anomaly.DefaultThresholds and spec.md §4.9/§4.11's stated
// defaults.
func Defaults() Config {
	return Config{
		Permissions: PermissionsConfig{
			ReadOnly:        false,
			AllowNetwork:    false,
			RequireApproval: true,
		},
		Thresholds: ThresholdsConfig{
			CPUSpikeRatio:    1.5,
			CPUCriticalAbs:   90.0,
			MemSpikeRatio:    1.3,
			MemCriticalAbs:   95.0,
			LeakWindow:       6,
			LeakMonotonicPct: 0.8,
			NewProcCPUPct:    20.0,
			NewProcMemMB:     500.0,
		},
		Investigation: InvestigationConfig{
			MinSeverity:     "warning",
			Concurrency:     3,
			ProviderTimeout: 120 * time.Second,
			CacheTTL:        time.Hour,
			Model:           "claude-sonnet-4-5",
			MaxTokens:       4096,
			Temperature:     0.0,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9477",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultConfigPath returns ~/.config/uatu/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "uatu", "config.yaml"), nil
}

// Load assembles a Config: defaults, then the YAML file at path if
// present (a missing file is not an error — original_source's Settings
// layer has no config file at all, only env vars, so file absence must
// never block startup), then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides mirrors original_source/uatu/config.py's
// pydantic-settings env-var names (UATU_READ_ONLY, UATU_ALLOW_NETWORK,
// UATU_REQUIRE_APPROVAL, UATU_MODEL, etc.), taking precedence over both
// built-in defaults and any YAML file.
func applyEnvOverrides(cfg *Config) {
	if v, ok := boolEnv("UATU_READ_ONLY"); ok {
		cfg.Permissions.ReadOnly = v
	}
	if v, ok := boolEnv("UATU_ALLOW_NETWORK"); ok {
		cfg.Permissions.AllowNetwork = v
	}
	if v, ok := boolEnv("UATU_REQUIRE_APPROVAL"); ok {
		cfg.Permissions.RequireApproval = v
	}
	if v := os.Getenv("UATU_MODEL"); v != "" {
		cfg.Investigation.Model = v
	}
	if v, ok := intEnv("UATU_MAX_TOKENS"); ok {
		cfg.Investigation.MaxTokens = v
	}
	if v, ok := floatEnv("UATU_TEMPERATURE"); ok {
		cfg.Investigation.Temperature = v
	}
	if v := os.Getenv("UATU_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func boolEnv(name string) (bool, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func intEnv(name string) (int, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func floatEnv(name string) (float64, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate checks cross-field invariants, collecting every violation
// rather than failing on the first, matching octoreflex's own
// Validate's diagnostic style.
func Validate(cfg *Config) error {
	var errs []string

	if _, err := model.ParseSeverity(cfg.Investigation.MinSeverity); err != nil {
		errs = append(errs, fmt.Sprintf("investigation.min_severity: %v", err))
	}
	if cfg.Investigation.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("investigation.concurrency must be >= 1, got %d", cfg.Investigation.Concurrency))
	}
	if cfg.Investigation.ProviderTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("investigation.provider_timeout must be >= 1s, got %s", cfg.Investigation.ProviderTimeout))
	}
	if cfg.Thresholds.CPUSpikeRatio <= 1.0 {
		errs = append(errs, fmt.Sprintf("thresholds.cpu_spike_ratio must be > 1.0, got %f", cfg.Thresholds.CPUSpikeRatio))
	}
	if cfg.Thresholds.MemSpikeRatio <= 1.0 {
		errs = append(errs, fmt.Sprintf("thresholds.mem_spike_ratio must be > 1.0, got %f", cfg.Thresholds.MemSpikeRatio))
	}
	if cfg.Thresholds.LeakWindow < 2 {
		errs = append(errs, fmt.Sprintf("thresholds.leak_window must be >= 2, got %d", cfg.Thresholds.LeakWindow))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d error(s):\n  - %s", len(errs), joinStrings(errs, "\n  - "))
	}
	return nil
}

func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
