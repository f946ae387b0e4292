package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Executor kinds.
const (
	ExecutorLocal     = "local"
	ExecutorContainer = "container"
)

// Config holds all batch settings. Values come from an optional YAML file
// named by SFINCS_CONFIG, overridden by environment variables.
type Config struct {
	ScenarioTable string
	ModelDir      string
	Suffixes      []string
	RerunFailed   bool

	Executor   string
	Executable string

	// Container execution.
	ContainerRuntime string
	Image            string
	GPU              bool
	StageDir         string
	StageShared      []string

	// Post-processing.
	MinFloodDepth  float64
	MaxPlotDepth   float64
	IndexCacheSize int

	MetricsAddr     string
	MetricsTextfile string
	KafkaBrokers    []string
	KafkaTopic      string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// fileConfig mirrors Config in the YAML file. Unknown keys are rejected.
type fileConfig struct {
	Scenarios   string   `yaml:"scenarios"`
	ModelDir    string   `yaml:"model_dir"`
	Suffixes    []string `yaml:"suffixes"`
	RerunFailed *bool    `yaml:"rerun_failed"`
	Executor    string   `yaml:"executor"`
	Executable  string   `yaml:"executable"`
	Container   struct {
		Runtime     string   `yaml:"runtime"`
		Image       string   `yaml:"image"`
		GPU         *bool    `yaml:"gpu"`
		StageDir    string   `yaml:"stage_dir"`
		StageShared []string `yaml:"stage_shared"`
	} `yaml:"container"`
	Plot struct {
		MinDepth *float64 `yaml:"min_depth"`
		MaxDepth *float64 `yaml:"max_depth"`
	} `yaml:"plot"`
	IndexCacheSize  int    `yaml:"index_cache_size"`
	MetricsAddr     string `yaml:"metrics_addr"`
	MetricsTextfile string `yaml:"metrics_textfile"`
	Kafka           struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from the optional config file and environment
// variables, applying defaults where unset.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("SFINCS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read SFINCS_CONFIG: %w", err)
		}
		if err := yaml.UnmarshalWithOptions(data, &fc, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("parse SFINCS_CONFIG %s: %w", path, err)
		}
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ScenarioTable:    sharedcfg.EnvOrDefault("SFINCS_SCENARIOS", fc.Scenarios),
		ModelDir:         sharedcfg.EnvOrDefault("SFINCS_MODEL_DIR", or(fc.ModelDir, ".")),
		Executor:         sharedcfg.EnvOrDefault("SFINCS_EXECUTOR", or(fc.Executor, ExecutorLocal)),
		Executable:       sharedcfg.EnvOrDefault("SFINCS_EXE", or(fc.Executable, "sfincs")),
		ContainerRuntime: sharedcfg.EnvOrDefault("SFINCS_CONTAINER_RUNTIME", or(fc.Container.Runtime, "docker")),
		Image:            sharedcfg.EnvOrDefault("SFINCS_IMAGE", or(fc.Container.Image, "deltares/sfincs-cpu:latest")),
		StageDir:         sharedcfg.EnvOrDefault("SFINCS_STAGE_DIR", or(fc.Container.StageDir, filepath.Join(os.TempDir(), "sfincs"))),
		MetricsAddr:      sharedcfg.EnvOrDefault("METRICS_ADDR", fc.MetricsAddr),
		MetricsTextfile:  sharedcfg.EnvOrDefault("METRICS_TEXTFILE", fc.MetricsTextfile),
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", or(fc.Kafka.Topic, "sfincs-run-status")),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", or(fc.LogLevel, "info")),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", or(fc.LogFormat, "text")),
		ShutdownTimeout:  shutdownTimeout,
		Suffixes:         []string{"", "_dt0"},
		StageShared:      fc.Container.StageShared,
		KafkaBrokers:     fc.Kafka.Brokers,
	}

	if len(fc.Suffixes) > 0 {
		cfg.Suffixes = fc.Suffixes
	}
	if v, ok := os.LookupEnv("SFINCS_SUFFIXES"); ok {
		cfg.Suffixes = splitList(v, true)
	}
	if v := os.Getenv("SFINCS_STAGE_SHARED"); v != "" {
		cfg.StageShared = splitList(v, false)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(v)
	}

	if cfg.RerunFailed, err = parseBool("SFINCS_RERUN_FAILED", fc.RerunFailed); err != nil {
		return nil, err
	}
	if cfg.GPU, err = parseBool("SFINCS_GPU", fc.Container.GPU); err != nil {
		return nil, err
	}
	if cfg.MinFloodDepth, err = parseFloat("SFINCS_MIN_FLOOD_DEPTH", fc.Plot.MinDepth, 0); err != nil {
		return nil, err
	}
	if cfg.MaxPlotDepth, err = parseFloat("SFINCS_MAX_PLOT_DEPTH", fc.Plot.MaxDepth, 3); err != nil {
		return nil, err
	}
	if cfg.IndexCacheSize, err = parseIndexCacheSize(fc.IndexCacheSize); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Executor {
	case ExecutorLocal, ExecutorContainer:
	default:
		return fmt.Errorf("invalid SFINCS_EXECUTOR %q: want %q or %q", c.Executor, ExecutorLocal, ExecutorContainer)
	}
	switch c.ContainerRuntime {
	case "docker", "podman", "singularity", "apptainer":
	default:
		return fmt.Errorf("invalid SFINCS_CONTAINER_RUNTIME %q", c.ContainerRuntime)
	}
	if len(c.Suffixes) == 0 {
		return errors.New("SFINCS_SUFFIXES must name at least one suffix")
	}
	if c.MaxPlotDepth <= c.MinFloodDepth {
		return errors.New("SFINCS_MAX_PLOT_DEPTH must be greater than SFINCS_MIN_FLOOD_DEPTH")
	}
	if c.Executor == ExecutorContainer && c.Image == "" {
		return errors.New("SFINCS_IMAGE is required for container execution")
	}
	return nil
}

// RequireScenarioTable reports an error when no scenario table is configured.
func (c *Config) RequireScenarioTable() error {
	if c.ScenarioTable == "" {
		return errors.New("SFINCS_SCENARIOS is required")
	}
	return nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma separated list. With keepEmpty, empty items are
// kept so ",_dt0" yields the base scenario and its _dt0 variant.
func splitList(s string, keepEmpty bool) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" && !keepEmpty {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseBool(name string, fallback *bool) (bool, error) {
	if s := os.Getenv(name); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %w", name, err)
		}
		return v, nil
	}
	return fallback != nil && *fallback, nil
}

func parseFloat(name string, fallback *float64, def float64) (float64, error) {
	if s := os.Getenv(name); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return v, nil
	}
	if fallback != nil {
		return *fallback, nil
	}
	return def, nil
}

func parseIndexCacheSize(fallback int) (int, error) {
	if s := os.Getenv("SFINCS_INDEX_CACHE_SIZE"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid SFINCS_INDEX_CACHE_SIZE %q: must be a positive integer", s)
		}
		return n, nil
	}
	if fallback > 0 {
		return fallback, nil
	}
	return 16, nil
}
