// Package config loads service settings: defaults, then an optional YAML
// file, then SPEECHCOACH_* environment variables. Command-line flags are
// applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/FurqatMashrabjonov/speech-coach/internal/completion"
	"github.com/FurqatMashrabjonov/speech-coach/internal/llm"
	"github.com/FurqatMashrabjonov/speech-coach/internal/sweeper"
)

// Storage backends.
const (
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
)

// Creation triggers.
const (
	TriggerAPI       = "api"
	TriggerFirestore = "firestore"
)

type Config struct {
	LLM         llm.Config        `yaml:"llm"`
	Storage     StorageConfig     `yaml:"storage"`
	Trigger     string            `yaml:"trigger"`
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Log         LogConfig         `yaml:"log"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Sweeper     SweeperConfig     `yaml:"sweeper"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Path is the SQLite file. Empty means the per-user default.
	Path             string `yaml:"path"`
	FirestoreProject string `yaml:"firestore_project"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig enables the shared sweep lease. Empty Addr means sweeps are
// not coordinated across processes.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	LockKey  string `yaml:"lock_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type CoordinatorConfig struct {
	ImmediateDelay time.Duration `yaml:"immediate_delay"`
}

type SweeperConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	GraceWindow time.Duration `yaml:"grace_window"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
}

// Default returns the production settings with no API key.
func Default() Config {
	sw := sweeper.DefaultConfig()
	return Config{
		LLM:     llm.DefaultConfig(),
		Storage: StorageConfig{Backend: BackendSQLite},
		Trigger: TriggerAPI,
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 45 * time.Second,
		},
		Log:         LogConfig{Level: "info", Format: "json"},
		Coordinator: CoordinatorConfig{ImmediateDelay: completion.DefaultImmediateDelay},
		Sweeper: SweeperConfig{
			Enabled:     true,
			Interval:    sw.Interval,
			GraceWindow: sw.GraceWindow,
			BatchSize:   sw.BatchSize,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays SPEECHCOACH_* variables and the provider key variables.
func (c *Config) ApplyEnv() error {
	c.LLM.ApplyEnv()

	setString(&c.Storage.Backend, "SPEECHCOACH_STORAGE")
	setString(&c.Storage.Path, "SPEECHCOACH_DB")
	setString(&c.Storage.FirestoreProject, "GOOGLE_CLOUD_PROJECT")
	setString(&c.Storage.FirestoreProject, "SPEECHCOACH_FIRESTORE_PROJECT")
	setString(&c.Trigger, "SPEECHCOACH_TRIGGER")
	setString(&c.Server.Addr, "SPEECHCOACH_ADDR")
	setString(&c.Redis.Addr, "SPEECHCOACH_REDIS_ADDR")
	setString(&c.Redis.Password, "SPEECHCOACH_REDIS_PASSWORD")
	setString(&c.Log.Level, "SPEECHCOACH_LOG_LEVEL")
	setString(&c.Log.Format, "SPEECHCOACH_LOG_FORMAT")

	var errs []error
	errs = append(errs,
		setDuration(&c.LLM.Timeout, "SPEECHCOACH_LLM_TIMEOUT"),
		setDuration(&c.Coordinator.ImmediateDelay, "SPEECHCOACH_IMMEDIATE_DELAY"),
		setDuration(&c.Sweeper.Interval, "SPEECHCOACH_SWEEP_INTERVAL"),
		setDuration(&c.Sweeper.GraceWindow, "SPEECHCOACH_GRACE_WINDOW"),
		setInt(&c.Sweeper.BatchSize, "SPEECHCOACH_SWEEP_BATCH_SIZE"),
		setInt(&c.Sweeper.Concurrency, "SPEECHCOACH_SWEEP_CONCURRENCY"),
		setBool(&c.Sweeper.Enabled, "SPEECHCOACH_SWEEP_ENABLED"),
	)
	return errors.Join(errs...)
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

// Validate checks everything except the LLM key, which only commands that
// score need. See ValidateLLM.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendSQLite, BackendMemory:
	case BackendFirestore:
		if c.Storage.FirestoreProject == "" {
			errs = append(errs, errors.New("storage.firestore_project is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Trigger {
	case TriggerAPI:
	case TriggerFirestore:
		if c.Storage.Backend != BackendFirestore {
			errs = append(errs, errors.New("trigger firestore requires the firestore storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown trigger %q", c.Trigger))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	if c.Coordinator.ImmediateDelay < 0 {
		errs = append(errs, errors.New("coordinator.immediate_delay must not be negative"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper.interval must be positive"))
	}
	if c.Sweeper.BatchSize <= 0 {
		errs = append(errs, errors.New("sweeper.batch_size must be positive"))
	}
	if c.Sweeper.Concurrency < 0 {
		errs = append(errs, errors.New("sweeper.concurrency must not be negative"))
	}
	// The sweeper must never race the immediate path's wait.
	if c.Sweeper.GraceWindow <= c.Coordinator.ImmediateDelay {
		errs = append(errs, fmt.Errorf("sweeper.grace_window (%s) must exceed coordinator.immediate_delay (%s)",
			c.Sweeper.GraceWindow, c.Coordinator.ImmediateDelay))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// ValidateLLM checks the model provider settings.
func (c Config) ValidateLLM() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}

// Completion returns the coordinator settings.
func (c Config) Completion() completion.Config {
	return completion.Config{
		ImmediateDelay: c.Coordinator.ImmediateDelay,
		GeneratedBy:    completion.DefaultConfig().GeneratedBy,
	}
}

// Sweep returns the sweeper settings.
func (c Config) Sweep() sweeper.Config {
	return sweeper.Config{
		Interval:    c.Sweeper.Interval,
		GraceWindow: c.Sweeper.GraceWindow,
		BatchSize:   c.Sweeper.BatchSize,
		Concurrency: c.Sweeper.Concurrency,
	}
}
