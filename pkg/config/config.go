// Package config loads and validates the settings that wire together the
// message bus, task runner, context store, and skill engine. Configs are
// authored as YAML and read once at startup; there is no runtime mutation
// API, unlike a long-lived orchestrator config singleton.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"orchestrator-core/pkg/bus"
	"orchestrator-core/pkg/taskrunner"
)

// Default values applied when a YAML document omits a field.
const (
	DefaultMaxQueueSize     = 100
	DefaultMaxHistorySize   = 1000
	DefaultMaxConcurrency   = 4
	DefaultTaskTimeout      = 5 * time.Minute
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = time.Second
	DefaultSkillMaxRetries  = 2
	DefaultRequestTimeout   = 30 * time.Second
	DefaultContextTargetTok = 4000
)

// BusConfig mirrors bus.Config with YAML tags and optional fields so
// zero values can be distinguished from "not set" during defaulting.
type BusConfig struct {
	MaxQueueSize   *int `yaml:"max_queue_size"`
	MaxHistorySize *int `yaml:"max_history_size"`
}

// TaskRunnerConfig mirrors taskrunner.Config with YAML tags.
type TaskRunnerConfig struct {
	Timeout          *time.Duration `yaml:"timeout"`
	RetryDelay       *time.Duration `yaml:"retry_delay"`
	MaxConcurrency   *int           `yaml:"max_concurrency"`
	MaxRetries       *int           `yaml:"max_retries"`
	RetryOnFailure   *bool          `yaml:"retry_on_failure"`
	StopOnFirstError *bool          `yaml:"stop_on_first_error"`
}

// ContextStoreConfig carries the on-disk location and default compression
// target for persisted contexts.
type ContextStoreConfig struct {
	Dir                string `yaml:"dir"`
	DefaultTargetTokens int   `yaml:"default_target_tokens"`
}

// SkillConfig carries engine-wide defaults that individual skill files may
// override (a skill's own front-matter always wins).
type SkillConfig struct {
	DefaultMaxRetries int    `yaml:"default_max_retries"`
	DefaultModel      string `yaml:"default_model"`
}

// RequestConfig bounds the bus's request/response correlation helper.
type RequestConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the top-level document loaded from a single YAML file.
type Config struct {
	Bus         BusConfig          `yaml:"bus"`
	TaskRunner  TaskRunnerConfig   `yaml:"task_runner"`
	ContextStore ContextStoreConfig `yaml:"context_store"`
	Skill       SkillConfig        `yaml:"skill"`
	Request     RequestConfig      `yaml:"request"`
}

// Load reads and parses a YAML config file at path, filling in defaults for
// anything the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML bytes into a defaulted Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a fully defaulted Config with no file backing it.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Bus.MaxQueueSize == nil {
		v := DefaultMaxQueueSize
		c.Bus.MaxQueueSize = &v
	}
	if c.Bus.MaxHistorySize == nil {
		v := DefaultMaxHistorySize
		c.Bus.MaxHistorySize = &v
	}

	if c.TaskRunner.Timeout == nil {
		v := DefaultTaskTimeout
		c.TaskRunner.Timeout = &v
	}
	if c.TaskRunner.RetryDelay == nil {
		v := DefaultRetryDelay
		c.TaskRunner.RetryDelay = &v
	}
	if c.TaskRunner.MaxConcurrency == nil {
		v := DefaultMaxConcurrency
		c.TaskRunner.MaxConcurrency = &v
	}
	if c.TaskRunner.MaxRetries == nil {
		v := DefaultMaxRetries
		c.TaskRunner.MaxRetries = &v
	}
	if c.TaskRunner.RetryOnFailure == nil {
		v := true
		c.TaskRunner.RetryOnFailure = &v
	}
	if c.TaskRunner.StopOnFirstError == nil {
		v := false
		c.TaskRunner.StopOnFirstError = &v
	}

	if c.ContextStore.DefaultTargetTokens == 0 {
		c.ContextStore.DefaultTargetTokens = DefaultContextTargetTok
	}

	if c.Skill.DefaultMaxRetries == 0 {
		c.Skill.DefaultMaxRetries = DefaultSkillMaxRetries
	}

	if c.Request.Timeout == 0 {
		c.Request.Timeout = DefaultRequestTimeout
	}
}

func (c *Config) validate() error {
	if *c.Bus.MaxQueueSize <= 0 {
		return fmt.Errorf("bus.max_queue_size must be positive")
	}
	if *c.Bus.MaxHistorySize <= 0 {
		return fmt.Errorf("bus.max_history_size must be positive")
	}
	if *c.TaskRunner.MaxConcurrency <= 0 {
		return fmt.Errorf("task_runner.max_concurrency must be positive")
	}
	if *c.TaskRunner.MaxRetries < 0 {
		return fmt.Errorf("task_runner.max_retries cannot be negative")
	}
	return nil
}

// BusConfig converts to a bus.Config.
func (c *Config) BusConfig() bus.Config {
	return bus.Config{
		MaxQueueSize:   *c.Bus.MaxQueueSize,
		MaxHistorySize: *c.Bus.MaxHistorySize,
	}
}

// TaskRunnerConfig converts to a taskrunner.Config.
func (c *Config) TaskRunnerConfig() taskrunner.Config {
	return taskrunner.Config{
		Timeout:          *c.TaskRunner.Timeout,
		RetryDelay:       *c.TaskRunner.RetryDelay,
		MaxConcurrency:   *c.TaskRunner.MaxConcurrency,
		MaxRetries:       *c.TaskRunner.MaxRetries,
		RetryOnFailure:   *c.TaskRunner.RetryOnFailure,
		StopOnFirstError: *c.TaskRunner.StopOnFirstError,
	}
}
