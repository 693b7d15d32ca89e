package config

import (
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/fairline/loft/internal/instance"
	"github.com/fairline/loft/internal/timespec"
	"github.com/fairline/loft/pkg/datum"
)

// Defaults applied by Validate when the corresponding field is omitted.
const (
	DefaultWorkers        = 4
	DefaultReconcileEvery = "30s"
	DefaultRetention      = "30d"
	DefaultInboxDebounce  = "500ms"
)

// DefaultInboxInclude is the inbox glob set used when none is configured.
var DefaultInboxInclude = []string{"**/*.yml", "**/*.yaml"}

// knownPacks are the built-in derivation packs loftd can register.
var knownPacks = map[string]bool{
	"piping": true,
}

// LoftConfig represents the top-level loft.yml configuration.
type LoftConfig struct {
	Version    string          `yaml:"version"`
	Instance   InstanceConfig  `yaml:"instance"`
	Redis      RedisConfig     `yaml:"redis,omitempty"`
	Engine     EngineConfig    `yaml:"engine,omitempty"`
	Inbox      *InboxConfig    `yaml:"inbox,omitempty"`
	Packs      []string        `yaml:"packs,omitempty"`
	Parameters []ParameterSeed `yaml:"parameters,omitempty"`
}

// InstanceConfig identifies the loft instance.
type InstanceConfig struct {
	Name string `yaml:"name"`
}

// RedisConfig locates the shared Redis server. URL is optional; the
// LOFT_REDIS_URL environment variable and a local default apply in that
// order when it is empty.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// EngineConfig tunes the invalidation engine and history retention.
// Durations are written in timespec syntax ("30s", "168h", "30d").
type EngineConfig struct {
	Workers        int    `yaml:"workers,omitempty"`
	ReconcileEvery string `yaml:"reconcile_every,omitempty"`
	Retention      string `yaml:"retention,omitempty"`

	reconcileEvery time.Duration
	retention      time.Duration
}

// ReconcileInterval returns the parsed reconcile_every. Valid after
// Validate.
func (e *EngineConfig) ReconcileInterval() time.Duration {
	return e.reconcileEvery
}

// RetentionWindow returns the parsed retention window. Valid after
// Validate. Zero disables history pruning.
func (e *EngineConfig) RetentionWindow() time.Duration {
	return e.retention
}

// InboxConfig configures the change-request file inbox. When the section
// is absent the feeder is disabled.
type InboxConfig struct {
	Dir      string   `yaml:"dir"`
	Include  []string `yaml:"include,omitempty"`
	Ignore   []string `yaml:"ignore,omitempty"`
	Debounce string   `yaml:"debounce,omitempty"`

	debounce time.Duration
}

// DebounceWindow returns the parsed debounce duration. Valid after
// Validate.
func (i *InboxConfig) DebounceWindow() time.Duration {
	return i.debounce
}

// ParameterSeed declares one parameter the daemon registers at startup if
// it does not exist yet. Value may be a number, a string, or a mapping
// (structured record).
type ParameterSeed struct {
	ID         string `yaml:"id"`
	Discipline string `yaml:"discipline"`
	Value      any    `yaml:"value"`
}

// ToParameter converts the seed into a store parameter.
func (s *ParameterSeed) ToParameter() (*datum.Parameter, error) {
	value, err := datum.ValueFromAny(s.Value)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", s.ID, err)
	}
	return &datum.Parameter{
		ID:         s.ID,
		Value:      value,
		Discipline: s.Discipline,
	}, nil
}

// Validate performs strict validation on the configuration and applies
// defaults for omitted fields.
func (c *LoftConfig) Validate() error {
	if c.Version != "1" {
		return fmt.Errorf("unsupported version: %s (expected: 1)", c.Version)
	}

	if c.Instance.Name == "" {
		c.Instance.Name = instance.DefaultName
	}
	if err := instance.ValidateName(c.Instance.Name); err != nil {
		return err
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}

	if c.Inbox != nil {
		if err := c.Inbox.validate(); err != nil {
			return err
		}
	}

	for _, pack := range c.Packs {
		if !knownPacks[pack] {
			return fmt.Errorf("unknown pack: %q (available: piping)", pack)
		}
	}

	seen := make(map[string]bool, len(c.Parameters))
	for i := range c.Parameters {
		seed := &c.Parameters[i]
		if err := datum.ValidateID(seed.ID); err != nil {
			return fmt.Errorf("parameters[%d]: %w", i, err)
		}
		if seen[seed.ID] {
			return fmt.Errorf("duplicate parameter seed: %q", seed.ID)
		}
		seen[seed.ID] = true
		if seed.Discipline == "" {
			return fmt.Errorf("parameter %q: discipline is required", seed.ID)
		}
		if _, err := seed.ToParameter(); err != nil {
			return err
		}
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if e.Workers == 0 {
		e.Workers = DefaultWorkers
	}
	if e.Workers < 1 {
		return fmt.Errorf("engine.workers must be >= 1, got %d", e.Workers)
	}

	if e.ReconcileEvery == "" {
		e.ReconcileEvery = DefaultReconcileEvery
	}
	interval, err := timespec.ParseDuration(e.ReconcileEvery)
	if err != nil {
		return fmt.Errorf("engine.reconcile_every: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("engine.reconcile_every must be positive")
	}
	e.reconcileEvery = interval

	if e.Retention == "" {
		e.Retention = DefaultRetention
	}
	retention, err := timespec.ParseDuration(e.Retention)
	if err != nil {
		return fmt.Errorf("engine.retention: %w", err)
	}
	e.retention = retention

	return nil
}

func (i *InboxConfig) validate() error {
	if i.Dir == "" {
		return fmt.Errorf("inbox.dir is required when the inbox section is present")
	}

	if len(i.Include) == 0 {
		i.Include = append([]string(nil), DefaultInboxInclude...)
	}
	for _, pattern := range append(append([]string(nil), i.Include...), i.Ignore...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid inbox glob pattern: %q", pattern)
		}
	}

	if i.Debounce == "" {
		i.Debounce = DefaultInboxDebounce
	}
	debounce, err := timespec.ParseDuration(i.Debounce)
	if err != nil {
		return fmt.Errorf("inbox.debounce: %w", err)
	}
	if debounce <= 0 {
		return fmt.Errorf("inbox.debounce must be positive")
	}
	i.debounce = debounce

	return nil
}

// Load reads and validates loft.yml from the specified path.
func Load(path string) (*LoftConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config LoftConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
