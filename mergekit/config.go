package mergekit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Havanyani/go-merge-kit/errors"
)

// ConfigLoader provides dynamic loading and validation of per-entity
// resolution configurations from YAML, JSON or TOML files with runtime
// update capabilities.
type ConfigLoader struct {
	mu            sync.RWMutex
	currentConfig *FileConfig
	validators    []ConfigValidator
	watchers      []ConfigWatcher
	transformers  []ConfigTransformer
	logger        Logger
}

// FileConfig is the on-disk shape of a resolution configuration: file-level
// metadata plus one entry per entity type.
type FileConfig struct {
	Version     string                 `json:"version" yaml:"version" toml:"version"`
	Name        string                 `json:"name" yaml:"name" toml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty" toml:"metadata,omitempty"`

	// Per-entity resolution configurations
	Entities []EntityConfigEntry `json:"entities" yaml:"entities" toml:"entities"`
}

// EntityConfigEntry configures the resolution of one entity type.
type EntityConfigEntry struct {
	Type        string `json:"type" yaml:"type" toml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`

	// Strategy names accept the aliases understood by ParseStrategy
	Strategy       string `json:"strategy,omitempty" yaml:"strategy,omitempty" toml:"strategy,omitempty"`
	VersionField   string `json:"version_field,omitempty" yaml:"version_field,omitempty" toml:"version_field,omitempty"`
	TimestampField string `json:"timestamp_field,omitempty" yaml:"timestamp_field,omitempty" toml:"timestamp_field,omitempty"`
	ArrayStrategy  string `json:"array_strategy,omitempty" yaml:"array_strategy,omitempty" toml:"array_strategy,omitempty"`

	// Fields maps field names to their merge configuration
	Fields map[string]FieldConfigEntry `json:"fields,omitempty" yaml:"fields,omitempty" toml:"fields,omitempty"`
}

// FieldConfigEntry configures the merge behavior of one field.
type FieldConfigEntry struct {
	Strategy  string `json:"strategy" yaml:"strategy" toml:"strategy"`
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty" toml:"separator,omitempty"`

	// Merger names a custom merger registered on the Registry; required for
	// and exclusive to the custom strategy
	Merger string `json:"merger,omitempty" yaml:"merger,omitempty" toml:"merger,omitempty"`
}

// ConfigValidator validates configuration before applying it.
type ConfigValidator interface {
	Validate(config *FileConfig) error
	Name() string
}

// ConfigWatcher monitors configuration changes.
type ConfigWatcher interface {
	OnConfigChanged(oldConfig, newConfig *FileConfig)
	OnConfigError(err error)
	Name() string
}

// ConfigTransformer allows modification of configuration during loading.
type ConfigTransformer interface {
	Transform(config *FileConfig) (*FileConfig, error)
	Name() string
}

// NewConfigLoader creates a new configuration loader.
func NewConfigLoader(opts ...ConfigLoaderOption) *ConfigLoader {
	cl := &ConfigLoader{
		validators:   make([]ConfigValidator, 0),
		watchers:     make([]ConfigWatcher, 0),
		transformers: make([]ConfigTransformer, 0),
	}

	for _, opt := range opts {
		opt.apply(cl)
	}

	return cl
}

// ConfigLoaderOption provides configuration options for ConfigLoader.
type ConfigLoaderOption interface {
	apply(*ConfigLoader)
}

type configLoaderOptionFunc func(*ConfigLoader)

func (f configLoaderOptionFunc) apply(cl *ConfigLoader) {
	f(cl)
}

// WithConfigValidator adds a configuration validator.
func WithConfigValidator(validator ConfigValidator) ConfigLoaderOption {
	return configLoaderOptionFunc(func(cl *ConfigLoader) {
		cl.validators = append(cl.validators, validator)
	})
}

// WithWatcher adds a configuration change watcher.
func WithWatcher(watcher ConfigWatcher) ConfigLoaderOption {
	return configLoaderOptionFunc(func(cl *ConfigLoader) {
		cl.watchers = append(cl.watchers, watcher)
	})
}

// WithTransformer adds a configuration transformer.
func WithTransformer(transformer ConfigTransformer) ConfigLoaderOption {
	return configLoaderOptionFunc(func(cl *ConfigLoader) {
		cl.transformers = append(cl.transformers, transformer)
	})
}

// WithConfigLogger sets a logger for the config loader.
func WithConfigLogger(logger Logger) ConfigLoaderOption {
	return configLoaderOptionFunc(func(cl *ConfigLoader) {
		cl.logger = logger
	})
}

// LoadFromFile loads configuration from a YAML, JSON or TOML file.
func (cl *ConfigLoader) LoadFromFile(filepath string) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.logger != nil {
		cl.logger.Debug("Loading configuration from file", "path", filepath)
	}

	file, err := os.Open(filepath)
	if err != nil {
		return errors.WrapOpComponentCode(
			fmt.Errorf("failed to open config file %s: %w", filepath, err),
			errors.OpLoadConfig, "config", errors.ErrCodeConfigurationFailure)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return errors.WrapOpComponentCode(
			fmt.Errorf("failed to read config file %s: %w", filepath, err),
			errors.OpLoadConfig, "config", errors.ErrCodeConfigurationFailure)
	}

	return errors.WrapOpComponentCode(cl.loadFromBytes(data, detectFormat(filepath)),
		errors.OpLoadConfig, "config", errors.ErrCodeConfigurationFailure)
}

// LoadFromBytes loads configuration from raw bytes.
func (cl *ConfigLoader) LoadFromBytes(data []byte, format string) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return errors.WrapOpComponentCode(cl.loadFromBytes(data, format),
		errors.OpLoadConfig, "config", errors.ErrCodeConfigurationFailure)
}

func (cl *ConfigLoader) loadFromBytes(data []byte, format string) error {
	var config FileConfig

	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}

	return cl.applyConfig(&config)
}

// applyConfig validates and applies a configuration.
func (cl *ConfigLoader) applyConfig(config *FileConfig) error {
	// Apply transformers
	for _, transformer := range cl.transformers {
		transformed, err := transformer.Transform(config)
		if err != nil {
			if cl.logger != nil {
				cl.logger.Error("Configuration transformation failed", "transformer", transformer.Name(), "error", err)
			}
			return fmt.Errorf("transformer %s failed: %w", transformer.Name(), err)
		}
		config = transformed
	}

	// Validate configuration
	for _, validator := range cl.validators {
		if err := validator.Validate(config); err != nil {
			if cl.logger != nil {
				cl.logger.Error("Configuration validation failed", "validator", validator.Name(), "error", err)
			}
			return fmt.Errorf("validator %s failed: %w", validator.Name(), err)
		}
	}

	oldConfig := cl.currentConfig
	cl.currentConfig = config

	// Notify watchers
	for _, watcher := range cl.watchers {
		go func(w ConfigWatcher) {
			defer func() {
				if r := recover(); r != nil {
					if cl.logger != nil {
						cl.logger.Error("Config watcher panic", "watcher", w.Name(), "panic", r)
					}
				}
			}()
			w.OnConfigChanged(oldConfig, config)
		}(watcher)
	}

	if cl.logger != nil {
		cl.logger.Debug("Configuration applied successfully", "version", config.Version, "entities", len(config.Entities))
	}

	return nil
}

// GetCurrentConfig returns the current configuration.
func (cl *ConfigLoader) GetCurrentConfig() *FileConfig {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	return cl.currentConfig
}

// Apply registers every entity configuration from the current file on the
// registry, wholesale per entity type. It stops at the first failure,
// leaving earlier registrations in place.
func (cl *ConfigLoader) Apply(reg *Registry) error {
	config := cl.GetCurrentConfig()
	if config == nil {
		return fmt.Errorf("no configuration loaded")
	}

	for _, entry := range config.Entities {
		rc, err := BuildResolutionConfig(entry, reg)
		if err != nil {
			return fmt.Errorf("entity %q: %w", entry.Type, err)
		}
		if err := reg.Register(entry.Type, rc); err != nil {
			return fmt.Errorf("entity %q: %w", entry.Type, err)
		}
		if cl.logger != nil {
			cl.logger.Debug("Registered entity configuration", "entity_type", entry.Type, "strategy", rc.DefaultStrategy.String())
		}
	}

	return nil
}

// BuildResolutionConfig translates one file entry into a ResolutionConfig,
// resolving named custom mergers against the registry. Unknown strategy and
// merger names fail here, at load time, never at resolve time.
func BuildResolutionConfig(entry EntityConfigEntry, reg *Registry) (ResolutionConfig, error) {
	var rc ResolutionConfig

	if entry.Strategy != "" {
		strategy, err := ParseStrategy(entry.Strategy)
		if err != nil {
			return rc, errors.NewConfigurationError(errors.OpBuildConfig, err)
		}
		rc.DefaultStrategy = strategy
	}
	if entry.ArrayStrategy != "" {
		policy, err := ParseArrayPolicy(entry.ArrayStrategy)
		if err != nil {
			return rc, errors.NewConfigurationError(errors.OpBuildConfig, err)
		}
		rc.ArrayStrategy = policy
	}
	rc.VersionField = entry.VersionField
	rc.TimestampField = entry.TimestampField

	if len(entry.Fields) == 0 {
		return rc, nil
	}
	rc.FieldStrategies = make(map[string]FieldStrategy, len(entry.Fields))
	for field, fe := range entry.Fields {
		fs := FieldStrategy{Separator: fe.Separator}
		if fe.Strategy != "" {
			kind, err := ParseFieldStrategy(fe.Strategy)
			if err != nil {
				cfgErr := errors.NewConfigurationError(errors.OpBuildConfig, err)
				cfgErr.Metadata = map[string]interface{}{"field": field}
				return rc, cfgErr
			}
			fs.Kind = kind
		}
		switch {
		case fs.Kind == FieldCustom && fe.Merger == "":
			cfgErr := errors.NewConfigurationError(errors.OpBuildConfig,
				fmt.Errorf("field %q uses a custom strategy without naming a merger", field))
			cfgErr.Metadata = map[string]interface{}{"field": field}
			return rc, cfgErr
		case fs.Kind == FieldCustom:
			merger, ok := reg.MergerFor(fe.Merger)
			if !ok {
				cfgErr := errors.NewConfigurationError(errors.OpBuildConfig,
					fmt.Errorf("unknown merger %q for field %q", fe.Merger, field))
				cfgErr.Metadata = map[string]interface{}{"field": field, "merger": fe.Merger}
				return rc, cfgErr
			}
			fs.Merger = merger
		case fe.Merger != "":
			cfgErr := errors.NewConfigurationError(errors.OpBuildConfig,
				fmt.Errorf("field %q names merger %q but its strategy is %s, not custom", field, fe.Merger, fs.Kind))
			cfgErr.Metadata = map[string]interface{}{"field": field, "merger": fe.Merger}
			return rc, cfgErr
		}
		rc.FieldStrategies[field] = fs
	}

	return rc, nil
}

// detectFormat determines file format from extension.
func detectFormat(filepath string) string {
	ext := strings.ToLower(filepath[strings.LastIndex(filepath, ".")+1:])
	switch ext {
	case "yml", "yaml":
		return "yaml"
	case "json":
		return "json"
	case "toml":
		return "toml"
	default:
		return "yaml" // default
	}
}

// Built-in validators

// BasicValidator provides basic configuration validation.
type BasicValidator struct{}

func (v *BasicValidator) Name() string {
	return "basic"
}

func (v *BasicValidator) Validate(config *FileConfig) error {
	if config.Version == "" {
		return fmt.Errorf("configuration version is required")
	}

	if config.Name == "" {
		return fmt.Errorf("configuration name is required")
	}

	entityTypes := make(map[string]bool)
	for _, entry := range config.Entities {
		if entry.Type == "" {
			return fmt.Errorf("entity type is required")
		}
		if entityTypes[entry.Type] {
			return fmt.Errorf("duplicate entity type: %s", entry.Type)
		}
		entityTypes[entry.Type] = true

		if entry.Strategy != "" {
			if _, err := ParseStrategy(entry.Strategy); err != nil {
				return fmt.Errorf("entity %s: %w", entry.Type, err)
			}
		}
		if entry.ArrayStrategy != "" {
			if _, err := ParseArrayPolicy(entry.ArrayStrategy); err != nil {
				return fmt.Errorf("entity %s: %w", entry.Type, err)
			}
		}
		for field, fe := range entry.Fields {
			if fe.Strategy == "" {
				return fmt.Errorf("entity %s: field %s is missing a strategy", entry.Type, field)
			}
			kind, err := ParseFieldStrategy(fe.Strategy)
			if err != nil {
				return fmt.Errorf("entity %s: field %s: %w", entry.Type, field, err)
			}
			if kind == FieldCustom && fe.Merger == "" {
				return fmt.Errorf("entity %s: field %s uses a custom strategy without naming a merger", entry.Type, field)
			}
		}
	}

	return nil
}

// Built-in watchers

// LoggingWatcher logs configuration changes.
type LoggingWatcher struct {
	logger Logger
}

func NewLoggingWatcher(logger Logger) *LoggingWatcher {
	return &LoggingWatcher{logger: logger}
}

func (w *LoggingWatcher) Name() string {
	return "logging"
}

func (w *LoggingWatcher) OnConfigChanged(oldConfig, newConfig *FileConfig) {
	if w.logger == nil {
		return
	}

	if oldConfig == nil {
		w.logger.Debug("Initial configuration loaded", "version", newConfig.Version, "entities", len(newConfig.Entities))
	} else {
		w.logger.Debug("Configuration updated",
			"old_version", oldConfig.Version,
			"new_version", newConfig.Version,
			"old_entities", len(oldConfig.Entities),
			"new_entities", len(newConfig.Entities))
	}
}

func (w *LoggingWatcher) OnConfigError(err error) {
	if w.logger != nil {
		w.logger.Error("Configuration error", "error", err)
	}
}
