package mergekit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Havanyani/go-merge-kit/errors"
)

// Registry maps entity-type names to their resolution configuration. It is an
// explicit handle owned by the hosting application and passed into the
// engine, not ambient global state, so tests can isolate their own registry.
//
// Registration normally happens once at bootstrap before concurrent
// resolution begins; the internal lock additionally makes runtime
// re-registration safe.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]ResolutionConfig
	mergers map[string]FieldMerger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]ResolutionConfig),
		mergers: make(map[string]FieldMerger),
	}
}

// Register binds a resolution configuration to an entity type, overwriting
// any prior configuration wholesale; configs are never partially merged.
// A custom field strategy without a merger is rejected here so the gap
// surfaces at bootstrap instead of during a sync cycle.
func (r *Registry) Register(entityType string, cfg ResolutionConfig) error {
	if entityType == "" {
		return errors.NewValidationError(errors.OpRegister,
			fmt.Errorf("entity type must not be empty"))
	}
	for field, fs := range cfg.FieldStrategies {
		if fs.Kind == FieldCustom && fs.Merger == nil {
			err := errors.NewValidationError(errors.OpRegister,
				fmt.Errorf("field %q uses a custom strategy without a merger", field))
			err.Metadata = map[string]interface{}{"entity_type": entityType, "field": field}
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[entityType] = cfg
	return nil
}

// ConfigFor returns the configuration registered for an entity type, or the
// documented default for unregistered types: remote wins, no field
// strategies, arrays replaced wholesale.
func (r *Registry) ConfigFor(entityType string) ResolutionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.configs[entityType]; ok {
		return cfg
	}
	return ResolutionConfig{}
}

// RegisterMerger binds a named custom merger so configuration files can
// reference it by name.
func (r *Registry) RegisterMerger(name string, m FieldMerger) error {
	if name == "" {
		return errors.NewValidationError(errors.OpRegister,
			fmt.Errorf("merger name must not be empty"))
	}
	if m == nil {
		return errors.NewValidationError(errors.OpRegister,
			fmt.Errorf("merger %q must not be nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergers[name] = m
	return nil
}

// MergerFor retrieves a named custom merger.
func (r *Registry) MergerFor(name string) (FieldMerger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mergers[name]
	return m, ok
}

// EntityTypes returns the registered entity types in sorted order, for
// debugging and introspection.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.configs))
	for t := range r.configs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
