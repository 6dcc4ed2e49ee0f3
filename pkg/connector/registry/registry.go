// Package registry maps connector type names to factories. Connectors
// register themselves from init functions; the CLI and pipeline create
// instances by name.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/logger"
)

// SourceFactory creates a source connector from its configuration.
type SourceFactory func(config *config.BaseConfig) (core.Source, error)

// DestinationFactory creates a destination connector from its configuration.
type DestinationFactory func(config *config.BaseConfig) (core.Destination, error)

// Info describes a registered connector for listings.
type Info struct {
	Name        string
	Description string
}

type entry[F any] struct {
	info    Info
	factory F
}

// table is one kind of connector keyed by type name.
type table[F any] struct {
	kind    string
	entries map[string]entry[F]
}

func (t *table[F]) add(name, description string, factory F) error {
	if name == "" {
		return errors.Newf(errors.ErrorTypeValidation, "%s connector name is required", t.kind)
	}
	if _, exists := t.entries[name]; exists {
		return errors.Newf(errors.ErrorTypeConflict, "%s connector %s already registered", t.kind, name)
	}
	t.entries[name] = entry[F]{info: Info{Name: name, Description: description}, factory: factory}
	return nil
}

func (t *table[F]) get(name string) (F, error) {
	e, ok := t.entries[name]
	if !ok {
		var zero F
		return zero, errors.Newf(errors.ErrorTypeNotFound, "%s connector %s not found", t.kind, name).
			WithDetail("available", t.names())
	}
	return e.factory, nil
}

func (t *table[F]) names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *table[F]) infos() []Info {
	names := t.names()
	out := make([]Info, len(names))
	for i, name := range names {
		out[i] = t.entries[name].info
	}
	return out
}

// Registry manages connector registration and instantiation
type Registry struct {
	mu           sync.RWMutex
	sources      table[SourceFactory]
	destinations table[DestinationFactory]
}

var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      table[SourceFactory]{kind: "source", entries: make(map[string]entry[SourceFactory])},
		destinations: table[DestinationFactory]{kind: "destination", entries: make(map[string]entry[DestinationFactory])},
	}
}

// The global logger may be replaced after connectors register, so it is
// looked up on every call.
func (r *Registry) log() *zap.Logger {
	return logger.Get().With(zap.String("component", "connector_registry"))
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name, description string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sources.add(name, description, factory); err != nil {
		return err
	}
	r.log().Debug("source connector registered", zap.String("name", name))
	return nil
}

// RegisterDestination registers a destination connector factory
func (r *Registry) RegisterDestination(name, description string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.destinations.add(name, description, factory); err != nil {
		return err
	}
	r.log().Debug("destination connector registered", zap.String("name", name))
	return nil
}

// CreateSource creates a source connector instance. Factory errors keep
// their category.
func (r *Registry) CreateSource(name string, config *config.BaseConfig) (core.Source, error) {
	r.mu.RLock()
	factory, err := r.sources.get(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	source, err := factory(config)
	if err != nil {
		return nil, errors.Annotate(err, errors.ErrorTypeConfig, "failed to create source connector "+name)
	}
	return source, nil
}

// CreateDestination creates a destination connector instance
func (r *Registry) CreateDestination(name string, config *config.BaseConfig) (core.Destination, error) {
	r.mu.RLock()
	factory, err := r.destinations.get(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	destination, err := factory(config)
	if err != nil {
		return nil, errors.Annotate(err, errors.ErrorTypeConfig, "failed to create destination connector "+name)
	}
	return destination, nil
}

// ListSources returns the sorted names of registered source connectors
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources.names()
}

// ListDestinations returns the sorted names of registered destination connectors
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destinations.names()
}

// Sources describes the registered source connectors, sorted by name.
func (r *Registry) Sources() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources.infos()
}

// Destinations describes the registered destination connectors, sorted by name.
func (r *Registry) Destinations() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destinations.infos()
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources.entries[name]
	return ok
}

// HasDestination checks if a destination connector is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.destinations.entries[name]
	return ok
}

// RegisterSource registers a source connector in the global registry
func RegisterSource(name, description string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, description, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(name, description string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, description, factory)
}

// CreateSource creates a source connector from the global registry
func CreateSource(name string, config *config.BaseConfig) (core.Source, error) {
	return globalRegistry.CreateSource(name, config)
}

// CreateDestination creates a destination connector from the global registry
func CreateDestination(name string, config *config.BaseConfig) (core.Destination, error) {
	return globalRegistry.CreateDestination(name, config)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
