package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory opens a FeedbackStore for one backend type
type Factory interface {
	Create(ctx context.Context, config Config) (FeedbackStore, error)
	GetType() string
}

type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(storageType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[storageType] = factory
}

func (r *Registry) Create(ctx context.Context, storageType string, config Config) (FeedbackStore, error) {
	r.mu.RLock()
	factory, exists := r.factories[storageType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("storage type %s not registered", storageType)
	}

	return factory.Create(ctx, config)
}

// GetAvailableTypes returns the registered backend names, sorted
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storageType := range r.factories {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) IsRegistered(storageType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[storageType]
	return exists
}

var DefaultRegistry = NewRegistry()

func Register(storageType string, factory Factory) {
	DefaultRegistry.Register(storageType, factory)
}

func Create(ctx context.Context, storageType string, config Config) (FeedbackStore, error) {
	return DefaultRegistry.Create(ctx, storageType, config)
}
