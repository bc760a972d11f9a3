package engine

import (
	"context"
	"fmt"
	"sync"
)

// StaticResolver maps instance names to engines registered at startup.
type StaticResolver struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{engines: make(map[string]Engine)}
}

// Register adds or replaces the engine for an instance name.
func (r *StaticResolver) Register(instanceName string, eng Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.engines[instanceName] = eng
}

// EngineFor returns the engine registered for the instance.
func (r *StaticResolver) EngineFor(_ context.Context, instanceName string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eng, ok := r.engines[instanceName]
	if !ok {
		return nil, fmt.Errorf("no engine registered for instance %q", instanceName)
	}

	return eng, nil
}
