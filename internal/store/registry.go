package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory opens a backend for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under driver.
//
// Panics if driver is empty, f is nil, or driver is already registered.
func Register(driver string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if driver == "" {
		panic("store: Register called with empty driver")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	if _, exists := factories[driver]; exists {
		panic(fmt.Sprintf("store: factory already registered for driver=%q", driver))
	}
	factories[driver] = f
}

// Open constructs the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("store: missing driver")
	}

	mu.RLock()
	f, ok := factories[cfg.Driver]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("store: unsupported driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	return f(ctx, cfg)
}

// Drivers lists registered driver names in sorted order.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
